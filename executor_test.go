package datafetch_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/n-r-w/datafetch"
	"github.com/n-r-w/datafetch/fetchmock"
)

func registerRoutes(a *fetchmock.Adapter) {
	a.OnGet(fetchmock.Path("/userinfo")).Reply(http.StatusOK, map[string]any{"user": map[string]any{"id": "my-id"}})
	// A different id each time this endpoint is called
	a.OnGet(fetchmock.Path("/randomId")).ReplyFunc(func(datafetch.RequestConfig) (int, any) {
		id := uuid.NewString()
		return http.StatusOK, map[string]any{"id": id, "data": id}
	})
	a.OnGet(fetchmock.Path("/getWithData")).ReplyFunc(func(cfg datafetch.RequestConfig) (int, any) {
		return http.StatusOK, map[string]any{"message": cfg.Data, "params": cfg.Params}
	})
	a.OnPost(fetchmock.Path("/message")).ReplyFunc(func(cfg datafetch.RequestConfig) (int, any) {
		return http.StatusOK, map[string]any{"message": cfg.Data, "headers": cfg.Headers}
	})
	a.OnPut(fetchmock.Path("/replace")).ReplyFunc(func(cfg datafetch.RequestConfig) (int, any) {
		return http.StatusOK, map[string]any{"message": cfg.Data}
	})
	a.OnPatch(fetchmock.Path("/update")).ReplyFunc(func(cfg datafetch.RequestConfig) (int, any) {
		return http.StatusOK, map[string]any{"message": cfg.Data}
	})
	a.OnDelete(fetchmock.Path("/remove")).ReplyFunc(func(cfg datafetch.RequestConfig) (int, any) {
		return http.StatusOK, map[string]any{"message": cfg.Data}
	})
	a.OnGet(fetchmock.Path("/fail")).Reply(http.StatusInternalServerError, map[string]any{"error": "boom"})
	a.OnGet(fetchmock.Path("/offline")).Fail(errors.New("network down"))
}

func newMockProvider(t *testing.T, opts ...datafetch.ProviderOption) (*datafetch.Provider, *fetchmock.Adapter) {
	t.Helper()

	var adapter *fetchmock.Adapter
	opts = append(opts, datafetch.WithMockInstaller(fetchmock.Installer(func(a *fetchmock.Adapter) {
		adapter = a
		registerRoutes(a)
	})))

	p, err := datafetch.NewProvider(opts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	return p, adapter
}

func payload(t *testing.T, res datafetch.Result) map[string]any {
	t.Helper()

	require.True(t, res.OK(), "unexpected failure: %v", res.Err)
	m, ok := res.Data().(map[string]any)
	require.True(t, ok, "unexpected payload %T", res.Data())
	return m
}

func TestExecutor_Verbs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newMockProvider(t)

	res, err := p.Executor("/userinfo").Get(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": "my-id"}, payload(t, res)["user"])

	res, err = p.Executor("/getWithData").Get(ctx, "my message of get")
	require.NoError(t, err)
	require.Equal(t, "my message of get", payload(t, res)["message"])

	res, err = p.Executor("/message").Post(ctx, "my data")
	require.NoError(t, err)
	require.Equal(t, "my data", payload(t, res)["message"])

	res, err = p.Executor("/replace").Put(ctx, "different data")
	require.NoError(t, err)
	require.Equal(t, "different data", payload(t, res)["message"])

	res, err = p.Executor("/update").Patch(ctx, "more different data")
	require.NoError(t, err)
	require.Equal(t, "more different data", payload(t, res)["message"])

	res, err = p.Executor("/remove").Destroy(ctx, "id")
	require.NoError(t, err)
	require.Equal(t, "id", payload(t, res)["message"])
	require.Equal(t, http.MethodDelete, res.Response.Config.Method)
}

func TestExecutor_RandomIDWithoutCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, adapter := newMockProvider(t)
	exec := p.Executor("/randomId")

	first, err := exec.Get(ctx, nil)
	require.NoError(t, err)
	second, err := exec.Get(ctx, nil)
	require.NoError(t, err)

	require.NotEqual(t, payload(t, first)["id"], payload(t, second)["id"])
	require.Equal(t, 2, adapter.Calls(http.MethodGet, "/randomId"))
	require.Zero(t, p.Cache().Len())
}

func TestExecutor_RandomIDWithContextCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, adapter := newMockProvider(t, datafetch.WithUseCache(true))
	exec := p.Executor("/randomId")

	first, err := exec.Get(ctx, nil)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := exec.Get(ctx, nil)
	require.NoError(t, err)
	require.True(t, second.Cached)

	require.NotSame(t, first.Response, second.Response)
	require.Equal(t, payload(t, first), payload(t, second))
	require.Equal(t, 1, adapter.Calls(http.MethodGet, "/randomId"))
}

func TestExecutor_CachedResponseIsNotAliased(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newMockProvider(t, datafetch.WithUseCache(true))

	var hooked *datafetch.Response
	exec := p.Executor("/randomId", datafetch.WithUpdateStateHook(func(resp *datafetch.Response, _ datafetch.RequestConfig) error {
		hooked = resp
		resp.Status = http.StatusAccepted
		return nil
	}))

	first, err := exec.Get(ctx, nil)
	require.NoError(t, err)
	require.Same(t, hooked, first.Response)
	want := payload(t, first)["id"]

	first.Response.Data = "tampered"

	cached, ok := p.Cache().Peek("/randomId")
	require.True(t, ok)
	require.Equal(t, http.StatusOK, cached.Status)

	second, err := exec.Get(ctx, nil)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, want, payload(t, second)["id"])
}

func TestExecutor_CachedReadIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, adapter := newMockProvider(t)
	exec := p.Executor("/randomId", datafetch.UseCache(true))

	var want any
	for i := 0; i < 10; i++ {
		res, err := exec.Get(ctx, nil)
		require.NoError(t, err)
		if i == 0 {
			want = payload(t, res)["id"]
		}
		require.Equal(t, want, payload(t, res)["id"])
	}

	require.Equal(t, 1, adapter.Calls(http.MethodGet, "/randomId"))
}

func TestExecutor_CachePolicyPrecedence(t *testing.T) {
	t.Parallel()

	flags := []*bool{nil, ptr(true), ptr(false)}

	for _, ctxFlag := range []bool{true, false} {
		for _, hookFlag := range flags {
			for _, callFlag := range flags {
				want := ctxFlag
				if hookFlag != nil {
					want = *hookFlag
				}
				if callFlag != nil {
					want = *callFlag
				}

				name := fmt.Sprintf("context=%v/hook=%s/call=%s", ctxFlag, flagName(hookFlag), flagName(callFlag))
				t.Run(name, func(t *testing.T) {
					t.Parallel()

					ctx := context.Background()
					p, adapter := newMockProvider(t, datafetch.WithUseCache(ctxFlag))

					var hookOpts, callOpts []datafetch.Option
					if hookFlag != nil {
						hookOpts = append(hookOpts, datafetch.UseCache(*hookFlag))
					}
					if callFlag != nil {
						callOpts = append(callOpts, datafetch.UseCache(*callFlag))
					}

					exec := p.Executor("/randomId", hookOpts...)
					first, err := exec.Get(ctx, nil, callOpts...)
					require.NoError(t, err)
					second, err := exec.Get(ctx, nil, callOpts...)
					require.NoError(t, err)

					if want {
						require.Equal(t, payload(t, first)["id"], payload(t, second)["id"])
						require.Equal(t, 1, adapter.Calls(http.MethodGet, "/randomId"))
					} else {
						require.NotEqual(t, payload(t, first)["id"], payload(t, second)["id"])
						require.Equal(t, 2, adapter.Calls(http.MethodGet, "/randomId"))
					}
				})
			}
		}
	}
}

func TestExecutor_WritesBypassCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, adapter := newMockProvider(t, datafetch.WithUseCache(true))
	exec := p.Executor("/message")

	for i := 0; i < 3; i++ {
		res, err := exec.Post(ctx, i)
		require.NoError(t, err)
		require.False(t, res.Cached)
	}

	require.Equal(t, 3, adapter.Calls(http.MethodPost, "/message"))
	require.False(t, p.Cache().Contains("/message"))
}

func TestExecutor_CacheKeyIgnoresParams(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, adapter := newMockProvider(t, datafetch.WithUseCache(true))
	exec := p.Executor("/getWithData")

	first, err := exec.Query(ctx, url.Values{"page": {"1"}})
	require.NoError(t, err)
	second, err := exec.Query(ctx, url.Values{"page": {"2"}})
	require.NoError(t, err)

	// Same path, same cache entry
	require.True(t, second.Cached)
	require.Equal(t, url.Values{"page": {"1"}}, payload(t, second)["params"])
	require.Equal(t, first.Data(), second.Data())
	require.Equal(t, 1, adapter.Calls(http.MethodGet, "/getWithData"))
}

func TestExecutor_CacheKeyFunc(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyFn := func(path string, cfg datafetch.RequestConfig) string {
		return path + "?" + cfg.Params.Encode()
	}
	p, adapter := newMockProvider(t, datafetch.WithUseCache(true), datafetch.WithCacheKeyFunc(keyFn))
	exec := p.Executor("/getWithData")

	_, err := exec.Query(ctx, url.Values{"page": {"1"}})
	require.NoError(t, err)
	second, err := exec.Query(ctx, url.Values{"page": {"2"}})
	require.NoError(t, err)

	require.False(t, second.Cached)
	require.Equal(t, url.Values{"page": {"2"}}, payload(t, second)["params"])
	require.Equal(t, 2, adapter.Calls(http.MethodGet, "/getWithData"))
}

func TestExecutor_SettlementOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	var p *datafetch.Provider
	p, _ = newMockProvider(t,
		datafetch.WithUseCache(true),
		datafetch.WithScreenReaderAlert(func(message string) { record("alert:" + message) }),
	)

	exec := p.Executor("/userinfo",
		datafetch.WithAlert("Messages Came"),
		datafetch.WithStateListener(func(s datafetch.RequestState) { record(s.String()) }),
		datafetch.WithUpdateStateHook(func(resp *datafetch.Response, cfg datafetch.RequestConfig) error {
			record(fmt.Sprintf("hook:cached=%v", p.Cache().Contains("/userinfo")))
			return nil
		}),
	)

	_, err := exec.Get(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"running", "success", "hook:cached=true", "alert:Messages Came"}, events)

	events = nil
	res, err := exec.Get(ctx, nil)
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.Equal(t, []string{"success", "hook:cached=true", "alert:Messages Came"}, events)
}

func TestExecutor_FailureIsResolved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var (
		states    []datafetch.RequestState
		hookCalls int
		alerts    int
	)
	p, _ := newMockProvider(t, datafetch.WithScreenReaderAlert(func(string) { alerts++ }))
	exec := p.Executor("/fail",
		datafetch.WithAlert("done"),
		datafetch.WithStateListener(func(s datafetch.RequestState) { states = append(states, s) }),
		datafetch.WithUpdateStateHook(func(*datafetch.Response, datafetch.RequestConfig) error {
			hookCalls++
			return nil
		}),
	)

	res, err := exec.Get(ctx, nil)
	require.NoError(t, err, "request failures are not returned as errors")
	require.False(t, res.OK())

	var httpErr *datafetch.HTTPError
	require.ErrorAs(t, res.Err, &httpErr)
	require.Equal(t, http.StatusInternalServerError, httpErr.Status)
	require.Equal(t, map[string]any{"error": "boom"}, httpErr.Response.Data)

	require.Equal(t, []datafetch.RequestState{datafetch.StateRunning, datafetch.StateError}, states)
	require.Zero(t, hookCalls)
	require.Zero(t, alerts)

	res, err = p.Executor("/offline").Get(ctx, nil)
	require.NoError(t, err)
	require.EqualError(t, res.Err, "network down")
}

func TestExecutor_FailureIsNotCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, adapter := newMockProvider(t, datafetch.WithUseCache(true))

	for i := 0; i < 2; i++ {
		res, err := p.Executor("/fail").Get(ctx, nil)
		require.NoError(t, err)
		require.Error(t, res.Err)
	}

	require.Equal(t, 2, adapter.Calls(http.MethodGet, "/fail"))
}

func TestExecutor_UpdateHookError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var (
		states []datafetch.RequestState
		alerts int
	)
	p, _ := newMockProvider(t, datafetch.WithScreenReaderAlert(func(string) { alerts++ }))
	hookErr := &datafetch.ConfigurationError{Op: "test", Err: datafetch.ErrUnrecognizedPayload}

	exec := p.Executor("/userinfo",
		datafetch.WithAlert("done"),
		datafetch.WithStateListener(func(s datafetch.RequestState) { states = append(states, s) }),
		datafetch.WithUpdateStateHook(func(*datafetch.Response, datafetch.RequestConfig) error {
			return hookErr
		}),
	)

	res, err := exec.Get(ctx, nil)
	require.ErrorIs(t, err, datafetch.ErrUnrecognizedPayload)
	require.ErrorIs(t, res.Err, datafetch.ErrUnrecognizedPayload)
	require.NotNil(t, res.Response)
	require.Equal(t, []datafetch.RequestState{
		datafetch.StateRunning, datafetch.StateSuccess, datafetch.StateError,
	}, states)
	require.Zero(t, alerts)

	// Plain hook errors stay in the result
	res, err = exec.Get(ctx, nil, datafetch.WithUpdateStateHook(func(*datafetch.Response, datafetch.RequestConfig) error {
		return errors.New("rejected")
	}))
	require.NoError(t, err)
	require.EqualError(t, res.Err, "rejected")
}

func TestExecutor_UpdateHookPrecedence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var calls []string
	hook := func(name string) datafetch.UpdateStateHook {
		return func(resp *datafetch.Response, cfg datafetch.RequestConfig) error {
			require.Equal(t, "/userinfo", cfg.URL)
			calls = append(calls, name)
			return nil
		}
	}

	p, _ := newMockProvider(t, datafetch.WithDefaultUpdateStateHook(hook("provider")))

	_, err := p.Executor("/userinfo").Get(ctx, nil)
	require.NoError(t, err)

	exec := p.Executor("/userinfo", datafetch.WithUpdateStateHook(hook("hook")))
	_, err = exec.Get(ctx, nil)
	require.NoError(t, err)

	_, err = exec.Get(ctx, nil, datafetch.WithUpdateStateHook(hook("call")))
	require.NoError(t, err)

	require.Equal(t, []string{"provider", "hook", "call"}, calls)
}

func TestExecutor_StateListenerPrecedence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, _ := newMockProvider(t)

	var hookStates, callStates []datafetch.RequestState
	exec := p.Executor("/userinfo", datafetch.WithStateListener(func(s datafetch.RequestState) {
		hookStates = append(hookStates, s)
	}))

	_, err := exec.Get(ctx, nil, datafetch.WithStateListener(func(s datafetch.RequestState) {
		callStates = append(callStates, s)
	}))
	require.NoError(t, err)

	require.Empty(t, hookStates)
	require.Equal(t, []datafetch.RequestState{datafetch.StateRunning, datafetch.StateSuccess}, callStates)
}

func TestExecutor_RequestConfigMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, adapter := newMockProvider(t)

	exec := p.Executor("/message", datafetch.WithRequestConfig(datafetch.RequestConfig{
		Headers: map[string]string{"X-Scope": "hook"},
		Data:    "hook data",
		Extra:   map[string]any{"a": 1, "b": 1},
	}))

	res, err := exec.Post(ctx, nil, datafetch.WithRequestConfig(datafetch.RequestConfig{
		Headers: map[string]string{"X-Scope": "call"},
		Extra:   map[string]any{"b": 2},
	}))
	require.NoError(t, err)
	require.Equal(t, "hook data", payload(t, res)["message"])
	require.Equal(t, map[string]string{"X-Scope": "call"}, payload(t, res)["headers"])

	sent := adapter.History()[0]
	require.Equal(t, map[string]any{"a": 1, "b": 2}, sent.Extra)

	// Literal data wins over configured data
	res, err = exec.Post(ctx, "literal")
	require.NoError(t, err)
	require.Equal(t, "literal", payload(t, res)["message"])
}

func TestExecutor_Request(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, adapter := newMockProvider(t)

	_, err := p.Executor("/anything").Request(ctx, nil)
	require.ErrorIs(t, err, datafetch.ErrMissingURL)
	require.True(t, datafetch.IsConfigurationError(err))

	_, err = p.Executor("/anything", datafetch.WithRequestConfig(datafetch.RequestConfig{URL: "/message"})).Request(ctx, nil)
	require.ErrorIs(t, err, datafetch.ErrMissingMethod)
	require.Empty(t, adapter.History(), "nothing is sent on configuration errors")

	exec := p.Executor("/anything", datafetch.WithRequestConfig(datafetch.RequestConfig{
		URL:    "/message",
		Method: "post",
		Data:   "my-custom-message",
	}))

	res, err := exec.Request(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "my-custom-message", payload(t, res)["message"])

	res, err = exec.Request(ctx, nil, datafetch.WithRequestConfig(datafetch.RequestConfig{Data: "overwritten data"}))
	require.NoError(t, err)
	require.Equal(t, "overwritten data", payload(t, res)["message"])
}

func TestExecutor_Concurrent(t *testing.T) {
	t.Parallel()

	const nParallel = 20

	ctx := context.Background()
	p, adapter := newMockProvider(t, datafetch.WithUseCache(true))
	exec := p.Executor("/randomId")

	var errGroup errgroup.Group
	for i := 0; i < nParallel; i++ {
		errGroup.Go(func() error {
			res, err := exec.Get(ctx, nil)
			if err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("unexpected failure: %w", res.Err)
			}
			return nil
		})
	}
	require.NoError(t, errGroup.Wait())

	// No coalescing of in-flight requests, but every later read is a hit
	calls := adapter.Calls(http.MethodGet, "/randomId")
	require.GreaterOrEqual(t, calls, 1)
	require.LessOrEqual(t, calls, nParallel)
	require.Equal(t, 1, p.Cache().Len())

	_, err := exec.Get(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, calls, adapter.Calls(http.MethodGet, "/randomId"))
}

func TestExecutor_Cancellation(t *testing.T) {
	t.Parallel()

	p, err := datafetch.NewProvider(datafetch.WithMockInstaller(fetchmock.Installer(registerRoutes, fetchmock.WithDelay(time.Second))))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res, err := p.Executor("/userinfo").Get(ctx, nil)
	require.NoError(t, err)
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestExecutor_Logging(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	p, _ := newMockProvider(t, datafetch.WithLogger(zap.New(core)), datafetch.WithUseCache(true))

	_, err := p.Executor("/fail").Get(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("request failed").Len())

	for i := 0; i < 2; i++ {
		_, err = p.Executor("/userinfo").Get(ctx, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 1, logs.FilterMessage("serving response from cache").Len())
}

func TestExecutor_Tracing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	p, _ := newMockProvider(t, datafetch.WithTracerProvider(tp), datafetch.WithUseCache(true))

	_, err := p.Executor("/userinfo").Get(ctx, nil)
	require.NoError(t, err)
	_, err = p.Executor("/userinfo").Get(ctx, nil)
	require.NoError(t, err)
	_, err = p.Executor("/fail").Get(ctx, nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2, "cache hits are not dispatched")
	require.Equal(t, "datafetch GET", spans[0].Name())
	require.Len(t, spans[1].Events(), 1, "the failure is recorded on the span")
}

type countingMetrics struct {
	mu       sync.Mutex
	hits     int
	misses   int
	requests map[datafetch.RequestState]int
}

func (m *countingMetrics) ObserveCacheLookup(_ context.Context, _ string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *countingMetrics) ObserveRequest(_ context.Context, _, _ string, state datafetch.RequestState, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.requests == nil {
		m.requests = make(map[datafetch.RequestState]int)
	}
	m.requests[state]++
}

func TestExecutor_Metrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := &countingMetrics{}
	p, _ := newMockProvider(t, datafetch.WithMetrics(m), datafetch.WithUseCache(true))

	for i := 0; i < 3; i++ {
		_, err := p.Executor("/userinfo").Get(ctx, nil)
		require.NoError(t, err)
	}
	_, err := p.Executor("/fail").Get(ctx, nil)
	require.NoError(t, err)

	require.Equal(t, 2, m.hits)
	require.Equal(t, 2, m.misses)
	require.Equal(t, map[datafetch.RequestState]int{datafetch.StateSuccess: 3, datafetch.StateError: 1}, m.requests)
}

func ptr[T any](v T) *T {
	return &v
}

func flagName(v *bool) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprint(*v)
}
