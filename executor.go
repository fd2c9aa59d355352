package datafetch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Executor issues requests against one path using the policy of its provider.
//
// Every operation returns a Result describing the settled request. Transport
// failures are reported through Result.Err and never through the error return,
// which only carries *ConfigurationError values.
type Executor struct {
	provider *Provider
	path     string
	hook     settings
}

// NewExecutor creates an executor for path. opts are the hook-level settings.
func NewExecutor(p *Provider, path string, opts ...Option) *Executor {
	if p == nil {
		panic("datafetch: nil provider")
	}

	return &Executor{
		provider: p,
		path:     path,
		hook:     newSettings(opts),
	}
}

// Path returns the target path of the executor.
func (e *Executor) Path() string {
	return e.path
}

// Get issues a GET. data, when not nil, is sent as the request body.
func (e *Executor) Get(ctx context.Context, data any, opts ...Option) (Result, error) {
	return e.do(ctx, MethodGet, data, nil, opts)
}

// Query issues a GET with params as the query string.
func (e *Executor) Query(ctx context.Context, params url.Values, opts ...Option) (Result, error) {
	return e.do(ctx, MethodGet, nil, &RequestConfig{Params: params}, opts) //nolint:exhaustruct // partial config
}

// Post issues a POST with data as the body.
func (e *Executor) Post(ctx context.Context, data any, opts ...Option) (Result, error) {
	return e.do(ctx, MethodPost, data, nil, opts)
}

// Put issues a PUT with data as the body.
func (e *Executor) Put(ctx context.Context, data any, opts ...Option) (Result, error) {
	return e.do(ctx, MethodPut, data, nil, opts)
}

// Patch issues a PATCH with data as the body.
func (e *Executor) Patch(ctx context.Context, data any, opts ...Option) (Result, error) {
	return e.do(ctx, MethodPatch, data, nil, opts)
}

// Destroy issues a DELETE with data as the body.
func (e *Executor) Destroy(ctx context.Context, data any, opts ...Option) (Result, error) {
	return e.do(ctx, MethodDelete, data, nil, opts)
}

// Request issues a fully custom request. The hook-level request config must
// carry both URL and Method, otherwise nothing is sent and a configuration error is returned.
func (e *Executor) Request(ctx context.Context, data any, opts ...Option) (Result, error) {
	if e.hook.requestConfig.URL == "" {
		err := configError("request", ErrMissingURL)
		return Result{Err: err}, err //nolint:exhaustruct // failed before dispatch
	}
	if e.hook.requestConfig.Method == "" {
		err := configError("request", ErrMissingMethod)
		return Result{Err: err}, err //nolint:exhaustruct // failed before dispatch
	}

	return e.do(ctx, "", data, nil, opts)
}

func (e *Executor) do(ctx context.Context, method string, data any, extra *RequestConfig, opts []Option) (Result, error) {
	p := e.provider

	call := newSettings(opts)
	if extra != nil {
		call.requestConfig = call.requestConfig.Merge(*extra)
	}
	policy := resolve(call, e.hook, p)

	// hook config, then call config, then literal data
	base := RequestConfig{Method: method, URL: e.path} //nolint:exhaustruct // partial config
	cfg := base.Merge(e.hook.requestConfig).Merge(call.requestConfig)
	if data != nil {
		cfg.Data = data
	}

	key := p.cacheKey(e.path, cfg)
	isRead := strings.EqualFold(cfg.Method, MethodGet)
	logger := p.logger.With(zap.String("method", cfg.Method), zap.String("path", e.path))

	if policy.useCache && isRead {
		cached, hit := p.cache.Get(key)
		if p.metrics != nil {
			p.metrics.ObserveCacheLookup(ctx, key, hit)
		}
		if hit {
			logger.Debug("serving response from cache", zap.String("key", key))
			policy.listener(StateSuccess)
			shared := *cached
			res, err := e.settle(&shared, cfg, policy, logger)
			res.Cached = true
			e.observe(ctx, cfg.Method, res, 0)
			return res, err
		}
	}

	policy.listener(StateRunning)

	ctx, span := p.tracer.Start(ctx, "datafetch "+cfg.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", cfg.Method),
			attribute.String("url.path", cfg.URL),
			attribute.Bool("datafetch.use_cache", policy.useCache),
		),
	)
	defer span.End()

	logger.Debug("dispatching request", zap.String("url", cfg.URL))
	start := time.Now()

	resp, err := p.transport.Do(ctx, cfg)
	if err == nil && resp == nil {
		resp = &Response{Config: cfg} //nolint:exhaustruct // empty response
	}
	duration := time.Since(start)

	if err != nil {
		policy.listener(StateError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("request failed", zap.Error(err), zap.Duration("duration", duration))
		res := Result{Err: err} //nolint:exhaustruct // failed request
		e.observe(ctx, cfg.Method, res, duration)
		return res, nil
	}

	policy.listener(StateSuccess)
	if policy.useCache && isRead {
		p.cache.Set(key, resp)
		shared := *resp
		resp = &shared
	}

	res, cfgErr := e.settle(resp, cfg, policy, logger)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	e.observe(ctx, cfg.Method, res, duration)

	return res, cfgErr
}

// settle applies the update hook and the announcement to a successful response.
// Discarded outcomes skip both.
func (e *Executor) settle(resp *Response, cfg RequestConfig, policy resolved, logger *zap.Logger) (Result, error) {
	if policy.dropped() {
		logger.Debug("discarding settled response")
		return Result{Response: resp}, nil //nolint:exhaustruct // discarded
	}

	if policy.updateHook != nil {
		if err := policy.updateHook(resp, cfg); err != nil {
			policy.listener(StateError)
			logger.Warn("update state hook failed", zap.Error(err))

			res := Result{Response: resp, Err: err} //nolint:exhaustruct // hook failure
			if IsConfigurationError(err) {
				return res, err
			}
			return res, nil
		}
	}

	if policy.alert != "" {
		e.provider.announce(policy.alert)
	}

	return Result{Response: resp}, nil //nolint:exhaustruct // success
}

func (e *Executor) observe(ctx context.Context, method string, res Result, duration time.Duration) {
	if e.provider.metrics == nil {
		return
	}

	state := StateSuccess
	if res.Err != nil {
		state = StateError
	}
	e.provider.metrics.ObserveRequest(ctx, method, e.path, state, duration)
}
