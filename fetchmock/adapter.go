// Package fetchmock installs canned responses on a datafetch transport.
//
//	provider, err := datafetch.NewProvider(datafetch.WithMockInstaller(
//		fetchmock.Installer(func(a *fetchmock.Adapter) {
//			a.OnGet(fetchmock.Path("/userinfo")).Reply(200, map[string]any{"user": map[string]any{"id": "my-id"}})
//			a.OnPut(regexp.MustCompile(`^/items/[\w-]+$`)).ReplyFunc(echoItem)
//		}),
//	))
//
// Routes are matched in registration order by method and path.
package fetchmock

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/n-r-w/datafetch"
)

// Pattern matches a request path. *regexp.Regexp satisfies it.
type Pattern interface {
	MatchString(s string) bool
}

// Path matches one exact path.
type Path string

// MatchString reports whether s equals the path.
func (p Path) MatchString(s string) bool {
	return string(p) == s
}

// Handler computes the status and body for a matched request.
type Handler func(cfg datafetch.RequestConfig) (status int, body any)

// Adapter is a datafetch.Transport answering from registered routes.
type Adapter struct {
	fallback    datafetch.Transport
	passthrough bool
	delay       time.Duration

	mu      sync.Mutex
	routes  []*Route
	history []datafetch.RequestConfig
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDelay delays every reply. The delay is aborted when the request context is done.
func WithDelay(d time.Duration) Option {
	return func(a *Adapter) {
		a.delay = d
	}
}

// Passthrough forwards unmatched requests to the fallback transport instead of answering 404.
func Passthrough() Option {
	return func(a *Adapter) {
		a.passthrough = true
	}
}

// New creates an Adapter. fallback may be nil unless Passthrough is set.
func New(fallback datafetch.Transport, opts ...Option) *Adapter {
	a := &Adapter{fallback: fallback} //nolint:exhaustruct // default values
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Installer returns a datafetch.MockInstaller that wraps the provider transport in an Adapter
// prepared by setup.
func Installer(setup func(*Adapter), opts ...Option) datafetch.MockInstaller {
	return func(base datafetch.Transport) datafetch.Transport {
		a := New(base, opts...)
		setup(a)
		return a
	}
}

// Route is a registered method and path pattern.
type Route struct {
	adapter *Adapter
	method  string
	pattern Pattern
	handler Handler
	err     error
}

// On registers a route for method. An empty method matches any method.
func (a *Adapter) On(method string, pattern Pattern) *Route {
	r := &Route{adapter: a, method: strings.ToUpper(method), pattern: pattern} //nolint:exhaustruct // reply set later
	a.mu.Lock()
	a.routes = append(a.routes, r)
	a.mu.Unlock()
	return r
}

// OnGet registers a GET route.
func (a *Adapter) OnGet(pattern Pattern) *Route { return a.On(http.MethodGet, pattern) }

// OnPost registers a POST route.
func (a *Adapter) OnPost(pattern Pattern) *Route { return a.On(http.MethodPost, pattern) }

// OnPut registers a PUT route.
func (a *Adapter) OnPut(pattern Pattern) *Route { return a.On(http.MethodPut, pattern) }

// OnPatch registers a PATCH route.
func (a *Adapter) OnPatch(pattern Pattern) *Route { return a.On(http.MethodPatch, pattern) }

// OnDelete registers a DELETE route.
func (a *Adapter) OnDelete(pattern Pattern) *Route { return a.On(http.MethodDelete, pattern) }

// OnAny registers a route for every method.
func (a *Adapter) OnAny(pattern Pattern) *Route { return a.On("", pattern) }

// Reply answers with a fixed status and body.
func (r *Route) Reply(status int, body any) *Adapter {
	return r.ReplyFunc(func(datafetch.RequestConfig) (int, any) {
		return status, body
	})
}

// ReplyFunc answers with the result of fn.
func (r *Route) ReplyFunc(fn Handler) *Adapter {
	r.adapter.mu.Lock()
	r.handler = fn
	r.adapter.mu.Unlock()
	return r.adapter
}

// Fail makes the route reject with err, as a network failure would.
func (r *Route) Fail(err error) *Adapter {
	r.adapter.mu.Lock()
	r.err = err
	r.adapter.mu.Unlock()
	return r.adapter
}

// Do answers cfg from the first matching route.
func (a *Adapter) Do(ctx context.Context, cfg datafetch.RequestConfig) (*datafetch.Response, error) {
	method := strings.ToUpper(cfg.Method)

	a.mu.Lock()
	a.history = append(a.history, cfg)
	var matched *Route
	for _, r := range a.routes {
		if (r.method == "" || r.method == method) && r.pattern.MatchString(cfg.URL) {
			matched = r
			break
		}
	}
	var (
		handler  Handler
		routeErr error
	)
	if matched != nil {
		handler, routeErr = matched.handler, matched.err
	}
	a.mu.Unlock()

	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	if matched == nil || (handler == nil && routeErr == nil) {
		if a.passthrough && a.fallback != nil {
			return a.fallback.Do(ctx, cfg)
		}
		return nil, &datafetch.HTTPError{
			Status:   http.StatusNotFound,
			Response: &datafetch.Response{Status: http.StatusNotFound, Header: http.Header{}, Config: cfg},
		}
	}

	if routeErr != nil {
		return nil, routeErr
	}

	status, body := handler(cfg)
	resp := &datafetch.Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Data:   body,
		Config: cfg,
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &datafetch.HTTPError{Status: status, Response: resp}
	}

	return resp, nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(a.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// History returns every request seen so far, matched or not.
func (a *Adapter) History() []datafetch.RequestConfig {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]datafetch.RequestConfig, len(a.history))
	copy(out, a.history)
	return out
}

// Calls counts the requests seen for method and path.
func (a *Adapter) Calls(method, path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, cfg := range a.history {
		if strings.EqualFold(cfg.Method, method) && cfg.URL == path {
			n++
		}
	}
	return n
}

// Reset drops the routes and the history.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.routes = nil
	a.history = nil
}
