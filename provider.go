package datafetch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/n-r-w/datafetch"

// CacheKeyFunc derives the cache key of a request.
type CacheKeyFunc func(path string, cfg RequestConfig) string

// PathCacheKey keys the cache by request path only, so GETs to the same path
// with different params or body share one entry.
func PathCacheKey(path string, _ RequestConfig) string {
	return path
}

// Provider is the state shared by every executor of one scope: transport, cache and default policy.
type Provider struct {
	transport  Transport
	cache      *ResponseCache
	cacheKey   CacheKeyFunc
	useCache   bool
	updateHook UpdateStateHook
	announce   func(message string)

	logger  *zap.Logger
	metrics IMetrics
	tracer  trace.Tracer
}

// ProviderOption configures a Provider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	transport      Transport
	installer      MockInstaller
	http           HTTPOptions
	cacheSize      int
	cacheKey       CacheKeyFunc
	useCache       bool
	updateHook     UpdateStateHook
	announce       func(message string)
	logger         *zap.Logger
	metrics        IMetrics
	tracerProvider trace.TracerProvider
}

// WithTransport sets a prebuilt transport. It cannot be combined with WithMockInstaller.
func WithTransport(t Transport) ProviderOption {
	return func(o *providerOptions) {
		o.transport = t
	}
}

// WithMockInstaller installs canned responses on the default HTTP transport.
func WithMockInstaller(installer MockInstaller) ProviderOption {
	return func(o *providerOptions) {
		o.installer = installer
	}
}

// WithHTTPOptions configures the default HTTP transport.
func WithHTTPOptions(opts HTTPOptions) ProviderOption {
	return func(o *providerOptions) {
		o.http = opts
	}
}

// WithCacheSize sets the cache capacity. By default, it is DefaultCacheSize.
func WithCacheSize(size int) ProviderOption {
	return func(o *providerOptions) {
		o.cacheSize = size
	}
}

// WithCacheKeyFunc replaces the path-only cache key. This changes which requests share a cache entry.
func WithCacheKeyFunc(fn CacheKeyFunc) ProviderOption {
	return func(o *providerOptions) {
		o.cacheKey = fn
	}
}

// WithUseCache sets the scope-wide cache policy. By default, caching is off.
func WithUseCache(enabled bool) ProviderOption {
	return func(o *providerOptions) {
		o.useCache = enabled
	}
}

// WithDefaultUpdateStateHook sets the update hook used when neither the executor nor the call sets one.
func WithDefaultUpdateStateHook(h UpdateStateHook) ProviderOption {
	return func(o *providerOptions) {
		o.updateHook = h
	}
}

// WithScreenReaderAlert sets the announcement sink. By default, announcements are dropped.
func WithScreenReaderAlert(fn func(message string)) ProviderOption {
	return func(o *providerOptions) {
		o.announce = fn
	}
}

// WithLogger sets a logger. By default, the logger is a no-op.
func WithLogger(logger *zap.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a recorder for cache hit ratio and request outcomes.
// By default, the recorder is nil.
func WithMetrics(m IMetrics) ProviderOption {
	return func(o *providerOptions) {
		o.metrics = m
	}
}

// WithTracerProvider sets the tracer provider. By default, the global one is used.
func WithTracerProvider(tp trace.TracerProvider) ProviderOption {
	return func(o *providerOptions) {
		o.tracerProvider = tp
	}
}

// NewProvider creates a Provider. Supplying both a transport and a mock installer is a configuration error.
func NewProvider(opts ...ProviderOption) (*Provider, error) {
	o := providerOptions{ //nolint:exhaustruct // default values
		cacheSize: DefaultCacheSize,
		cacheKey:  PathCacheKey,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.transport != nil && o.installer != nil {
		return nil, configError("new provider", ErrAmbiguousTransport)
	}

	cache, err := newResponseCache(o.cacheSize)
	if err != nil {
		return nil, configError("new provider", err)
	}

	transport := o.transport
	if transport == nil {
		transport = NewHTTPTransport(o.http)
		if o.installer != nil {
			transport = o.installer(transport)
		}
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.announce == nil {
		o.announce = func(string) {}
	}
	if o.cacheKey == nil {
		o.cacheKey = PathCacheKey
	}

	return &Provider{
		transport:  transport,
		cache:      cache,
		cacheKey:   o.cacheKey,
		useCache:   o.useCache,
		updateHook: o.updateHook,
		announce:   o.announce,
		logger:     o.logger,
		metrics:    o.metrics,
		tracer:     o.tracerProvider.Tracer(tracerName),
	}, nil
}

// Cache returns the provider cache.
func (p *Provider) Cache() *ResponseCache {
	return p.cache
}

// Transport returns the transport requests are issued through.
func (p *Provider) Transport() Transport {
	return p.transport
}

// Executor creates an executor for path bound to p.
func (p *Provider) Executor(path string, opts ...Option) *Executor {
	return NewExecutor(p, path, opts...)
}

// Close tears the scope down. Cached responses are dropped.
// It is recommended to call Close in the defer statement.
func (p *Provider) Close() {
	p.cache.Purge()
}

type contextKeyType struct{}

//nolint:gochecknoglobals // ок for context key
var contextKey = contextKeyType{}

// WithProvider attaches p to ctx. A provider attached deeper in the chain
// replaces the outer one for everything derived from the returned context.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, contextKey, p)
}

// FromContext returns the innermost provider attached to ctx.
func FromContext(ctx context.Context) (*Provider, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(contextKey).(*Provider)
	return p, ok && p != nil
}

// ExecutorFromContext creates an executor bound to the provider attached to ctx.
func ExecutorFromContext(ctx context.Context, path string, opts ...Option) (*Executor, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoProviderInContext
	}
	return NewExecutor(p, path, opts...), nil
}
