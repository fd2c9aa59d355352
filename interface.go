package datafetch

import (
	"context"
	"time"
)

// Transport issues one request. Failures, including non-2xx responses, are returned as errors.
type Transport interface {
	Do(ctx context.Context, cfg RequestConfig) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, cfg RequestConfig) (*Response, error)

// Do calls f.
func (f TransportFunc) Do(ctx context.Context, cfg RequestConfig) (*Response, error) {
	return f(ctx, cfg)
}

// MockInstaller receives the freshly built transport and returns the one the provider should use.
type MockInstaller func(base Transport) Transport

// IMetrics is an interface for recording cache hit ratio and request outcomes.
type IMetrics interface {
	ObserveCacheLookup(ctx context.Context, path string, hit bool)
	ObserveRequest(ctx context.Context, method, path string, state RequestState, duration time.Duration)
}
