package datafetch

import (
	"maps"
	"net/http"
	"net/url"
)

// HTTP verbs used by the executor.
const (
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodPut    = http.MethodPut
	MethodPatch  = http.MethodPatch
	MethodDelete = http.MethodDelete
)

// RequestState is the lifecycle state reported to a StateListener.
type RequestState int

const (
	// StatePending is the initial state before any request was issued.
	StatePending RequestState = iota
	// StateRunning means a request was handed to the transport.
	StateRunning
	// StateSuccess means the request settled with a response, cached or fresh.
	StateSuccess
	// StateError means the request settled with a failure.
	StateError
)

func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// RequestConfig describes one outgoing request.
// Zero-valued fields are treated as unset when configs are merged.
type RequestConfig struct {
	Method  string
	URL     string
	Data    any
	Params  url.Values
	Headers map[string]string
	// Extra holds transport-specific fields. It is merged key by key.
	// HTTPTransport reads ExtraTimeout; other keys are left to custom transports.
	Extra map[string]any
}

// Merge returns c overlaid with the set fields of other.
// Top-level fields of other replace those of c; Extra is merged per key.
func (c RequestConfig) Merge(other RequestConfig) RequestConfig {
	out := c
	if other.Method != "" {
		out.Method = other.Method
	}
	if other.URL != "" {
		out.URL = other.URL
	}
	if other.Data != nil {
		out.Data = other.Data
	}
	if other.Params != nil {
		out.Params = other.Params
	}
	if other.Headers != nil {
		out.Headers = other.Headers
	}
	if len(other.Extra) > 0 {
		extra := make(map[string]any, len(c.Extra)+len(other.Extra))
		maps.Copy(extra, c.Extra)
		maps.Copy(extra, other.Extra)
		out.Extra = extra
	}
	return out
}

// Response is a settled transport response.
//
// Responses served from or written to the provider cache are shallow copies of
// the cached entry: replacing a field is local to the caller, but Data is shared
// and must be treated as read-only by update hooks and callers.
type Response struct {
	Status int
	Header http.Header
	// Data is the decoded payload.
	Data   any
	Config RequestConfig
}

// Result is the settled outcome of one executor operation.
// Exactly one of Response and Err describes the outcome; a hook failure may set both.
type Result struct {
	Response *Response
	Err      error
	// Cached is true when the response was served from the provider cache.
	Cached bool
}

// OK reports whether the operation settled successfully.
func (r Result) OK() bool {
	return r.Err == nil && r.Response != nil
}

// Data returns the response payload or nil.
func (r Result) Data() any {
	if r.Response == nil {
		return nil
	}
	return r.Response.Data
}

// StateListener receives request lifecycle transitions.
type StateListener func(RequestState)

// UpdateStateHook is applied to every successful response before the announcement.
type UpdateStateHook func(resp *Response, cfg RequestConfig) error

func noopListener(RequestState) {}
