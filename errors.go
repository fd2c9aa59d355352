package datafetch

import (
	"errors"
	"fmt"
)

var (
	// ErrAmbiguousTransport is returned when a provider gets both a prebuilt transport and a mock installer.
	ErrAmbiguousTransport = errors.New("cannot use a transport and a mock installer together")

	// ErrInvalidCacheSize is returned when the cache capacity is not positive.
	ErrInvalidCacheSize = errors.New("cache size must be greater than 0")

	// ErrMissingURL is returned by a custom request without a url in the hook request config.
	ErrMissingURL = errors.New("request must have url set")

	// ErrMissingMethod is returned by a custom request without a method in the hook request config.
	ErrMissingMethod = errors.New("request must have a method set")

	// ErrMissingID is returned by the default object key extractor for items without an id field.
	ErrMissingID = errors.New("cannot use default extractObjectKey for objects that do not have an id field")

	// ErrUnrecognizedPayload is returned by the default list extractor.
	ErrUnrecognizedPayload = errors.New("unrecognized payload shape, supply a custom transform")

	// ErrNoProviderInContext is returned when there is no provider attached to the context.
	ErrNoProviderInContext = errors.New("no datafetch provider in context")
)

// ConfigurationError is a caller mistake detected before or while handling a request.
// It is never produced by the transport.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return "datafetch: " + e.Err.Error()
	}
	return fmt.Sprintf("datafetch: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(op string, err error) *ConfigurationError {
	return &ConfigurationError{Op: op, Err: err}
}

// HTTPError is a transport rejection carrying the non-2xx response.
type HTTPError struct {
	Status   int
	Response *Response
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.Status)
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
