package datafetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// HTTPOptions configures the default HTTP transport.
type HTTPOptions struct {
	// BaseURL is prepended to relative request URLs.
	BaseURL string
	// Timeout applies when Client is nil. Zero means no timeout.
	Timeout time.Duration
	// Headers are sent with every request; request headers override them.
	Headers map[string]string
	Client  *http.Client
}

// ExtraTimeout is the RequestConfig.Extra key of a per-request timeout.
// HTTPTransport accepts a time.Duration or a string parsed by time.ParseDuration.
const ExtraTimeout = "timeout"

// HTTPTransport is the default Transport. It sends Data as a JSON body,
// Params as the query string, and decodes JSON responses into Response.Data.
// Non-2xx responses are returned as *HTTPError.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
	headers map[string]string
	buffers *bufferPool
}

// NewHTTPTransport creates an HTTPTransport.
func NewHTTPTransport(opts HTTPOptions) *HTTPTransport {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout} //nolint:exhaustruct // default values
	}

	return &HTTPTransport{
		client:  client,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		headers: opts.Headers,
		buffers: newBufferPool(maxPooledBuffer),
	}
}

// Do sends cfg and returns the decoded response.
func (t *HTTPTransport) Do(ctx context.Context, cfg RequestConfig) (*Response, error) {
	target, err := t.resolveURL(cfg.URL, cfg.Params)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if cfg.Data != nil {
		buf := t.buffers.Get()
		if err := json.NewEncoder(buf).Encode(cfg.Data); err != nil {
			t.buffers.Put(buf)
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(bytes.Clone(buf.Bytes()))
		t.buffers.Put(buf)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	timeout, err := requestTimeout(cfg.Extra)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	resp := &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Data:   decodePayload(raw),
		Config: cfg,
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, &HTTPError{Status: httpResp.StatusCode, Response: resp}
	}

	return resp, nil
}

func (t *HTTPTransport) resolveURL(raw string, params url.Values) (string, error) {
	target := raw
	if t.baseURL != "" && !strings.Contains(raw, "://") {
		target = t.baseURL + "/" + strings.TrimLeft(raw, "/")
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", target, err)
	}

	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func requestTimeout(extra map[string]any) (time.Duration, error) {
	switch v := extra[ExtraTimeout].(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", ExtraTimeout, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("unsupported %s type %T", ExtraTimeout, v)
	}
}

// decodePayload decodes a JSON body, falling back to the raw text.
func decodePayload(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return string(raw)
	}

	return data
}
