package datafetch

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// SingletonOptions configures a Singleton.
type SingletonOptions[T any] struct {
	// Transform decodes the payload. By default, it is DecodeItem.
	Transform func(payload any) (T, error)
	// CreateUsesPath builds the target of post. By default, it is the path without its last segment.
	CreateUsesPath func(path string) string

	OnSuccess       func(Result)
	OnFailure       func(Result)
	CancelOnUnmount bool
	Hook            []Option
}

// Singleton keeps one optional value in sync with a single resource.
// GET, POST, PUT and PATCH replace the value with the response, DESTROY clears it.
type Singleton[T any] struct {
	fetch *MountFetch
	path  string
	opts  SingletonOptions[T]

	mu    sync.RWMutex
	value T
	set   bool
	state RequestState
}

// NewSingleton creates a Singleton for path.
func NewSingleton[T any](p *Provider, path string, opts SingletonOptions[T]) *Singleton[T] {
	if opts.Transform == nil {
		opts.Transform = DecodeItem[T]
	}
	if opts.CreateUsesPath == nil {
		opts.CreateUsesPath = ParentPath
	}

	s := &Singleton[T]{ //nolint:exhaustruct // zero values
		path:  path,
		opts:  opts,
		state: StatePending,
	}

	hook := slices.Clone(opts.Hook)
	hook = append(hook, WithStateListener(s.setState), WithUpdateStateHook(s.replace))

	s.fetch = NewMountFetch(p, path, MountOptions{
		OnSuccess:       opts.OnSuccess,
		OnFailure:       opts.OnFailure,
		CancelOnUnmount: opts.CancelOnUnmount,
		Hook:            hook,
	})

	return s
}

// ParentPath returns path with its last segment removed.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// Value returns the held value and whether one is held.
func (s *Singleton[T]) Value() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value, s.set
}

// SetValue replaces the held value.
func (s *Singleton[T]) SetValue(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	s.set = true
}

// Clear drops the held value.
func (s *Singleton[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.value = zero
	s.set = false
}

// RequestState returns the state of the latest request.
func (s *Singleton[T]) RequestState() RequestState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Mount issues the initial GET. See MountFetch.Mount.
func (s *Singleton[T]) Mount(ctx context.Context) bool {
	return s.fetch.Mount(ctx)
}

// Unmount deactivates the singleton. See MountFetch.Unmount.
func (s *Singleton[T]) Unmount() {
	s.fetch.Unmount()
}

// Wait blocks until automatic fetches settle.
func (s *Singleton[T]) Wait() {
	s.fetch.Wait()
}

// Get refetches the value.
func (s *Singleton[T]) Get(ctx context.Context, opts ...Option) (Result, error) {
	return s.fetch.Get(ctx, nil, opts...)
}

// Post creates the resource on the parent path and holds the response.
func (s *Singleton[T]) Post(ctx context.Context, data any, opts ...Option) (Result, error) {
	target := RequestConfig{URL: s.opts.CreateUsesPath(s.path)} //nolint:exhaustruct // url override
	opts = append(slices.Clone(opts), WithRequestConfig(target))
	return s.fetch.Post(ctx, data, opts...)
}

// Put replaces the resource and holds the response.
func (s *Singleton[T]) Put(ctx context.Context, data any, opts ...Option) (Result, error) {
	return s.fetch.Put(ctx, data, opts...)
}

// Patch updates the resource and holds the response.
func (s *Singleton[T]) Patch(ctx context.Context, data any, opts ...Option) (Result, error) {
	return s.fetch.Patch(ctx, data, opts...)
}

// Destroy deletes the resource and clears the held value.
func (s *Singleton[T]) Destroy(ctx context.Context, data any, opts ...Option) (Result, error) {
	opts = append(slices.Clone(opts), WithUpdateStateHook(func(*Response, RequestConfig) error {
		s.Clear()
		return nil
	}))
	return s.fetch.Destroy(ctx, data, opts...)
}

func (s *Singleton[T]) setState(st RequestState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st
}

func (s *Singleton[T]) replace(resp *Response, _ RequestConfig) error {
	v, err := s.opts.Transform(resp.Data)
	if err != nil {
		return err
	}

	s.SetValue(v)
	return nil
}
