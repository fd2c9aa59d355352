package datafetch

import (
	"context"
	"net/url"
	"sync"
)

// MountOptions configures a MountFetch.
type MountOptions struct {
	// OnSuccess receives the result of a successful automatic fetch.
	OnSuccess func(Result)
	// OnFailure receives the result of a failed automatic fetch.
	OnFailure func(Result)
	// CancelOnUnmount aborts the in-flight automatic fetch on Unmount.
	CancelOnUnmount bool
	// Hook holds the hook-level executor options.
	Hook []Option
}

// MountFetch issues a GET when it is first mounted and wraps the executor operations.
// Calling any wrapped operation bumps a render counter, and the next Mount
// after a bump issues a fresh automatic GET.
type MountFetch struct {
	exec *Executor
	opts MountOptions

	mu         sync.Mutex
	renders    int
	mounted    bool
	fetchedAt  int
	generation int
	nextID     int
	cancels    map[int]context.CancelFunc

	wg sync.WaitGroup
}

// NewMountFetch creates a MountFetch for path.
func NewMountFetch(p *Provider, path string, opts MountOptions) *MountFetch {
	return &MountFetch{ //nolint:exhaustruct // zero values
		exec:    NewExecutor(p, path, opts.Hook...),
		opts:    opts,
		cancels: make(map[int]context.CancelFunc),
	}
}

// Executor returns the wrapped executor.
func (m *MountFetch) Executor() *Executor {
	return m.exec
}

// Renders returns the number of wrapped operations invoked so far.
func (m *MountFetch) Renders() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.renders
}

// Mount activates the fetch. It issues a background GET on the first activation
// and whenever a wrapped operation ran since the previous automatic GET.
// It reports whether a GET was issued.
func (m *MountFetch) Mount(ctx context.Context) bool {
	m.mu.Lock()
	if m.mounted && m.fetchedAt == m.renders {
		m.mu.Unlock()
		return false
	}

	m.mounted = true
	m.fetchedAt = m.renders
	generation := m.generation

	reqCtx, cancel := context.WithCancel(ctx)
	id := m.nextID
	m.nextID++
	m.cancels[id] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.release(id)

		res, err := m.exec.Get(reqCtx, nil, discardWhen(func() bool {
			return !m.current(generation)
		}))

		if !m.current(generation) {
			return
		}

		if err != nil || !res.OK() {
			if m.opts.OnFailure != nil {
				m.opts.OnFailure(res)
			}
			return
		}
		if m.opts.OnSuccess != nil {
			m.opts.OnSuccess(res)
		}
	}()

	return true
}

// Unmount deactivates the fetch. Results of automatic fetches still in flight are discarded:
// their state listener, update hook, announcement and callbacks never run.
// With CancelOnUnmount every in-flight automatic fetch is also aborted.
func (m *MountFetch) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mounted = false
	m.generation++
	if m.opts.CancelOnUnmount {
		for _, cancel := range m.cancels {
			cancel()
		}
	}
}

// Wait blocks until every automatic fetch issued so far has settled.
func (m *MountFetch) Wait() {
	m.wg.Wait()
}

// Get issues a GET, bumping the render counter.
func (m *MountFetch) Get(ctx context.Context, data any, opts ...Option) (Result, error) {
	m.bump()
	return m.exec.Get(ctx, data, opts...)
}

// Query issues a GET with params, bumping the render counter.
func (m *MountFetch) Query(ctx context.Context, params url.Values, opts ...Option) (Result, error) {
	m.bump()
	return m.exec.Query(ctx, params, opts...)
}

// Post issues a POST, bumping the render counter.
func (m *MountFetch) Post(ctx context.Context, data any, opts ...Option) (Result, error) {
	m.bump()
	return m.exec.Post(ctx, data, opts...)
}

// Put issues a PUT, bumping the render counter.
func (m *MountFetch) Put(ctx context.Context, data any, opts ...Option) (Result, error) {
	m.bump()
	return m.exec.Put(ctx, data, opts...)
}

// Patch issues a PATCH, bumping the render counter.
func (m *MountFetch) Patch(ctx context.Context, data any, opts ...Option) (Result, error) {
	m.bump()
	return m.exec.Patch(ctx, data, opts...)
}

// Destroy issues a DELETE, bumping the render counter.
func (m *MountFetch) Destroy(ctx context.Context, data any, opts ...Option) (Result, error) {
	m.bump()
	return m.exec.Destroy(ctx, data, opts...)
}

// Request issues a custom request, bumping the render counter.
func (m *MountFetch) Request(ctx context.Context, data any, opts ...Option) (Result, error) {
	m.bump()
	return m.exec.Request(ctx, data, opts...)
}

func (m *MountFetch) bump() {
	m.mu.Lock()
	m.renders++
	m.mu.Unlock()
}

func (m *MountFetch) release(id int) {
	m.mu.Lock()
	cancel := m.cancels[id]
	delete(m.cancels, id)
	m.mu.Unlock()

	cancel()
}

func (m *MountFetch) current(generation int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.generation == generation
}
