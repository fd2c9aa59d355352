package datafetch

import (
	"context"
	"net/url"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// CollectionOptions configures a Collection.
type CollectionOptions[T any] struct {
	// Transform extracts the list from a GET payload. By default, it is ExtractList.
	Transform func(payload any) ([]T, error)
	// TransformItem decodes one item from a post, put or patch payload. By default, it is DecodeItem.
	TransformItem func(payload any) (T, error)
	// ExtractObjectKey returns the identity of an item. By default, it is DefaultObjectKey.
	ExtractObjectKey func(item T) (string, error)
	// UpdatesUsePath builds the target of put, patch and destroy. By default, it is "{path}/{key}".
	UpdatesUsePath func(path string, item T) (string, error)
	// ReplaceValue replaces the built-in put/patch reconciliation.
	ReplaceValue UpdateStateHook
	// RemoveValue replaces the built-in destroy reconciliation.
	RemoveValue UpdateStateHook

	OnSuccess       func(Result)
	OnFailure       func(Result)
	CancelOnUnmount bool
	Hook            []Option
}

// Collection keeps an ordered in-memory list in sync with a list resource.
//
// A GET replaces the list, a POST appends the returned item(s), PUT and PATCH
// replace the entry with the same key in place, and DESTROY removes the entry
// with the caller-supplied removal key.
type Collection[T any] struct {
	fetch  *MountFetch
	path   string
	opts   CollectionOptions[T]
	logger *zap.Logger

	mu     sync.RWMutex
	values []T
	state  RequestState
}

// NewCollection creates a Collection for path.
func NewCollection[T any](p *Provider, path string, opts CollectionOptions[T]) *Collection[T] {
	if opts.Transform == nil {
		opts.Transform = ExtractList[T]
	}
	if opts.TransformItem == nil {
		opts.TransformItem = DecodeItem[T]
	}
	if opts.ExtractObjectKey == nil {
		opts.ExtractObjectKey = DefaultObjectKey[T]
	}

	c := &Collection[T]{ //nolint:exhaustruct // zero values
		path:   path,
		opts:   opts,
		logger: p.logger.With(zap.String("collection", path)),
		values: []T{},
		state:  StatePending,
	}

	hook := slices.Clone(opts.Hook)
	hook = append(hook, WithStateListener(c.setState), WithUpdateStateHook(c.replaceAll))

	c.fetch = NewMountFetch(p, path, MountOptions{
		OnSuccess:       opts.OnSuccess,
		OnFailure:       opts.OnFailure,
		CancelOnUnmount: opts.CancelOnUnmount,
		Hook:            hook,
	})

	return c
}

// Values returns a copy of the held items.
func (c *Collection[T]) Values() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.values)
}

// SetValues replaces the held items.
func (c *Collection[T]) SetValues(values []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = slices.Clone(values)
}

// RequestState returns the state of the latest request.
func (c *Collection[T]) RequestState() RequestState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Mount issues the initial GET. See MountFetch.Mount.
func (c *Collection[T]) Mount(ctx context.Context) bool {
	return c.fetch.Mount(ctx)
}

// Unmount deactivates the collection. See MountFetch.Unmount.
func (c *Collection[T]) Unmount() {
	c.fetch.Unmount()
}

// Wait blocks until automatic fetches settle.
func (c *Collection[T]) Wait() {
	c.fetch.Wait()
}

// Get refetches the list.
func (c *Collection[T]) Get(ctx context.Context, opts ...Option) (Result, error) {
	return c.fetch.Get(ctx, nil, opts...)
}

// Query refetches the list with params.
func (c *Collection[T]) Query(ctx context.Context, params url.Values, opts ...Option) (Result, error) {
	return c.fetch.Query(ctx, params, opts...)
}

// Post creates an item and appends the returned item(s).
func (c *Collection[T]) Post(ctx context.Context, data any, opts ...Option) (Result, error) {
	opts = append(slices.Clone(opts), WithUpdateStateHook(c.appendItems))
	return c.fetch.Post(ctx, data, opts...)
}

// Put replaces item on the server and in place in the collection.
func (c *Collection[T]) Put(ctx context.Context, item T, opts ...Option) (Result, error) {
	opts, err := c.itemOptions(item, c.replaceHook(), opts)
	if err != nil {
		return Result{Err: err}, err //nolint:exhaustruct // failed before dispatch
	}
	return c.fetch.Put(ctx, item, opts...)
}

// Patch updates item on the server and replaces it in place in the collection.
func (c *Collection[T]) Patch(ctx context.Context, item T, opts ...Option) (Result, error) {
	opts, err := c.itemOptions(item, c.replaceHook(), opts)
	if err != nil {
		return Result{Err: err}, err //nolint:exhaustruct // failed before dispatch
	}
	return c.fetch.Patch(ctx, item, opts...)
}

// Destroy deletes item on the server and removes the entry keyed removalKey.
// The key is supplied by the caller since the response may not carry the deleted item.
func (c *Collection[T]) Destroy(ctx context.Context, item T, removalKey string, opts ...Option) (Result, error) {
	hook := c.opts.RemoveValue
	if hook == nil {
		hook = func(*Response, RequestConfig) error {
			return c.remove(removalKey)
		}
	}

	opts, err := c.itemOptions(item, hook, opts)
	if err != nil {
		return Result{Err: err}, err //nolint:exhaustruct // failed before dispatch
	}
	return c.fetch.Destroy(ctx, item, opts...)
}

func (c *Collection[T]) itemOptions(item T, hook UpdateStateHook, opts []Option) ([]Option, error) {
	target, err := c.updatePath(item)
	if err != nil {
		return nil, err
	}

	return append(slices.Clone(opts),
		WithRequestConfig(RequestConfig{URL: target}), //nolint:exhaustruct // url override
		WithUpdateStateHook(hook),
	), nil
}

func (c *Collection[T]) updatePath(item T) (string, error) {
	if c.opts.UpdatesUsePath != nil {
		return c.opts.UpdatesUsePath(c.path, item)
	}

	key, err := c.opts.ExtractObjectKey(item)
	if err != nil {
		return "", err
	}

	return c.path + "/" + key, nil
}

func (c *Collection[T]) setState(s RequestState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
}

func (c *Collection[T]) replaceAll(resp *Response, _ RequestConfig) error {
	items, err := c.opts.Transform(resp.Data)
	if err != nil {
		return err
	}

	c.SetValues(items)
	return nil
}

func (c *Collection[T]) appendItems(resp *Response, _ RequestConfig) error {
	var items []T
	if list, ok := asList(resp.Data); ok {
		items = make([]T, 0, len(list))
		for _, v := range list {
			item, err := c.opts.TransformItem(v)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
	} else {
		item, err := c.opts.TransformItem(resp.Data)
		if err != nil {
			return err
		}
		items = []T{item}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = append(slices.Clone(c.values), items...)
	return nil
}

func (c *Collection[T]) replaceHook() UpdateStateHook {
	if c.opts.ReplaceValue != nil {
		return c.opts.ReplaceValue
	}
	return c.replaceItem
}

func (c *Collection[T]) replaceItem(resp *Response, _ RequestConfig) error {
	item, err := c.opts.TransformItem(resp.Data)
	if err != nil {
		return err
	}

	key, err := c.opts.ExtractObjectKey(item)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.indexOf(key)
	if err != nil {
		return err
	}
	if idx < 0 {
		c.logger.Debug("no entry to replace", zap.String("key", key))
		return nil
	}

	values := slices.Clone(c.values)
	values[idx] = item
	c.values = values

	return nil
}

func (c *Collection[T]) remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.indexOf(key)
	if err != nil {
		return err
	}
	if idx < 0 {
		c.logger.Debug("no entry to remove", zap.String("key", key))
		return nil
	}

	c.values = slices.Delete(slices.Clone(c.values), idx, idx+1)
	return nil
}

// indexOf must be called with c.mu held.
func (c *Collection[T]) indexOf(key string) (int, error) {
	for i, v := range c.values {
		k, err := c.opts.ExtractObjectKey(v)
		if err != nil {
			return -1, err
		}
		if k == key {
			return i, nil
		}
	}

	return -1, nil
}
