// Package datafetch provides context-scoped HTTP data fetching with an optional
// response cache, request lifecycle notifications and managed local state.
//
// A [Provider] owns one transport, one bounded LRU response cache and the default
// policies. Attach it to a context with [WithProvider] and create an [Executor]
// for a path anywhere downstream:
//
//	p, err := datafetch.NewProvider(datafetch.WithUseCache(true))
//	ctx = datafetch.WithProvider(ctx, p)
//
//	users, err := datafetch.ExecutorFromContext(ctx, "/users")
//	res, err := users.Get(ctx, nil)
//	if !res.OK() {
//		// res.Err holds the request failure
//	}
//
// Options resolve with call > hook > provider precedence. Only GET requests read
// and write the cache, keyed by path unless [WithCacheKeyFunc] says otherwise.
// Request failures never surface as the returned error; they settle into
// [Result.Err]. The returned error carries only a [*ConfigurationError].
//
// [MountFetch] issues one GET on first activation. [Collection] and [Singleton]
// keep a fetched list or value in sync with the responses of their own
// create, update and delete calls.
package datafetch
