package datafetch

// Option configures an executor (hook level) or a single operation (call level).
// Call-level options take precedence over hook-level ones.
type Option func(*settings)

type settings struct {
	useCache      *bool
	requestConfig RequestConfig
	listener      StateListener
	updateHook    UpdateStateHook
	alert         *string
	// discarded reports that the caller no longer wants the outcome.
	discarded func() bool
}

func newSettings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// UseCache sets the cache policy.
func UseCache(enabled bool) Option {
	return func(s *settings) {
		s.useCache = &enabled
	}
}

// WithRequestConfig sets request overrides. Repeated options are merged in order.
func WithRequestConfig(cfg RequestConfig) Option {
	return func(s *settings) {
		s.requestConfig = s.requestConfig.Merge(cfg)
	}
}

// WithStateListener sets the lifecycle listener.
func WithStateListener(l StateListener) Option {
	return func(s *settings) {
		s.listener = l
	}
}

// WithUpdateStateHook sets the hook applied to successful responses.
func WithUpdateStateHook(h UpdateStateHook) Option {
	return func(s *settings) {
		s.updateHook = h
	}
}

// WithAlert sets the message announced to the screen reader sink after a successful request.
func WithAlert(message string) Option {
	return func(s *settings) {
		s.alert = &message
	}
}

// discardWhen drops the listener calls, the update hook and the announcement
// once discarded reports true. The request itself still settles.
func discardWhen(discarded func() bool) Option {
	return func(s *settings) {
		s.discarded = discarded
	}
}

// resolved is the effective policy for one invocation.
type resolved struct {
	useCache   bool
	listener   StateListener
	updateHook UpdateStateHook
	alert      string
	discarded  func() bool
}

func (r resolved) dropped() bool {
	return r.discarded != nil && r.discarded()
}

// resolve applies the fixed precedence call > hook > provider.
func resolve(call, hook settings, p *Provider) resolved {
	r := resolved{
		useCache:   p.useCache,
		listener:   noopListener,
		updateHook: p.updateHook,
	}

	if hook.useCache != nil {
		r.useCache = *hook.useCache
	}
	if call.useCache != nil {
		r.useCache = *call.useCache
	}

	if hook.updateHook != nil {
		r.updateHook = hook.updateHook
	}
	if call.updateHook != nil {
		r.updateHook = call.updateHook
	}

	if hook.listener != nil {
		r.listener = hook.listener
	}
	if call.listener != nil {
		r.listener = call.listener
	}

	if hook.alert != nil {
		r.alert = *hook.alert
	}
	if call.alert != nil {
		r.alert = *call.alert
	}

	if call.discarded != nil {
		discarded, listener := call.discarded, r.listener
		r.discarded = discarded
		r.listener = func(s RequestState) {
			if !discarded() {
				listener(s)
			}
		}
	}

	return r
}
