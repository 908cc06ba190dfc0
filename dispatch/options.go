package dispatch

import "log/slog"

type dispatcherOptions struct {
	logger        *slog.Logger
	recoverPanics bool
}

// Option configures a Dispatcher.
type Option func(*dispatcherOptions)

// WithLogger sets the diagnostic logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *dispatcherOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecoverPanics controls whether Dispatch recovers handler panics into a
// HandlerError. Enabled by default; disable only in tests that want the stack.
func WithRecoverPanics(enable bool) Option {
	return func(o *dispatcherOptions) {
		o.recoverPanics = enable
	}
}
