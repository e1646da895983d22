package kernel

import (
	"context"
	"log/slog"
	"time"
)

const defaultFailureReply = "My apologies, something went amiss while seeing to that. Do try again shortly."

// config holds kernel settings once every Option has been applied.
type config struct {
	moduleHookTimeout  time.Duration
	shutdownTimeout    time.Duration
	subscriptionBuffer int
	subscriptionWorker int
	handlerTimeout     time.Duration
	failureReply       string

	logger *slog.Logger
	// onAsyncError receives failures nobody can return to: handler errors,
	// dropped events and failure replies that could not be sent.
	onAsyncError func(context.Context, string, error)
}

// Option adjusts one kernel setting. Zero and negative values are ignored so
// unset config fields keep their defaults.
type Option func(*config)

func defaultConfig() config {
	return config{
		moduleHookTimeout:  5 * time.Second,
		shutdownTimeout:    10 * time.Second,
		subscriptionBuffer: 256,
		subscriptionWorker: 1,
		handlerTimeout:     20 * time.Second,
		failureReply:       defaultFailureReply,
		logger:             slog.Default(),
	}
}

// finish fills in the async error reporter from the final logger unless one
// was set explicitly.
func (c config) finish() config {
	if c.onAsyncError == nil {
		logger := c.logger
		c.onAsyncError = func(ctx context.Context, scope string, err error) {
			logger.ErrorContext(ctx, "errand async error", "scope", scope, "error", err)
		}
	}

	return c
}

func positive[T int | time.Duration](value T, field func(*config) *T) Option {
	return func(cfg *config) {
		if value > 0 {
			*field(cfg) = value
		}
	}
}

// WithModuleHookTimeout bounds each OnRegister, OnStart and OnShutdown call.
func WithModuleHookTimeout(timeout time.Duration) Option {
	return positive(timeout, func(cfg *config) *time.Duration { return &cfg.moduleHookTimeout })
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(timeout time.Duration) Option {
	return positive(timeout, func(cfg *config) *time.Duration { return &cfg.shutdownTimeout })
}

// WithDefaultSubscriptionBuffer sets the queue depth of subscriptions that
// do not pick their own.
func WithDefaultSubscriptionBuffer(size int) Option {
	return positive(size, func(cfg *config) *int { return &cfg.subscriptionBuffer })
}

// WithDefaultSubscriptionWorkers sets the worker count of subscriptions that
// do not pick their own.
func WithDefaultSubscriptionWorkers(workers int) Option {
	return positive(workers, func(cfg *config) *int { return &cfg.subscriptionWorker })
}

// WithDefaultHandlerTimeout bounds one handler call unless the subscription
// sets its own timeout.
func WithDefaultHandlerTimeout(timeout time.Duration) Option {
	return positive(timeout, func(cfg *config) *time.Duration { return &cfg.handlerTimeout })
}

// WithLogger replaces slog.Default for kernel logs and, unless
// WithAsyncErrorHandler is also given, async error reports.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithAsyncErrorHandler routes async failures to handler instead of the log.
func WithAsyncErrorHandler(handler func(context.Context, string, error)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// WithFailureReply overrides the text sent when a command handler fails.
func WithFailureReply(text string) Option {
	return func(cfg *config) {
		if text != "" {
			cfg.failureReply = text
		}
	}
}
