package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"errand-bot/pkg/errand"
)

const defaultPublishTimeout = 2 * time.Second

type driverConfig struct {
	name           string
	publishTimeout time.Duration
	onAsyncError   func(context.Context, error)
	answerer       CallbackAnswerer
}

// DriverOption mutates Telegram driver configuration.
type DriverOption func(*driverConfig)

// WithName configures the driver identity exposed to the kernel.
func WithName(name string) DriverOption {
	return func(cfg *driverConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithPublishTimeout configures sink publish timeout per event.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(cfg *driverConfig) {
		if timeout > 0 {
			cfg.publishTimeout = timeout
		}
	}
}

// WithErrorHandler configures async callback errors.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(cfg *driverConfig) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// WithCallbackAnswerer acknowledges button presses once they are published.
func WithCallbackAnswerer(answerer CallbackAnswerer) DriverOption {
	return func(cfg *driverConfig) {
		cfg.answerer = answerer
	}
}

// UpdateHandler receives one platform update at a time.
type UpdateHandler func(ctx context.Context, update Update) error

// UpdateSource feeds platform updates to a handler until ctx ends or the
// handler fails.
type UpdateSource interface {
	Consume(ctx context.Context, handler UpdateHandler) error
}

// CallbackAnswerer acknowledges one inline button press on the platform.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, queryID int64) error
}

// Driver adapts Telegram updates into neutral events.
type Driver struct {
	cfg     driverConfig
	source  UpdateSource
	decoder Decoder
}

// NewDriver creates a Telegram driver.
func NewDriver(source UpdateSource, decoder Decoder, options ...DriverOption) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("new telegram driver: nil source")
	}
	if decoder == nil {
		return nil, fmt.Errorf("new telegram driver: nil decoder")
	}

	cfg := driverConfig{
		name:           DriverType,
		publishTimeout: defaultPublishTimeout,
		onAsyncError:   func(context.Context, error) {},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Driver{
		cfg:     cfg,
		source:  source,
		decoder: decoder,
	}, nil
}

// Name returns the stable driver identifier.
func (d *Driver) Name() string {
	return d.cfg.name
}

// Start runs the update source until ctx ends. Each update is decoded and
// published before the next one is read.
func (d *Driver) Start(ctx context.Context, sink errand.EventSink) error {
	if sink == nil {
		return fmt.Errorf("start telegram driver %s: nil sink", d.cfg.name)
	}

	err := d.source.Consume(ctx, func(updateCtx context.Context, update Update) error {
		defer d.answerCallback(updateCtx, update)
		event, ok := d.decode(updateCtx, update)
		if !ok {
			return nil
		}
		return d.publish(updateCtx, sink, update.Type, event)
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return fmt.Errorf("start telegram driver %s: %w", d.cfg.name, err)
	}
}

// decode converts update into an event stamped with this driver's identity.
// Failures, panics included, are reported and the update is skipped.
func (d *Driver) decode(ctx context.Context, update Update) (event *errand.Event, ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.cfg.onAsyncError(ctx, fmt.Errorf("decode telegram update %s: panic: %v", update.Type, recovered))
			event, ok = nil, false
		}
	}()

	event, err := d.decoder.Decode(ctx, update)
	if err != nil {
		d.cfg.onAsyncError(ctx, fmt.Errorf("decode telegram update %s: %w", update.Type, err))
		return nil, false
	}
	if event.Source.Platform == "" {
		event.Source.Platform = DriverPlatform
	}
	if event.Source.ID == "" {
		event.Source.ID = d.cfg.name
	}

	return event, true
}

// publish hands event to sink within the publish timeout. A failure ends the
// update loop since the sink is only unavailable once the kernel stops.
func (d *Driver) publish(ctx context.Context, sink errand.EventSink, kind UpdateType, event *errand.Event) error {
	if d.cfg.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.publishTimeout)
		defer cancel()
	}
	if err := sink.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish telegram update %s: %w", kind, err)
	}

	return nil
}

// answerCallback runs whether or not publishing worked so the client stops
// showing its progress indicator.
func (d *Driver) answerCallback(ctx context.Context, update Update) {
	if d.cfg.answerer == nil || update.Type != UpdateTypeCallback || update.Callback == nil {
		return
	}
	if err := d.cfg.answerer.AnswerCallback(ctx, update.Callback.QueryID); err != nil {
		d.cfg.onAsyncError(ctx, fmt.Errorf("answer callback %d: %w", update.Callback.QueryID, err))
	}
}

// Shutdown releases resources not controlled by Start context.
func (d *Driver) Shutdown(_ context.Context) error {
	return nil
}
