package telegram

import (
	"context"
	"fmt"
)

// GotdSessionClient runs fn while a gotd session is connected and signed in.
type GotdSessionClient interface {
	Run(ctx context.Context, fn func(runCtx context.Context) error) error
}

// GotdRawUpdateStream yields queued update envelopes for the active session.
type GotdRawUpdateStream interface {
	Updates(ctx context.Context) (<-chan any, error)
}

// GotdUpdateMapper turns one raw envelope into an Update. accepted is false
// for update classes the bot does not handle.
type GotdUpdateMapper interface {
	Map(ctx context.Context, raw any) (update Update, accepted bool, err error)
}

// GotdSource is the UpdateSource of a live bot account.
type GotdSource struct {
	client     GotdSessionClient
	stream     GotdRawUpdateStream
	mapper     GotdUpdateMapper
	onMapError func(context.Context, error)
}

// NewGotdSource wires a session, its update stream and a mapper together.
// Updates that fail to map go to onMapError, which may be nil, and are skipped.
func NewGotdSource(
	client GotdSessionClient,
	stream GotdRawUpdateStream,
	mapper GotdUpdateMapper,
	onMapError func(context.Context, error),
) (*GotdSource, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("new gotd source: nil client")
	case stream == nil:
		return nil, fmt.Errorf("new gotd source: nil stream")
	case mapper == nil:
		return nil, fmt.Errorf("new gotd source: nil mapper")
	}
	if onMapError == nil {
		onMapError = func(context.Context, error) {}
	}

	return &GotdSource{client: client, stream: stream, mapper: mapper, onMapError: onMapError}, nil
}

// Consume keeps the session running and feeds handler until ctx ends, the
// stream closes or handler fails.
func (s *GotdSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("consume gotd updates: nil handler")
	}

	if err := s.client.Run(ctx, func(runCtx context.Context) error {
		return s.pump(runCtx, handler)
	}); err != nil {
		return fmt.Errorf("consume gotd updates: %w", err)
	}

	return nil
}

func (s *GotdSource) pump(ctx context.Context, handler UpdateHandler) error {
	raw, err := s.stream.Updates(ctx)
	if err != nil {
		return fmt.Errorf("open update stream: %w", err)
	}

	for {
		var envelope any
		select {
		case <-ctx.Done():
			return nil
		case next, open := <-raw:
			if !open {
				return nil
			}
			envelope = next
		}

		update, accepted, err := s.mapSafely(ctx, envelope)
		switch {
		case err != nil:
			s.onMapError(ctx, err)
		case accepted:
			if err := handler(ctx, update); err != nil {
				return fmt.Errorf("handle %s update %s: %w", update.Type, update.ID, err)
			}
		}
	}
}

func (s *GotdSource) mapSafely(ctx context.Context, raw any) (update Update, accepted bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			update, accepted, err = Update{}, false, fmt.Errorf("map gotd update: panic: %v", recovered)
		}
	}()

	return s.mapper.Map(ctx, raw)
}
