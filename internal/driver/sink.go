package driver

import (
	"context"
	"fmt"

	"errand-bot/pkg/errand"
)

// CompositeSinkDispatcher sends each outbound request through the driver the
// target names. A target naming no sink goes through the only sink there is;
// with several sinks it is rejected.
type CompositeSinkDispatcher struct {
	sinks map[string]route
}

type route struct {
	ref        errand.SinkRef
	dispatcher errand.SinkDispatcher
}

// NewCompositeSinkDispatcher indexes the runtimes that can write back.
func NewCompositeSinkDispatcher(runtimes []Runtime) (*CompositeSinkDispatcher, error) {
	sinks := make(map[string]route, len(runtimes))
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		id := runtime.Source.ID
		if id == "" {
			return nil, fmt.Errorf("new composite sink dispatcher: runtime without sink id")
		}
		if _, taken := sinks[id]; taken {
			return nil, fmt.Errorf("new composite sink dispatcher: duplicate sink id %s", id)
		}
		sinks[id] = route{ref: runtime.Source, dispatcher: runtime.SinkDispatcher}
	}

	return &CompositeSinkDispatcher{sinks: sinks}, nil
}

// SendMessage implements errand.SinkDispatcher.
func (d *CompositeSinkDispatcher) SendMessage(
	ctx context.Context,
	request errand.SendMessageRequest,
) (*errand.OutboundMessage, error) {
	sink, err := d.resolve(request.Target)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	sent, err := sink.SendMessage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return sent, nil
}

// EditMessage implements errand.SinkDispatcher.
func (d *CompositeSinkDispatcher) EditMessage(ctx context.Context, request errand.EditMessageRequest) error {
	sink, err := d.resolve(request.Target)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	if err := sink.EditMessage(ctx, request); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	return nil
}

// resolve matches the target's sink by id first, then by platform when the
// platform has exactly one sink.
func (d *CompositeSinkDispatcher) resolve(target errand.OutboundTarget) (errand.SinkDispatcher, error) {
	if d == nil || len(d.sinks) == 0 {
		return nil, fmt.Errorf("%w: no sinks configured", errand.ErrSinkUnavailable)
	}

	var want errand.SinkRef
	if target.Sink != nil {
		want = *target.Sink
	}
	if want.ID != "" {
		found, ok := d.sinks[want.ID]
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: sink %s not found", errand.ErrSinkUnavailable, want.ID)
		case want.Platform != "" && want.Platform != found.ref.Platform:
			return nil, fmt.Errorf("%w: sink %s is %s, not %s", errand.ErrSinkUnavailable, want.ID, found.ref.Platform, want.Platform)
		}
		return found.dispatcher, nil
	}

	var matches []errand.SinkDispatcher
	for _, candidate := range d.sinks {
		if want.Platform == "" || candidate.ref.Platform == want.Platform {
			matches = append(matches, candidate.dispatcher)
		}
	}
	switch {
	case len(matches) == 1:
		return matches[0], nil
	case target.Sink == nil:
		return nil, fmt.Errorf("%w: target names no sink", errand.ErrSinkUnavailable)
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: no sink for platform %s", errand.ErrSinkUnavailable, want.Platform)
	default:
		return nil, fmt.Errorf("%w: ambiguous sink for platform %s", errand.ErrSinkUnavailable, want.Platform)
	}
}

var _ errand.SinkDispatcher = (*CompositeSinkDispatcher)(nil)
