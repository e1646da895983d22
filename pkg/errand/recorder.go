package errand

import "context"

// ServiceInboundRecorder is the service registry key for the interaction log.
const ServiceInboundRecorder = "errand.inbound_recorder"

// InboundRecorder logs addressed inbound messages before command dispatch.
type InboundRecorder interface {
	// RecordInbound appends one interaction for event.
	RecordInbound(ctx context.Context, event *Event) error
}
