package errand

import "errors"

var (
	// ErrInvalidEvent indicates that an event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("errand: invalid event")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("errand: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("errand: subscription closed")
	// ErrEventDropped indicates a non-blocking backpressure drop.
	ErrEventDropped = errors.New("errand: event dropped due to backpressure")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("errand: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("errand: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("errand: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("errand: driver already registered")
	// ErrInvalidOutboundRequest indicates a malformed outbound dispatcher request.
	ErrInvalidOutboundRequest = errors.New("errand: invalid outbound request")
	// ErrSinkUnavailable indicates that no configured sink can deliver a request.
	ErrSinkUnavailable = errors.New("errand: no sink available")
	// ErrRecordNotFound indicates that a stored record lookup missed.
	ErrRecordNotFound = errors.New("errand: record not found")
	// ErrNoResult indicates that a lookup collaborator has no answer for a query.
	ErrNoResult = errors.New("errand: no result")
	// ErrNotConfigured indicates that a collaborator is missing its credential.
	ErrNotConfigured = errors.New("errand: collaborator not configured")
)
