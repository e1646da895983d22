package errand

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OutboundOperation identifies one outbound dispatcher operation type.
type OutboundOperation string

const (
	// OutboundOperationSendMessage identifies SendMessage operations.
	OutboundOperationSendMessage OutboundOperation = "send_message"
	// OutboundOperationEditMessage identifies EditMessage operations.
	OutboundOperationEditMessage OutboundOperation = "edit_message"
)

// OutboundErrorKind describes coarse-grained outbound failure classification.
type OutboundErrorKind string

const (
	// OutboundErrorKindRateLimited indicates platform-side rate limiting.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	// OutboundErrorKindTemporary indicates retryable transient failure.
	OutboundErrorKindTemporary OutboundErrorKind = "temporary"
	// OutboundErrorKindPermanent indicates non-retryable failure, such as a
	// user who never opened a private conversation with the bot.
	OutboundErrorKindPermanent OutboundErrorKind = "permanent"
	// OutboundErrorKindUnknown indicates unclassified failure.
	OutboundErrorKindUnknown OutboundErrorKind = "unknown"
)

// OutboundError carries structured metadata for one outbound operation failure.
type OutboundError struct {
	Operation  OutboundOperation
	Kind       OutboundErrorKind
	Platform   Platform
	SinkID     string
	RetryAfter time.Duration
	// Code and Type carry the platform RPC error when known.
	Code  int
	Type  string
	Cause error
}

// Error renders "outbound error: key=value ...: cause".
func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var builder strings.Builder
	builder.WriteString("outbound error")

	separator := ": "
	appendField := func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		builder.WriteString(separator)
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(value)
		separator = " "
	}
	appendField("operation", string(e.Operation))
	appendField("kind", string(e.Kind))
	appendField("platform", string(e.Platform))
	appendField("sink_id", e.SinkID)
	if e.RetryAfter > 0 {
		appendField("retry_after", e.RetryAfter.String())
	}
	if e.Code != 0 {
		appendField("code", fmt.Sprintf("%d", e.Code))
	}
	appendField("type", e.Type)

	if e.Cause != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Cause.Error())
	}

	return builder.String()
}

// Unwrap returns the wrapped root cause.
func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsOutboundError extracts one OutboundError from wrapped error chains.
func AsOutboundError(err error) (*OutboundError, bool) {
	var outboundErr *OutboundError
	if err != nil && errors.As(err, &outboundErr) && outboundErr != nil {
		return outboundErr, true
	}

	return nil, false
}

// AsOutboundRateLimit returns the retry hint of a rate-limited outbound error.
// ok is false for any other error; a zero duration means no hint was given.
func AsOutboundRateLimit(err error) (retryAfter time.Duration, ok bool) {
	outboundErr, found := AsOutboundError(err)
	if !found || outboundErr.Kind != OutboundErrorKindRateLimited {
		return 0, false
	}

	return outboundErr.RetryAfter, true
}

// IsOutboundPermanent reports whether retrying err cannot succeed.
func IsOutboundPermanent(err error) bool {
	outboundErr, ok := AsOutboundError(err)

	return ok && outboundErr.Kind == OutboundErrorKindPermanent
}
