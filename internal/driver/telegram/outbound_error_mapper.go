package telegram

import (
	"errors"
	"strings"

	"errand-bot/pkg/errand"

	"github.com/gotd/td/tgerr"
)

// mapTelegramOutboundError wraps a gotd failure into an errand.OutboundError so
// callers can tell rate limits and blocked users apart from transient faults.
func mapTelegramOutboundError(
	operation errand.OutboundOperation,
	sink errand.SinkRef,
	err error,
) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errand.ErrInvalidOutboundRequest) {
		return err
	}

	outboundErr := &errand.OutboundError{
		Operation: operation,
		Kind:      errand.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		return outboundErr
	}
	outboundErr.Code = rpcErr.Code
	outboundErr.Type = rpcErr.Type
	outboundErr.Kind = classifyTelegramRPCError(rpcErr)
	if retryAfter, isFlood := tgerr.AsFloodWait(err); isFlood {
		outboundErr.Kind = errand.OutboundErrorKindRateLimited
		outboundErr.RetryAfter = retryAfter
	}

	return outboundErr
}

func classifyTelegramRPCError(rpcErr *tgerr.Error) errand.OutboundErrorKind {
	if rpcErr == nil {
		return errand.OutboundErrorKindUnknown
	}

	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	switch {
	case rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(errorType, "FLOOD"):
		return errand.OutboundErrorKindRateLimited
	case rpcErr.Code == 303 || rpcErr.Code >= 500:
		return errand.OutboundErrorKindTemporary
	case rpcErr.Code >= 400 && rpcErr.Code <= 406:
		return errand.OutboundErrorKindPermanent
	default:
		return errand.OutboundErrorKindUnknown
	}
}
