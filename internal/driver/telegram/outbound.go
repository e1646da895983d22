package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"errand-bot/pkg/errand"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

const defaultOutboundTimeout = 5 * time.Second

// OutboundOption mutates outbound dispatcher configuration.
type OutboundOption func(*outboundConfig)

// WithOutboundTimeout configures a timeout bound for each outbound RPC call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithOutboundLogger configures structured logging for outbound operations.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.logger = logger
	}
}

// WithSinkRef configures the sink identity stamped on outbound errors.
func WithSinkRef(ref errand.SinkRef) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.sink = ref
		if cfg.sink.Platform == "" {
			cfg.sink.Platform = DriverPlatform
		}
	}
}

// SinkDispatcher adapts neutral outbound operations to Telegram RPC calls.
type SinkDispatcher struct {
	cfg      outboundConfig
	peers    *PeerCache
	telegram outboundRPC
}

type outboundConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
	sink       errand.SinkRef
}

// NewOutboundDispatcher creates a Telegram outbound dispatcher using gotd client APIs.
func NewOutboundDispatcher(
	client *gotdtelegram.Client,
	peers *PeerCache,
	options ...OutboundOption,
) (*SinkDispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil client")
	}

	return newOutboundDispatcherWithRPC(newGotdOutboundRPC(client), peers, options...)
}

func newOutboundDispatcherWithRPC(
	rpc outboundRPC,
	peers *PeerCache,
	options ...OutboundOption,
) (*SinkDispatcher, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil rpc adapter")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil peer cache")
	}

	cfg := outboundConfig{
		rpcTimeout: defaultOutboundTimeout,
		sink:       errand.SinkRef{Platform: DriverPlatform},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &SinkDispatcher{
		cfg:      cfg,
		peers:    peers,
		telegram: rpc,
	}, nil
}

// SendMessage posts request.Text, with any inline buttons, and remembers the
// new message so replies to it count as addressing the bot.
func (d *SinkDispatcher) SendMessage(
	ctx context.Context,
	request errand.SendMessageRequest,
) (*errand.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	conversation := request.Target.Conversation
	peer, err := d.resolve(conversation)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	text := outboundText{
		text:      request.Text,
		markup:    inlineMarkup(request.Buttons),
		noWebpage: request.DisableLinkPreview,
	}
	if request.ReplyToMessageID != "" {
		if text.replyTo, err = parseMessageID(request.ReplyToMessageID); err != nil {
			return nil, fmt.Errorf("send message reply to %q: %w", request.ReplyToMessageID, err)
		}
	}

	var sentID int
	err = d.call(ctx, errand.OutboundOperationSendMessage, func(rpcCtx context.Context) (callErr error) {
		sentID, callErr = d.telegram.SendText(rpcCtx, peer, text)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("send message to %s: %w", conversation.ID, err)
	}

	sent := &errand.OutboundMessage{ID: strconv.Itoa(sentID), Target: request.Target}
	d.peers.RememberOwnMessage(conversation.ID, sent.ID)
	d.logOutbound(ctx, errand.OutboundOperationSendMessage, conversation,
		"message_id", sent.ID,
		"reply_to_message_id", request.ReplyToMessageID,
		"buttons", len(request.Buttons),
	)

	return sent, nil
}

// EditMessage rewrites the text and buttons of a message the bot sent.
// Telegram rejects edits that change nothing; those count as success.
func (d *SinkDispatcher) EditMessage(ctx context.Context, request errand.EditMessageRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	conversation := request.Target.Conversation
	peer, err := d.resolve(conversation)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	messageID, err := parseMessageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("edit message %q: %w", request.MessageID, err)
	}
	text := outboundText{
		text:      request.Text,
		markup:    inlineMarkup(request.Buttons),
		noWebpage: request.DisableLinkPreview,
	}

	err = d.call(ctx, errand.OutboundOperationEditMessage, func(rpcCtx context.Context) error {
		callErr := d.telegram.EditText(rpcCtx, peer, messageID, text)
		if tgerr.Is(callErr, "MESSAGE_NOT_MODIFIED") {
			return nil
		}
		return callErr
	})
	if err != nil {
		return fmt.Errorf("edit message %s: %w", request.MessageID, err)
	}
	d.logOutbound(ctx, errand.OutboundOperationEditMessage, conversation, "message_id", request.MessageID)

	return nil
}

// AnswerCallback acknowledges one inline button press without a toast.
func (d *SinkDispatcher) AnswerCallback(ctx context.Context, queryID int64) error {
	rpcCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.telegram.AnswerCallback(rpcCtx, queryID); err != nil {
		return fmt.Errorf("answer callback %d: %w", queryID, err)
	}

	return nil
}

func (d *SinkDispatcher) resolve(conversation errand.Conversation) (tg.InputPeerClass, error) {
	peer, err := d.peers.Resolve(conversation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errand.ErrInvalidOutboundRequest, err)
	}

	return peer, nil
}

// call runs one RPC under the dispatcher timeout and classifies its failure.
func (d *SinkDispatcher) call(
	ctx context.Context,
	operation errand.OutboundOperation,
	rpc func(context.Context) error,
) error {
	rpcCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := rpc(rpcCtx); err != nil {
		return mapTelegramOutboundError(operation, d.cfg.sink, err)
	}

	return nil
}

func (d *SinkDispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.rpcTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d.cfg.rpcTimeout)
}

func (d *SinkDispatcher) logOutbound(
	ctx context.Context,
	operation errand.OutboundOperation,
	conversation errand.Conversation,
	attrs ...any,
) {
	if d.cfg.logger == nil {
		return
	}

	d.cfg.logger.DebugContext(ctx, "telegram outbound operation", append([]any{
		"operation", operation,
		"sink_id", d.cfg.sink.ID,
		"conversation", conversation.ID,
		"conversation_type", conversation.Type,
	}, attrs...)...)
}

func parseMessageID(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid message id: %w", errand.ErrInvalidOutboundRequest, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: invalid message id", errand.ErrInvalidOutboundRequest)
	}

	return value, nil
}

// inlineMarkup lays buttons out as callback keyboard rows. A button's action
// comes back verbatim as the callback data of a press.
func inlineMarkup(rows [][]errand.InlineButton) tg.ReplyMarkupClass {
	if len(rows) == 0 {
		return nil
	}

	keyboard := make([]tg.KeyboardButtonRow, len(rows))
	for rowIndex, row := range rows {
		keyboard[rowIndex].Buttons = make([]tg.KeyboardButtonClass, len(row))
		for index, button := range row {
			keyboard[rowIndex].Buttons[index] = &tg.KeyboardButtonCallback{Text: button.Label, Data: []byte(button.Action)}
		}
	}

	return &tg.ReplyInlineMarkup{Rows: keyboard}
}

