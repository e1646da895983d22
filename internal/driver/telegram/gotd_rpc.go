package telegram

import (
	"context"
	"fmt"
	"io"

	"github.com/gotd/td/crypto"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
)

// outboundText is one message body as the bot API expects it.
type outboundText struct {
	text      string
	replyTo   int
	markup    tg.ReplyMarkupClass
	noWebpage bool
}

// outboundRPC is the slice of the Telegram API the sink dispatcher needs.
type outboundRPC interface {
	SendText(ctx context.Context, peer tg.InputPeerClass, message outboundText) (int, error)
	EditText(ctx context.Context, peer tg.InputPeerClass, messageID int, message outboundText) error
	AnswerCallback(ctx context.Context, queryID int64) error
}

type gotdOutboundRPC struct {
	api     *tg.Client
	entropy io.Reader
}

func newGotdOutboundRPC(client *gotdtelegram.Client) gotdOutboundRPC {
	return gotdOutboundRPC{api: client.API(), entropy: crypto.DefaultRand()}
}

// SendText returns the id Telegram assigned to the new message.
func (r gotdOutboundRPC) SendText(ctx context.Context, peer tg.InputPeerClass, message outboundText) (int, error) {
	randomID, err := crypto.RandInt64(r.entropy)
	if err != nil {
		return 0, fmt.Errorf("send text: random id: %w", err)
	}

	request := &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   message.text,
		RandomID:  randomID,
		NoWebpage: message.noWebpage,
	}
	if message.replyTo > 0 {
		request.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: message.replyTo})
	}
	if message.markup != nil {
		request.SetReplyMarkup(message.markup)
	}

	sent, err := unpack.MessageID(r.api.MessagesSendMessage(ctx, request))
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}

	return sent, nil
}

func (r gotdOutboundRPC) EditText(ctx context.Context, peer tg.InputPeerClass, messageID int, message outboundText) error {
	request := &tg.MessagesEditMessageRequest{Peer: peer, ID: messageID, NoWebpage: message.noWebpage}
	request.SetMessage(message.text)
	if message.markup != nil {
		request.SetReplyMarkup(message.markup)
	}

	if _, err := r.api.MessagesEditMessage(ctx, request); err != nil {
		return fmt.Errorf("edit text: %w", err)
	}

	return nil
}

func (r gotdOutboundRPC) AnswerCallback(ctx context.Context, queryID int64) error {
	request := &tg.MessagesSetBotCallbackAnswerRequest{QueryID: queryID}
	if _, err := r.api.MessagesSetBotCallbackAnswer(ctx, request); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}

	return nil
}
