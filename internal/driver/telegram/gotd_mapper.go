package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"errand-bot/pkg/errand"

	"github.com/gotd/td/tg"
)

// DefaultGotdUpdateMapper maps gotd updates into adapter DTO updates.
type DefaultGotdUpdateMapper struct {
	peerCache *PeerCache
	self      *SelfIdentity
}

// GotdUpdateMapperOption mutates DefaultGotdUpdateMapper behavior.
type GotdUpdateMapperOption func(*DefaultGotdUpdateMapper)

// WithPeerCache records entity-derived peer mappings for outbound dispatch.
func WithPeerCache(cache *PeerCache) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if cache != nil {
			mapper.peerCache = cache
		}
	}
}

// WithSelfIdentity enables mention detection for the bot account.
func WithSelfIdentity(self *SelfIdentity) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if self != nil {
			mapper.self = self
		}
	}
}

// NewDefaultGotdUpdateMapper creates the default gotd mapper.
func NewDefaultGotdUpdateMapper(options ...GotdUpdateMapperOption) DefaultGotdUpdateMapper {
	mapper := DefaultGotdUpdateMapper{}
	for _, option := range options {
		option(&mapper)
	}

	return mapper
}

// Map turns one queued envelope into an Update. New messages and inline
// button presses are accepted; any other update class is skipped.
func (m DefaultGotdUpdateMapper) Map(ctx context.Context, raw any) (Update, bool, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, false, fmt.Errorf("map gotd update: %w", err)
	}

	var envelope gotdUpdateEnvelope
	switch typed := raw.(type) {
	case gotdUpdateEnvelope:
		envelope = typed
	case *gotdUpdateEnvelope:
		if typed == nil {
			return Update{}, false, fmt.Errorf("map gotd update: nil envelope")
		}
		envelope = *typed
	case tg.UpdateClass:
		if typed == nil {
			return Update{}, false, fmt.Errorf("map gotd update: nil update class")
		}
		envelope = gotdUpdateEnvelope{update: typed, occurredAt: time.Now().UTC(), updateClass: typed.TypeName()}
	default:
		return Update{}, false, fmt.Errorf("map gotd update: unsupported raw type %T", raw)
	}
	m.peerCache.RememberEnvelope(envelope)

	var (
		update Update
		ok     bool
	)
	switch typed := envelope.update.(type) {
	case *tg.UpdateNewMessage:
		update, ok = m.message(typed.Message, envelope)
	case *tg.UpdateNewChannelMessage:
		update, ok = m.message(typed.Message, envelope)
	case *tg.UpdateBotCallbackQuery:
		if typed != nil {
			update, ok = m.callback(typed, envelope), true
		}
	}
	if ok {
		update.Metadata = envelope.metadata()
	}

	return update, ok, nil
}

// message maps an incoming text message. Service messages and the bot's own
// outgoing messages, which some containers echo back, are skipped.
func (m DefaultGotdUpdateMapper) message(raw tg.MessageClass, envelope gotdUpdateEnvelope) (Update, bool) {
	message, ok := raw.(*tg.Message)
	if !ok || message.Out {
		return Update{}, false
	}

	chat := envelope.chat(message.PeerID)
	actor := envelope.sender(message.FromID)
	if actor.ID == unknownID {
		actor = envelope.sender(message.PeerID)
	}
	m.peerCache.RememberConversation(chat, envelope.inputPeer(message.PeerID))

	payload := &MessagePayload{ID: strconv.Itoa(message.ID), Text: message.Message}
	if header, isHeader := message.ReplyTo.(*tg.MessageReplyHeader); isHeader {
		if replyID, set := header.GetReplyToMsgID(); set {
			payload.ReplyToID = strconv.Itoa(replyID)
		}
	}
	payload.Addressed = m.addressed(chat, payload, message.Entities)

	at := intToTimeUTC(message.Date)
	if at.IsZero() {
		at = envelope.occurredAt
	}

	return Update{
		ID:         composeUpdateID(UpdateTypeMessage, chat.ID, payload.ID),
		Type:       UpdateTypeMessage,
		OccurredAt: at,
		Chat:       chat,
		Actor:      actor,
		Message:    payload,
	}, true
}

func (m DefaultGotdUpdateMapper) callback(query *tg.UpdateBotCallbackQuery, envelope gotdUpdateEnvelope) Update {
	chat := envelope.chat(query.Peer)
	m.peerCache.RememberConversation(chat, envelope.inputPeer(query.Peer))

	return Update{
		ID:         composeUpdateID(UpdateTypeCallback, chat.ID, strconv.FormatInt(query.QueryID, 10)),
		Type:       UpdateTypeCallback,
		OccurredAt: envelope.occurredAt,
		Chat:       chat,
		Actor:      envelope.user(query.UserID),
		Callback: &CallbackPayload{
			QueryID:   query.QueryID,
			MessageID: strconv.Itoa(query.MsgID),
			Data:      string(query.Data),
		},
	}
}

// addressed reports whether a message is meant for the bot. Private messages
// and slash commands always are; in groups the bot must be mentioned or the
// message must reply to something the bot sent.
func (m DefaultGotdUpdateMapper) addressed(chat ChatRef, payload *MessagePayload, entities []tg.MessageEntityClass) bool {
	if chat.Type == errand.ConversationTypePrivate || strings.HasPrefix(strings.TrimSpace(payload.Text), "/") {
		return true
	}

	selfID, username := m.self.snapshot()
	if username != "" && mentionsUsername(payload.Text, username) {
		return true
	}
	if selfID != 0 {
		for _, entity := range entities {
			if mention, isMention := entity.(*tg.MessageEntityMentionName); isMention && mention.UserID == selfID {
				return true
			}
		}
	}

	return payload.ReplyToID != "" && m.peerCache.IsOwnMessage(chat.ID, payload.ReplyToID)
}

func mentionsUsername(text string, username string) bool {
	want := "@" + strings.ToLower(username)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if strings.TrimRight(word, ",.!?:;") == want {
			return true
		}
	}

	return false
}

// composeUpdateID renders "tg:<type>:<chat>:<parts...>", skipping empty parts.
func composeUpdateID(updateType UpdateType, chatID string, parts ...string) string {
	values := []string{"tg", string(updateType)}
	if chatID != "" {
		values = append(values, chatID)
	}
	for _, part := range parts {
		if part != "" {
			values = append(values, part)
		}
	}

	return strings.Join(values, ":")
}
