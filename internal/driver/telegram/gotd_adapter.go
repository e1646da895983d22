package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

const defaultGotdUpdateBuffer = 1024

// GotdUpdateChannel receives gotd update containers and queues each inner
// update as one envelope for GotdSource.
type GotdUpdateChannel struct {
	updates chan any
}

// NewGotdUpdateChannel creates the bridge with room for buffer envelopes.
func NewGotdUpdateChannel(buffer int) *GotdUpdateChannel {
	if buffer <= 0 {
		buffer = defaultGotdUpdateBuffer
	}

	return &GotdUpdateChannel{updates: make(chan any, buffer)}
}

// Updates returns the envelope stream.
func (s *GotdUpdateChannel) Updates(ctx context.Context) (<-chan any, error) {
	switch {
	case ctx == nil:
		return nil, fmt.Errorf("gotd update channel: nil context")
	case s.updates == nil:
		return nil, fmt.Errorf("gotd update channel: not initialized")
	}

	return s.updates, nil
}

// Handle implements gotd's update handler. It blocks while the stream is full.
func (s *GotdUpdateChannel) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	envelopes, err := flattenGotdUpdates(updates)
	if err != nil {
		return fmt.Errorf("handle gotd updates: %w", err)
	}

	for index := range envelopes {
		select {
		case s.updates <- envelopes[index]:
		case <-ctx.Done():
			return fmt.Errorf("handle gotd updates: queue %s: %w", envelopes[index].updateClass, ctx.Err())
		}
	}

	return nil
}

// flattenGotdUpdates unpacks one container into per-update envelopes.
// UpdatesTooLong carries nothing to deliver; gotd refetches the gap itself.
func flattenGotdUpdates(updates tg.UpdatesClass) ([]gotdUpdateEnvelope, error) {
	switch typed := updates.(type) {
	case nil:
		return nil, fmt.Errorf("flatten gotd updates: nil updates")
	case *tg.Updates:
		return envelopeBatch(typed.Date, typed.Users, typed.Chats, typed.Updates...), nil
	case *tg.UpdatesCombined:
		return envelopeBatch(typed.Date, typed.Users, typed.Chats, typed.Updates...), nil
	case *tg.UpdateShort:
		return envelopeBatch(typed.Date, nil, nil, typed.Update), nil
	case *tg.UpdateShortMessage:
		compact := compactMessage{
			id: typed.ID, out: typed.Out, date: typed.Date, text: typed.Message,
			pts: typed.Pts, ptsCount: typed.PtsCount,
			peer: &tg.PeerUser{UserID: typed.UserID}, senderID: typed.UserID,
		}
		compact.replyTo, _ = typed.GetReplyTo()
		compact.entities, _ = typed.GetEntities()
		return []gotdUpdateEnvelope{compact.envelope(typed.TypeName())}, nil
	case *tg.UpdateShortChatMessage:
		compact := compactMessage{
			id: typed.ID, out: typed.Out, date: typed.Date, text: typed.Message,
			pts: typed.Pts, ptsCount: typed.PtsCount,
			peer: &tg.PeerChat{ChatID: typed.ChatID}, senderID: typed.FromID,
		}
		compact.replyTo, _ = typed.GetReplyTo()
		compact.entities, _ = typed.GetEntities()
		return []gotdUpdateEnvelope{compact.envelope(typed.TypeName())}, nil
	case *tg.UpdatesTooLong:
		return nil, nil
	default:
		return nil, fmt.Errorf("flatten gotd updates %s: unsupported container", updates.TypeName())
	}
}

// envelopeBatch shares one entity index across every update of a container.
func envelopeBatch(date int, users []tg.UserClass, chats []tg.ChatClass, updates ...tg.UpdateClass) []gotdUpdateEnvelope {
	at := intToTimeUTC(date)
	if at.IsZero() {
		at = time.Now().UTC()
	}
	usersByID, chatsByID := indexGotdUsers(users), indexGotdChats(chats)

	envelopes := make([]gotdUpdateEnvelope, 0, len(updates))
	for _, update := range updates {
		if update == nil {
			continue
		}
		envelopes = append(envelopes, gotdUpdateEnvelope{
			update:      update,
			occurredAt:  at,
			usersByID:   usersByID,
			chatsByID:   chatsByID,
			updateClass: update.TypeName(),
		})
	}

	return envelopes
}

// compactMessage holds the fields shared by the two short message containers
// so both can be rebuilt as an ordinary UpdateNewMessage.
type compactMessage struct {
	id       int
	out      bool
	date     int
	text     string
	pts      int
	ptsCount int
	peer     tg.PeerClass
	senderID int64
	replyTo  tg.MessageReplyHeaderClass
	entities []tg.MessageEntityClass
}

func (c compactMessage) envelope(class string) gotdUpdateEnvelope {
	message := &tg.Message{ID: c.id, Out: c.out, PeerID: c.peer, Date: c.date, Message: c.text}
	message.SetFromID(&tg.PeerUser{UserID: c.senderID})
	if c.replyTo != nil {
		message.SetReplyTo(c.replyTo)
	}
	if len(c.entities) > 0 {
		message.SetEntities(c.entities)
	}

	at := intToTimeUTC(c.date)
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return gotdUpdateEnvelope{
		update:      &tg.UpdateNewMessage{Message: message, Pts: c.pts, PtsCount: c.ptsCount},
		occurredAt:  at,
		updateClass: class,
	}
}
