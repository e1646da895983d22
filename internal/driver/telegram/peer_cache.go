package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"errand-bot/pkg/errand"

	"github.com/gotd/td/tg"
)

// defaultOwnMessageWindow bounds how many sent message ids are kept per conversation.
const defaultOwnMessageWindow = 256

// PeerCache stores Telegram input peers discovered from inbound updates, plus
// the ids of recent messages the bot sent, so replies to them count as addressed.
type PeerCache struct {
	mu             sync.RWMutex
	byConversation map[string]tg.InputPeerClass
	ownMessages    map[string]*ownMessageRing
	window         int
}

type ownMessageRing struct {
	ids   map[string]struct{}
	order []string
}

// NewPeerCache creates an empty, concurrency-safe Telegram peer cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{
		byConversation: make(map[string]tg.InputPeerClass),
		ownMessages:    make(map[string]*ownMessageRing),
		window:         defaultOwnMessageWindow,
	}
}

// RememberEnvelope ingests entity data attached to one gotd update envelope.
func (c *PeerCache) RememberEnvelope(envelope gotdUpdateEnvelope) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, user := range envelope.usersByID {
		if user == nil {
			continue
		}
		if peer := user.AsInputPeer(); peer != nil {
			c.storeLocked(errand.ConversationTypePrivate, strconv.FormatInt(userID, 10), peer)
		}
	}
	for id, chat := range envelope.chatsByID {
		if chat.inputPeer != nil {
			c.storeLocked(chat.kind, strconv.FormatInt(id, 10), chat.inputPeer)
		}
	}
}

// RememberConversation stores one explicit conversation-to-peer mapping.
func (c *PeerCache) RememberConversation(chat ChatRef, peer tg.InputPeerClass) {
	if c == nil || peer == nil || chat.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(chat.Type, chat.ID, peer)
}

// storeLocked also files supergroup peers under the channel kind, since they
// surface as groups in events but are channel peers on the wire.
func (c *PeerCache) storeLocked(kind errand.ConversationType, id string, peer tg.InputPeerClass) {
	c.byConversation[conversationKey(kind, id)] = cloneInputPeer(peer)
	if kind != errand.ConversationTypeGroup {
		return
	}
	if _, isChannel := peer.(*tg.InputPeerChannel); isChannel {
		c.byConversation[conversationKey(errand.ConversationTypeChannel, id)] = cloneInputPeer(peer)
	}
}

// Resolve returns an input peer for an outbound target conversation.
//
// Private conversations never seen inbound resolve to a bare user peer, which
// bot accounts may address by id alone.
func (c *PeerCache) Resolve(conversation errand.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" || conversation.Type == "" {
		return nil, fmt.Errorf("resolve peer: invalid conversation")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if peer, ok := c.byConversation[conversationKey(conversation.Type, conversation.ID)]; ok {
		return cloneInputPeer(peer), nil
	}

	switch conversation.Type {
	case errand.ConversationTypePrivate:
		userID, err := strconv.ParseInt(conversation.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("resolve peer: private conversation id %q: %w", conversation.ID, err)
		}
		return &tg.InputPeerUser{UserID: userID}, nil
	case errand.ConversationTypeGroup:
		if peer, ok := c.byConversation[conversationKey(errand.ConversationTypeChannel, conversation.ID)]; ok {
			return cloneInputPeer(peer), nil
		}
	case errand.ConversationTypeChannel:
		if peer, ok := c.byConversation[conversationKey(errand.ConversationTypeGroup, conversation.ID)]; ok {
			return cloneInputPeer(peer), nil
		}
	}

	return nil, fmt.Errorf("resolve peer: conversation %s/%s not found", conversation.Type, conversation.ID)
}

// RememberOwnMessage records a message the bot sent into conversationID.
func (c *PeerCache) RememberOwnMessage(conversationID string, messageID string) {
	if c == nil || conversationID == "" || messageID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ring, ok := c.ownMessages[conversationID]
	if !ok {
		ring = &ownMessageRing{ids: make(map[string]struct{})}
		c.ownMessages[conversationID] = ring
	}
	if _, exists := ring.ids[messageID]; exists {
		return
	}
	ring.ids[messageID] = struct{}{}
	ring.order = append(ring.order, messageID)
	if len(ring.order) > c.window {
		evicted := ring.order[0]
		ring.order = ring.order[1:]
		delete(ring.ids, evicted)
	}
}

// IsOwnMessage reports whether messageID is a recent bot message in conversationID.
func (c *PeerCache) IsOwnMessage(conversationID string, messageID string) bool {
	if c == nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ring, ok := c.ownMessages[conversationID]
	if !ok {
		return false
	}
	_, found := ring.ids[messageID]

	return found
}

func conversationKey(conversationType errand.ConversationType, id string) string {
	return string(conversationType) + ":" + id
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChat:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChannel:
		copyPeer := *typed
		return &copyPeer
	default:
		return peer
	}
}
