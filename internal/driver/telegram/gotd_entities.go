package telegram

import (
	"strconv"
	"strings"
	"time"

	"errand-bot/pkg/errand"

	"github.com/gotd/td/tg"
)

// unknownID stands in for a chat or actor whose peer could not be read.
const unknownID = "unknown"

// gotdUpdateEnvelope is one update plus the users and chats its container
// carried. Entity maps are shared across every envelope of a container.
type gotdUpdateEnvelope struct {
	update      tg.UpdateClass
	occurredAt  time.Time
	usersByID   map[int64]*tg.User
	chatsByID   map[int64]gotdChatInfo
	updateClass string
}

type gotdChatInfo struct {
	title     string
	kind      errand.ConversationType
	inputPeer tg.InputPeerClass
}

func indexGotdUsers(users []tg.UserClass) map[int64]*tg.User {
	var index map[int64]*tg.User
	for _, candidate := range users {
		if candidate == nil {
			continue
		}
		user, ok := candidate.AsNotEmpty()
		if !ok || user == nil {
			continue
		}
		if index == nil {
			index = make(map[int64]*tg.User, len(users))
		}
		index[user.ID] = user
	}

	return index
}

// indexGotdChats files supergroups as groups: they are channels on the wire
// but members see a group.
func indexGotdChats(chats []tg.ChatClass) map[int64]gotdChatInfo {
	var index map[int64]gotdChatInfo
	add := func(id int64, info gotdChatInfo) {
		if index == nil {
			index = make(map[int64]gotdChatInfo, len(chats))
		}
		index[id] = info
	}

	for _, chat := range chats {
		switch typed := chat.(type) {
		case *tg.Chat:
			add(typed.ID, gotdChatInfo{title: typed.Title, kind: errand.ConversationTypeGroup, inputPeer: typed.AsInputPeer()})
		case *tg.Channel:
			kind := errand.ConversationTypeChannel
			if typed.Megagroup {
				kind = errand.ConversationTypeGroup
			}
			add(typed.ID, gotdChatInfo{title: typed.Title, kind: kind, inputPeer: typed.AsInputPeer()})
		}
	}

	return index
}

// chat describes the conversation peer belongs to. A private chat takes the
// id and name of the user on the other side.
func (e gotdUpdateEnvelope) chat(peer tg.PeerClass) ChatRef {
	var (
		id       int64
		fallback errand.ConversationType
	)
	switch typed := peer.(type) {
	case *tg.PeerUser:
		user := e.user(typed.UserID)
		return ChatRef{ID: user.ID, Type: errand.ConversationTypePrivate, Title: user.DisplayName}
	case *tg.PeerChat:
		id, fallback = typed.ChatID, errand.ConversationTypeGroup
	case *tg.PeerChannel:
		id, fallback = typed.ChannelID, errand.ConversationTypeChannel
	default:
		return ChatRef{ID: unknownID, Type: errand.ConversationTypePrivate}
	}

	ref := ChatRef{ID: strconv.FormatInt(id, 10), Type: fallback}
	if info, ok := e.chatsByID[id]; ok {
		ref.Title, ref.Type = info.title, info.kind
	}

	return ref
}

// sender describes who posted through peer. Anonymous admins and channel
// posts are attributed to the chat itself.
func (e gotdUpdateEnvelope) sender(peer tg.PeerClass) ActorRef {
	var chatID int64
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return e.user(typed.UserID)
	case *tg.PeerChat:
		chatID = typed.ChatID
	case *tg.PeerChannel:
		chatID = typed.ChannelID
	default:
		return ActorRef{ID: unknownID}
	}

	return ActorRef{ID: strconv.FormatInt(chatID, 10), DisplayName: e.chatsByID[chatID].title}
}

// user describes userID with whatever profile the container included.
// DisplayName falls back from full name to username to the id.
func (e gotdUpdateEnvelope) user(userID int64) ActorRef {
	if userID == 0 {
		return ActorRef{ID: unknownID}
	}
	actor := ActorRef{ID: strconv.FormatInt(userID, 10)}

	profile := e.usersByID[userID]
	if profile == nil {
		return actor
	}
	first, _ := profile.GetFirstName()
	last, _ := profile.GetLastName()
	actor.Username, _ = profile.GetUsername()
	actor.IsBot = profile.Bot
	actor.DisplayName = strings.TrimSpace(first + " " + last)
	for _, fallback := range []string{actor.Username, actor.ID} {
		if actor.DisplayName == "" {
			actor.DisplayName = fallback
		}
	}

	return actor
}

// inputPeer builds the peer needed to write back to peer. Channels need an
// access hash, so one absent from the container yields nil.
func (e gotdUpdateEnvelope) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if user := e.usersByID[typed.UserID]; user != nil {
			return user.AsInputPeer()
		}
		return &tg.InputPeerUser{UserID: typed.UserID}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: typed.ChatID}
	case *tg.PeerChannel:
		if info, ok := e.chatsByID[typed.ChannelID]; ok && info.inputPeer != nil {
			return cloneInputPeer(info.inputPeer)
		}
	}

	return nil
}

func (e gotdUpdateEnvelope) metadata() map[string]string {
	if e.updateClass == "" {
		return nil
	}

	return map[string]string{"gotd_update": e.updateClass}
}

func intToTimeUTC(seconds int) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}

	return time.Unix(int64(seconds), 0).UTC()
}
