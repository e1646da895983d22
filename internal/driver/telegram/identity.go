package telegram

import (
	"strings"
	"sync"

	"errand-bot/pkg/errand"
)

const (
	// DriverType is the configured driver type token for the Telegram runtime.
	DriverType = "telegram"
	// DriverPlatform is the neutral platform produced by the Telegram runtime.
	DriverPlatform errand.Platform = errand.PlatformTelegram
)

// SelfIdentity holds the bot account identity learned after authorization.
//
// The mapper reads it for every message to decide whether the bot was
// addressed; it stays empty until the session has authenticated.
type SelfIdentity struct {
	mu       sync.RWMutex
	userID   int64
	username string
}

// Set records the authenticated bot account.
func (s *SelfIdentity) Set(userID int64, username string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.username = strings.TrimPrefix(strings.TrimSpace(username), "@")
}

func (s *SelfIdentity) snapshot() (int64, string) {
	if s == nil {
		return 0, ""
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.userID, s.username
}
