package app

import (
	"sync"
	"time"

	"kidlearn-progress-service/internal/domain"
)

// Event types published by the engine.
const (
	EventAttemptCompleted    = "attempt_completed"
	EventProgressUpdated     = "progress_updated"
	EventQuestCompleted      = "quest_completed"
	EventAchievementUnlocked = "achievement_unlocked"
)

// Event is one progress notification for a user. Notification and analytics
// consumers subscribe to these over the websocket endpoint.
type Event struct {
	Type        string              `json:"type"`
	UserID      string              `json:"userId"`
	AttemptID   string              `json:"attemptId,omitempty"`
	QuestID     string              `json:"questId,omitempty"`
	ZoneID      string              `json:"zoneId,omitempty"`
	Score       int                 `json:"score,omitempty"`
	XPAwarded   int                 `json:"xpAwarded,omitempty"`
	XP          int                 `json:"xp"`
	Level       int                 `json:"level"`
	Achievement *domain.Achievement `json:"achievement,omitempty"`
	At          time.Time           `json:"at"`
}

// Hub fans engine events out to per-user subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel receiving events for userID. The caller must
// invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers evt to the user's subscribers. Slow consumers lose their
// oldest buffered event instead of blocking the engine.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[evt.UserID] {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}
