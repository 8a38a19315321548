package memory

import (
	"context"
	"sync"

	"kidlearn-progress-service/internal/domain"
)

// QuestStore is an in-memory implementation of app.QuestStore. Rows are unique
// per (user, quest).
type QuestStore struct {
	mu   sync.Mutex
	rows map[string]*domain.UserQuest
}

func NewQuestStore() *QuestStore {
	return &QuestStore{rows: make(map[string]*domain.UserQuest)}
}

func (s *QuestStore) Upsert(_ context.Context, userID, questID string, fn func(*domain.UserQuest)) (domain.UserQuest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(userID, questID)
	row, ok := s.rows[key]
	if !ok {
		row = &domain.UserQuest{UserID: userID, QuestID: questID, Status: domain.QuestNotStarted}
	}
	draft := cloneUserQuest(row)
	fn(&draft)
	s.rows[key] = &draft
	return cloneUserQuest(&draft), nil
}

func (s *QuestStore) ListByUser(_ context.Context, userID string) ([]domain.UserQuest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UserQuest
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, cloneUserQuest(row))
		}
	}
	return out, nil
}

func cloneUserQuest(q *domain.UserQuest) domain.UserQuest {
	clone := *q
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		clone.CompletedAt = &t
	}
	return clone
}
