package memory

import (
	"context"
	"sync"

	"kidlearn-progress-service/internal/domain"
)

// ProgressStore is an in-memory implementation of app.ProgressStore.
type ProgressStore struct {
	mu   sync.Mutex
	rows map[string]*domain.Progress
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{rows: make(map[string]*domain.Progress)}
}

func (s *ProgressStore) Upsert(_ context.Context, userID, zoneID string, fn func(*domain.Progress)) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(userID, zoneID)
	row, ok := s.rows[key]
	if !ok {
		row = &domain.Progress{UserID: userID, ZoneID: zoneID, QuizScores: []int{}}
	}
	draft := cloneProgress(row)
	fn(&draft)
	s.rows[key] = &draft
	return cloneProgress(&draft), nil
}

func (s *ProgressStore) ListByUser(_ context.Context, userID string) ([]domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Progress
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, cloneProgress(row))
		}
	}
	return out, nil
}

func cloneProgress(p *domain.Progress) domain.Progress {
	clone := *p
	clone.QuizScores = append([]int(nil), p.QuizScores...)
	return clone
}
