package memory

import (
	"context"
	"sync"

	"kidlearn-progress-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. A side
// index enforces at most one in-progress attempt per (student, quiz).
type AttemptStore struct {
	mu         sync.Mutex
	attempts   map[string]*domain.QuizAttempt
	inProgress map[string]string // (student, quiz) -> attempt id
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:   make(map[string]*domain.QuizAttempt),
		inProgress: make(map[string]string),
	}
}

func (s *AttemptStore) Create(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; ok {
		return domain.ErrConflict
	}
	key := pairKey(attempt.StudentID, attempt.QuizID)
	if attempt.Status == domain.AttemptInProgress {
		if _, busy := s.inProgress[key]; busy {
			return domain.ErrConflict
		}
		s.inProgress[key] = attempt.ID
	}
	clone := cloneAttempt(&attempt)
	s.attempts[attempt.ID] = &clone
	return nil
}

func (s *AttemptStore) Get(_ context.Context, id string) (domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) FindInProgress(_ context.Context, studentID, quizID string) (domain.QuizAttempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.inProgress[pairKey(studentID, quizID)]
	if !ok {
		return domain.QuizAttempt{}, false, nil
	}
	return cloneAttempt(s.attempts[id]), true, nil
}

func (s *AttemptStore) Update(_ context.Context, id string, fn func(*domain.QuizAttempt) error) (domain.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	draft := cloneAttempt(attempt)
	if err := fn(&draft); err != nil {
		return domain.QuizAttempt{}, err
	}
	if attempt.Status == domain.AttemptInProgress && draft.Status != domain.AttemptInProgress {
		delete(s.inProgress, pairKey(draft.StudentID, draft.QuizID))
	}
	s.attempts[id] = &draft
	return cloneAttempt(&draft), nil
}

func cloneAttempt(a *domain.QuizAttempt) domain.QuizAttempt {
	clone := *a
	clone.Responses = append([]domain.Response(nil), a.Responses...)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		clone.CompletedAt = &t
	}
	return clone
}

func pairKey(a, b string) string {
	return a + "\x00" + b
}
