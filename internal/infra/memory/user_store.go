package memory

import (
	"context"
	"sync"

	"kidlearn-progress-service/internal/domain"
)

// UserStore is an in-memory implementation of app.UserStore. Update runs its
// closure under the store mutex, which serializes every xp/achievement
// read-modify-write per process.
type UserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

func (s *UserStore) Create(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return domain.ErrConflict
	}
	clone := cloneUser(&user)
	s.users[user.ID] = &clone
	return nil
}

func (s *UserStore) Get(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *UserStore) Update(_ context.Context, id string, fn func(*domain.User) error) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	// mutate a copy so a failing closure leaves the stored row untouched
	draft := cloneUser(user)
	if err := fn(&draft); err != nil {
		return domain.User{}, err
	}
	s.users[id] = &draft
	return cloneUser(&draft), nil
}

func cloneUser(u *domain.User) domain.User {
	clone := *u
	clone.Achievements = append([]string(nil), u.Achievements...)
	return clone
}
