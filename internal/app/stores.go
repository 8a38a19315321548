package app

import (
	"context"

	"kidlearn-progress-service/internal/domain"
)

// UserStore owns the per-user ledger row (xp, level, achievement set).
// Update applies fn while holding exclusive ownership of the row; the closure
// either commits atomically or not at all. Every xp/achievement mutation in
// this package goes through Update, which is what makes concurrent triggers
// for the same user safe.
type UserStore interface {
	Get(ctx context.Context, id string) (domain.User, error)
	Create(ctx context.Context, user domain.User) error
	Update(ctx context.Context, id string, fn func(*domain.User) error) (domain.User, error)
}

// AttemptStore persists quiz attempts. Update has the same atomic-closure
// contract as UserStore.Update, so only one caller can observe the transition
// into a terminal state.
type AttemptStore interface {
	Get(ctx context.Context, id string) (domain.QuizAttempt, error)
	FindInProgress(ctx context.Context, studentID, quizID string) (domain.QuizAttempt, bool, error)
	Create(ctx context.Context, attempt domain.QuizAttempt) error
	Update(ctx context.Context, id string, fn func(*domain.QuizAttempt) error) (domain.QuizAttempt, error)
}

// ProgressStore persists per-(user, zone) accumulators. Upsert creates the row
// on first touch and applies fn atomically.
type ProgressStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Progress, error)
	Upsert(ctx context.Context, userID, zoneID string, fn func(*domain.Progress)) (domain.Progress, error)
}

// QuestStore persists per-(user, quest) records.
type QuestStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.UserQuest, error)
	Upsert(ctx context.Context, userID, questID string, fn func(*domain.UserQuest)) (domain.UserQuest, error)
}

// QuizCatalog loads quiz content (from cache/backing store).
type QuizCatalog interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuestCatalog loads quest content.
type QuestCatalog interface {
	GetQuest(ctx context.Context, questID string) (domain.Quest, error)
}

// AchievementCatalog loads achievement definitions.
type AchievementCatalog interface {
	// ListActive returns every definition with the active flag set.
	ListActive(ctx context.Context) ([]domain.Achievement, error)
	// ListByTypeUpTo returns definitions of the given type whose threshold is
	// at most limit, regardless of the active flag. The quest submission path
	// depends on that looseness.
	ListByTypeUpTo(ctx context.Context, typ domain.AchievementType, limit int) ([]domain.Achievement, error)
}
