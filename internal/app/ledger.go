package app

import (
	"context"
	"fmt"

	"kidlearn-progress-service/internal/domain"
)

// xpPerLevel is the ledger's level curve: level = xp/100 + 1, never decreasing.
const xpPerLevel = 100

// Ledger owns the monotonic XP counter and the derived level. All XP-granting
// paths route through it (directly or via RuleEngine, which folds grants into
// the same user write).
type Ledger struct {
	users UserStore
}

func NewLedger(users UserStore) *Ledger {
	return &Ledger{users: users}
}

// AddXP adds a non-negative amount to the user's XP and recomputes the level.
// The read-modify-write runs inside a single atomic store update.
func (l *Ledger) AddXP(ctx context.Context, userID string, amount int) (domain.User, error) {
	if amount < 0 {
		return domain.User{}, fmt.Errorf("negative xp amount %d", amount)
	}
	return l.Apply(ctx, userID, func(u *domain.User) error {
		applyXP(u, amount)
		return nil
	})
}

// Apply runs fn against the user row under the store's atomic update. The rule
// engine uses it to fold achievement grants and their XP into one commit.
func (l *Ledger) Apply(ctx context.Context, userID string, fn func(*domain.User) error) (domain.User, error) {
	return l.users.Update(ctx, userID, fn)
}

// applyXP mutates xp and level in place. The level candidate is clamped
// against the stored level so it never decreases, even if recomputation ever
// runs out of order.
func applyXP(u *domain.User, amount int) {
	u.XP += amount
	if candidate := u.XP/xpPerLevel + 1; candidate > u.Level {
		u.Level = candidate
	}
}
