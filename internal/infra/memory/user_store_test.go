package memory

import (
	"context"
	"errors"
	"testing"

	"kidlearn-progress-service/internal/domain"
)

func TestUserStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()

	if err := store.Create(ctx, domain.User{ID: "u1", Level: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, domain.User{ID: "u1"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	user, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if user.ID != "u1" || user.Level != 1 {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := store.Get(ctx, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserStoreUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()
	if err := store.Create(ctx, domain.User{ID: "u1", XP: 10}); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.Update(ctx, "u1", func(u *domain.User) error {
		u.XP += 5
		u.AddAchievement("a1")
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.XP != 15 || !updated.HasAchievement("a1") {
		t.Fatalf("unexpected result %+v", updated)
	}

	boom := errors.New("boom")
	if _, err := store.Update(ctx, "u1", func(u *domain.User) error {
		u.XP = 9999
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected closure error, got %v", err)
	}

	user, _ := store.Get(ctx, "u1")
	if user.XP != 15 {
		t.Fatalf("failed closure leaked mutation, xp=%d", user.XP)
	}
}

func TestUserStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()
	if err := store.Create(ctx, domain.User{ID: "u1", Achievements: []string{"a1"}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	user, _ := store.Get(ctx, "u1")
	user.Achievements[0] = "tampered"

	again, _ := store.Get(ctx, "u1")
	if again.Achievements[0] != "a1" {
		t.Fatalf("caller mutation reached the stored row")
	}
}
