package app_test

import (
	"context"
	"sync"
	"testing"

	"kidlearn-progress-service/internal/app"
	"kidlearn-progress-service/internal/domain"
	"kidlearn-progress-service/internal/infra/memory"
)

func newLedger(t *testing.T, seed domain.User) (*app.Ledger, *memory.UserStore) {
	t.Helper()
	users := memory.NewUserStore()
	if err := users.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return app.NewLedger(users), users
}

func TestAddXPLevelCurve(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t, domain.User{ID: "u1", Level: 1})

	cases := []struct {
		add   int
		xp    int
		level int
	}{
		{add: 50, xp: 50, level: 1},
		{add: 49, xp: 99, level: 1},
		{add: 1, xp: 100, level: 2},
		{add: 250, xp: 350, level: 4},
	}
	for _, tc := range cases {
		user, err := ledger.AddXP(ctx, "u1", tc.add)
		if err != nil {
			t.Fatalf("add %d: %v", tc.add, err)
		}
		if user.XP != tc.xp || user.Level != tc.level {
			t.Fatalf("after +%d expected xp=%d level=%d, got xp=%d level=%d", tc.add, tc.xp, tc.level, user.XP, user.Level)
		}
	}
}

func TestAddXPNeverLowersLevel(t *testing.T) {
	ctx := context.Background()
	// level seeded above what the xp would compute
	ledger, _ := newLedger(t, domain.User{ID: "u1", XP: 120, Level: 5})

	user, err := ledger.AddXP(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if user.Level != 5 {
		t.Fatalf("level must not decrease, got %d", user.Level)
	}
	if user.XP != 130 {
		t.Fatalf("expected xp 130, got %d", user.XP)
	}
}

func TestAddXPRejectsNegative(t *testing.T) {
	ctx := context.Background()
	ledger, users := newLedger(t, domain.User{ID: "u1", XP: 40, Level: 1})

	if _, err := ledger.AddXP(ctx, "u1", -5); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	user, _ := users.Get(ctx, "u1")
	if user.XP != 40 {
		t.Fatalf("rejected add must leave xp untouched, got %d", user.XP)
	}
}

func TestAddXPUnknownUser(t *testing.T) {
	ledger, _ := newLedger(t, domain.User{ID: "u1", Level: 1})
	if _, err := ledger.AddXP(context.Background(), "ghost", 10); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestAddXPConcurrentAddsAllLand(t *testing.T) {
	ctx := context.Background()
	ledger, users := newLedger(t, domain.User{ID: "u1", Level: 1})

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.AddXP(ctx, "u1", 10); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()

	user, err := users.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if user.XP != workers*10 {
		t.Fatalf("expected %d xp, got %d", workers*10, user.XP)
	}
	if user.Level != 3 {
		t.Fatalf("expected level 3 at 200 xp, got %d", user.Level)
	}
}
