package app_test

import (
	"context"
	"testing"

	"kidlearn-progress-service/internal/domain"
)

func TestQuestSubmitScoresTaggedAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	answers := []domain.AnswerValue{
		domain.NumberAnswer(3),
		domain.StringAnswer("circle"),
		domain.BoolAnswer(false),
	}
	result, err := f.questSvc.Submit(ctx, "u1", "quest-1", answers, 45)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.UserQuest.Status != domain.QuestCompleted {
		t.Fatalf("expected completed quest, got %s", result.UserQuest.Status)
	}
	if result.UserQuest.CorrectAnswers != 2 || result.UserQuest.Score != 10 {
		t.Fatalf("expected 2 correct worth 10, got correct=%d score=%d", result.UserQuest.CorrectAnswers, result.UserQuest.Score)
	}
	if result.UserQuest.TimeSpentSeconds != 45 {
		t.Fatalf("expected 45 seconds recorded, got %d", result.UserQuest.TimeSpentSeconds)
	}
	if result.UserQuest.CompletedAt == nil || result.UserQuest.StartedAt.IsZero() {
		t.Fatalf("expected timestamps on completion, got %+v", result.UserQuest)
	}
}

func TestQuestSubmitCrossTypeAnswerEarnsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	// "3" as a string must not match the numeric answer 3
	answers := []domain.AnswerValue{domain.StringAnswer("3")}
	result, err := f.questSvc.Submit(ctx, "u1", "quest-1", answers, 10)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.UserQuest.CorrectAnswers != 0 || result.UserQuest.Score != 0 {
		t.Fatalf("string \"3\" matched numeric 3: %+v", result.UserQuest)
	}
}

func TestQuestSubmitMissingAnswersNeverMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	result, err := f.questSvc.Submit(ctx, "u1", "quest-1", nil, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.UserQuest.CorrectAnswers != 0 {
		t.Fatalf("expected 0 correct with no answers, got %d", result.UserQuest.CorrectAnswers)
	}
}

func TestQuestResubmitKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if _, err := f.questSvc.Submit(ctx, "u1", "quest-1", []domain.AnswerValue{domain.NumberAnswer(3)}, 10); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := f.questSvc.Submit(ctx, "u1", "quest-1", []domain.AnswerValue{
		domain.NumberAnswer(3),
		domain.StringAnswer("square"),
		domain.BoolAnswer(false),
	}, 20)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.UserQuest.Score != 15 {
		t.Fatalf("resubmit must overwrite the score, got %d", second.UserQuest.Score)
	}

	rows, err := f.quests.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one record per (user, quest), got %d", len(rows))
	}
}

func TestQuestSubmitUnknownQuest(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.questSvc.Submit(context.Background(), "u1", "quest-404", nil, 0); err == nil {
		t.Fatalf("expected error for unknown quest")
	}
}

func TestQuestUnlockIgnoresActiveFlag(t *testing.T) {
	ctx := context.Background()
	// The quest path matches quest-completion achievements by threshold only,
	// so a retired definition still unlocks here.
	f := newFixture(t, []domain.Achievement{
		{ID: "ach-quest-retired", Type: domain.AchievementQuestCompletion, Threshold: 1, XPReward: 40, Active: false},
	})

	result, err := f.questSvc.Submit(ctx, "u1", "quest-1", []domain.AnswerValue{domain.NumberAnswer(3)}, 5)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(result.NewAchievements) != 1 || result.NewAchievements[0].ID != "ach-quest-retired" {
		t.Fatalf("expected retired quest achievement to unlock, got %+v", result.NewAchievements)
	}
	if xp, _ := f.userXP(t); xp != 40 {
		t.Fatalf("expected 40 xp from the grant, got %d", xp)
	}

	// second completion of the same quest keeps the count at 1 and the grant set unchanged
	again, err := f.questSvc.Submit(ctx, "u1", "quest-1", nil, 0)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if len(again.NewAchievements) != 0 {
		t.Fatalf("resubmit must not re-grant, got %+v", again.NewAchievements)
	}
}
