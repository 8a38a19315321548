package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"kidlearn-progress-service/internal/app"
	"kidlearn-progress-service/internal/domain"
	"kidlearn-progress-service/internal/infra/memory"
)

type fixture struct {
	users    *memory.UserStore
	attempts *memory.AttemptStore
	progress *memory.ProgressStore
	quests   *memory.QuestStore

	ledger      *app.Ledger
	rules       *app.RuleEngine
	attemptSvc  *app.AttemptService
	progressSvc *app.ProgressService
	questSvc    *app.QuestService
}

// newFixture wires the engine over the in-memory stores with a 3-question quiz
// (10 points each, xpReward 20) and a 3-question quest.
func newFixture(t *testing.T, achievements []domain.Achievement) *fixture {
	t.Helper()

	f := &fixture{
		users:    memory.NewUserStore(),
		attempts: memory.NewAttemptStore(),
		progress: memory.NewProgressStore(),
		quests:   memory.NewQuestStore(),
	}

	catalog := memory.NewStaticCatalog(
		map[string]domain.Quiz{
			"quiz-1": {
				ID:       "quiz-1",
				XPReward: 20,
				Questions: []domain.Question{
					{Prompt: "q0", Options: []string{"a", "b"}, CorrectOption: 0, Points: 10},
					{Prompt: "q1", Options: []string{"a", "b"}, CorrectOption: 1, Points: 10},
					{Prompt: "q2", Options: []string{"a", "b"}, CorrectOption: 0, Points: 10},
				},
			},
		},
		map[string]domain.Quest{
			"quest-1": {
				ID: "quest-1",
				Questions: []domain.QuestQuestion{
					{Prompt: "sides of a triangle", Points: 5, CorrectAnswer: domain.NumberAnswer(3)},
					{Prompt: "shape with equal sides", Points: 5, CorrectAnswer: domain.StringAnswer("square")},
					{Prompt: "circles have corners", Points: 5, CorrectAnswer: domain.BoolAnswer(false)},
				},
			},
		},
		achievements,
	)

	hub := app.NewHub()
	f.ledger = app.NewLedger(f.users)
	f.rules = app.NewRuleEngine(f.ledger, f.progress, f.quests, catalog)
	f.attemptSvc = app.NewAttemptService(f.attempts, catalog, f.rules, hub)
	f.progressSvc = app.NewProgressService(f.progress, f.rules, hub)
	f.questSvc = app.NewQuestService(f.quests, catalog, catalog, f.rules, hub)

	if err := f.users.Create(context.Background(), domain.User{ID: "u1", Level: 1}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return f
}

func (f *fixture) userXP(t *testing.T) (int, int) {
	t.Helper()
	user, err := f.users.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return user.XP, user.Level
}

func TestStartAttemptIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.attemptSvc.Start(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.Status != domain.AttemptInProgress || first.TotalQuestions != 3 {
		t.Fatalf("unexpected attempt %+v", first)
	}

	second, err := f.attemptSvc.Start(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected resumed attempt %s, got %s", first.ID, second.ID)
	}
}

func TestStartAttemptUnknownQuiz(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.attemptSvc.Start(context.Background(), "u1", "quiz-404"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestSubmitAnswerCompletionReward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	attempt, err := f.attemptSvc.Start(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// correct, wrong, correct
	out, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 0, 0, 12)
	if err != nil {
		t.Fatalf("answer 0: %v", err)
	}
	if !out.IsCorrect || out.Completed || out.NextQuestionIndex != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	out, err = f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 1, 0, 8)
	if err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	if out.IsCorrect {
		t.Fatalf("expected wrong answer")
	}

	out, err = f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 2, 0, 10)
	if err != nil {
		t.Fatalf("answer 2: %v", err)
	}
	if !out.Completed || out.Result == nil {
		t.Fatalf("expected completion, got %+v", out)
	}
	if out.NextQuestionIndex != -1 {
		t.Fatalf("expected no next question, got %d", out.NextQuestionIndex)
	}

	result := out.Result
	if result.Attempt.Score != 67 {
		t.Fatalf("expected score 67, got %d", result.Attempt.Score)
	}
	if result.Attempt.CorrectAnswers != 2 || result.Attempt.TimeSpentSeconds != 30 {
		t.Fatalf("unexpected attempt totals %+v", result.Attempt)
	}
	// 67% lands in the 7th decile: 7 * 20 = 140
	if result.XPAwarded != 140 {
		t.Fatalf("expected 140 xp, got %d", result.XPAwarded)
	}
	if xp, level := f.userXP(t); xp != 140 || level != 2 {
		t.Fatalf("expected xp=140 level=2, got xp=%d level=%d", xp, level)
	}
}

func TestCompleteEarlyScoresAgainstFullQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	attempt, _ := f.attemptSvc.Start(ctx, "u1", "quiz-1")
	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 0, 0, 5); err != nil {
		t.Fatalf("answer: %v", err)
	}

	result, err := f.attemptSvc.Complete(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	// 1 of 3 correct scores against the full question count: round(1/3*100)=33
	if result.Attempt.Score != 33 {
		t.Fatalf("expected score 33, got %d", result.Attempt.Score)
	}
	if result.XPAwarded != 80 { // ceil(33/10)=4 deciles * 20
		t.Fatalf("expected 80 xp, got %d", result.XPAwarded)
	}
	if result.Attempt.CompletedAt == nil {
		t.Fatalf("expected completedAt to be set")
	}
}

func TestZeroScoreAwardsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	attempt, _ := f.attemptSvc.Start(ctx, "u1", "quiz-1")
	result, err := f.attemptSvc.Complete(ctx, "u1", attempt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Attempt.Score != 0 || result.XPAwarded != 0 {
		t.Fatalf("expected score 0 and no xp, got %+v", result)
	}
}

func TestTerminalAttemptRejectsMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	attempt, _ := f.attemptSvc.Start(ctx, "u1", "quiz-1")
	if _, err := f.attemptSvc.Complete(ctx, "u1", attempt.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 1, 0, 1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := f.attemptSvc.Complete(ctx, "u1", attempt.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on double complete, got %v", err)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	attempt, _ := f.attemptSvc.Start(ctx, "u1", "quiz-1")

	if _, err := f.attemptSvc.SubmitAnswer(ctx, "intruder", attempt.ID, 0, 0, 1); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 3, 0, 1); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, -1, 0, 1); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found for negative index, got %v", err)
	}

	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 0, 0, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 0, 1, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate question, got %v", err)
	}

	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", "attempt-404", 0, 0, 1); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}

func TestConcurrentFinalAnswerCompletesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	attempt, _ := f.attemptSvc.Start(ctx, "u1", "quiz-1")
	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 0, 0, 1); err != nil {
		t.Fatalf("answer 0: %v", err)
	}
	if _, err := f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 1, 1, 1); err != nil {
		t.Fatalf("answer 1: %v", err)
	}

	var wg sync.WaitGroup
	outcomes := make([]app.AnswerOutcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.attemptSvc.SubmitAnswer(ctx, "u1", attempt.ID, 2, 0, 1)
		}(i)
	}
	wg.Wait()

	completions := 0
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			if !outcomes[i].Completed {
				t.Fatalf("successful submit should have completed the attempt")
			}
			completions++
			continue
		}
		if !errors.Is(errs[i], domain.ErrConflict) && !errors.Is(errs[i], domain.ErrInvalidState) {
			t.Fatalf("loser should fail with conflict or invalid state, got %v", errs[i])
		}
	}
	if completions != 1 {
		t.Fatalf("expected exactly one completion, got %d", completions)
	}

	// full marks: 10 deciles * 20 reward, granted exactly once
	if xp, _ := f.userXP(t); xp != 200 {
		t.Fatalf("expected single 200 xp award, got %d", xp)
	}
}
