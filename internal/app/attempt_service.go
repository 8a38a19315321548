package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"kidlearn-progress-service/internal/domain"
)

// AttemptService owns the quiz attempt lifecycle: answer-by-answer scoring and
// the completion side-effect (XP award + achievement evaluation).
type AttemptService struct {
	attempts AttemptStore
	quizzes  QuizCatalog
	rules    *RuleEngine
	hub      *Hub
	now      func() time.Time
	newID    func() string
}

func NewAttemptService(attempts AttemptStore, quizzes QuizCatalog, rules *RuleEngine, hub *Hub) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		rules:    rules,
		hub:      hub,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// AnswerOutcome is returned from SubmitAnswer. NextQuestionIndex is -1 when
// every question has been answered.
type AnswerOutcome struct {
	IsCorrect         bool
	ProgressFraction  float64
	NextQuestionIndex int
	Completed         bool
	Result            *AttemptResult
}

// AttemptResult describes a finished attempt and the side effects it caused.
type AttemptResult struct {
	Attempt         domain.QuizAttempt
	XPAwarded       int
	XP              int
	Level           int
	NewAchievements []domain.Achievement
}

// Start returns the student's in-progress attempt for the quiz if one exists,
// otherwise it creates a fresh one. Calling it repeatedly never creates
// duplicates.
func (s *AttemptService) Start(ctx context.Context, studentID, quizID string) (domain.QuizAttempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	existing, ok, err := s.attempts.FindInProgress(ctx, studentID, quizID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if ok {
		return existing, nil
	}

	attempt := domain.QuizAttempt{
		ID:             s.newID(),
		StudentID:      studentID,
		QuizID:         quizID,
		TotalQuestions: len(quiz.Questions),
		Responses:      []domain.Response{},
		Status:         domain.AttemptInProgress,
		StartedAt:      s.now().UTC(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race with a parallel start; resume the winner.
			if winner, ok, ferr := s.attempts.FindInProgress(ctx, studentID, quizID); ferr == nil && ok {
				return winner, nil
			}
		}
		return domain.QuizAttempt{}, err
	}
	return attempt, nil
}

// SubmitAnswer scores one answer. Correctness is computed once at submission
// and is immutable afterwards. Answering the last open question transitions
// the attempt to completed and settles the reward.
func (s *AttemptService) SubmitAnswer(ctx context.Context, studentID, attemptID string, questionIndex, selectedOption, timeTakenSeconds int) (AnswerOutcome, error) {
	current, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if current.StudentID != studentID {
		return AnswerOutcome{}, domain.ErrForbidden
	}

	quiz, err := s.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		return AnswerOutcome{}, err
	}

	var (
		isCorrect bool
		completed bool
	)
	updated, err := s.attempts.Update(ctx, attemptID, func(a *domain.QuizAttempt) error {
		if a.StudentID != studentID {
			return domain.ErrForbidden
		}
		if a.Status != domain.AttemptInProgress {
			return domain.ErrInvalidState
		}
		if questionIndex < 0 || questionIndex >= a.TotalQuestions || questionIndex >= len(quiz.Questions) {
			return fmt.Errorf("question index %d out of range: %w", questionIndex, domain.ErrQuestionNotFound)
		}
		if a.Answered(questionIndex) {
			return fmt.Errorf("question %d already answered: %w", questionIndex, domain.ErrConflict)
		}

		question := quiz.Questions[questionIndex]
		isCorrect = selectedOption == question.CorrectOption
		a.Responses = append(a.Responses, domain.Response{
			QuestionIndex:    questionIndex,
			SelectedOption:   selectedOption,
			IsCorrect:        isCorrect,
			TimeTakenSeconds: timeTakenSeconds,
		})
		if isCorrect {
			a.CorrectAnswers++
		}
		a.TimeSpentSeconds += timeTakenSeconds

		if len(a.Responses) == a.TotalQuestions {
			s.finish(a)
			completed = true
		}
		return nil
	})
	if err != nil {
		return AnswerOutcome{}, err
	}

	out := AnswerOutcome{
		IsCorrect:         isCorrect,
		ProgressFraction:  float64(len(updated.Responses)) / float64(updated.TotalQuestions),
		NextQuestionIndex: updated.NextUnanswered(),
		Completed:         completed,
	}
	if completed {
		result, err := s.settle(ctx, updated, quiz)
		if err != nil {
			return AnswerOutcome{}, err
		}
		out.Result = &result
	}
	return out, nil
}

// Complete finishes an in-progress attempt early. The score denominator stays
// the original question count, not the number of answers actually submitted;
// stopping early scores against the full quiz.
func (s *AttemptService) Complete(ctx context.Context, studentID, attemptID string) (AttemptResult, error) {
	current, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if current.StudentID != studentID {
		return AttemptResult{}, domain.ErrForbidden
	}

	quiz, err := s.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		return AttemptResult{}, err
	}

	updated, err := s.attempts.Update(ctx, attemptID, func(a *domain.QuizAttempt) error {
		if a.StudentID != studentID {
			return domain.ErrForbidden
		}
		if a.Status != domain.AttemptInProgress {
			return domain.ErrInvalidState
		}
		s.finish(a)
		return nil
	})
	if err != nil {
		return AttemptResult{}, err
	}
	return s.settle(ctx, updated, quiz)
}

// finish flips the attempt into its terminal completed state. Runs inside the
// attempt update closure, so exactly one caller ever observes the transition.
func (s *AttemptService) finish(a *domain.QuizAttempt) {
	now := s.now().UTC()
	a.Status = domain.AttemptCompleted
	a.CompletedAt = &now
	a.Score = scorePercent(a.CorrectAnswers, a.TotalQuestions)
}

// settle runs the completion side-effect once: the deciled XP award plus an
// achievement evaluation, committed in a single user write.
func (s *AttemptService) settle(ctx context.Context, attempt domain.QuizAttempt, quiz domain.Quiz) (AttemptResult, error) {
	awarded := completionXP(attempt.Score, quiz.XPReward)
	granted, user, err := s.rules.EvaluateWithXP(ctx, attempt.StudentID, awarded)
	if err != nil {
		return AttemptResult{}, err
	}

	s.publish(Event{
		Type:      EventAttemptCompleted,
		UserID:    attempt.StudentID,
		AttemptID: attempt.ID,
		Score:     attempt.Score,
		XPAwarded: awarded,
		XP:        user.XP,
		Level:     user.Level,
		At:        s.now().UTC(),
	})
	s.publishGrants(attempt.StudentID, user, granted)

	return AttemptResult{
		Attempt:         attempt,
		XPAwarded:       awarded,
		XP:              user.XP,
		Level:           user.Level,
		NewAchievements: granted,
	}, nil
}

func (s *AttemptService) publish(evt Event) {
	if s.hub != nil {
		s.hub.Publish(evt)
	}
}

func (s *AttemptService) publishGrants(userID string, user domain.User, granted []domain.Achievement) {
	for i := range granted {
		s.publish(Event{
			Type:        EventAchievementUnlocked,
			UserID:      userID,
			XP:          user.XP,
			Level:       user.Level,
			Achievement: &granted[i],
			At:          s.now().UTC(),
		})
	}
}

// scorePercent is round(correct/total*100).
func scorePercent(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// completionXP is the stepped reward curve: ceil(score/10) deciles times the
// quiz reward. A 67% score lands in the 7th decile, a 0% score earns nothing.
func completionXP(score, xpReward int) int {
	deciles := (score + 9) / 10
	return deciles * xpReward
}
