package app

import (
	"context"
	"time"

	"kidlearn-progress-service/internal/domain"
)

// QuestService is the simpler, parallel submission path for quest-style
// content: one shot, upserted straight to completed.
type QuestService struct {
	quests       QuestStore
	catalog      QuestCatalog
	achievements AchievementCatalog
	rules        *RuleEngine
	hub          *Hub
	now          func() time.Time
}

func NewQuestService(quests QuestStore, catalog QuestCatalog, achievements AchievementCatalog, rules *RuleEngine, hub *Hub) *QuestService {
	return &QuestService{quests: quests, catalog: catalog, achievements: achievements, rules: rules, hub: hub, now: time.Now}
}

// QuestResult is the updated record plus side effects.
type QuestResult struct {
	UserQuest       domain.UserQuest
	XP              int
	Level           int
	NewAchievements []domain.Achievement
}

// Submit scores the answers against the quest content and upserts the
// per-(user, quest) record to completed. The quest unlock check queries
// quest-completion achievements by threshold only; unlike the rule scan it
// does not filter on the active flag, and that looseness is kept on purpose.
func (s *QuestService) Submit(ctx context.Context, userID, questID string, answers []domain.AnswerValue, timeSpentSeconds int) (QuestResult, error) {
	quest, err := s.catalog.GetQuest(ctx, questID)
	if err != nil {
		return QuestResult{}, err
	}

	score, correct := scoreQuest(quest, answers)
	now := s.now().UTC()

	uq, err := s.quests.Upsert(ctx, userID, questID, func(q *domain.UserQuest) {
		q.Status = domain.QuestCompleted
		q.Score = score
		q.CorrectAnswers = correct
		q.TimeSpentSeconds = timeSpentSeconds
		if q.StartedAt.IsZero() {
			q.StartedAt = now
		}
		q.CompletedAt = &now
	})
	if err != nil {
		return QuestResult{}, err
	}

	completed, err := s.completedCount(ctx, userID)
	if err != nil {
		return QuestResult{}, err
	}

	candidates, err := s.achievements.ListByTypeUpTo(ctx, domain.AchievementQuestCompletion, completed)
	if err != nil {
		return QuestResult{}, err
	}

	granted, user, err := s.rules.GrantWithXP(ctx, userID, 0, candidates)
	if err != nil {
		return QuestResult{}, err
	}

	if s.hub != nil {
		s.hub.Publish(Event{
			Type:    EventQuestCompleted,
			UserID:  userID,
			QuestID: questID,
			Score:   score,
			XP:      user.XP,
			Level:   user.Level,
			At:      now,
		})
		for i := range granted {
			s.hub.Publish(Event{
				Type:        EventAchievementUnlocked,
				UserID:      userID,
				XP:          user.XP,
				Level:       user.Level,
				Achievement: &granted[i],
				At:          now,
			})
		}
	}

	return QuestResult{UserQuest: uq, XP: user.XP, Level: user.Level, NewAchievements: granted}, nil
}

func (s *QuestService) completedCount(ctx context.Context, userID string) (int, error) {
	rows, err := s.quests.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, q := range rows {
		if q.Status == domain.QuestCompleted {
			count++
		}
	}
	return count, nil
}

// scoreQuest sums the points of questions whose answer matches, comparing the
// tagged values type-aware. Missing answers never match.
func scoreQuest(quest domain.Quest, answers []domain.AnswerValue) (score, correct int) {
	for i, q := range quest.Questions {
		if i >= len(answers) {
			break
		}
		if answers[i].Equal(q.CorrectAnswer) {
			points := q.Points
			if points == 0 {
				points = 1
			}
			score += points
			correct++
		}
	}
	return score, correct
}
