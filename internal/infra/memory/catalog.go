package memory

import (
	"context"

	"kidlearn-progress-service/internal/domain"
)

// StaticCatalog serves fixed quiz/quest/achievement content from maps, useful
// for demos and tests. It satisfies both the app catalog interfaces and the
// redis cache's loader interface.
type StaticCatalog struct {
	quizzes      map[string]domain.Quiz
	quests       map[string]domain.Quest
	achievements []domain.Achievement
}

func NewStaticCatalog(quizzes map[string]domain.Quiz, quests map[string]domain.Quest, achievements []domain.Achievement) *StaticCatalog {
	if quizzes == nil {
		quizzes = map[string]domain.Quiz{}
	}
	if quests == nil {
		quests = map[string]domain.Quest{}
	}
	return &StaticCatalog{quizzes: quizzes, quests: quests, achievements: achievements}
}

func (c *StaticCatalog) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (c *StaticCatalog) GetQuest(_ context.Context, questID string) (domain.Quest, error) {
	if quest, ok := c.quests[questID]; ok {
		return quest, nil
	}
	return domain.Quest{}, domain.ErrQuestNotFound
}

func (c *StaticCatalog) ListActive(_ context.Context) ([]domain.Achievement, error) {
	var out []domain.Achievement
	for _, a := range c.achievements {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListByTypeUpTo filters by type and threshold only; the active flag is
// deliberately ignored here (see app.AchievementCatalog).
func (c *StaticCatalog) ListByTypeUpTo(_ context.Context, typ domain.AchievementType, limit int) ([]domain.Achievement, error) {
	var out []domain.Achievement
	for _, a := range c.achievements {
		if a.Type == typ && a.Threshold <= limit {
			out = append(out, a)
		}
	}
	return out, nil
}

// Loader methods so the redis cache can wrap a static catalog.

func (c *StaticCatalog) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return c.GetQuiz(ctx, quizID)
}

func (c *StaticCatalog) LoadQuest(ctx context.Context, questID string) (domain.Quest, error) {
	return c.GetQuest(ctx, questID)
}

func (c *StaticCatalog) LoadAchievements(_ context.Context) ([]domain.Achievement, error) {
	return append([]domain.Achievement(nil), c.achievements...), nil
}
