package app

import (
	"context"

	"kidlearn-progress-service/internal/domain"
)

// zoneCompletionActivities is how many completed activities mark a zone as
// finished for the zone-completion metric.
const zoneCompletionActivities = 3

// RuleEngine evaluates achievement unlock conditions against the user's
// aggregates and grants unlocks exactly once.
type RuleEngine struct {
	ledger       *Ledger
	progress     ProgressStore
	quests       QuestStore
	achievements AchievementCatalog
}

func NewRuleEngine(ledger *Ledger, progress ProgressStore, quests QuestStore, achievements AchievementCatalog) *RuleEngine {
	return &RuleEngine{ledger: ledger, progress: progress, quests: quests, achievements: achievements}
}

// metrics is a read-only snapshot of the quantities thresholds compare against.
type metrics struct {
	activities      int
	zonesCompleted  int
	highScores      int
	timeSpent       int
	questsCompleted int
}

// Evaluate grants every active achievement whose metric has reached its
// threshold and is not yet unlocked. Re-running it with no progress change is
// a no-op.
func (e *RuleEngine) Evaluate(ctx context.Context, userID string) ([]domain.Achievement, domain.User, error) {
	return e.EvaluateWithXP(ctx, userID, 0)
}

// EvaluateWithXP is Evaluate with a base XP amount folded into the same user
// write, so a completion reward and the grants it triggers commit together.
func (e *RuleEngine) EvaluateWithXP(ctx context.Context, userID string, baseXP int) ([]domain.Achievement, domain.User, error) {
	defs, err := e.achievements.ListActive(ctx)
	if err != nil {
		return nil, domain.User{}, err
	}

	m, err := e.snapshot(ctx, userID)
	if err != nil {
		return nil, domain.User{}, err
	}

	candidates := make([]domain.Achievement, 0, len(defs))
	for _, def := range defs {
		value, tracked := metricFor(m, def.Type)
		if tracked && value >= def.Threshold {
			candidates = append(candidates, def)
		}
	}
	return e.GrantWithXP(ctx, userID, baseXP, candidates)
}

// GrantWithXP inserts each candidate into the user's achievement set and
// awards its XP, skipping ids already present. The set insert and the XP award
// happen in one atomic user update, so two concurrent evaluations cannot grant
// the same achievement twice. It is the single grant primitive; both the rule
// scan and the quest path route through it.
func (e *RuleEngine) GrantWithXP(ctx context.Context, userID string, baseXP int, candidates []domain.Achievement) ([]domain.Achievement, domain.User, error) {
	var granted []domain.Achievement
	user, err := e.ledger.Apply(ctx, userID, func(u *domain.User) error {
		granted = granted[:0]
		applyXP(u, baseXP)
		for _, def := range candidates {
			if u.AddAchievement(def.ID) {
				applyXP(u, def.XPReward)
				granted = append(granted, def)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.User{}, err
	}
	return granted, user, nil
}

// snapshot folds the user's Progress and UserQuest rows into metric values.
func (e *RuleEngine) snapshot(ctx context.Context, userID string) (metrics, error) {
	var m metrics

	rows, err := e.progress.ListByUser(ctx, userID)
	if err != nil {
		return m, err
	}
	for _, p := range rows {
		m.activities += p.ActivitiesCompleted
		if p.ActivitiesCompleted >= zoneCompletionActivities {
			m.zonesCompleted++
		}
		for _, score := range p.QuizScores {
			if score >= 90 {
				m.highScores++
			}
		}
		m.timeSpent += p.TotalTimeSpentSeconds
	}

	quests, err := e.quests.ListByUser(ctx, userID)
	if err != nil {
		return m, err
	}
	for _, q := range quests {
		if q.Status == domain.QuestCompleted {
			m.questsCompleted++
		}
	}
	return m, nil
}

// metricFor maps an achievement type to its metric value. The second return is
// false for types with no tracking data, which therefore never unlock.
func metricFor(m metrics, typ domain.AchievementType) (int, bool) {
	switch typ {
	case domain.AchievementActivityCompletion:
		return m.activities, true
	case domain.AchievementZoneCompletion:
		return m.zonesCompleted, true
	case domain.AchievementHighScore:
		return m.highScores, true
	case domain.AchievementTimeSpent:
		return m.timeSpent, true
	case domain.AchievementQuestCompletion:
		return m.questsCompleted, true
	case domain.AchievementLoginStreak:
		// no login tracking exists yet
		return 0, false
	}
	return 0, false
}
