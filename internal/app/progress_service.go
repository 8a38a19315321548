package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"kidlearn-progress-service/internal/domain"
)

// activityXP is granted for each completed activity.
const activityXP = 10

// ProgressUpdate carries the optional deltas of one zone progress call. The
// three grants are additive and independent.
type ProgressUpdate struct {
	ActivityCompleted bool
	QuizScorePercent  *int
	TimeSpentSeconds  *int
}

// ProgressResult is the updated row plus the ledger and rule engine effects.
type ProgressResult struct {
	Progress        domain.Progress
	XPAwarded       int
	XP              int
	Level           int
	NewAchievements []domain.Achievement
}

// ProgressService owns the per-(user, zone) accumulators.
type ProgressService struct {
	progress ProgressStore
	rules    *RuleEngine
	hub      *Hub
	now      func() time.Time
}

func NewProgressService(progress ProgressStore, rules *RuleEngine, hub *Hub) *ProgressService {
	return &ProgressService{progress: progress, rules: rules, hub: hub, now: time.Now}
}

// UpdateZoneProgress upserts the progress row, grants the XP each delta is
// worth, and runs one achievement evaluation for the user.
func (s *ProgressService) UpdateZoneProgress(ctx context.Context, userID, zoneID string, upd ProgressUpdate) (ProgressResult, error) {
	if upd.QuizScorePercent != nil && (*upd.QuizScorePercent < 0 || *upd.QuizScorePercent > 100) {
		return ProgressResult{}, fmt.Errorf("quiz score %d out of range", *upd.QuizScorePercent)
	}
	if upd.TimeSpentSeconds != nil && *upd.TimeSpentSeconds < 0 {
		return ProgressResult{}, fmt.Errorf("negative time spent %d", *upd.TimeSpentSeconds)
	}

	awarded := 0
	if upd.ActivityCompleted {
		awarded += activityXP
	}
	if upd.QuizScorePercent != nil {
		awarded += int(math.Round(float64(*upd.QuizScorePercent) / 10))
	}
	if upd.TimeSpentSeconds != nil {
		// whole minutes only; sub-minute spans grant nothing
		awarded += *upd.TimeSpentSeconds / 60
	}

	prog, err := s.progress.Upsert(ctx, userID, zoneID, func(p *domain.Progress) {
		if upd.ActivityCompleted {
			p.ActivitiesCompleted++
		}
		if upd.QuizScorePercent != nil {
			p.QuizScores = append(p.QuizScores, *upd.QuizScorePercent)
		}
		if upd.TimeSpentSeconds != nil {
			p.TotalTimeSpentSeconds += *upd.TimeSpentSeconds
		}
		p.LastVisitedAt = s.now().UTC()
	})
	if err != nil {
		return ProgressResult{}, err
	}

	granted, user, err := s.rules.EvaluateWithXP(ctx, userID, awarded)
	if err != nil {
		return ProgressResult{}, err
	}

	if s.hub != nil {
		s.hub.Publish(Event{
			Type:      EventProgressUpdated,
			UserID:    userID,
			ZoneID:    zoneID,
			XPAwarded: awarded,
			XP:        user.XP,
			Level:     user.Level,
			At:        s.now().UTC(),
		})
		for i := range granted {
			s.hub.Publish(Event{
				Type:        EventAchievementUnlocked,
				UserID:      userID,
				XP:          user.XP,
				Level:       user.Level,
				Achievement: &granted[i],
				At:          s.now().UTC(),
			})
		}
	}

	return ProgressResult{
		Progress:        prog,
		XPAwarded:       awarded,
		XP:              user.XP,
		Level:           user.Level,
		NewAchievements: granted,
	}, nil
}
