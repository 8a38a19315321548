package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"kidlearn-progress-service/internal/domain"
)

// CatalogLoader reads quiz/quest/achievement JSONB documents from Postgres.
// It satisfies both the app catalog interfaces and the redis cache's loader
// interface, so it can be used bare or behind the cache.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func (l *CatalogLoader) LoadQuest(ctx context.Context, questID string) (domain.Quest, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quests WHERE id=$1`, questID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quest{}, domain.ErrQuestNotFound
	}
	if err != nil {
		return domain.Quest{}, fmt.Errorf("load quest: %w", err)
	}
	var quest domain.Quest
	if err := json.Unmarshal(raw, &quest); err != nil {
		return domain.Quest{}, fmt.Errorf("unmarshal quest: %w", err)
	}
	return quest, nil
}

func (l *CatalogLoader) LoadAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM achievements`)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	defer rows.Close()

	var defs []domain.Achievement
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		var def domain.Achievement
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("unmarshal achievement: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Direct catalog views for running without Redis.

func (l *CatalogLoader) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return l.LoadQuiz(ctx, quizID)
}

func (l *CatalogLoader) GetQuest(ctx context.Context, questID string) (domain.Quest, error) {
	return l.LoadQuest(ctx, questID)
}

func (l *CatalogLoader) ListActive(ctx context.Context) ([]domain.Achievement, error) {
	defs, err := l.LoadAchievements(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Achievement
	for _, a := range defs {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListByTypeUpTo ignores the active flag on purpose; see app.AchievementCatalog.
func (l *CatalogLoader) ListByTypeUpTo(ctx context.Context, typ domain.AchievementType, limit int) ([]domain.Achievement, error) {
	defs, err := l.LoadAchievements(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Achievement
	for _, a := range defs {
		if a.Type == typ && a.Threshold <= limit {
			out = append(out, a)
		}
	}
	return out, nil
}
