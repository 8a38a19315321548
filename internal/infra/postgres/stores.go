package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"kidlearn-progress-service/internal/domain"
)

// The bun-backed stores implement the app store interfaces. Update/Upsert run
// inside a transaction with a FOR UPDATE row lock, which gives the engine the
// same atomic-closure contract the memory stores provide with a mutex.

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string    `bun:"id,pk"`
	XP           int       `bun:"xp"`
	Level        int       `bun:"level"`
	Achievements []string  `bun:"achievements,array"`
	UpdatedAt    time.Time `bun:"updated_at"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:qa"`

	ID               string            `bun:"id,pk"`
	StudentID        string            `bun:"student_id"`
	QuizID           string            `bun:"quiz_id"`
	TotalQuestions   int               `bun:"total_questions"`
	Responses        []domain.Response `bun:"responses,type:jsonb"`
	CorrectAnswers   int               `bun:"correct_answers"`
	Score            int               `bun:"score"`
	Status           string            `bun:"status"`
	StartedAt        time.Time         `bun:"started_at"`
	CompletedAt      *time.Time        `bun:"completed_at"`
	TimeSpentSeconds int               `bun:"time_spent_seconds"`
}

type progressRow struct {
	bun.BaseModel `bun:"table:progress,alias:p"`

	UserID                string    `bun:"user_id,pk"`
	ZoneID                string    `bun:"zone_id,pk"`
	ActivitiesCompleted   int       `bun:"activities_completed"`
	QuizScores            []int     `bun:"quiz_scores,array"`
	TotalTimeSpentSeconds int       `bun:"total_time_spent_seconds"`
	LastVisitedAt         time.Time `bun:"last_visited_at"`
}

type userQuestRow struct {
	bun.BaseModel `bun:"table:user_quests,alias:uq"`

	UserID           string     `bun:"user_id,pk"`
	QuestID          string     `bun:"quest_id,pk"`
	Status           string     `bun:"status"`
	Score            int        `bun:"score"`
	CorrectAnswers   int        `bun:"correct_answers"`
	TimeSpentSeconds int        `bun:"time_spent_seconds"`
	StartedAt        time.Time  `bun:"started_at"`
	CompletedAt      *time.Time `bun:"completed_at"`
}

// UserStore persists users in Postgres.
type UserStore struct {
	db *bun.DB
}

func NewUserStore(db *bun.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, user domain.User) error {
	row := toUserRow(user)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return storeErr("insert user", err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id string) (domain.User, error) {
	var row userRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, storeErr("select user", err)
	}
	return fromUserRow(row), nil
}

func (s *UserStore) Update(ctx context.Context, id string, fn func(*domain.User) error) (domain.User, error) {
	var out domain.User
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row userRow
		err := tx.NewSelect().Model(&row).Where("id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return storeErr("lock user", err)
		}

		user := fromUserRow(row)
		if err := fn(&user); err != nil {
			return err
		}

		row = toUserRow(user)
		row.UpdatedAt = time.Now().UTC()
		if _, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx); err != nil {
			return storeErr("update user", err)
		}
		out = user
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return out, nil
}

// AttemptStore persists quiz attempts in Postgres. A partial unique index on
// (student_id, quiz_id) WHERE status='in_progress' backs the one-open-attempt
// invariant.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.QuizAttempt) error {
	row := toAttemptRow(attempt)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return storeErr("insert attempt", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, id string) (domain.QuizAttempt, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, storeErr("select attempt", err)
	}
	return fromAttemptRow(row), nil
}

func (s *AttemptStore) FindInProgress(ctx context.Context, studentID, quizID string) (domain.QuizAttempt, bool, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).
		Where("student_id = ?", studentID).
		Where("quiz_id = ?", quizID).
		Where("status = ?", string(domain.AttemptInProgress)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, false, nil
	}
	if err != nil {
		return domain.QuizAttempt{}, false, storeErr("find attempt", err)
	}
	return fromAttemptRow(row), true, nil
}

func (s *AttemptStore) Update(ctx context.Context, id string, fn func(*domain.QuizAttempt) error) (domain.QuizAttempt, error) {
	var out domain.QuizAttempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row attemptRow
		err := tx.NewSelect().Model(&row).Where("id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return storeErr("lock attempt", err)
		}

		attempt := fromAttemptRow(row)
		if err := fn(&attempt); err != nil {
			return err
		}

		row = toAttemptRow(attempt)
		if _, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx); err != nil {
			return storeErr("update attempt", err)
		}
		out = attempt
		return nil
	})
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	return out, nil
}

// ProgressStore persists per-(user, zone) accumulators in Postgres.
type ProgressStore struct {
	db *bun.DB
}

func NewProgressStore(db *bun.DB) *ProgressStore {
	return &ProgressStore{db: db}
}

func (s *ProgressStore) Upsert(ctx context.Context, userID, zoneID string, fn func(*domain.Progress)) (domain.Progress, error) {
	// Make sure the row exists so the transaction below can lock it.
	baseline := progressRow{UserID: userID, ZoneID: zoneID, QuizScores: []int{}, LastVisitedAt: time.Now().UTC()}
	if _, err := s.db.NewInsert().Model(&baseline).On("CONFLICT (user_id, zone_id) DO NOTHING").Exec(ctx); err != nil {
		return domain.Progress{}, storeErr("ensure progress", err)
	}

	var out domain.Progress
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row progressRow
		err := tx.NewSelect().Model(&row).
			Where("user_id = ?", userID).
			Where("zone_id = ?", zoneID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return storeErr("lock progress", err)
		}

		prog := fromProgressRow(row)
		fn(&prog)

		row = toProgressRow(prog)
		if _, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx); err != nil {
			return storeErr("update progress", err)
		}
		out = prog
		return nil
	})
	if err != nil {
		return domain.Progress{}, err
	}
	return out, nil
}

func (s *ProgressStore) ListByUser(ctx context.Context, userID string) ([]domain.Progress, error) {
	var rows []progressRow
	if err := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return nil, storeErr("list progress", err)
	}
	out := make([]domain.Progress, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromProgressRow(row))
	}
	return out, nil
}

// QuestStore persists per-(user, quest) records in Postgres.
type QuestStore struct {
	db *bun.DB
}

func NewQuestStore(db *bun.DB) *QuestStore {
	return &QuestStore{db: db}
}

func (s *QuestStore) Upsert(ctx context.Context, userID, questID string, fn func(*domain.UserQuest)) (domain.UserQuest, error) {
	baseline := userQuestRow{UserID: userID, QuestID: questID, Status: string(domain.QuestNotStarted), StartedAt: time.Now().UTC()}
	if _, err := s.db.NewInsert().Model(&baseline).On("CONFLICT (user_id, quest_id) DO NOTHING").Exec(ctx); err != nil {
		return domain.UserQuest{}, storeErr("ensure user quest", err)
	}

	var out domain.UserQuest
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row userQuestRow
		err := tx.NewSelect().Model(&row).
			Where("user_id = ?", userID).
			Where("quest_id = ?", questID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return storeErr("lock user quest", err)
		}

		quest := fromUserQuestRow(row)
		fn(&quest)

		row = toUserQuestRow(quest)
		if _, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx); err != nil {
			return storeErr("update user quest", err)
		}
		out = quest
		return nil
	})
	if err != nil {
		return domain.UserQuest{}, err
	}
	return out, nil
}

func (s *QuestStore) ListByUser(ctx context.Context, userID string) ([]domain.UserQuest, error) {
	var rows []userQuestRow
	if err := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return nil, storeErr("list user quests", err)
	}
	out := make([]domain.UserQuest, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromUserQuestRow(row))
	}
	return out, nil
}

// Row mapping.

func toUserRow(u domain.User) userRow {
	achievements := u.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return userRow{ID: u.ID, XP: u.XP, Level: u.Level, Achievements: achievements, UpdatedAt: time.Now().UTC()}
}

func fromUserRow(r userRow) domain.User {
	return domain.User{ID: r.ID, XP: r.XP, Level: r.Level, Achievements: r.Achievements}
}

func toAttemptRow(a domain.QuizAttempt) attemptRow {
	responses := a.Responses
	if responses == nil {
		responses = []domain.Response{}
	}
	return attemptRow{
		ID:               a.ID,
		StudentID:        a.StudentID,
		QuizID:           a.QuizID,
		TotalQuestions:   a.TotalQuestions,
		Responses:        responses,
		CorrectAnswers:   a.CorrectAnswers,
		Score:            a.Score,
		Status:           string(a.Status),
		StartedAt:        a.StartedAt,
		CompletedAt:      a.CompletedAt,
		TimeSpentSeconds: a.TimeSpentSeconds,
	}
}

func fromAttemptRow(r attemptRow) domain.QuizAttempt {
	return domain.QuizAttempt{
		ID:               r.ID,
		StudentID:        r.StudentID,
		QuizID:           r.QuizID,
		TotalQuestions:   r.TotalQuestions,
		Responses:        r.Responses,
		CorrectAnswers:   r.CorrectAnswers,
		Score:            r.Score,
		Status:           domain.AttemptStatus(r.Status),
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		TimeSpentSeconds: r.TimeSpentSeconds,
	}
}

func toProgressRow(p domain.Progress) progressRow {
	scores := p.QuizScores
	if scores == nil {
		scores = []int{}
	}
	return progressRow{
		UserID:                p.UserID,
		ZoneID:                p.ZoneID,
		ActivitiesCompleted:   p.ActivitiesCompleted,
		QuizScores:            scores,
		TotalTimeSpentSeconds: p.TotalTimeSpentSeconds,
		LastVisitedAt:         p.LastVisitedAt,
	}
}

func fromProgressRow(r progressRow) domain.Progress {
	return domain.Progress{
		UserID:                r.UserID,
		ZoneID:                r.ZoneID,
		ActivitiesCompleted:   r.ActivitiesCompleted,
		QuizScores:            r.QuizScores,
		TotalTimeSpentSeconds: r.TotalTimeSpentSeconds,
		LastVisitedAt:         r.LastVisitedAt,
	}
}

func toUserQuestRow(q domain.UserQuest) userQuestRow {
	return userQuestRow{
		UserID:           q.UserID,
		QuestID:          q.QuestID,
		Status:           string(q.Status),
		Score:            q.Score,
		CorrectAnswers:   q.CorrectAnswers,
		TimeSpentSeconds: q.TimeSpentSeconds,
		StartedAt:        q.StartedAt,
		CompletedAt:      q.CompletedAt,
	}
}

func fromUserQuestRow(r userQuestRow) domain.UserQuest {
	return domain.UserQuest{
		UserID:           r.UserID,
		QuestID:          r.QuestID,
		Status:           domain.QuestStatus(r.Status),
		Score:            r.Score,
		CorrectAnswers:   r.CorrectAnswers,
		TimeSpentSeconds: r.TimeSpentSeconds,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrUnavailable, err))
}
