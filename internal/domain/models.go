package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AttemptStatus is the lifecycle state of a quiz attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	// AttemptExpired is reserved for time-limit enforcement. Nothing transitions
	// into it yet; a reaper job would be the producer.
	AttemptExpired AttemptStatus = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptExpired
}

// QuestStatus is the lifecycle state of a user's quest record.
type QuestStatus string

const (
	QuestNotStarted QuestStatus = "not_started"
	QuestInProgress QuestStatus = "in_progress"
	QuestCompleted  QuestStatus = "completed"
	QuestFailed     QuestStatus = "failed"
)

// AchievementType selects the metric an achievement threshold is compared against.
type AchievementType string

const (
	AchievementActivityCompletion AchievementType = "activity_completion"
	AchievementZoneCompletion     AchievementType = "zone_completion"
	AchievementQuestCompletion    AchievementType = "quest_completion"
	AchievementHighScore          AchievementType = "high_score"
	AchievementTimeSpent          AchievementType = "time_spent"
	// AchievementLoginStreak has no tracking data behind it; it always
	// evaluates false until a login-event tracker exists.
	AchievementLoginStreak AchievementType = "login_streak"
)

// Question is a single multiple-choice question inside a quiz.
type Question struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	Points        int      `json:"points"`
}

// Quiz is read-only catalog content.
type Quiz struct {
	ID                  string     `json:"id"`
	Questions           []Question `json:"questions"`
	XPReward            int        `json:"xpReward"`
	PassingScorePercent int        `json:"passingScorePercent"`
}

// Response records one answered question within an attempt.
type Response struct {
	QuestionIndex    int  `json:"questionIndex"`
	SelectedOption   int  `json:"selectedOption"`
	IsCorrect        bool `json:"isCorrect"`
	TimeTakenSeconds int  `json:"timeTakenSeconds"`
}

// QuizAttempt is one quiz-taking session for a (student, quiz) pair.
// Once Status is terminal the record is immutable.
type QuizAttempt struct {
	ID               string        `json:"id"`
	StudentID        string        `json:"studentId"`
	QuizID           string        `json:"quizId"`
	TotalQuestions   int           `json:"totalQuestions"`
	Responses        []Response    `json:"responses"`
	CorrectAnswers   int           `json:"correctAnswers"`
	Score            int           `json:"score"`
	Status           AttemptStatus `json:"status"`
	StartedAt        time.Time     `json:"startedAt"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	TimeSpentSeconds int           `json:"timeSpentSeconds"`
}

// Answered reports whether questionIndex already has a recorded response.
func (a *QuizAttempt) Answered(questionIndex int) bool {
	for _, r := range a.Responses {
		if r.QuestionIndex == questionIndex {
			return true
		}
	}
	return false
}

// NextUnanswered returns the lowest question index without a response, or -1
// when every question has been answered.
func (a *QuizAttempt) NextUnanswered() int {
	for i := 0; i < a.TotalQuestions; i++ {
		if !a.Answered(i) {
			return i
		}
	}
	return -1
}

// Progress accumulates a user's activity inside one zone. Rows are 1:1 with
// (userId, zoneId).
type Progress struct {
	UserID                string    `json:"userId"`
	ZoneID                string    `json:"zoneId"`
	ActivitiesCompleted   int       `json:"activitiesCompleted"`
	QuizScores            []int     `json:"quizScores"`
	TotalTimeSpentSeconds int       `json:"totalTimeSpentSeconds"`
	LastVisitedAt         time.Time `json:"lastVisitedAt"`
}

// UserQuest is the per-(user, quest) completion record.
type UserQuest struct {
	UserID           string      `json:"userId"`
	QuestID          string      `json:"questId"`
	Status           QuestStatus `json:"status"`
	Score            int         `json:"score"`
	CorrectAnswers   int         `json:"correctAnswers"`
	TimeSpentSeconds int         `json:"timeSpentSeconds"`
	StartedAt        time.Time   `json:"startedAt"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`
}

// QuestQuestion is a question inside quest content. Answers are free-form
// (number, string or boolean), so the expected answer is a tagged value.
type QuestQuestion struct {
	Prompt        string      `json:"prompt"`
	Points        int         `json:"points"`
	CorrectAnswer AnswerValue `json:"correctAnswer"`
}

// Quest is read-only catalog content for quest-style activities.
type Quest struct {
	ID        string          `json:"id"`
	Questions []QuestQuestion `json:"questions"`
}

// Achievement is a threshold-gated bonus definition from the catalog.
type Achievement struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      AchievementType `json:"type"`
	Threshold int             `json:"threshold"`
	XPReward  int             `json:"xpReward"`
	Active    bool            `json:"active"`
}

// User carries the mutable progress state owned by the engine: the XP ledger,
// the derived level and the unlocked achievement set.
type User struct {
	ID           string   `json:"id"`
	XP           int      `json:"xp"`
	Level        int      `json:"level"`
	Achievements []string `json:"achievements"`
}

// HasAchievement reports set membership.
func (u *User) HasAchievement(id string) bool {
	for _, a := range u.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// AddAchievement inserts id into the achievement set. It reports false when the
// id was already present, making grants idempotent.
func (u *User) AddAchievement(id string) bool {
	if u.HasAchievement(id) {
		return false
	}
	u.Achievements = append(u.Achievements, id)
	return true
}

// AnswerKind tags the dynamic type of a quest answer.
type AnswerKind int

const (
	AnswerNumber AnswerKind = iota
	AnswerString
	AnswerBool
)

// AnswerValue is a tagged union of the answer types quest content allows.
// Equality is type-aware: values of different kinds never match, so "1" does
// not equal 1.
type AnswerValue struct {
	Kind   AnswerKind
	Number float64
	Str    string
	Bool   bool
}

// NumberAnswer builds a numeric answer.
func NumberAnswer(n float64) AnswerValue { return AnswerValue{Kind: AnswerNumber, Number: n} }

// StringAnswer builds a string answer.
func StringAnswer(s string) AnswerValue { return AnswerValue{Kind: AnswerString, Str: s} }

// BoolAnswer builds a boolean answer.
func BoolAnswer(b bool) AnswerValue { return AnswerValue{Kind: AnswerBool, Bool: b} }

// Equal compares two answers, matching only within the same kind.
func (v AnswerValue) Equal(o AnswerValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case AnswerNumber:
		return v.Number == o.Number
	case AnswerString:
		return v.Str == o.Str
	case AnswerBool:
		return v.Bool == o.Bool
	}
	return false
}

// MarshalJSON emits the bare JSON scalar.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AnswerNumber:
		return json.Marshal(v.Number)
	case AnswerString:
		return json.Marshal(v.Str)
	case AnswerBool:
		return json.Marshal(v.Bool)
	}
	return nil, fmt.Errorf("unknown answer kind %d", v.Kind)
}

// UnmarshalJSON accepts a JSON number, string or boolean.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case float64:
		*v = NumberAnswer(val)
	case string:
		*v = StringAnswer(val)
	case bool:
		*v = BoolAnswer(val)
	default:
		return fmt.Errorf("unsupported answer type %T", raw)
	}
	return nil
}
