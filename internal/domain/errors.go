package domain

import "errors"

var (
	// ErrUserNotFound is returned when the user record does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestNotFound indicates the quest content could not be loaded.
	ErrQuestNotFound = errors.New("quest not found")
	// ErrAttemptNotFound is returned when an attempt id is unknown.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionNotFound indicates a question index outside the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrForbidden is returned when the caller does not own the record.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState is returned when mutating a terminal attempt.
	ErrInvalidState = errors.New("invalid attempt state")
	// ErrConflict signals a duplicate answer or a duplicate unique row.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable wraps storage failures so callers can tell business
	// rejections from infrastructure trouble.
	ErrUnavailable = errors.New("storage unavailable")
)
