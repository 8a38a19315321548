package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"kidlearn-progress-service/internal/app"
	"kidlearn-progress-service/internal/domain"
)

// Handler exposes the engine over REST.
type Handler struct {
	attempts *app.AttemptService
	progress *app.ProgressService
	quests   *app.QuestService
}

func NewHandler(attempts *app.AttemptService, progress *app.ProgressService, quests *app.QuestService) *Handler {
	return &Handler{attempts: attempts, progress: progress, quests: quests}
}

// Register mounts the engine routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /attempts", h.startAttempt)
	mux.HandleFunc("POST /attempts/{id}/answers", h.submitAnswer)
	mux.HandleFunc("POST /attempts/{id}/complete", h.completeAttempt)
	mux.HandleFunc("POST /progress/{userId}/{zoneId}", h.updateProgress)
	mux.HandleFunc("POST /quests/{id}/submit", h.submitQuest)
}

type startAttemptRequest struct {
	StudentID string `json:"studentId"`
	QuizID    string `json:"quizId"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID == "" || req.QuizID == "" {
		http.Error(w, "missing studentId or quizId", http.StatusBadRequest)
		return
	}
	attempt, err := h.attempts.Start(r.Context(), req.StudentID, req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

type submitAnswerRequest struct {
	StudentID        string `json:"studentId"`
	QuestionIndex    int    `json:"questionIndex"`
	SelectedOption   int    `json:"selectedOption"`
	TimeTakenSeconds int    `json:"timeTakenSeconds"`
}

type answerResponse struct {
	IsCorrect         bool                 `json:"isCorrect"`
	ProgressFraction  float64              `json:"progressFraction"`
	NextQuestionIndex *int                 `json:"nextQuestionIndex"`
	Completed         bool                 `json:"completed"`
	Attempt           *domain.QuizAttempt  `json:"attempt,omitempty"`
	XPAwarded         int                  `json:"xpAwarded,omitempty"`
	XP                int                  `json:"xp,omitempty"`
	Level             int                  `json:"level,omitempty"`
	NewAchievements   []domain.Achievement `json:"newAchievements,omitempty"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID == "" {
		http.Error(w, "invalid answer payload", http.StatusBadRequest)
		return
	}
	if req.TimeTakenSeconds < 0 {
		http.Error(w, "timeTakenSeconds must not be negative", http.StatusBadRequest)
		return
	}

	outcome, err := h.attempts.SubmitAnswer(r.Context(), req.StudentID, r.PathValue("id"), req.QuestionIndex, req.SelectedOption, req.TimeTakenSeconds)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := answerResponse{
		IsCorrect:        outcome.IsCorrect,
		ProgressFraction: outcome.ProgressFraction,
		Completed:        outcome.Completed,
	}
	if outcome.NextQuestionIndex >= 0 {
		next := outcome.NextQuestionIndex
		resp.NextQuestionIndex = &next
	}
	if outcome.Result != nil {
		resp.Attempt = &outcome.Result.Attempt
		resp.XPAwarded = outcome.Result.XPAwarded
		resp.XP = outcome.Result.XP
		resp.Level = outcome.Result.Level
		resp.NewAchievements = outcome.Result.NewAchievements
	}
	writeJSON(w, http.StatusOK, resp)
}

type completeAttemptRequest struct {
	StudentID string `json:"studentId"`
}

type attemptResultResponse struct {
	Attempt         domain.QuizAttempt   `json:"attempt"`
	XPAwarded       int                  `json:"xpAwarded"`
	XP              int                  `json:"xp"`
	Level           int                  `json:"level"`
	NewAchievements []domain.Achievement `json:"newAchievements"`
}

func (h *Handler) completeAttempt(w http.ResponseWriter, r *http.Request) {
	var req completeAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID == "" {
		http.Error(w, "missing studentId", http.StatusBadRequest)
		return
	}
	result, err := h.attempts.Complete(r.Context(), req.StudentID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptResultResponse{
		Attempt:         result.Attempt,
		XPAwarded:       result.XPAwarded,
		XP:              result.XP,
		Level:           result.Level,
		NewAchievements: achievementsOrEmpty(result.NewAchievements),
	})
}

type updateProgressRequest struct {
	ActivityCompleted bool `json:"activityCompleted"`
	QuizScorePercent  *int `json:"quizScorePercent"`
	TimeSpentSeconds  *int `json:"timeSpentSeconds"`
}

type progressResponse struct {
	Progress        domain.Progress      `json:"progress"`
	XPAwarded       int                  `json:"xpAwarded"`
	XP              int                  `json:"xp"`
	Level           int                  `json:"level"`
	NewAchievements []domain.Achievement `json:"newAchievements"`
}

func (h *Handler) updateProgress(w http.ResponseWriter, r *http.Request) {
	var req updateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid progress payload", http.StatusBadRequest)
		return
	}
	if req.QuizScorePercent != nil && (*req.QuizScorePercent < 0 || *req.QuizScorePercent > 100) {
		http.Error(w, "quizScorePercent must be between 0 and 100", http.StatusBadRequest)
		return
	}
	if req.TimeSpentSeconds != nil && *req.TimeSpentSeconds < 0 {
		http.Error(w, "timeSpentSeconds must not be negative", http.StatusBadRequest)
		return
	}

	result, err := h.progress.UpdateZoneProgress(r.Context(), r.PathValue("userId"), r.PathValue("zoneId"), app.ProgressUpdate{
		ActivityCompleted: req.ActivityCompleted,
		QuizScorePercent:  req.QuizScorePercent,
		TimeSpentSeconds:  req.TimeSpentSeconds,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		Progress:        result.Progress,
		XPAwarded:       result.XPAwarded,
		XP:              result.XP,
		Level:           result.Level,
		NewAchievements: achievementsOrEmpty(result.NewAchievements),
	})
}

type submitQuestRequest struct {
	UserID           string               `json:"userId"`
	Answers          []domain.AnswerValue `json:"answers"`
	TimeSpentSeconds int                  `json:"timeSpentSeconds"`
}

type questResponse struct {
	UserQuest       domain.UserQuest     `json:"userQuest"`
	XP              int                  `json:"xp"`
	Level           int                  `json:"level"`
	NewAchievements []domain.Achievement `json:"newAchievements"`
}

func (h *Handler) submitQuest(w http.ResponseWriter, r *http.Request) {
	var req submitQuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "invalid quest payload", http.StatusBadRequest)
		return
	}
	if req.TimeSpentSeconds < 0 {
		http.Error(w, "timeSpentSeconds must not be negative", http.StatusBadRequest)
		return
	}

	result, err := h.quests.Submit(r.Context(), req.UserID, r.PathValue("id"), req.Answers, req.TimeSpentSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questResponse{
		UserQuest:       result.UserQuest,
		XP:              result.XP,
		Level:           result.Level,
		NewAchievements: achievementsOrEmpty(result.NewAchievements),
	})
}

func achievementsOrEmpty(in []domain.Achievement) []domain.Achievement {
	if in == nil {
		return []domain.Achievement{}
	}
	return in
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrUnavailable):
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
