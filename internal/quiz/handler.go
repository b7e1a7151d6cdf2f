package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"quizportal/internal/app/apiresp"
	"quizportal/internal/auth"
	"quizportal/internal/session"
)

type Handler struct {
	catalog   QuizStore
	results   ResultStore
	runner    attemptRunner
	publisher publicationService
	ranking   rankingService
}

type attemptRunner interface {
	InitializeSession(ctx context.Context, q *Quiz, userID int64) (*session.State, error)
	NextQuestion(ctx context.Context, q *Quiz, userID int64, index int) (*NextQuestion, error)
	SubmitAnswer(ctx context.Context, q *Quiz, userID, questionID, answerID int64) error
	TimeLimitExceeded(ctx context.Context, q *Quiz, userID int64) (bool, error)
	Finalize(ctx context.Context, q *Quiz, userID int64) (*Result, error)
}

type publicationService interface {
	Publish(ctx context.Context, quizID int64, duration time.Duration) error
	Unpublish(ctx context.Context, quizID int64) error
	IsPublished(ctx context.Context, q *Quiz) (bool, error)
	UpdateExpiredQuizzes(ctx context.Context) error
}

type rankingService interface {
	GetRanking(ctx context.Context, quizID, callerID int64, isAdmin bool) (*Ranking, error)
	ExportRankingExcel(ctx context.Context, quizID, callerID int64, isAdmin bool) ([]byte, error)
	CanUserSolveQuiz(ctx context.Context, quizID, userID int64) (bool, error)
	CanBeDeleted(ctx context.Context, q *Quiz) (bool, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type submitAnswerRequest struct {
	QuestionID int64 `json:"question_id"`
	AnswerID   int64 `json:"answer_id"`
}

type publishRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

type attemptStartedView struct {
	AttemptID        string `json:"attempt_id"`
	TotalQuestions   int    `json:"total_questions"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
}

func NewHandler(catalog QuizStore, results ResultStore, runner attemptRunner, publisher publicationService, ranking rankingService) *Handler {
	return &Handler{
		catalog:   catalog,
		results:   results,
		runner:    runner,
		publisher: publisher,
		ranking:   ranking,
	}
}

// StartAttempt initializes (or resumes) the caller's attempt on a published
// quiz.
func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}

	published, err := h.publisher.IsPublished(r.Context(), q)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	if !published {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "quiz is not published"})
		return
	}

	state, err := h.runner.InitializeSession(r.Context(), q, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoQuestions):
			writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: "quiz has no questions"})
		case errors.Is(err, ErrAlreadySolved):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: "quiz already solved"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: attemptStartedView{
		AttemptID:        state.AttemptID,
		TotalQuestions:   len(state.QuestionOrder),
		TimeLimitMinutes: int(q.TimeLimit() / time.Minute),
	}})
}

// Question serves the question at one shuffled position of the caller's
// attempt. A response with done or expired set means the attempt must be
// finished instead.
func (h *Handler) Question(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question index"})
		return
	}

	next, err := h.runner.NextQuestion(r.Context(), q, user.ID, index)
	if err != nil {
		h.writeAttemptError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: next})
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if req.QuestionID <= 0 || req.AnswerID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "question_id and answer_id are required"})
		return
	}

	if err := h.runner.SubmitAnswer(r.Context(), q, user.ID, req.QuestionID, req.AnswerID); err != nil {
		h.writeAttemptError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "saved"}})
}

// Finish scores the attempt and returns the persisted result.
func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}

	result, err := h.runner.Finalize(r.Context(), q, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "attempt not found"})
		case errors.Is(err, ErrAlreadySolved):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: "quiz already solved"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) TimeLimit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}

	exceeded, err := h.runner.TimeLimitExceeded(r.Context(), q, user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]bool{"time_limit_exceeded": exceeded}})
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	if err := Validate(q); err != nil {
		writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error()})
		return
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	if err := h.publisher.Publish(r.Context(), q.ID, duration); err != nil {
		if errors.Is(err, ErrInvalidDuration) {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "duration_minutes must be positive"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "published"}})
}

func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}
	if err := h.publisher.Unpublish(r.Context(), q.ID); err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "unpublished"}})
}

// Status reports the effective publication state of a quiz, expiring it in
// passing when its deadline passed.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}
	published, err := h.publisher.IsPublished(r.Context(), q)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]bool{"is_published": published}})
}

// Menu lists the quizzes visible to the caller: every published quiz plus
// every quiz the caller already solved. Expired publications are withdrawn
// first so the list never shows them.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	if err := h.publisher.UpdateExpiredQuizzes(r.Context()); err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	items, err := h.results.ListMenu(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) Ranking(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}

	ranking, err := h.ranking.GetRanking(r.Context(), q.ID, user.ID, user.IsAdmin())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: ranking})
}

func (h *Handler) RankingExcel(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}

	data, err := h.ranking.ExportRankingExcel(r.Context(), q.ID, user.ID, user.IsAdmin())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=quiz-%d-ranking.xlsx", q.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) CanSolve(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}

	canSolve, err := h.ranking.CanUserSolveQuiz(r.Context(), q.ID, user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]bool{"can_solve": canSolve}})
}

func (h *Handler) CanDelete(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuiz(w, r)
	if !ok {
		return
	}
	canDelete, err := h.ranking.CanBeDeleted(r.Context(), q)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]bool{"can_delete": canDelete}})
}

// OwnResult returns the caller's persisted result on a quiz.
func (h *Handler) OwnResult(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	quizID, err := parseQuizID(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	result, err := h.results.FindResult(r.Context(), quizID, user.ID)
	if err != nil {
		if errors.Is(err, ErrResultNotFound) {
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "result not found"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

// loadQuiz parses the quiz id from the route and loads the quiz, writing the
// error response itself on failure.
func (h *Handler) loadQuiz(w http.ResponseWriter, r *http.Request) (*Quiz, bool) {
	quizID, err := parseQuizID(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return nil, false
	}
	q, err := h.catalog.GetQuiz(r.Context(), quizID)
	if err != nil {
		if errors.Is(err, ErrQuizNotFound) {
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "quiz not found"})
			return nil, false
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return nil, false
	}
	return q, true
}

func (h *Handler) writeAttemptError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "attempt not found"})
	case errors.Is(err, ErrQuestionNotInQuiz), errors.Is(err, ErrAnswerNotInQuestion):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func parseQuizID(r *http.Request) (int64, error) {
	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		return 0, errors.New("invalid quiz id")
	}
	return quizID, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
