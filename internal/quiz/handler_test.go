package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"quizportal/internal/auth"
	"quizportal/internal/session"
)

type mockRunner struct {
	initializeFn func(ctx context.Context, q *Quiz, userID int64) (*session.State, error)
	nextFn       func(ctx context.Context, q *Quiz, userID int64, index int) (*NextQuestion, error)
	submitFn     func(ctx context.Context, q *Quiz, userID, questionID, answerID int64) error
	timeLimitFn  func(ctx context.Context, q *Quiz, userID int64) (bool, error)
	finalizeFn   func(ctx context.Context, q *Quiz, userID int64) (*Result, error)
}

func (m *mockRunner) InitializeSession(ctx context.Context, q *Quiz, userID int64) (*session.State, error) {
	if m.initializeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.initializeFn(ctx, q, userID)
}

func (m *mockRunner) NextQuestion(ctx context.Context, q *Quiz, userID int64, index int) (*NextQuestion, error) {
	if m.nextFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.nextFn(ctx, q, userID, index)
}

func (m *mockRunner) SubmitAnswer(ctx context.Context, q *Quiz, userID, questionID, answerID int64) error {
	if m.submitFn == nil {
		return errors.New("not implemented")
	}
	return m.submitFn(ctx, q, userID, questionID, answerID)
}

func (m *mockRunner) TimeLimitExceeded(ctx context.Context, q *Quiz, userID int64) (bool, error) {
	if m.timeLimitFn == nil {
		return false, errors.New("not implemented")
	}
	return m.timeLimitFn(ctx, q, userID)
}

func (m *mockRunner) Finalize(ctx context.Context, q *Quiz, userID int64) (*Result, error) {
	if m.finalizeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.finalizeFn(ctx, q, userID)
}

type mockPublisher struct {
	publishFn       func(ctx context.Context, quizID int64, duration time.Duration) error
	unpublishFn     func(ctx context.Context, quizID int64) error
	isPublishedFn   func(ctx context.Context, q *Quiz) (bool, error)
	updateExpiredFn func(ctx context.Context) error
}

func (m *mockPublisher) Publish(ctx context.Context, quizID int64, duration time.Duration) error {
	if m.publishFn == nil {
		return errors.New("not implemented")
	}
	return m.publishFn(ctx, quizID, duration)
}

func (m *mockPublisher) Unpublish(ctx context.Context, quizID int64) error {
	if m.unpublishFn == nil {
		return errors.New("not implemented")
	}
	return m.unpublishFn(ctx, quizID)
}

func (m *mockPublisher) IsPublished(ctx context.Context, q *Quiz) (bool, error) {
	if m.isPublishedFn == nil {
		return true, nil
	}
	return m.isPublishedFn(ctx, q)
}

func (m *mockPublisher) UpdateExpiredQuizzes(ctx context.Context) error {
	if m.updateExpiredFn == nil {
		return nil
	}
	return m.updateExpiredFn(ctx)
}

type mockRanking struct {
	getRankingFn func(ctx context.Context, quizID, callerID int64, isAdmin bool) (*Ranking, error)
	exportFn     func(ctx context.Context, quizID, callerID int64, isAdmin bool) ([]byte, error)
	canSolveFn   func(ctx context.Context, quizID, userID int64) (bool, error)
	canDeleteFn  func(ctx context.Context, q *Quiz) (bool, error)
}

func (m *mockRanking) GetRanking(ctx context.Context, quizID, callerID int64, isAdmin bool) (*Ranking, error) {
	if m.getRankingFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getRankingFn(ctx, quizID, callerID, isAdmin)
}

func (m *mockRanking) ExportRankingExcel(ctx context.Context, quizID, callerID int64, isAdmin bool) ([]byte, error) {
	if m.exportFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportFn(ctx, quizID, callerID, isAdmin)
}

func (m *mockRanking) CanUserSolveQuiz(ctx context.Context, quizID, userID int64) (bool, error) {
	if m.canSolveFn == nil {
		return false, errors.New("not implemented")
	}
	return m.canSolveFn(ctx, quizID, userID)
}

func (m *mockRanking) CanBeDeleted(ctx context.Context, q *Quiz) (bool, error) {
	if m.canDeleteFn == nil {
		return false, errors.New("not implemented")
	}
	return m.canDeleteFn(ctx, q)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asUser(r *http.Request, id int64, role string) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: id, FirstName: "Jan", LastName: "Testowy", Role: role}))
}

func publishedQuizStore() *memQuizStore {
	q := threeQuestionQuiz()
	q.IsPublished = true
	return newMemQuizStore(q)
}

func TestStartAttemptHandler(t *testing.T) {
	var gotUserID int64
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{
		initializeFn: func(ctx context.Context, q *Quiz, userID int64) (*session.State, error) {
			gotUserID = userID
			return &session.State{AttemptID: "att-1", QuestionOrder: []int64{30, 10, 20}}, nil
		},
	}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/attempt", nil)
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.StartAttempt(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	if gotUserID != 15 {
		t.Fatalf("expected caller id 15, got %d", gotUserID)
	}

	var body struct {
		OK   bool               `json:"ok"`
		Data attemptStartedView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.AttemptID != "att-1" || body.Data.TotalQuestions != 3 {
		t.Fatalf("unexpected payload: %+v", body.Data)
	}
	if body.Data.TimeLimitMinutes != DefaultTimeLimitMinutes {
		t.Fatalf("expected default time limit, got %d", body.Data.TimeLimitMinutes)
	}
}

func TestStartAttemptHandlerUnpublished(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{}, &mockPublisher{
		isPublishedFn: func(ctx context.Context, q *Quiz) (bool, error) { return false, nil },
	}, &mockRanking{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/attempt", nil)
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.StartAttempt(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestStartAttemptHandlerAlreadySolved(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{
		initializeFn: func(ctx context.Context, q *Quiz, userID int64) (*session.State, error) {
			return nil, ErrAlreadySolved
		},
	}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/attempt", nil)
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.StartAttempt(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestStartAttemptHandlerUnknownQuiz(t *testing.T) {
	h := NewHandler(newMemQuizStore(), &mockResultStore{}, &mockRunner{}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/99/attempt", nil)
	req = asUser(withURLParam(req, "id", "99"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.StartAttempt(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestQuestionHandler(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{
		nextFn: func(ctx context.Context, q *Quiz, userID int64, index int) (*NextQuestion, error) {
			return &NextQuestion{Question: q.Question(20), Index: index, Total: 3}, nil
		},
	}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/1/questions/1", nil)
	req = withURLParam(req, "id", "1")
	req = asUser(withURLParam(req, "index", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Question(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestQuestionHandlerBadIndex(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/1/questions/x", nil)
	req = withURLParam(req, "id", "1")
	req = asUser(withURLParam(req, "index", "x"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Question(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestQuestionHandlerNoAttempt(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{
		nextFn: func(ctx context.Context, q *Quiz, userID int64, index int) (*NextQuestion, error) {
			return nil, ErrSessionNotFound
		},
	}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/1/questions/0", nil)
	req = withURLParam(req, "id", "1")
	req = asUser(withURLParam(req, "index", "0"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Question(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSubmitAnswerHandler(t *testing.T) {
	var gotQuestionID, gotAnswerID int64
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{
		submitFn: func(ctx context.Context, q *Quiz, userID, questionID, answerID int64) error {
			gotQuestionID, gotAnswerID = questionID, answerID
			return nil
		},
	}, &mockPublisher{}, &mockRanking{})

	payload := []byte(`{"question_id":20,"answer_id":202}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/answers", bytes.NewReader(payload))
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.SubmitAnswer(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if gotQuestionID != 20 || gotAnswerID != 202 {
		t.Fatalf("unexpected args: question=%d answer=%d", gotQuestionID, gotAnswerID)
	}
}

func TestSubmitAnswerHandlerForeignAnswer(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{
		submitFn: func(ctx context.Context, q *Quiz, userID, questionID, answerID int64) error {
			return ErrAnswerNotInQuestion
		},
	}, &mockPublisher{}, &mockRanking{})

	payload := []byte(`{"question_id":20,"answer_id":301}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/answers", bytes.NewReader(payload))
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.SubmitAnswer(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestFinishHandler(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{
		finalizeFn: func(ctx context.Context, q *Quiz, userID int64) (*Result, error) {
			return &Result{QuizID: q.ID, UserID: userID, Score: 66.67}, nil
		},
	}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/finish", nil)
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Finish(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestFinishHandlerConflict(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{
		finalizeFn: func(ctx context.Context, q *Quiz, userID int64) (*Result, error) {
			return nil, ErrAlreadySolved
		},
	}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/finish", nil)
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Finish(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestPublishHandler(t *testing.T) {
	var gotDuration time.Duration
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{}, &mockPublisher{
		publishFn: func(ctx context.Context, quizID int64, duration time.Duration) error {
			gotDuration = duration
			return nil
		},
	}, &mockRanking{})

	payload := []byte(`{"duration_minutes":90}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/publish", bytes.NewReader(payload))
	req = asUser(withURLParam(req, "id", "1"), 7, auth.RoleAdmin)
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if gotDuration != 90*time.Minute {
		t.Fatalf("expected 90m duration, got %s", gotDuration)
	}
}

func TestPublishHandlerInvalidDuration(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{}, &mockPublisher{
		publishFn: func(ctx context.Context, quizID int64, duration time.Duration) error {
			return ErrInvalidDuration
		},
	}, &mockRanking{})

	payload := []byte(`{"duration_minutes":0}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/publish", bytes.NewReader(payload))
	req = asUser(withURLParam(req, "id", "1"), 7, auth.RoleAdmin)
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPublishHandlerRejectsInvalidQuiz(t *testing.T) {
	broken := NewQuiz(Quiz{ID: 1, Questions: []Question{
		{ID: 10, Answers: []Answer{{ID: 101, IsCorrect: true}}},
	}})
	h := NewHandler(newMemQuizStore(broken), &mockResultStore{}, &mockRunner{}, &mockPublisher{}, &mockRanking{})

	payload := []byte(`{"duration_minutes":90}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/publish", bytes.NewReader(payload))
	req = asUser(withURLParam(req, "id", "1"), 7, auth.RoleAdmin)
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestMenuHandlerSweepsExpiredFirst(t *testing.T) {
	var swept bool
	h := NewHandler(publishedQuizStore(), &mockResultStore{
		listMenuFn: func(ctx context.Context, userID int64) ([]MenuItem, error) {
			if !swept {
				t.Fatal("menu listed before expired publications were swept")
			}
			return []MenuItem{{QuizID: 1, Title: "Geography"}}, nil
		},
	}, &mockRunner{}, &mockPublisher{
		updateExpiredFn: func(ctx context.Context) error {
			swept = true
			return nil
		},
	}, &mockRanking{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes", nil)
	req = asUser(req, 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.Menu(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestRankingHandlerPassesCallerRole(t *testing.T) {
	var gotAdmin bool
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{}, &mockPublisher{}, &mockRanking{
		getRankingFn: func(ctx context.Context, quizID, callerID int64, isAdmin bool) (*Ranking, error) {
			gotAdmin = isAdmin
			return &Ranking{}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/1/ranking", nil)
	req = asUser(withURLParam(req, "id", "1"), 7, auth.RoleAdmin)
	w := httptest.NewRecorder()

	h.Ranking(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !gotAdmin {
		t.Fatal("expected admin flag passed through")
	}
}

func TestRankingExcelHandler(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{}, &mockPublisher{}, &mockRanking{
		exportFn: func(ctx context.Context, quizID, callerID int64, isAdmin bool) ([]byte, error) {
			return []byte("xlsx-bytes"), nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/1/ranking/export", nil)
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.RankingExcel(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %s", ct)
	}
}

func TestOwnResultHandler(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{
		findResultFn: func(ctx context.Context, quizID, userID int64) (*Result, error) {
			if userID != 15 {
				return nil, ErrResultNotFound
			}
			return &Result{QuizID: quizID, UserID: userID, Score: 100}, nil
		},
	}, &mockRunner{}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/1/result", nil)
	req = asUser(withURLParam(req, "id", "1"), 15, auth.RoleUser)
	w := httptest.NewRecorder()

	h.OwnResult(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/1/result", nil)
	req = asUser(withURLParam(req, "id", "1"), 16, auth.RoleUser)
	w = httptest.NewRecorder()

	h.OwnResult(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandlersRequireIdentity(t *testing.T) {
	h := NewHandler(publishedQuizStore(), &mockResultStore{}, &mockRunner{}, &mockPublisher{}, &mockRanking{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/1/attempt", nil)
	req = withURLParam(req, "id", "1")
	w := httptest.NewRecorder()

	h.StartAttempt(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
