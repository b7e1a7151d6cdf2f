package app

import (
	"database/sql"
	"net/http"
	"time"

	"quizportal/internal/app/observability"
	"quizportal/internal/auth"
	"quizportal/internal/quiz"
	"quizportal/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func NewRouter(cfg Config, db *sql.DB, rdb *redis.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	limiter := NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute)
	r.Use(RateLimitMiddleware(limiter))
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))
	r.Use(auth.Identity)

	store := quiz.NewPostgresStore(db)
	sessions := session.NewRedisStore(rdb, time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	expiry := quiz.NewRedisExpiryStore(rdb)

	clock := quiz.SystemClock()
	runner := quiz.NewRunner(sessions, store, clock)
	publisher := quiz.NewPublisher(store, expiry, clock)
	ranking := quiz.NewRankingService(store)
	quizHandler := quiz.NewHandler(store, store, runner, publisher, ranking)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(secure chi.Router) {
			secure.Use(auth.RequireAuth)

			secure.Get("/quizzes", quizHandler.Menu)
			secure.Get("/quizzes/{id}/status", quizHandler.Status)
			secure.Get("/quizzes/{id}/can-solve", quizHandler.CanSolve)

			secure.Post("/quizzes/{id}/attempt", quizHandler.StartAttempt)
			secure.Get("/quizzes/{id}/questions/{index}", quizHandler.Question)
			secure.Post("/quizzes/{id}/answers", quizHandler.SubmitAnswer)
			secure.Get("/quizzes/{id}/time-limit", quizHandler.TimeLimit)
			secure.Post("/quizzes/{id}/finish", quizHandler.Finish)
			secure.Get("/quizzes/{id}/result", quizHandler.OwnResult)

			secure.Get("/quizzes/{id}/ranking", quizHandler.Ranking)
			secure.Get("/quizzes/{id}/ranking/export", quizHandler.RankingExcel)

			secure.Group(func(admin chi.Router) {
				admin.Use(auth.RequireRoles(auth.RoleAdmin))
				admin.Post("/quizzes/{id}/publish", quizHandler.Publish)
				admin.Delete("/quizzes/{id}/publish", quizHandler.Unpublish)
				admin.Get("/quizzes/{id}/can-delete", quizHandler.CanDelete)
			})
		})
	})

	return r
}
