package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/api/handler"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/app/service"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common/security"
)

func NewRouter(
	authService *service.AuthService,
	leaderboardService *service.LeaderboardService,
	submissionService *service.SubmissionService,
	queryService *service.QueryService,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Verifies a bearer token if present and puts claims in context;
	// enforcement happens per-route in middleware.Authenticator.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		authHandler := handler.NewAuthHandler(authService)
		v1.Group(func(publicAuth chi.Router) {
			authHandler.RegisterRoutes(publicAuth)
		})

		leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService, submissionService, queryService)
		v1.Route("/leaderboards", leaderboardHandler.RegisterRoutes)

		userHandler := handler.NewUserHandler(leaderboardService)
		v1.Route("/users", userHandler.RegisterRoutes)
	})

	return r
}
