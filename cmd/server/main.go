package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/api"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/app/service"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/app/worker"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common/security"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/repository"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/platform/cache"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/platform/config"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/platform/database"
)

func main() {
	// 1. Load Configuration
	config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	slog.Info("configuration loaded")

	// 2. Initialize JWT
	security.InitJWT()

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	slog.Info("database connected")

	// 4. Initialize Redis
	cache.ConnectRedis()
	defer cache.CloseRedis()

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	leaderboardRepo := repository.NewPgLeaderboardRepository(database.DB)
	entryRepo := repository.NewPgEntryRepository(database.DB)
	snapshotRepo := repository.NewPgSnapshotRepository(database.DB)
	historyRepo := repository.NewPgHistoryRepository(database.DB)

	// 6. Initialize Services
	rankingCache := cache.NewRedisCache(cache.RDB, config.AppConfig.CacheTTL)
	locks := service.NewLockRegistry(0)

	authService := service.NewAuthService(userRepo)
	leaderboardService := service.NewLeaderboardService(database.DB, leaderboardRepo, entryRepo, snapshotRepo, historyRepo, rankingCache, locks)
	submissionService := service.NewSubmissionService(database.DB, leaderboardRepo, entryRepo, rankingCache, locks)
	queryService := service.NewQueryService(leaderboardRepo, entryRepo, rankingCache)

	// 7. Initialize Rollover Worker (as a goroutine)
	rolloverWorker := worker.NewRolloverWorker(leaderboardRepo, leaderboardService,
		config.AppConfig.RolloverInterval, config.AppConfig.SnapshotHourOfDay)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go rolloverWorker.Run(workerCtx)

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(authService, leaderboardService, submissionService, queryService)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()

	<-stop // Wait for interrupt signal

	slog.Info("shutting down server")
	workerCancel() // Signal worker to stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	slog.Info("server and worker stopped gracefully")
}
