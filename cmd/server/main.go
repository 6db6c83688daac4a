package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/database"
	"github.com/peakprep/peakprep-backend/internal/handler"
	"github.com/peakprep/peakprep-backend/internal/logger"
	"github.com/peakprep/peakprep-backend/internal/repository"
	"github.com/peakprep/peakprep-backend/internal/router"
	"github.com/peakprep/peakprep-backend/internal/service"
	"github.com/peakprep/peakprep-backend/internal/validator"
	"github.com/peakprep/peakprep-backend/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting PeakPrep Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Repositories.
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	analyticsRepo := repository.NewAnalyticsRepository(pool)

	// Services.
	authService := service.NewAuthService(cfg, profileRepo, rdb)
	sessionService := service.NewSessionService(sessionRepo, questionRepo, answerRepo, analyticsRepo, rdb, log)
	questionService := service.NewQuestionService(questionRepo, rdb, log)
	analyticsService := service.NewAnalyticsService(analyticsRepo)
	ingestService := service.NewIngestService(cfg, questionRepo, log) // nil without an API key

	// Handlers.
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		Session:       handler.NewSessionHandler(sessionService),
		Question:      handler.NewQuestionHandler(questionService),
		Analytics:     handler.NewAnalyticsHandler(analyticsService),
		AdminQuestion: handler.NewAdminQuestionHandler(questionService, ingestService),
		WS:            handler.NewWSHandler(cfg, rdb, questionRepo, log),
	}

	// Background workers: drain the Redis queues into PostgreSQL.
	workerCtx, workerCancel := context.WithCancel(context.Background())

	sessionWorker := worker.NewSessionWorker(sessionRepo, rdb, log)
	answerWorker := worker.NewAnswerWorker(answerRepo, rdb, log)
	progressWorker := worker.NewProgressWorker(pool, sessionRepo, rdb, log)
	completionWorker := worker.NewCompletionWorker(sessionRepo, analyticsRepo, rdb, log)

	go sessionWorker.Start(workerCtx)
	go answerWorker.Start(workerCtx)
	go progressWorker.Start(workerCtx)
	go completionWorker.Start(workerCtx)

	r := router.SetupRouter(authService, profileRepo, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
