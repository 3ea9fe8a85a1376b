package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/database"
	"github.com/stemsi/examsim-backend/internal/handler"
	"github.com/stemsi/examsim-backend/internal/logger"
	"github.com/stemsi/examsim-backend/internal/metrics"
	"github.com/stemsi/examsim-backend/internal/middleware"
	"github.com/stemsi/examsim-backend/internal/repository"
	"github.com/stemsi/examsim-backend/internal/router"
	"github.com/stemsi/examsim-backend/internal/service"
	"github.com/stemsi/examsim-backend/internal/validator"
	"github.com/stemsi/examsim-backend/internal/worker"
)

const janitorInterval = time.Minute

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamSim Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	m := metrics.New()

	// ─── Initialize Repositories ───────────────────────────────────────
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	progressRepo := repository.NewProgressRepository(pool)
	sessionCache := repository.NewSessionCache(rdb, cfg.SessionCacheTTL)
	sessionStore := repository.NewSessionStore(sessionCache, sessionRepo, rdb, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	questionService := service.NewQuestionService(questionRepo, rdb, cfg.MaxQuestionsPerSession, log)
	progressService := service.NewProgressService(rdb, progressRepo, log)
	sessionService := service.NewExamSessionService(
		questionService,
		sessionStore,
		progressService,
		sessionRepo,
		m,
		service.SessionOptions{
			TickInterval: cfg.TickInterval,
			SaveTimeout:  cfg.SaveTimeout,
			AutoReview:   cfg.AutoReview,
			RetireAfter:  cfg.SessionRetireAfter,
		},
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(),
		Session:  handler.NewExamSessionHandler(sessionService, log),
		Question: handler.NewQuestionHandler(questionService, log),
		Progress: handler.NewProgressHandler(progressService, log),
		Monitor:  handler.NewMonitorHandler(sessionService, log),
		WS:       handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(pool, rdb, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	autosaveWorker := worker.NewAutosaveWorker(sessionCache, sessionRepo, rdb, log, m.ObserveDurableWrite)
	progressWorker := worker.NewProgressWorker(progressRepo, rdb, log)

	workers.Add(3)
	go func() { defer workers.Done(); autosaveWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); progressWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); sessionService.RunJanitor(workerCtx, janitorInterval) }()

	// ─── Setup Router ──────────────────────────────────────────────────
	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, workerCtx.Done())
	}
	r := router.SetupRouter(authService, handlers, m, limiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
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

	// 2. Stop timers and flush every live session to Redis.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	sessionService.Shutdown(flushCtx)

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
