package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/safeexaminer/proctor-backend/internal/config"
	"github.com/safeexaminer/proctor-backend/internal/database"
	"github.com/safeexaminer/proctor-backend/internal/exam"
	"github.com/safeexaminer/proctor-backend/internal/handler"
	"github.com/safeexaminer/proctor-backend/internal/logger"
	"github.com/safeexaminer/proctor-backend/internal/monitor"
	"github.com/safeexaminer/proctor-backend/internal/repository"
	"github.com/safeexaminer/proctor-backend/internal/router"
	"github.com/safeexaminer/proctor-backend/internal/service"
	"github.com/safeexaminer/proctor-backend/internal/validator"
	"github.com/safeexaminer/proctor-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting SafeExaminer Proctor Backend")

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

	// ─── Initialize Monitoring Core ────────────────────────────────────
	catalog, err := exam.NewCatalog(cfg.TotalQuestions)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid question catalog")
	}

	bus := monitor.NewBus(log)
	store := monitor.NewStore(bus, cfg.DuplicateSession, cfg.AudioSpeakingThreshold, time.Now, log)
	tracker := exam.NewTracker(catalog, store, time.Now, log)

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)
	recordRepo := repository.NewExamRecordRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	proctorService := service.NewProctorService(store, tracker, bus, log)

	relay := service.NewEventRelay(bus, rdb, log)
	relay.Start(ctx)
	defer relay.Stop()

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, proctorService, studentRepo, adminRepo),
		WS:      handler.NewWSHandler(proctorService, log, cfg.AllowedOrigins),
		Admin:   handler.NewAdminHandler(proctorService, activityRepo, recordRepo),
		Monitor: handler.NewMonitorHandler(proctorService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	activityWorker := worker.NewActivityWorker(pool, rdb, log)
	recordWorker := worker.NewRecordWorker(pool, rdb, log)

	go activityWorker.Start(workerCtx)
	go recordWorker.Start(workerCtx)
	go proctorService.RunReevaluator(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

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

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
