package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/trackback/matchengine/internal/config"
	dbRedis "github.com/trackback/matchengine/internal/db/redis"
	domitem "github.com/trackback/matchengine/internal/domain/item"
	"github.com/trackback/matchengine/internal/domain/scoring"
	"github.com/trackback/matchengine/internal/events"
	"github.com/trackback/matchengine/internal/gate"
	logpkg "github.com/trackback/matchengine/internal/logger"
	"github.com/trackback/matchengine/internal/metrics"
	itemrepo "github.com/trackback/matchengine/internal/repository/item"
	matchrepo "github.com/trackback/matchengine/internal/repository/match"
	chiTransport "github.com/trackback/matchengine/internal/transport/chi"
	candidateuc "github.com/trackback/matchengine/internal/usecase/candidate"
	healthuc "github.com/trackback/matchengine/internal/usecase/health"
	itemuc "github.com/trackback/matchengine/internal/usecase/item"
	matchuc "github.com/trackback/matchengine/internal/usecase/match"
	pipelineuc "github.com/trackback/matchengine/internal/usecase/pipeline"
	"github.com/trackback/matchengine/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting matchengine API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register engine metrics explicitly (no init())
	metrics.RegisterEngineMetrics()

	// Repositories
	itemRepo := itemrepo.New(store, itemrepo.Config{
		KeyPrefix:      cfg.Storage.KeyPrefix,
		LocationCell:   cfg.Matching.LocationCellDeg,
		TimeBucketDays: cfg.Matching.TimeBucketDays,
	})
	matchRepo := matchrepo.New(store, cfg.Storage.KeyPrefix)

	// Scorer
	scorer := scoring.New(scoring.Config{
		Weights: scoring.Weights{
			Category: cfg.Matching.Weights.Category,
			Location: cfg.Matching.Weights.Location,
			Temporal: cfg.Matching.Weights.Temporal,
			Text:     cfg.Matching.Weights.Text,
			Tags:     cfg.Matching.Weights.Tags,
		},
		FullCreditDistanceM: cfg.Matching.FullCreditDistanceM,
		MaxDistanceM:        cfg.Matching.MaxDistanceM,
		FullCreditWindow:    24 * time.Hour,
		MaxWindow:           time.Duration(cfg.Matching.MaxTimeWindowDays) * 24 * time.Hour,
	})

	// Disclosure gate
	disclosureGate := buildGate(cfg.Gate, logger)

	// Use case services
	matchSvc := matchuc.New(matchRepo, itemRepo, scorer, disclosureGate, matchuc.Config{
		CreateThreshold:     cfg.Matching.CreateThreshold,
		RetainThreshold:     cfg.Matching.RetainThreshold,
		ConfirmedItemStatus: domitem.Status(cfg.Matching.ConfirmedItemStatus),
	}, logger)

	bus := events.NewBus(logger)
	defer func() { _ = bus.Close() }()

	itemSvc := itemuc.New(itemRepo, bus, logger)

	generator := candidateuc.New(itemRepo, candidateuc.Config{
		MaxCandidates: cfg.Matching.MaxCandidates,
		MinCandidates: cfg.Matching.MinCandidates,
	})

	pipeline := pipelineuc.New(bus, itemRepo, generator, matchSvc, scorer, pipelineuc.Config{
		Workers: cfg.Matching.Workers,
	}, logger)

	go func() {
		if err := pipeline.Run(ctx); err != nil {
			logger.Error("Pipeline stopped", zap.Error(err))
		}
	}()

	// Both gate implementations expose a health check; the interface
	// assertion keeps the lifecycle contract free of health concerns.
	var gateChecker healthuc.GateChecker
	if gc, ok := disclosureGate.(healthuc.GateChecker); ok {
		gateChecker = gc
	}
	healthSvc := healthuc.New(store, gateChecker)

	// Chi server
	server := chiTransport.NewServer(itemSvc, matchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	// Stop the pipeline before the HTTP listener so in-flight evaluations drain.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildGate selects the disclosure gate implementation.
func buildGate(cfg config.GateConfig, logger *zap.Logger) matchuc.DisclosureGate {
	if cfg.Mode == "webhook" && cfg.WebhookURL != "" {
		return gate.NewWebhookGate(gate.WebhookConfig{
			URL:     cfg.WebhookURL,
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		}, logger)
	}
	return gate.NewLogGate(logger)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
