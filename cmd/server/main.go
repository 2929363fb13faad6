package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse-sentinel/internal/app"
	"pulse-sentinel/internal/bot"
	"pulse-sentinel/internal/cache"
	"pulse-sentinel/internal/config"
	"pulse-sentinel/internal/db"
	"pulse-sentinel/internal/handler"
	"pulse-sentinel/internal/ingest"
	"pulse-sentinel/internal/job"
	"pulse-sentinel/internal/repository"
	"pulse-sentinel/internal/service"
	"pulse-sentinel/pkg/logging"
	"pulse-sentinel/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "pulse-sentinel/docs"
)

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	setupLoggingFunc     = logging.Setup
	initPostgresFunc     = db.InitPostgres
	initRedisFunc        = cache.InitRedis
	initTracerFunc       = tracing.InitTracer
	buildAppFunc         = app.Build
	startBootstrapFunc   = func(j *job.ModelBootstrapJob, ctx context.Context) { go j.Start(ctx) }
	startTelegramBotFunc = bot.StartTelegramBot
	startIngestFunc      = func(s *ingest.Subscriber, ctx context.Context) {
		go func() {
			if err := s.Start(ctx); err != nil {
				slog.Error("mqtt ingest disabled", "error", err)
			}
		}()
	}
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Pulse Sentinel API
// @version         1.0
// @description     Weekly wearable-metric anomaly assessments with OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	setupLoggingFunc(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres and Redis are optional; the service degrades without them.
	var pool repository.PgxPool
	if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
		slog.Warn("postgres unavailable, assessments will not be stored", "error", err)
	} else if db.Pool != nil {
		pool = db.Pool
		defer db.Close()
	}
	var redisClient service.RedisClient
	if err := initRedisFunc(ctx, cfg.RedisURL); err != nil {
		slog.Warn("redis unavailable, assessment cache disabled", "error", err)
	} else if cache.Client != nil {
		redisClient = cache.Client
	}

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		slog.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("error shutting down tracer provider", "error", err)
		}
	}()

	components := buildAppFunc(cfg, tracer, pool, redisClient)
	if err := components.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Train or load the model in the background so the first request is fast.
	startBootstrapFunc(job.NewModelBootstrapJob(tracer, components.Models, 30*time.Second), ctx)

	if cfg.MQTTBroker != "" {
		if components.Samples == nil {
			slog.Warn("MQTT_BROKER set but no database, device ingest disabled")
		} else {
			startIngestFunc(ingest.NewSubscriber(tracer, components.Samples, ingest.Options{
				Broker:   cfg.MQTTBroker,
				Topic:    cfg.MQTTTopic,
				ClientID: cfg.MQTTClientID,
				QoS:      1,
			}), ctx)
		}
	}

	if err := startTelegramBotFunc(ctx, cfg.TelegramBotToken, components.Assessments); err != nil {
		slog.Error("telegram bot disabled", "error", err)
	}

	h := newHandlerFunc(tracer, components.Assessments, components.Models, cfg.APIKey)

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName()))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	slog.Info("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}
