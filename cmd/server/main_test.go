package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pulse-sentinel/internal/app"
	"pulse-sentinel/internal/bot"
	"pulse-sentinel/internal/config"
	"pulse-sentinel/internal/ingest"
	"pulse-sentinel/internal/job"
	"pulse-sentinel/internal/repository"
	"pulse-sentinel/internal/service"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type serverStubs struct {
	bootstrapStarted bool
	ingestStarted    bool
	telegramToken    string
	server           *http.Server
}

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stubs, restore := stubServerDeps(t, &config.Config{})
	defer restore()

	runMain(t)

	if !stubs.bootstrapStarted {
		t.Fatal("model bootstrap job not started")
	}
	if stubs.ingestStarted {
		t.Fatal("ingest should stay off without a broker")
	}
	if stubs.server == nil || stubs.server.Addr != ":18080" {
		t.Fatalf("unexpected http server: %+v", stubs.server)
	}

	w := httptest.NewRecorder()
	stubs.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health route not registered: %d", w.Code)
	}
}

func TestMainIngestNeedsDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stubs, restore := stubServerDeps(t, &config.Config{MQTTBroker: "tcp://localhost:1883", TelegramBotToken: "token"})
	defer restore()

	runMain(t)

	if stubs.ingestStarted {
		t.Fatal("ingest must not start without a sample repository")
	}
	if stubs.telegramToken != "token" {
		t.Fatalf("telegram bot not started with token, got %q", stubs.telegramToken)
	}
}

func runMain(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func stubServerDeps(t *testing.T, base *config.Config) (*serverStubs, func()) {
	stubs := &serverStubs{}
	dir := t.TempDir()

	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origSetupLogging := setupLoggingFunc
	origInitPostgres := initPostgresFunc
	origInitRedis := initRedisFunc
	origInitTracer := initTracerFunc
	origBuildApp := buildAppFunc
	origStartBootstrap := startBootstrapFunc
	origStartTelegram := startTelegramBotFunc
	origStartIngest := startIngestFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		cfg := *base
		cfg.HTTPAddr = ":18080"
		cfg.MLBundlePath = filepath.Join(dir, "bundle.bin")
		cfg.MLTrainingCSV = filepath.Join(dir, "samples.csv")
		cfg.MLSampleSource = config.SampleSourceCSV
		return &cfg
	}
	setupLoggingFunc = func(string) *slog.Logger { return slog.Default() }
	initPostgresFunc = func(context.Context, string) error { return errors.New("not configured") }
	initRedisFunc = func(context.Context, string) error { return errors.New("connection refused") }
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	buildAppFunc = func(cfg *config.Config, tracer trace.Tracer, pool repository.PgxPool, cache service.RedisClient) *app.Components {
		if pool != nil || cache != nil {
			t.Errorf("unavailable stores must be passed as nil, got pool=%v cache=%v", pool, cache)
		}
		return origBuildApp(cfg, tracer, pool, cache)
	}
	startBootstrapFunc = func(*job.ModelBootstrapJob, context.Context) { stubs.bootstrapStarted = true }
	startTelegramBotFunc = func(ctx context.Context, token string, _ bot.Assessor) error {
		stubs.telegramToken = token
		return nil
	}
	startIngestFunc = func(*ingest.Subscriber, context.Context) { stubs.ingestStarted = true }
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(srv *http.Server, _ context.Context) error {
		stubs.server = srv
		return nil
	}

	return stubs, func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		setupLoggingFunc = origSetupLogging
		initPostgresFunc = origInitPostgres
		initRedisFunc = origInitRedis
		initTracerFunc = origInitTracer
		buildAppFunc = origBuildApp
		startBootstrapFunc = origStartBootstrap
		startTelegramBotFunc = origStartTelegram
		startIngestFunc = origStartIngest
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
