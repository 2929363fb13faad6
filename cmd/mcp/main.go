package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse-sentinel/internal/app"
	"pulse-sentinel/internal/cache"
	"pulse-sentinel/internal/config"
	"pulse-sentinel/internal/db"
	"pulse-sentinel/internal/domain"
	"pulse-sentinel/internal/mcptool"
	"pulse-sentinel/internal/repository"
	"pulse-sentinel/internal/service"
	"pulse-sentinel/pkg/logging"
	"pulse-sentinel/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const version = "1.0.0"

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	setupLoggingFunc = logging.Setup
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	buildAppFunc     = app.Build
	runStdioFunc     = func(ctx context.Context, server *mcp.Server) error {
		return server.Run(ctx, &mcp.StdioTransport{})
	}
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
)

// timeoutAssessor bounds each tool call by MCP_REQUEST_TIMEOUT_SECS.
type timeoutAssessor struct {
	next    mcptool.Assessor
	timeout time.Duration
}

func (t timeoutAssessor) Assess(ctx context.Context, source string, w domain.WeeklyAverages) (*domain.Assessment, error) {
	if t.timeout <= 0 {
		return t.next.Assess(ctx, source, w)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Assess(ctx, source, w)
}

func newHTTPServer(addr string, server *mcp.Server) *http.Server {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	// Logs go to stderr; stdout carries the protocol in stdio mode.
	setupLoggingFunc(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	assessor := timeoutAssessor{
		next:    components.Assessments,
		timeout: time.Duration(cfg.MCPRequestTimeoutSecs) * time.Second,
	}
	server := mcptool.NewServer(assessor, version)

	if cfg.MCPTransport != "http" {
		slog.Info("MCP server running on stdio")
		if err := runStdioFunc(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio session ended", "error", err)
			os.Exit(1)
		}
		return
	}

	addr := fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort)
	srv := newHTTPServer(addr, server)
	go func() {
		slog.Info("MCP HTTP server listening", "addr", addr)
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	slog.Info("Shutting down MCP server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		slog.Error("MCP server forced to shutdown", "error", err)
	}

	slog.Info("MCP server exiting")
}
