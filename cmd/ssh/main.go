package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"pulse-sentinel/internal/app"
	"pulse-sentinel/internal/cache"
	"pulse-sentinel/internal/config"
	"pulse-sentinel/internal/db"
	"pulse-sentinel/internal/repository"
	"pulse-sentinel/internal/service"
	"pulse-sentinel/internal/tui"
	"pulse-sentinel/pkg/logging"
	"pulse-sentinel/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	wishlogging "github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	gossh "golang.org/x/crypto/ssh"
)

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	setupLoggingFunc  = logging.Setup
	initPostgresFunc  = db.InitPostgres
	initRedisFunc     = cache.InitRedis
	initTracerFunc    = tracing.InitTracer
	buildAppFunc      = app.Build
	readFileFunc      = os.ReadFile
	newWishServerFunc = wish.NewServer
	listenFunc        = func(srv *ssh.Server) error { return srv.ListenAndServe() }
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
)

// authorizedKeys is the set of SHA256 fingerprints allowed to connect. A nil
// set accepts any key.
type authorizedKeys map[string]struct{}

func loadAuthorizedKeys(path string) (authorizedKeys, error) {
	if path == "" {
		return nil, nil
	}
	data, err := readFileFunc(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	keys := authorizedKeys{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		key, _, _, _, err := gossh.ParseAuthorizedKey(text)
		if err != nil {
			return nil, fmt.Errorf("authorized keys line %d: %w", line, err)
		}
		keys[gossh.FingerprintSHA256(key)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.New("authorized keys file has no keys")
	}
	return keys, nil
}

func (k authorizedKeys) allow(key ssh.PublicKey) bool {
	if k == nil {
		return true
	}
	_, ok := k[gossh.FingerprintSHA256(key)]
	return ok
}

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
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

	keys, err := loadAuthorizedKeys(cfg.SSHAuthorizedKeys)
	if err != nil {
		slog.Error("failed to load SSH authorized keys", "path", cfg.SSHAuthorizedKeys, "error", err)
		os.Exit(1)
	}
	if keys == nil {
		slog.Warn("SSH_AUTHORIZED_KEYS not set, accepting any public key")
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)
	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(_ ssh.Context, key ssh.PublicKey) bool {
			fingerprint := gossh.FingerprintSHA256(key)
			if !keys.allow(key) {
				slog.Warn("SSH auth denied", "fingerprint", fingerprint)
				return false
			}
			slog.Info("SSH auth accepted", "fingerprint", fingerprint)
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				model := tui.New(s.Context(), components.Assessments, s.User())
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)
				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			wishlogging.Middleware(),
		),
	)
	if err != nil {
		slog.Error("failed to create SSH server", "error", err)
		os.Exit(1)
	}

	if srv != nil {
		go func() {
			slog.Info("SSH server listening", "addr", addr)
			if err := listenFunc(srv); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				slog.Error("SSH server stopped", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	slog.Info("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("SSH server shutdown error", "error", err)
		}
	}

	slog.Info("SSH server exited")
}
