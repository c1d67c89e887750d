package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/events"
	"github.com/p-n-ai/pai-classroom/internal/learning"
	"github.com/p-n-ai/pai-classroom/internal/notes"
	"github.com/p-n-ai/pai-classroom/internal/notify"
	"github.com/p-n-ai/pai-classroom/internal/platform/cache"
	"github.com/p-n-ai/pai-classroom/internal/platform/config"
	"github.com/p-n-ai/pai-classroom/internal/platform/database"
	"github.com/p-n-ai/pai-classroom/internal/platform/logging"
	"github.com/p-n-ai/pai-classroom/internal/platform/metrics"
	"github.com/p-n-ai/pai-classroom/internal/progress"
	"github.com/p-n-ai/pai-classroom/internal/server"
	"github.com/p-n-ai/pai-classroom/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app is the wired dependency graph of the server.
type app struct {
	handler  http.Handler
	learning *learning.Service
	gateway  *notify.Gateway
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	loader, err := course.NewLoader(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	catalog := course.NewMemoryCatalog(loader.AllCourses()...)

	seed, err := users.LoadFile(cfg.UsersPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("users file not found, starting without users", "path", cfg.UsersPath)
	case err != nil:
		return nil, err
	}
	userStore := users.NewMemoryStore(seed...)

	var (
		progressStore progress.Store
		noteStore     notes.Store
		eventLogger   events.Logger = events.Nop{}
		checkers      []server.Checker
	)

	switch cfg.Store {
	case config.StorePostgres:
		db, err := database.New(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := database.Migrate(ctx, db.Pool); err != nil {
			a.close()
			return nil, err
		}
		ps, err := progress.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		ns, err := notes.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		progressStore, noteStore = ps, ns
		eventLogger = events.NewPostgres(db.Pool)
		checkers = append(checkers, db)

	case config.StoreRedis:
		c, err := cache.New(ctx, cfg.Cache.URL, "learn")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { c.Close() })
		rs, err := progress.NewRedisStore(c.Client, c.Key("progress"))
		if err != nil {
			a.close()
			return nil, err
		}
		progressStore = rs
		checkers = append(checkers, c)
	}

	m := metrics.New()
	engine := progress.NewEngine(progress.EngineConfig{
		Courses:          catalog,
		Store:            progressStore,
		SequentialUnlock: cfg.Learning.SequentialUnlock,
	})

	ws := notify.NewWebSocketChannel(cfg.Server.AllowOrigins...)
	a.gateway = notify.NewGateway()
	a.gateway.Register("websocket", ws)

	a.learning = learning.NewService(learning.Config{
		Catalog:          catalog,
		Progress:         engine,
		Notes:            notes.NewService(noteStore),
		Events:           eventLogger,
		Notifier:         a.gateway,
		Metrics:          m,
		AutoAdvanceDelay: cfg.Learning.AutoAdvanceDelay,
	})

	srv := server.New(server.Config{
		Catalog:   catalog,
		Users:     userStore,
		Progress:  engine,
		Learning:  a.learning,
		WebSocket: ws,
		Metrics:   m,
		Checkers:  checkers,
		RateLimit: server.RateLimit{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst},
	})
	a.handler = srv.Handler()

	slog.Info("app ready",
		"courses", len(catalog.List()),
		"users", len(seed),
		"store", cfg.Store,
		"auto_advance_delay", cfg.Learning.AutoAdvanceDelay.String(),
	)
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	if a.learning != nil {
		a.learning.Shutdown()
	}
	if a.gateway != nil {
		if err := a.gateway.CloseAll(); err != nil {
			slog.Warn("closing notify channels", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
