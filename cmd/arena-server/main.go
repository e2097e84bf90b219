package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/arena"
	appcfg "github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/httpapi"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/internal/store"
	"github.com/park285/chess-arena/internal/transport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	controls, err := appcfg.LoadTimeControls(cfg.TimeControlFile)
	if err != nil {
		logger.Fatal("time_control_error", zap.Error(err))
	}
	tc := cfg.Resolve(controls)

	// DB repository, in-memory fallback when unconfigured
	var repo store.Repository
	if cfg.DatabaseURL != "" {
		repo, err = store.NewPGRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("repo init error", zap.Error(err))
		}
	} else {
		logger.Warn("no DATABASE_URL, using in-memory repository")
		repo = store.NewMemoryRepository()
	}
	defer func() { _ = repo.Close() }()

	var live *store.Live
	if cfg.RedisURL != "" {
		live, err = store.NewLive(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis init error", zap.Error(err))
		}
		defer func() { _ = live.Close() }()
	} else {
		logger.Warn("no REDIS_URL, live match mirror disabled")
	}

	coord := arena.NewCoordinator(arena.Config{
		Clock: session.ClockConfig{
			Initial:   time.Duration(tc.InitialMs) * time.Millisecond,
			Increment: time.Duration(tc.IncrementMs) * time.Millisecond,
		},
		Grace:        time.Duration(cfg.GraceTimeoutMs) * time.Millisecond,
		CleanupDelay: time.Duration(cfg.CleanupDelaySec) * time.Second,
	}, repo, live, logger)

	wsServer := transport.NewServer(coord, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	httpWS := &http.Server{Addr: cfg.WSAddr, Handler: mux}

	api := httpapi.NewServer(repo, live, logger)
	httpREST := &fasthttp.Server{Handler: api.Handler(), Name: "chess-arena"}

	go func() {
		logger.Info("ws_listen", zap.String("addr", cfg.WSAddr))
		if err := httpWS.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ws server error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := httpREST.ListenAndServe(cfg.HTTPAddr); err != nil {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpWS.Shutdown(shutdownCtx)
	_ = httpREST.ShutdownWithContext(shutdownCtx)
}
