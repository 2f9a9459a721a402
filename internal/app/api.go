package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	v1 "github.com/jaennil/tileproxy/internal/infrastructure/http/v1"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/tileproxy/internal/infrastructure/upstream"
	"github.com/jaennil/tileproxy/internal/repository/fetchlog"
	"github.com/jaennil/tileproxy/internal/repository/session"
	"github.com/jaennil/tileproxy/internal/repository/tile"
	"github.com/jaennil/tileproxy/internal/usecase"
	"github.com/jaennil/tileproxy/pkg/config"
	"github.com/jaennil/tileproxy/pkg/hostlist"
	"github.com/jaennil/tileproxy/pkg/http_server"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)
	defer l.Sync()

	l.Info("app config",
		"port", cfg.HTTP.Server.Port,
		"storage_root", cfg.Storage.Root,
		"upstream", cfg.Upstream.URLTemplate,
		"cache_ttl", cfg.Cache.TTL.Duration(),
		"session_store", cfg.Session.Store,
		"trusted_hosts", cfg.Trusted.Hosts,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	var (
		sessions session.SessionStore
		sweeper  sessionSweeper
	)
	switch cfg.Session.Store {
	case config.SessionStoreRedis:
		redisStore, err := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Session.IdleTTL,
		})
		if err != nil {
			l.Fatal("failed to initialize redis session store", "error", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	default:
		mapStore := session.NewMapStore()
		sessions = mapStore
		sweeper = mapStore
	}

	store, err := tile.NewFilesystemStore(cfg.Storage.Root)
	if err != nil {
		l.Fatal("failed to initialize tile storage", "error", err)
	}

	var ledger fetchlog.FetchLog = fetchlog.NewNoopLog()
	if cfg.FetchLog.Enabled {
		sqliteLog, err := fetchlog.NewSQLiteLog(cfg.FetchLog.Path, l)
		if err != nil {
			l.Fatal("failed to initialize fetch log", "error", err)
		}
		defer sqliteLog.Close()
		ledger = sqliteLog
	}

	trusted := hostlist.New(cfg.Trusted.Hosts)
	if cfg.Trusted.HostsFile != "" {
		watcher, err := hostlist.NewWatcher(cfg.Trusted.HostsFile, trusted, l)
		if err != nil {
			l.Fatal("failed to load trusted hosts file", "error", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				l.Error("trusted hosts watcher stopped", "error", err)
			}
		}()
	}

	client := upstream.NewClient(upstream.Config{
		URLTemplate: cfg.Upstream.URLTemplate,
		Operator:    cfg.Proxy.Operator,
		Timeout:     cfg.Upstream.Timeout,
		RPS:         cfg.Upstream.RPS,
		Burst:       cfg.Upstream.Burst,
	}, l)

	throttleUseCase := usecase.NewThrottleUseCase(sessions, usecase.ThrottleConfig{
		SessionLifetime: cfg.Throttle.SessionLifetime,
		MaxRequests:     cfg.Throttle.MaxRequests,
		MaxBanCount:     cfg.Throttle.MaxBanCount,
		BanDuration:     cfg.Throttle.BanDuration,
	}, l)

	tileCacheUseCase := usecase.NewTileCacheUseCase(store, client, trusted, ledger, usecase.TileCacheConfig{
		TTL:         cfg.Cache.TTL.Duration(),
		Deduplicate: cfg.Upstream.Deduplicate,
	}, l)

	jobs, err := newMaintenance(maintenanceConfig{
		Schedule:   cfg.Maintenance.Schedule,
		IdleTTL:    cfg.Session.IdleTTL,
		Retention:  cfg.FetchLog.Retention,
		TempMaxAge: cfg.Storage.TempMaxAge,
	}, sweeper, ledger, store, l)
	if err != nil {
		l.Fatal("failed to schedule maintenance", "error", err)
	}
	jobs.Start()
	defer jobs.Stop()

	validate := validator.New()
	h := handler.NewHandler(validate, throttleUseCase, tileCacheUseCase, ledger, sessions)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	l.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http server shutdown completed")
	}

	l.Info("application shutdown completed")
}
