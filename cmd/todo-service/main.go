package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-todo-service/internal/cache"
	"github.com/pribylovaa/go-todo-service/internal/config"
	todohttp "github.com/pribylovaa/go-todo-service/internal/http"
	"github.com/pribylovaa/go-todo-service/internal/http/handlers"
	"github.com/pribylovaa/go-todo-service/internal/service"
	"github.com/pribylovaa/go-todo-service/internal/storage"
	"github.com/pribylovaa/go-todo-service/internal/storage/mongo"
	"github.com/pribylovaa/go-todo-service/internal/storage/postgres"
	"github.com/pribylovaa/go-todo-service/internal/token"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting todo-service", "env", cfg.Env, "db_driver", cfg.DB.Driver)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Основное хранилище.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 30*time.Second)
	str, err := openStorage(dbCtx, cfg.DB)
	dbCancel()
	if err != nil {
		log.Error("storage_connect_failed", slog.String("driver", cfg.DB.Driver), slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("storage_connected", slog.String("driver", cfg.DB.Driver))

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := str.Close(closeCtx); cerr != nil {
			log.Warn("storage_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	// Redis: сессии и кэш списков.
	redisCtx, redisCancel := context.WithTimeout(rootCtx, 10*time.Second)
	kv, err := cache.NewRedis(redisCtx, cfg.Redis.URL)
	redisCancel()
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("redis_connected")

	defer func() {
		if cerr := kv.Close(); cerr != nil {
			log.Warn("redis_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	codec, err := token.New(token.Params{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		log.Error("token_codec_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	svc := service.New(str, codec,
		cache.NewSessions(kv, cfg.Auth.SessionTTL),
		cache.NewTodos(kv, cfg.Cache.TodosTTL),
		cfg.Auth,
	)
	log.Info("service_initialized", slog.String("refresh_policy", cfg.Auth.RefreshPolicy))

	apiHandler := todohttp.NewRouter(svc, todohttp.Options{
		Logger:   log,
		Timeout:  cfg.Timeouts.Service,
		BasePath: "/api",
		Cookie: handlers.CookieOptions{
			Secure: cfg.SecureCookies(),
			MaxAge: cfg.Auth.RefreshTokenTTL,
		},
	})

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := str.Ping(ctx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := kv.Ping(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("service_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

// openStorage подключает хранилище по cfg.Driver; для postgres сначала
// применяет миграции.
func openStorage(ctx context.Context, cfg config.DBConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return mongo.New(ctx, cfg.URL)
	case config.DriverPostgres:
		if err := postgres.Migrate(ctx, cfg.URL); err != nil {
			return nil, err
		}
		return postgres.New(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
