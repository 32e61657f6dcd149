package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"familytether/internal/auth"
	"familytether/internal/bus"
	"familytether/internal/cache"
	"familytether/internal/config"
	"familytether/internal/gateway"
	"familytether/internal/httpapi"
	"familytether/internal/kv"
	"familytether/internal/location"
	"familytether/internal/logging"
	"familytether/internal/middleware"
	"familytether/internal/notify"
	"familytether/internal/privacy"
	"familytether/internal/repository"
)

func main() {
	_ = godotenv.Load()
	logging.Configure()
	cfg := config.Load()

	client, err := connectKV(cfg.RedisURL)
	if err != nil {
		logging.Log.WithError(err).Fatal("failed to connect to redis")
	}
	defer client.Close()

	repo := openRepository(cfg.RepositoryURL)
	c := cache.New(client, repo, cfg.CacheEnabled)
	p := privacy.New(c, repo)
	loc := location.New(client, c, p)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	discordBridge, err := notify.Launch(cfg.DiscordToken, cfg.DiscordGuildID)
	if err != nil {
		logging.Log.WithError(err).Warn("notify: discord bridge failed to start")
		discordBridge = nil
	}

	var notifier gateway.Notifier
	if discordBridge != nil {
		notifier = discordBridge
	}

	gw := gateway.NewServer(gateway.Config{
		KV:       client,
		Cache:    c,
		Location: loc,
		Privacy:  p,
		Verifier: verifier,
		Notifier: notifier,
	})

	dispatcher := bus.New(client, gw)
	busCtx, stopBus := context.WithCancel(context.Background())
	if err := dispatcher.Start(busCtx); err != nil {
		logging.Log.WithError(err).Fatal("bus: failed to subscribe")
	}

	r := chi.NewRouter()
	middleware.Setup(r, cfg.BehindProxy, cfg.RESTRateLimitRPS)

	r.Get("/healthz", httpapi.HealthHandler{}.ServeHTTP)
	r.Route("/v1/families/{familyID}", func(r chi.Router) {
		r.Use(httpapi.RequireAuth(verifier))
		r.Get("/history", httpapi.HistoryHandler{Cache: c, Location: loc}.ServeHTTP)
		r.Get("/current", httpapi.CurrentHandler{Cache: c, Location: loc}.ServeHTTP)
	})
	r.Handle("/socket", gw)

	srv := &http.Server{
		Addr:              cfg.ListenAddr + ":" + cfg.ListenPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logging.Log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.WithError(err).Fatal("http server error")
		}
	}()

	waitForShutdown(srv, dispatcher, stopBus, discordBridge)
}

// connectKV opens the three C1 connections and blocks readiness on all of
// them pinging successfully (spec §5, "failure of any blocks service
// readiness"), retrying briefly to absorb Redis still booting alongside us.
func connectKV(redisURL string) (kv.Client, error) {
	client, err := kv.NewRedis(redisURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ready(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// openRepository connects to Postgres when REPOSITORY_URL is set, otherwise
// falls back to the RepositoryUnavailable sentinel (spec §4.2/§7).
func openRepository(dsn string) repository.Repository {
	if dsn == "" {
		logging.Log.Warn("repository: REPOSITORY_URL not set, running with repository unavailable")
		return repository.NewUnavailable()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo, err := repository.NewAdminHandle(ctx, dsn)
	if err != nil {
		logging.Log.WithError(err).Warn("repository: connect failed, running with repository unavailable")
		return repository.NewUnavailable()
	}
	return repo
}

func waitForShutdown(srv *http.Server, dispatcher *bus.Dispatcher, stopBus context.CancelFunc, discordBridge *notify.DiscordBridge) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logging.Log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	dispatcher.Close()
	stopBus()
	if discordBridge != nil {
		_ = discordBridge.Close()
	}
}
