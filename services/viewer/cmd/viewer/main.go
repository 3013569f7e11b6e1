package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/movie-platform/internal/platform/analytics"
	"github.com/example/movie-platform/internal/platform/auth"
	"github.com/example/movie-platform/internal/platform/config"
	"github.com/example/movie-platform/internal/platform/httpserver"
	"github.com/example/movie-platform/internal/platform/logging"
	"github.com/example/movie-platform/internal/platform/natsconn"
	"github.com/example/movie-platform/internal/platform/run"
	viewerconfig "github.com/example/movie-platform/services/viewer/internal/config"
	"github.com/example/movie-platform/services/viewer/internal/handlers"
	"github.com/example/movie-platform/services/viewer/internal/moviehub"
	"github.com/example/movie-platform/services/viewer/internal/threads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	viewerCfg, err := viewerconfig.LoadViewer()
	if err != nil {
		log.Error("load viewer config", zap.Error(err))
		run.Exit(1)
	}

	hub := moviehub.New(viewerCfg.UpstreamBaseURL, viewerCfg.UpstreamAPIKey)
	treeTransport := moviehub.NewTreeTransport(hub)
	verifier := auth.SessionVerifier{Secret: viewerCfg.JWTSecret}

	// NATS is optional: without it the viewer still serves, just without
	// analytics events or cross-instance cache invalidation.
	var nc *nats.Conn
	var js nats.JetStreamContext
	if viewerCfg.NATSURL != "" {
		nc, err = natsconn.Connect(natsconn.Options{URL: viewerCfg.NATSURL})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		defer nc.Close()
		js, err = natsconn.JetStream(nc)
		if err != nil {
			log.Error("jetstream context", zap.Error(err))
			run.Exit(1)
		}
	}
	events := analytics.New(js, log)

	var cache handlers.Cache
	if viewerCfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(viewerCfg.RedisURL)
		if err != nil {
			log.Error("parse redis url", zap.Error(err))
			run.Exit(1)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		cache = handlers.NewRedisCache(rdb, viewerCfg.CacheTTLSec)
	} else {
		cache = handlers.NewTTLCache(viewerCfg.CacheTTLSec, nc, viewerCfg.CacheInvalidateSubject)
	}

	registry := threads.NewRegistry(viewerCfg.ThreadTTL, log)

	r := chi.NewRouter()
	httpserver.SetupRouter(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))

		r.Get("/v1/movies", handlers.ListMovies(hub, cache))
		r.Get("/v1/movies/{movie_cd}", handlers.GetMovie(hub, cache, events))

		r.Post("/v1/threads", handlers.OpenThread(registry, treeTransport, events))
		r.Get("/v1/threads/{token}", handlers.GetThread(registry))
		r.Post("/v1/threads/{token}/refresh", handlers.RefreshThread(registry))
		r.Delete("/v1/threads/{token}", handlers.CloseThread(registry))
		r.Post("/v1/threads/{token}/comments", handlers.CreateReply(registry, events))
		r.Put("/v1/threads/{token}/comments/{comment_id}", handlers.EditComment(registry))
		r.Delete("/v1/threads/{token}/comments/{comment_id}", handlers.DeleteComment(registry, events))
		r.Post("/v1/threads/{token}/comments/{comment_id}/like", handlers.ToggleLike(registry, events))
		r.Post("/v1/threads/{token}/comments/{comment_id}/reveal", handlers.ToggleReveal(registry))

		r.Post("/v1/chatbot/messages", handlers.PostChatbotMessage(hub, events))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/me", handlers.GetMe(hub))
		r.Get("/v1/me/reservations", handlers.ListReservations(hub))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		registry.StartSweeper(ctx, viewerCfg.ThreadSweepInterval)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
