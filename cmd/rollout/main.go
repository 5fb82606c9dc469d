package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollout_service/internal/auth"
	"rollout_service/internal/config"
	"rollout_service/internal/http_server/handlers/admin"
	"rollout_service/internal/http_server/handlers/forgot"
	"rollout_service/internal/http_server/handlers/logout"
	"rollout_service/internal/http_server/handlers/profile"
	"rollout_service/internal/http_server/handlers/register"
	"rollout_service/internal/http_server/handlers/token"
	tokenvalidate "rollout_service/internal/http_server/handlers/validate"
	sl "rollout_service/internal/lib/logger"
	"rollout_service/internal/middleware/authorize"
	rateLimit "rollout_service/internal/middleware/ratelimit"
	"rollout_service/internal/models"
	"rollout_service/internal/rabbitmq"
	"rollout_service/internal/reset"
	"rollout_service/internal/storage/postgres"
	redisstore "rollout_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting rollout service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	guard, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer guard.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	firstParty := models.Client{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
	}

	authService := auth.New(
		log, storage, storage, storage, storage, storage,
		firstParty, cfg.Tokens.AccessTokenTTL,
	)

	resetFlow := reset.New(
		log, storage, storage, guard, msgBroker,
		cfg.Tokens.ResetTokenTTL, cfg.BaseURL,
	)

	router := setupRouter(log, authService, resetFlow)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	authService *auth.Auth,
	resetFlow *reset.Flow,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/oauth", func(r chi.Router) {
		r.With(rateLimit.Token()).Post("/token", token.New(log, authService))

		r.Group(func(r chi.Router) {
			r.Use(authorize.New(log, authService))
			r.Get("/validate", tokenvalidate.New())
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.With(rateLimit.Register()).Post("/users", register.New(log, validate, authService))

		r.Route("/forgot", func(r chi.Router) {
			r.Use(rateLimit.Forgot())
			r.Post("/request", forgot.NewRequest(log, validate, resetFlow))
			r.Post("/reset", forgot.NewReset(log, validate, resetFlow))
			r.Post("/check", forgot.NewCheck(log, validate, resetFlow))
		})
	})

	r.Route("/apis", func(r chi.Router) {
		r.Use(authorize.New(log, authService))

		r.Get("/users", profile.NewGet(log, authService))
		r.Patch("/users", profile.NewUpdate(log, authService))
		r.With(rateLimit.Logout()).Delete("/users/token", logout.New(log, authService))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/logs", admin.NewLogs(log, authService))
			r.Get("/users", admin.NewUsers(log, authService))
			r.Get("/admins", admin.NewAdmins(log, authService))
			r.Post("/addadmin", admin.NewSetAdmin(log, validate, authService, true))
			r.Post("/revokeadmin", admin.NewSetAdmin(log, validate, authService, false))
		})
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
