package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/parceltrack/parceltrack/internal/app"
	"github.com/parceltrack/parceltrack/internal/auth"
	"github.com/parceltrack/parceltrack/internal/authz"
	"github.com/parceltrack/parceltrack/internal/deliveries"
	"github.com/parceltrack/parceltrack/internal/observability"
	"github.com/parceltrack/parceltrack/internal/packages"
	"github.com/parceltrack/parceltrack/internal/platform/cache"
	"github.com/parceltrack/parceltrack/internal/platform/db"
	"github.com/parceltrack/parceltrack/internal/roles"
	"github.com/parceltrack/parceltrack/internal/users"
	"github.com/parceltrack/parceltrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(pool)
	rolesRepo := roles.NewRepository(pool)

	rolesService := roles.NewService(rolesRepo, usersRepo, nil, logger)
	roleLookup := authz.NewCachedRoleLookup(rolesService, redisClient, cfg.RoleCacheTTL, logger)
	rolesService.SetCacheInvalidator(roleLookup)

	resolver := authz.NewResolver(roleLookup, logger)
	guard := authz.NewGuard(resolver, metrics, logger)
	guardMW := authz.Middleware{Guard: guard, Logger: logger}

	usersService := users.NewService(usersRepo, roleLookup, logger)

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authHandler := auth.NewHandler(logger, usersService, tokens)
	authMW := auth.Middleware(tokens, usersService, logger)

	packagesRepo := packages.NewRepository(pool)
	packagesService := packages.NewService(packagesRepo)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	deliveriesRepo := deliveries.NewRepository(pool)
	deliveriesService := deliveries.NewService(deliveriesRepo, packagesService, jobsClient, logger)
	packagesService.SetDeliveryCloser(deliveriesService)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authMW,
		AuthHandler:        authHandler,
		UsersHandler:       users.NewHandler(logger, usersService, guardMW),
		RolesHandler:       roles.NewHandler(logger, rolesService, guardMW),
		PermissionsHandler: authz.NewPermissionsHandler(logger, guardMW),
		PackagesHandler:    packages.NewHandler(logger, packagesService, guard, guardMW),
		DeliveriesHandler:  deliveries.NewHandler(logger, deliveriesService, guard, guardMW),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
