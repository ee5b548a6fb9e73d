package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/training-auth/internal/api/http"
	"github.com/spec-kit/training-auth/internal/api/http/handlers"
	"github.com/spec-kit/training-auth/internal/auth"
	"github.com/spec-kit/training-auth/internal/config"
	"github.com/spec-kit/training-auth/internal/events"
	"github.com/spec-kit/training-auth/internal/limiter"
	"github.com/spec-kit/training-auth/internal/observability"
	"github.com/spec-kit/training-auth/internal/persistence"
	"github.com/spec-kit/training-auth/internal/repository"
	"github.com/spec-kit/training-auth/internal/service"
	"github.com/spec-kit/training-auth/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		users  repository.UserRepository
		tokens repository.CredentialStore
	)
	if pg.Enabled() {
		users = repository.NewUserRepository(pg.PoolHandle())
		tokens = repository.NewPostgresCredentialStore(pg.PoolHandle())
	} else {
		users = repository.NewMemoryUserRepository()
		tokens = repository.NewMemoryCredentialStore()
	}

	metrics := observability.NewMetrics("training_auth")

	codec, err := auth.NewCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, time.Now)
	if err != nil {
		logger.Fatal("failed to init token codec", zap.Error(err))
	}

	loginLimiter := limiter.NewRedisLimiter(redis.Client, limiter.Window{
		Prefix:      "auth:login",
		MaxAttempts: cfg.Limits.LoginMaxAttempts,
		Period:      cfg.Limits.LoginWindow(),
		FailOpen:    true,
	}, logger)
	resetLimiter := limiter.NewRedisLimiter(redis.Client, limiter.Window{
		Prefix:      "auth:reset",
		MaxAttempts: cfg.Limits.ResetMaxRequests,
		Period:      cfg.Limits.ResetWindow(),
		FailOpen:    true,
	}, logger)

	directory := service.NewUserDirectory(users, cfg.Auth.BcryptCost)
	mailer := service.NewLogMailer(users, logger.Named("mailer"), cfg.Notification)

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, metrics))

	sessions := service.NewSessionService(cfg.Auth, service.SessionDependencies{
		Codec:        codec,
		Store:        tokens,
		Directory:    directory,
		LoginLimiter: loginLimiter,
		Dispatcher:   dispatcher,
		Logger:       logger.Named("sessions"),
	})
	resets := service.NewPasswordResetService(*cfg, service.PasswordResetDependencies{
		Codec:          codec,
		Store:          tokens,
		Directory:      directory,
		Credentials:    directory,
		Mailer:         mailer,
		Sessions:       sessions,
		RequestLimiter: resetLimiter,
		Dispatcher:     dispatcher,
		Logger:         logger.Named("password_reset"),
	})

	if cfg.Seed.Enabled() {
		seedUser(ctx, directory, cfg.Seed, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: !cfg.App.IsDevelopment(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(sessions, resets),
		AuthMiddleware: auth.NewAuthMiddleware(sessions),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func seedUser(ctx context.Context, directory *service.UserDirectory, seed config.SeedConfig, logger *zap.Logger) {
	if _, err := directory.ResolveByEmail(ctx, seed.Email); err == nil {
		return
	} else if !errors.Is(err, service.ErrSubjectNotFound) {
		logger.Warn("seed lookup failed", zap.Error(err))
		return
	}
	user, err := directory.Register(ctx, seed.Name, seed.Email, seed.Password)
	if err != nil {
		logger.Warn("seed user not created", zap.Error(err))
		return
	}
	logger.Info("seed user created", zap.String("user_id", user.ID))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
