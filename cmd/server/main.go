package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"copenhagenbuzz/config"
	_ "copenhagenbuzz/docs"
	"copenhagenbuzz/internal/adapters/auth"
	"copenhagenbuzz/internal/adapters/email"
	deliveryhttp "copenhagenbuzz/internal/delivery/http"
	"copenhagenbuzz/internal/delivery/http/controllers"
	"copenhagenbuzz/internal/delivery/http/middleware"
	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/live"
	"copenhagenbuzz/internal/repository/postgres"
	"copenhagenbuzz/internal/repository/redis"
	"copenhagenbuzz/internal/repository/tree"
	"copenhagenbuzz/internal/services"
	"copenhagenbuzz/internal/store/memory"
)

const (
	redisKeyPrefix  = "copenhagenbuzz"
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 10 * time.Second
)

// @title CopenhagenBuzz API
// @version 1.0
// @description Events in Copenhagen with per-user favorites and live updates.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger := config.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// backend is the opened event store plus the user repository that goes with it.
type backend struct {
	store domain.Store
	users domain.UserRepository
	close func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Driver() {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DBUrl)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		s := postgres.NewTreeStore(db, logger)
		if err := s.Listen(cfg.DBUrl); err != nil {
			logger.Warn("tree change listener unavailable, only local writes refresh watches", "err", err)
		}
		return &backend{
			store: s,
			users: postgres.NewUserRepository(db),
			close: func() {
				s.Close()
				db.Close()
			},
		}, nil

	case config.DriverRedis:
		opts, err := goredis.ParseURL(cfg.DBUrl)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s := redis.NewTreeStore(client, redisKeyPrefix, logger)
		if err := s.Listen(ctx); err != nil {
			logger.Warn("tree change listener unavailable, only local writes refresh watches", "err", err)
		}
		return &backend{
			store: s,
			users: tree.NewUserRepository(s, cfg.TreeRoot),
			close: func() {
				s.Close()
				client.Close()
			},
		}, nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		s := memory.New()
		return &backend{
			store: s,
			users: tree.NewUserRepository(s, cfg.TreeRoot),
			close: func() { s.Close() },
		}, nil
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	be, err := openBackend(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()
	logger.Info("store ready", "driver", cfg.Driver())

	loop := live.NewLoop()
	defer loop.Close()

	eventRepo := services.NewEventRepository(be.store, loop, logger, services.WithRoot(cfg.TreeRoot))
	defer eventRepo.Close()

	if cfg.SeedSampleEvents {
		eventRepo.InitializeSampleEvents(context.Background())
	}
	if cfg.DedupeOnStart {
		eventRepo.RemoveDuplicateEventsByName(context.Background())
	}

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFromAddress,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		},
	}, logger)
	if err != nil {
		return err
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		return err
	}
	emailService := services.NewEmailService(mailer, renderer, logger)

	issuer := auth.NewJWTIssuer(cfg.JWTSecret)
	authService := services.NewAuthService(be.users, auth.NewBcryptHasher(0), issuer, emailService, cfg.JWTExpiry, logger)

	router := deliveryhttp.NewRouter(
		controllers.NewAuthController(logger, authService),
		controllers.NewEventController(logger, eventRepo),
		issuer,
		logger,
	)
	handler := middleware.LoggingMiddleware(logger, middleware.CORS(cfg.CORSOrigins, router))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", "err", err)
	}
	eventRepo.Wait()
	return nil
}
