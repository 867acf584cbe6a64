package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imbroke/backend/docs"
	"github.com/imbroke/backend/internal/audit"
	"github.com/imbroke/backend/internal/config"
	"github.com/imbroke/backend/internal/database"
	"github.com/imbroke/backend/internal/handlers"
	"github.com/imbroke/backend/internal/infrastructure/kafka"
	mW "github.com/imbroke/backend/internal/middleware"
	"github.com/imbroke/backend/internal/outbox"
	"github.com/imbroke/backend/internal/services"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// @title Coin Ledger API
// @version 1.0
// @description Virtual coin ledger with rooms, transfers and rankings
// @host localhost:8080
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	logger := newLogger()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	docs.SwaggerInfo.BasePath = "/api"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectWithRetry(ctx, cfg.Database, 5, 2*time.Second, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(cfg.Database, logger); err != nil {
		return err
	}

	redisClient := database.ConnectRedis(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLogger := audit.NewLogger(logger)
	hasher := services.NewPasswordHasher(cfg.Argon2)
	queryTimeout := cfg.Database.QueryTimeout

	// Events are only recorded when something will relay them.
	var outboxWriter services.OutboxWriter
	outboxRepo := outbox.NewRepository()
	if cfg.Kafka.Enabled {
		outboxWriter = outboxRepo
	}

	authService := services.NewAuthService(db, redisClient, hasher, cfg.JWT, queryTimeout, mW.UserIDFromContext, logger)
	roomService := services.NewRoomService(db, hasher, auditLogger, queryTimeout, logger)
	inviteService := services.NewInviteService(roomService, redisClient, auditLogger, cfg.Invite.TTL, logger)
	transferService := services.NewTransferService(db, redisClient, outboxWriter, auditLogger, cfg.Ledger, queryTimeout, cfg.Kafka.TransferTopic, logger)
	ledgerService := services.NewLedgerService(db, queryTimeout, logger)
	summaryService := services.NewSummaryService(db, redisClient, roomService, cfg.Ledger.RankingCacheTTL, queryTimeout, logger)

	authenticator := mW.NewAuthenticator(cfg.JWT.SecretKey, redisClient, logger)
	limiter := mW.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)

	router := handlers.NewRouter(cfg.Server, handlers.Dependencies{
		Auth:        authService,
		Rooms:       roomService,
		Invites:     inviteService,
		Transfers:   transferService,
		Ledger:      ledgerService,
		Summaries:   summaryService,
		RequireAuth: authenticator.Middleware,
		RateLimit:   limiter.Handler,
		Ready: func(r *http.Request) error {
			return db.PingContext(r.Context())
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return limiter.RunCleanup(gctx, time.Minute)
	})

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, []string{cfg.Kafka.TransferTopic}, logger); err != nil {
			logger.Warn("failed to ensure kafka topics", zap.Error(err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		defer producer.Close()

		processor := outbox.NewProcessor(db, outboxRepo, producer,
			cfg.Kafka.OutboxPollInterval, cfg.Kafka.OutboxPollTimeout, cfg.Kafka.OutboxBatchSize, logger)
		g.Go(func() error {
			return processor.Run(gctx)
		})

		purger, err := outbox.NewPurger(db, outboxRepo, cfg.Kafka.OutboxPurgeSchedule, cfg.Kafka.OutboxRetention, logger)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		purger.Start()
		defer purger.Stop()
	}

	return g.Wait()
}
