package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/barter-exchange/internal/adapters/cache"
	eventadapter "github.com/viralforge/barter-exchange/internal/adapters/events"
	grpcadapter "github.com/viralforge/barter-exchange/internal/adapters/grpc"
	httpadapter "github.com/viralforge/barter-exchange/internal/adapters/http"
	"github.com/viralforge/barter-exchange/internal/adapters/mail"
	"github.com/viralforge/barter-exchange/internal/adapters/postgres"
	"github.com/viralforge/barter-exchange/internal/adapters/security"
	"github.com/viralforge/barter-exchange/internal/application"
	"github.com/viralforge/barter-exchange/internal/domain"
	"github.com/viralforge/barter-exchange/internal/ports"
	"gorm.io/gorm"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpcadapter.Server
	ready      func(context.Context) error
	outbox     *eventadapter.OutboxWorker
	consumer   *eventadapter.ConsumerWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	keyring, err := security.NewKeyring(cfg.FieldEncryptionActiveKey, cfg.FieldEncryptionKeys)
	if err != nil {
		return nil, fmt.Errorf("field encryption: %w", err)
	}
	verifier, err := security.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	mailer, err := newMailer(cfg)
	if err != nil {
		return nil, err
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = postgres.Close(db)
		return nil, err
	}

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = postgres.Close(db)
		return nil, err
	}

	repos := postgres.NewRepositories(db)
	dispatcher := application.NewDispatcher(mailer, cache.NewRedisBroadcaster(redisClient), application.DispatcherConfig{
		DeliveryTimeout: cfg.NotifyDeliveryTimeout,
		Retry: application.RetryPolicy{
			MaxAttempts:    cfg.NotifyMaxAttempts,
			InitialBackoff: cfg.NotifyInitialBackoff,
			MaxBackoff:     cfg.NotifyMaxBackoff,
		},
		ChannelPrefix: cfg.RealtimeChannelPrefix,
	})
	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:         cfg.ServiceID,
			AdminCacheTTL:       cfg.AdminCacheTTL,
			IdempotencyTTL:      cfg.IdempotencyTTL,
			EventDedupTTL:       cfg.EventDedupTTL,
			StatusUpdateRetries: cfg.StatusUpdateRetries,
		},
		Transactions: repos.Transactions,
		Disputes:     repos.Disputes,
		Users:        repos.Users,
		Products:     repos.Products,
		Outbox:       repos.Outbox,
		Cipher:       security.NewAESCBCCipher(keyring),
		Dispatcher:   dispatcher,
		AdminCache:   cache.NewRedisAdminCache(redisClient),
		Idempotency:  cache.NewRedisIdempotencyStore(redisClient),
		EventDedup:   cache.NewRedisEventDedupStore(redisClient),
	})

	ready := readinessCheck(db, redisClient)
	handler := httpadapter.NewHandler(service, verifier, ready)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcadapter.NewServer(logger)

	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger))
	consumerAdapter := eventadapter.Consumer(eventadapter.NewNoopConsumer())
	var closers []io.Closer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
			domain.EventTransactionCreated:       cfg.KafkaTopicTransactionCreated,
			domain.EventTransactionStatusChanged: cfg.KafkaTopicTransactionStatus,
			domain.EventDisputeCreated:           cfg.KafkaTopicDisputeCreated,
			domain.EventDisputeResolved:          cfg.KafkaTopicDisputeResolved,
		})
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher", "error", pubErr)
		} else {
			publisher = kafkaPublisher
			closers = append(closers, kafkaPublisher)
		}

		kafkaConsumer, conErr := eventadapter.NewKafkaConsumer(
			cfg.KafkaBrokers,
			cfg.KafkaConsumerGroup,
			[]string{
				cfg.KafkaTopicUserRegistered,
				cfg.KafkaTopicUserUpdated,
				cfg.KafkaTopicUserDeleted,
				cfg.KafkaTopicProductUpserted,
			},
		)
		if conErr != nil {
			logger.WarnContext(ctx, "kafka consumer disabled, using noop consumer", "error", conErr)
		} else {
			consumerAdapter = kafkaConsumer
			closers = append(closers, kafkaConsumer)
		}
	}
	outbox := eventadapter.NewOutboxWorker(logger, repos.Outbox, eventadapter.NewRoutingPublisher(service, publisher), eventadapter.OutboxWorkerConfig{
		Interval:   cfg.OutboxPollInterval,
		BatchSize:  cfg.OutboxBatchSize,
		ClaimTTL:   cfg.OutboxClaimTTL,
		MaxRetries: cfg.OutboxMaxRetries,
	})
	consumer := eventadapter.NewConsumerWorker(logger, consumerAdapter, service, cfg.ConsumerPollInterval)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		ready:      ready,
		outbox:     outbox,
		consumer:   consumer,
		cleanupFn: func(ctx context.Context) {
			for _, closer := range closers {
				_ = closer.Close()
			}
			_ = redisClient.Close()
			_ = postgres.Close(db)
		},
	}, nil
}

func newMailer(cfg Config) (ports.Mailer, error) {
	if cfg.SMTPHost == "" {
		return mail.LoggingMailer{}, nil
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		From:      cfg.SMTPFrom,
		TLSPolicy: cfg.SMTPTLSPolicy,
		Timeout:   cfg.SMTPTimeout,
	})
}

func readinessCheck(db *gorm.DB, redisClient *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := postgres.Ping(ctx, db); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(ctx)
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go r.grpcServer.WatchReadiness(ctx, r.ready, r.cfg.ReadinessProbeInterval)
	r.logger.InfoContext(ctx, "api started", "http_port", r.cfg.HTTPPort, "grpc_port", r.cfg.GRPCPort)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.Stop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	go func() {
		if err := r.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	r.logger.InfoContext(ctx, "worker started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.ErrorContext(ctx, "worker failure", "error", runErr)
	}
	r.cleanupFn(context.Background())
	return runErr
}
