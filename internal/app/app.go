package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vendure-ecommerce/vendure-sub026/internal/config"
	"github.com/vendure-ecommerce/vendure-sub026/internal/database"
	"github.com/vendure-ecommerce/vendure-sub026/internal/domain"
	"github.com/vendure-ecommerce/vendure-sub026/internal/event"
	handler "github.com/vendure-ecommerce/vendure-sub026/internal/handler/http"
	"github.com/vendure-ecommerce/vendure-sub026/internal/health"
	"github.com/vendure-ecommerce/vendure-sub026/internal/indexer"
	"github.com/vendure-ecommerce/vendure-sub026/internal/ipc"
	pkgkafka "github.com/vendure-ecommerce/vendure-sub026/internal/kafka"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository"
	"github.com/vendure-ecommerce/vendure-sub026/internal/repository/postgres"
	redisrepo "github.com/vendure-ecommerce/vendure-sub026/internal/repository/redis"
	"github.com/vendure-ecommerce/vendure-sub026/internal/service"
	"github.com/vendure-ecommerce/vendure-sub026/internal/tracing"
	"github.com/vendure-ecommerce/vendure-sub026/migrations"
)

// App wires together all dependencies and runs the search index service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	channel        *ipc.Channel
	consumers      []*pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "search-index",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool. The catalog tables and the
	// denormalized index table live in the same store.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "search-index")
	if cfg.SlowQueryMS > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryMS)*time.Millisecond, logger)
	}

	// Run database migrations (search index table only).
	if err := database.RunMigrations(ctx, pool, migrations.Files, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Optional Redis-backed response cache.
	var redisClient *redis.Client
	var cache repository.SearchCache
	if cfg.RedisEnabled {
		redisClient, err = database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		cache = redisrepo.NewSearchCache(redisClient, time.Duration(cfg.CacheTTLSecs)*time.Second)
		logger.Info("redis search cache initialized",
			slog.String("host", cfg.RedisHost),
			slog.Int("ttl_secs", cfg.CacheTTLSecs),
		)
	}

	// Initialize Kafka producer with connection validation and retry.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	catalogRepo := postgres.NewCatalogRepository(pool)
	itemRepo := postgres.NewIndexItemRepository(pool)
	strategy := postgres.NewSearchStrategy(pool)
	eventProducer := event.NewProducer(producer, logger)

	connOpts := domain.ConnectionOptions{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		Database: cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
	}

	// Index builds go through the message channel regardless of mode: the
	// in-process target shares this service's pool, the worker target spawns
	// a child process that opens its own connection from connOpts.
	channel, err := newIndexChannel(cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	searchService := service.NewSearchService(strategy, cache, logger)
	indexService := service.NewIndexService(channel, catalogRepo, itemRepo, cache, eventProducer, connOpts, logger)

	// Set up Kafka consumers for catalog change events.
	rctx := domain.RequestContext{
		ChannelID:           cfg.DefaultChannelID,
		LanguageCode:        cfg.DefaultLanguageCode,
		DefaultLanguageCode: cfg.DefaultLanguageCode,
	}
	eventConsumer := event.NewConsumer(indexService, rctx, logger)
	idempotencyStore := pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)

	topics := []string{
		event.TopicProductCreated,
		event.TopicProductUpdated,
		event.TopicProductDeleted,
		event.TopicVariantUpdated,
	}
	var consumers []*pkgkafka.Consumer
	for _, topic := range topics {
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}, pkgkafka.IdempotentHandler(idempotencyStore, topic, cfg.KafkaGroupID, eventConsumer.Handle, logger), logger)
		consumers = append(consumers, c)
	}
	logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(topics)),
	)

	// Health checks.
	// The store is the only hard dependency: without it neither queries nor
	// index writes work. Kafka and the cache degrade the service, not kill it.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// HTTP router.
	defaults := handler.ContextDefaults{
		ChannelID:       cfg.DefaultChannelID,
		DefaultLanguage: cfg.DefaultLanguageCode,
	}
	router := handler.NewRouter(searchService, indexService, defaults, healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redisClient:    redisClient,
		producer:       producer,
		channel:        channel,
		consumers:      consumers,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newIndexChannel builds the message channel to the index builder endpoint
// for the configured mode.
func newIndexChannel(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*ipc.Channel, error) {
	switch cfg.IndexerMode {
	case "worker":
		// The worker process outlives the init context; it is reaped by
		// channel.Close on shutdown.
		target, err := ipc.NewProcessTarget(context.Background(), cfg.WorkerCommand, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("spawn index worker: %w", err)
		}
		logger.Info("index worker process started", slog.String("command", cfg.WorkerCommand))
		return ipc.NewChannel(target, ipc.UUIDGenerator(), logger), nil
	default:
		// In-process builder reuses this service's pool whatever connection
		// options the orchestrator sends.
		builder := indexer.New(func(context.Context, domain.ConnectionOptions) (repository.CatalogRepository, repository.IndexItemRepository, error) {
			return postgres.NewCatalogRepository(pool), postgres.NewIndexItemRepository(pool), nil
		}, logger)
		target := ipc.NewLocalTarget(builder, logger)
		logger.Info("in-process index builder initialized")
		return ipc.NewChannel(target, ipc.UUIDGenerator(), logger), nil
	}
}

// Run starts the HTTP server and Kafka consumers, blocking until the context
// is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumers.
	for _, c := range a.consumers {
		c := c
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumers
// 4. Index builder channel (reaps the worker process in worker mode)
// 5. Kafka producer
// 6. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka consumers.
	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close the index builder channel.
	if err := a.channel.Close(); err != nil {
		a.logger.Error("index channel close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 6. Close Redis client and PostgreSQL pool.
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
