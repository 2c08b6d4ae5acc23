package di

import (
	"context"
	"fmt"
	"os"

	"SignalHub/internal/domain/repository"
	"SignalHub/internal/handler/api"
	internalrepo "SignalHub/internal/repository"
	"SignalHub/internal/service/smartapi"
	"SignalHub/internal/usecase"
	"SignalHub/pkg/backoff"
	"SignalHub/pkg/cache"
	"SignalHub/pkg/config"
	xhttp "SignalHub/pkg/http"
	pkgkafka "SignalHub/pkg/kafka"
	applogger "SignalHub/pkg/logger"
	"SignalHub/pkg/metrics"
	"SignalHub/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache creates the shared Redis client.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideMarketData creates the resilient upstream client.
func ProvideMarketData(cfg *config.Config, log *applogger.Logger, m repository.Metrics) repository.MarketData {
	httpClient := xhttp.NewClient(xhttp.WithTimeout(cfg.Upstream.RequestTimeout))

	auth := &smartapi.PasswordAuthenticator{
		BaseURL:    cfg.Upstream.BaseURL,
		APIKey:     cfg.Upstream.APIKey,
		ClientCode: cfg.Upstream.ClientCode,
		Password:   cfg.Upstream.Password,
		TOTPSecret: cfg.Upstream.TOTPSecret,
		HTTP:       httpClient,
	}

	return smartapi.NewClient(smartapi.Options{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Auth:    auth,
		HTTP:    httpClient,
		QuotePolicy: backoff.Policy{
			Base:        cfg.Upstream.BackoffBase,
			Cap:         cfg.Upstream.BackoffCap,
			Jitter:      0.2,
			MaxAttempts: cfg.Upstream.QuoteAttempts,
		},
		CandlePolicy: backoff.Policy{
			Base:        cfg.Upstream.BackoffBase,
			Cap:         cfg.Upstream.BackoffCap,
			Jitter:      0.2,
			MaxAttempts: cfg.Upstream.CandleAttempts,
		},
		Logger:  log,
		Metrics: m,
	})
}

// ProvideLeaderLease creates the Redis-backed lease.
func ProvideLeaderLease(rc *cache.RedisCache, cfg *config.Config) repository.LeaderLease {
	return internalrepo.NewRedisLeaderLease(rc, cfg.Leader.Key)
}

// ProvideSnapshotBus creates the Redis snapshot store + broadcast.
func ProvideSnapshotBus(rc *cache.RedisCache, log *applogger.Logger) repository.SnapshotBus {
	return internalrepo.NewRedisSnapshotBus(rc, log)
}

// ProvideIndicatorCache creates the shared indicator store.
func ProvideIndicatorCache(rc *cache.RedisCache) repository.IndicatorCache {
	return internalrepo.NewRedisIndicatorCache(rc)
}

// ProvideSnapshotSink creates the optional Kafka firehose. Returns nil when
// Kafka is disabled; the producer treats a nil sink as "no sink".
func ProvideSnapshotSink(cfg *config.Config) (repository.SnapshotSink, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaSnapshotSink(producer, cfg.Kafka.Topic), nil
}

// ProvideSignalProducer creates the dual-cadence producer.
func ProvideSignalProducer(
	market repository.MarketData,
	indicatorCache repository.IndicatorCache,
	bus repository.SnapshotBus,
	sink repository.SnapshotSink,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.SignalProducer {
	return usecase.NewSignalProducer(market, indicatorCache, bus, sink, m, log,
		cfg.Instruments,
		usecase.ProducerConfig{
			FastInterval:   cfg.Producer.FastInterval,
			HeavyInterval:  cfg.Producer.HeavyInterval,
			ChunkSize:      cfg.Producer.ChunkSize,
			ChunkRPS:       cfg.Producer.ChunkRPS,
			CandleLookback: cfg.Producer.CandleLookback,
			MinBars:        cfg.Producer.MinBars,
		})
}

// ProvideCoordinator creates the leader-election coordinator driving the
// producer for the duration of each leadership term.
func ProvideCoordinator(
	lease repository.LeaderLease,
	producer *usecase.SignalProducer,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.Coordinator {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	holderID := fmt.Sprintf("%s-%d", host, os.Getpid())

	return usecase.NewCoordinator(lease,
		usecase.CoordinatorConfig{
			HolderID:        holderID,
			TTL:             cfg.Leader.TTL,
			AcquireInterval: cfg.Leader.AcquireInterval,
			RenewInterval:   cfg.Leader.RenewInterval,
		},
		log, m,
		func(ctx context.Context, lease *repository.Lease) {
			producer.Run(ctx, lease)
		})
}

// ProvideHandler creates the HTTP handler registering all routes.
func ProvideHandler(
	log *applogger.Logger,
	bus repository.SnapshotBus,
	producer *usecase.SignalProducer,
	m repository.Metrics,
	cfg *config.Config,
) xhttp.Handler {
	return api.NewSignalsHandler(log, bus, producer, m, api.StreamConfig{
		DefaultPingSec: cfg.Stream.DefaultPingSec,
		MinPingSec:     cfg.Stream.MinPingSec,
		MaxPingSec:     cfg.Stream.MaxPingSec,
	})
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	coordinator *usecase.Coordinator,
	handler xhttp.Handler,
	rc *cache.RedisCache,
	sink repository.SnapshotSink,
) *server.App {
	return server.New(cfg, log, coordinator, handler, rc, sink)
}
