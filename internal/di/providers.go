package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinResolve/internal/domain/models"
	"FinResolve/internal/domain/repository"
	dservice "FinResolve/internal/domain/service"
	"FinResolve/internal/handler/api"
	"FinResolve/internal/handler/jobs"
	internalrepo "FinResolve/internal/repository"
	icache "FinResolve/internal/service/cache"
	"FinResolve/internal/service/oracle"
	"FinResolve/internal/service/ratelimit"
	"FinResolve/internal/service/sources"
	"FinResolve/internal/usecase"
	pcache "FinResolve/pkg/cache"
	pkgch "FinResolve/pkg/clickhouse"
	"FinResolve/pkg/config"
	xhttp "FinResolve/pkg/http"
	pkgkafka "FinResolve/pkg/kafka"
	"FinResolve/pkg/logger"
	"FinResolve/pkg/metrics"
	"FinResolve/pkg/retry"
	"FinResolve/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.Producer.AutoCreateTopics),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger creates the application logger. Warnings and errors are
// digested to Kafka when the digest is enabled and a producer exists.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Digest.Enabled && producer != nil {
		l.AttachDigest(logger.NewDigest(logger.DigestConfig{
			Interval:  cfg.Log.Digest.Interval,
			Threshold: cfg.Log.Digest.Threshold,
			Topic:     cfg.Log.Digest.Topic,
			Publisher: producer,
		}))
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisStore connects the second cache tier, or returns nil when
// Redis is off.
func ProvideRedisStore(cfg *config.Config) (*pcache.RedisStore, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	store, err := pcache.NewRedisStore(
		pcache.WithRedisHost(cfg.Redis.Host),
		pcache.WithRedisPort(cfg.Redis.Port),
		pcache.WithRedisPassword(cfg.Redis.Password),
		pcache.WithRedisDB(cfg.Redis.DB),
		pcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 30*time.Second),
		pcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis store: %w", err)
	}
	return store, nil
}

// ProvideCacheManager builds the analysis caches.
func ProvideCacheManager(cfg *config.Config, log *logger.Logger, rec *metrics.Recorder, store *pcache.RedisStore) *icache.Manager {
	opts := []icache.ManagerOption{
		icache.WithLimits(icache.KindFactsheet, limits(cfg.Cache.Factsheet)),
		icache.WithLimits(icache.KindFund, limits(cfg.Cache.Fund)),
		icache.WithLimits(icache.KindPortfolio, limits(cfg.Cache.Portfolio)),
		icache.WithLimits(icache.KindResolution, limits(cfg.Cache.Resolution)),
		icache.WithRetry(
			retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
			retry.WithBaseDelay(cfg.Retry.BaseDelay),
			retry.WithMaxDelay(cfg.Retry.MaxDelay),
		),
		icache.WithRecoverer(icache.KindFund, usecase.RecordDerived()),
		icache.WithObserver(rec),
		icache.WithRetryHook(rec.RecordRetry),
		icache.WithLogger(log),
	}
	if store != nil {
		opts = append(opts, icache.WithStore(store))
	}
	return icache.NewManager(opts...)
}

func limits(l config.CacheLimits) icache.Limits {
	return icache.Limits{MaxEntries: l.MaxEntries, TTL: l.TTL}
}

// ProvideTextOracle creates the Gemini oracle, or nil without an API key.
func ProvideTextOracle(cfg *config.Config) (dservice.TextOracle, error) {
	oc := cfg.Sources.Oracle
	if oc.APIKey == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o, err := oracle.NewGenAIOracle(ctx, oc.APIKey, oracle.WithModel(oc.Model), oracle.WithBaseURL(oc.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("text oracle: %w", err)
	}
	return o, nil
}

// ProvideSourceAdapters builds every configured source. The fallback
// source is always present.
func ProvideSourceAdapters(cfg *config.Config, textOracle dservice.TextOracle, log *logger.Logger) ([]repository.SourceAdapter, error) {
	sc := cfg.Sources
	var adapters []repository.SourceAdapter

	if sc.FactsheetIndex != "" {
		idx, err := sources.LoadFactsheetIndex(sc.FactsheetIndex)
		if err != nil {
			return nil, fmt.Errorf("factsheet index: %w", err)
		}
		log.Info("factsheet index loaded", logger.String("path", sc.FactsheetIndex), logger.Int("entries", idx.Len()))
		adapters = append(adapters, idx)
	}

	if sc.FileIndexDir != "" {
		idx, err := sources.ScanFileIndex(sc.FileIndexDir)
		if err != nil {
			return nil, fmt.Errorf("file index: %w", err)
		}
		log.Info("file index scanned", logger.String("dir", sc.FileIndexDir), logger.Int("files", idx.Len()))
		adapters = append(adapters, idx)
	}

	if sc.WebSearch.URL != "" {
		client := xhttp.NewClient(xhttp.WithTimeout(sc.WebSearch.Timeout))
		adapters = append(adapters, sources.NewWebSearch(client, ratelimit.New(),
			sources.WithSearchURL(sc.WebSearch.URL),
			sources.WithSearchAPIKey(sc.WebSearch.APIKey),
			sources.WithSearchRate(sc.WebSearch.RateCapacity, sc.WebSearch.RatePerSec),
		))
	}

	if textOracle != nil {
		adapters = append(adapters, sources.NewTextOracleSource(textOracle, sc.Oracle.MaxTokens))
	}

	adapters = append(adapters, sources.NewFallback())
	return adapters, nil
}

// ProvideClickHouseClient connects ClickHouse and creates the database,
// or returns nil when the audit store is off.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithSchema(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database)),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideResolutionStore creates the audit table, or returns nil without
// a ClickHouse client.
func ProvideResolutionStore(cfg *config.Config, client *pkgch.Client, log *logger.Logger) (*internalrepo.ClickHouseResolutionStore, error) {
	if client == nil {
		return nil, nil
	}
	store, err := internalrepo.NewClickHouseResolutionStore(client.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table, log)
	if err != nil {
		return nil, fmt.Errorf("resolution store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("resolution store: %w", err)
	}
	return store, nil
}

// ProvideResolutionSinks collects the configured resolution sinks.
func ProvideResolutionSinks(cfg *config.Config, store *internalrepo.ClickHouseResolutionStore, producer *pkgkafka.Producer) []repository.ResolutionSink {
	var sinks []repository.ResolutionSink
	if store != nil {
		sinks = append(sinks, store)
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaResolutionPublisher(producer, cfg.Kafka.Topic))
	}
	return sinks
}

// ResolveDefaults converts the resolver section into resolve options.
func ResolveDefaults(rc config.ResolverConfig) models.ResolveOptions {
	o := models.ResolveOptions{
		MinConfidence:            rc.MinConfidence,
		MaxAttempts:              rc.MaxAttempts,
		AllowPartial:             rc.AllowPartial,
		EnableConflictResolution: rc.EnableConflictResolution,
		PerInstrumentTimeout:     rc.PerInstrumentTimeout,
	}
	for _, s := range rc.SourcePriority {
		if src, ok := models.ParseSource(s); ok {
			o.SourcePriority = append(o.SourcePriority, src)
		}
	}
	return o.Normalize()
}

// ProvideResolver creates the instrument resolver.
func ProvideResolver(
	cfg *config.Config,
	adapters []repository.SourceAdapter,
	caches *icache.Manager,
	sinks []repository.ResolutionSink,
	rec *metrics.Recorder,
	log *logger.Logger,
) *usecase.InstrumentResolver {
	return usecase.NewInstrumentResolver(adapters, caches.Factsheet,
		usecase.WithDefaults(ResolveDefaults(cfg.Resolver)),
		usecase.WithResultCache(caches.Resolution, cfg.Cache.Resolution.TTL),
		usecase.WithBatching(cfg.Resolver.BatchSize, cfg.Resolver.BatchDelay),
		usecase.WithMetrics(rec),
		usecase.WithSinks(sinks...),
		usecase.WithLogger(log.With(logger.String("component", "resolver"))),
	)
}

// ProvideFundAnalyzer creates the look-through analyzer.
func ProvideFundAnalyzer(textOracle dservice.TextOracle, caches *icache.Manager, log *logger.Logger) *usecase.FundAnalyzer {
	return usecase.NewFundAnalyzer(textOracle, caches.Fund, log)
}

// ProvidePortfolioAnalyzer creates the portfolio analyzer.
func ProvidePortfolioAnalyzer(resolver *usecase.InstrumentResolver, funds *usecase.FundAnalyzer, caches *icache.Manager, log *logger.Logger) *usecase.PortfolioAnalyzer {
	return usecase.NewPortfolioAnalyzer(resolver, funds, caches.Portfolio, log)
}

// ProvideHTTPHandler creates the API handler. History is served only with
// an audit store.
func ProvideHTTPHandler(
	log *logger.Logger,
	resolver *usecase.InstrumentResolver,
	portfolios *usecase.PortfolioAnalyzer,
	caches *icache.Manager,
	store *internalrepo.ClickHouseResolutionStore,
) *api.ResolveEchoHandler {
	var history api.History
	if store != nil {
		history = store
	}
	return api.NewResolveEchoHandler(log, resolver, portfolios, caches, history)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, handler *api.ResolveEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{handler},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(log.With(logger.String("component", "http"))),
	)
}

// ProvideJobConsumer creates the job consumer with its handler registered,
// or returns nil when jobs are off.
func ProvideJobConsumer(cfg *config.Config, log *logger.Logger, resolver *usecase.InstrumentResolver, producer *pkgkafka.Producer) (*pkgkafka.Consumer, error) {
	jc := cfg.Kafka.Jobs
	if !jc.Enabled {
		return nil, nil
	}
	jobLog := log.With(logger.String("component", "jobs"))
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(jc.GroupID),
		pkgkafka.WithConsumerWorkers(jc.Workers),
		pkgkafka.WithConsumerRetry(jc.RetryMax, jc.BackoffMin, jc.BackoffMax),
		pkgkafka.WithConsumerDLQ(jc.DLQTopic),
		pkgkafka.WithConsumerLogger(jobLog),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	var results jobs.Publisher
	if producer != nil {
		results = producer
	}
	consumer.RegisterHandler(jobs.NewResolveJobHandler(jobLog, resolver, results, jc.Topic, jc.ResultTopic))
	return consumer, nil
}

// ProvideApp creates the application and registers infrastructure closers.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	caches *icache.Manager,
	consumer *pkgkafka.Consumer,
	redisStore *pcache.RedisStore,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	app := server.New(cfg, log, httpServer, caches, consumer)
	if producer != nil {
		app.AddCloser("kafka producer", producer.Close)
	}
	if chClient != nil {
		app.AddCloser("clickhouse", chClient.Close)
	}
	if redisStore != nil {
		app.AddCloser("redis", redisStore.Close)
	}
	return app
}

// Toolkit is the resolution stack without the servers.
type Toolkit struct {
	Resolver   *usecase.InstrumentResolver
	Portfolios *usecase.PortfolioAnalyzer
	Caches     *icache.Manager
	Logger     *logger.Logger

	closers []func() error
}

// Close flushes the log digest and releases infrastructure clients.
func (t *Toolkit) Close() error {
	t.Logger.DetachDigest()
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProvideToolkit assembles a Toolkit.
func ProvideToolkit(
	log *logger.Logger,
	resolver *usecase.InstrumentResolver,
	portfolios *usecase.PortfolioAnalyzer,
	caches *icache.Manager,
	redisStore *pcache.RedisStore,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *Toolkit {
	t := &Toolkit{Resolver: resolver, Portfolios: portfolios, Caches: caches, Logger: log}
	if producer != nil {
		t.closers = append(t.closers, producer.Close)
	}
	if chClient != nil {
		t.closers = append(t.closers, chClient.Close)
	}
	if redisStore != nil {
		t.closers = append(t.closers, redisStore.Close)
	}
	return t
}
