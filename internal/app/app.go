// Package app assembles the pipeline from configuration. Both binaries
// share it so the API server and the CLI run identical stages.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/adapter/blob"
	"github.com/user/legalcode-service/internal/adapter/chromedp_crawler"
	"github.com/user/legalcode-service/internal/adapter/googlesearch"
	"github.com/user/legalcode-service/internal/adapter/httpfetch"
	"github.com/user/legalcode-service/internal/adapter/notify"
	"github.com/user/legalcode-service/internal/adapter/ocr"
	"github.com/user/legalcode-service/internal/adapter/postgres"
	redis_adapter "github.com/user/legalcode-service/internal/adapter/redis"
	"github.com/user/legalcode-service/internal/adapter/wayback"
	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/delivery/http/handler"
	"github.com/user/legalcode-service/internal/discovery"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/extraction"
	"github.com/user/legalcode-service/internal/proxy"
	"github.com/user/legalcode-service/internal/ratelimit"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/internal/retry"
	"github.com/user/legalcode-service/internal/usecase"
	"github.com/user/legalcode-service/pkg/apperr"
	"github.com/user/legalcode-service/pkg/config"
	"github.com/user/legalcode-service/pkg/tracing"
)

const maxSitemaps = 5

// version is stamped at build time with -ldflags "-X .../internal/app.version=...".
var version = "dev"

// App holds the wired pipeline and the connections it owns.
type App struct {
	Runs      usecase.RunManager
	Scheduler *usecase.Scheduler
	Seeder    *usecase.Seeder
	Checks    map[string]handler.HealthCheck

	db       *pgxpool.Pool
	rdb      *redis.Client
	renderer *chromedp_crawler.ChromedpRenderer
	tracing  *tracing.Provider
}

// New connects to PostgreSQL and Redis, applies migrations and builds every
// stage. base outlives individual requests and bounds background runs.
func New(ctx context.Context, base context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("PostgreSQL connection pool established")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	logger.Info("Redis connection established")

	a := &App{db: db, rdb: rdb}
	if err := a.wire(ctx, base, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx, base context.Context, cfg *config.Config, logger *zap.Logger) error {
	clk := clock.Real{}

	tp, err := tracing.Init(ctx, TracingConfig(cfg))
	if err != nil {
		return err
	}
	a.tracing = tp
	if tp.Enabled() {
		logger.Info("Tracing enabled", zap.String("exporter", cfg.TracingExporter), zap.String("endpoint", cfg.TracingEndpoint))
	}

	// --- Repositories ---
	locations := postgres.NewLocationRepo(a.db)
	datapoints := postgres.NewDatapointRepo(a.db)
	queries := postgres.NewQueryRepo(a.db)
	results := postgres.NewSearchResultRepo(a.db)
	snapshots := postgres.NewSnapshotRepo(a.db)
	docs := postgres.NewDocumentRepo(a.db)
	versions := postgres.NewVersionRepo(a.db)
	failures := postgres.NewFailureRepo(a.db)
	runs := postgres.NewRunRepo(a.db)

	queue := redis_adapter.NewQueueRepo(a.rdb)
	freshness := redis_adapter.NewFreshnessRepo(a.rdb)
	locker := redis_adapter.NewLocker(a.rdb, cfg.LockTTL, logger)

	blobs, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	// --- Collaborators ---
	quotas := ratelimit.NewManager(clk, Policies(cfg))
	policy := RetryPolicy(cfg)

	proxies, err := proxy.NewManager(cfg.ProxyURLs, nil)
	if err != nil {
		return err
	}
	fetcher := httpfetch.New(proxies, cfg.FetchTimeout, logger)

	var renderer repository.Renderer
	if cfg.HeadlessEnabled {
		a.renderer = chromedp_crawler.NewChromedpRenderer(cfg.HeadlessPool, cfg.HeadlessTimeout, "", logger)
		renderer = a.renderer
	}

	engine, err := newSearchEngine(ctx, cfg, quotas, logger)
	if err != nil {
		return err
	}

	archive := wayback.New(wayback.Config{
		BaseURL:   cfg.WaybackBaseURL,
		AccessKey: cfg.WaybackAccessKey,
		SecretKey: cfg.WaybackSecretKey,
		Timeout:   cfg.FetchTimeout,
		Acquire: func(ctx context.Context) error {
			return quotas.Acquire(ctx, ratelimit.ArchiveKey())
		},
	}, logger)

	notifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	runner := extraction.ExecRunner{}
	registry := extraction.NewRegistry(
		extraction.NewHTMLExtractor(),
		extraction.NewPDFExtractor(runner,
			extraction.WithOCR(ocr.New(runner, cfg.OCRLanguage, cfg.ToolTempDir, logger)),
			extraction.WithMinTextChars(cfg.MinTextChars),
			extraction.WithTempDir(cfg.ToolTempDir),
		),
		extraction.NewDOCXExtractor(),
		extraction.NewXLSXExtractor(),
	)

	// --- Use Cases ---
	validator := usecase.NewValidator()
	stages := usecase.Stages{
		Validator: validator,
		Generator: usecase.NewQueryGenerator(queries, clk, logger),
		Search: usecase.NewSearchOrchestrator(engine, queries, results, quotas, clk, usecase.SearchConfig{
			Freshness:  cfg.QueryFreshness,
			MaxResults: cfg.ResultsPerQuery,
			Retry:      policy,
		}, logger),
		Archival: usecase.NewArchivalOrchestrator(archive, snapshots, quotas, clk, policy, logger),
		Fetcher: usecase.NewContentFetcher(fetcher, renderer, docs, blobs, freshness, quotas, clk, usecase.FetcherConfig{
			BlobThreshold: cfg.BlobThreshold,
			Recheck:       cfg.RecheckInterval,
			Retry:         policy,
		}, logger),
		Extractor:  usecase.NewDocumentExtractor(registry, docs, logger),
		Detector:   usecase.NewVersionDetector(versions, locker, clk, logger),
		Discoverer: discovery.NewSitemapDiscoverer(fetcher, quotas, maxSitemaps, logger),
	}
	pipeline := usecase.NewPipeline(locations, datapoints, failures, notifier, stages, clk,
		usecase.PipelineConfig{MaxCandidates: cfg.MaxCandidates}, logger)

	a.Scheduler = usecase.NewScheduler(pipeline, locations, datapoints, queue, runs, clk, usecase.SchedulerConfig{
		Workers:    cfg.Workers,
		RunTimeout: cfg.RunTimeout,
	}, logger)
	a.Runs = usecase.NewRunManager(base, a.Scheduler, runs, failures, logger)
	a.Seeder = usecase.NewSeeder(locations, datapoints, validator, logger)
	a.Checks = map[string]handler.HealthCheck{
		"postgres": a.db.Ping,
		"redis":    func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() },
	}
	return nil
}

// Close releases the browser, the pool and the Redis client.
func (a *App) Close() {
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.tracing.Shutdown(ctx)
		cancel()
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Policies maps the quota settings onto rate limiter classes.
func Policies(cfg *config.Config) map[ratelimit.Class]ratelimit.Policy {
	return map[ratelimit.Class]ratelimit.Policy{
		ratelimit.ClassSearch:  {RatePerSecond: cfg.SearchRate, Burst: cfg.SearchBurst, MaxWait: cfg.SearchMaxWait},
		ratelimit.ClassArchive: {RatePerSecond: cfg.ArchiveRate, Burst: cfg.ArchiveBurst, MaxWait: cfg.ArchiveMaxWait},
		ratelimit.ClassFetch:   {RatePerSecond: cfg.FetchRate, Burst: cfg.FetchBurst, MaxWait: cfg.FetchMaxWait},
	}
}

func TracingConfig(cfg *config.Config) tracing.Config {
	return tracing.Config{
		ServiceName: cfg.ServiceName,
		Version:     version,
		Exporter:    cfg.TracingExporter,
		Endpoint:    cfg.TracingEndpoint,
		Insecure:    cfg.TracingInsecure,
		SampleRate:  cfg.TracingSampleRate,
	}
}

func RetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Multiplier:  cfg.RetryMultiplier,
		Jitter:      cfg.RetryJitter,
	}
}

func newSearchEngine(ctx context.Context, cfg *config.Config, quotas *ratelimit.Manager, logger *zap.Logger) (repository.SearchEngine, error) {
	if cfg.GoogleAPIKey == "" || cfg.GoogleEngineID == "" {
		logger.Warn("GOOGLE_API_KEY or GOOGLE_ENGINE_ID not set; search stage will fail every unit")
		return disabledEngine{}, nil
	}
	return googlesearch.New(ctx, googlesearch.Config{
		APIKey:     cfg.GoogleAPIKey,
		EngineID:   cfg.GoogleEngineID,
		Endpoint:   cfg.SearchEndpoint,
		MaxResults: cfg.ResultsPerQuery,
		Acquire: func(ctx context.Context) error {
			return quotas.Acquire(ctx, ratelimit.SearchKey("google"))
		},
	}, logger)
}

func newNotifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Notifier, error) {
	sinks := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.AlertEventBus == "" {
		return sinks, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	sinks = append(sinks, notify.NewEventBridgeNotifier(eventbridge.NewFromConfig(awsCfg), cfg.AlertEventBus, cfg.AlertSource, logger))
	logger.Info("EventBridge alerting enabled", zap.String("event_bus", cfg.AlertEventBus))
	return sinks, nil
}

var errSearchDisabled = errors.New("no search engine configured")

type disabledEngine struct{}

func (disabledEngine) Name() string { return "disabled" }

func (disabledEngine) Search(context.Context, string) ([]entity.SearchHit, error) {
	return nil, apperr.Unsupported("search", errSearchDisabled)
}
