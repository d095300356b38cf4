package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-engine-service/internal/app"
	"quiz-engine-service/internal/config"
	"quiz-engine-service/internal/domain"
	"quiz-engine-service/internal/infra/memory"
	"quiz-engine-service/internal/infra/postgres"
	rediscache "quiz-engine-service/internal/infra/redis"
	"quiz-engine-service/internal/logging"
	"quiz-engine-service/internal/metrics"
	"quiz-engine-service/internal/seed"
	transport "quiz-engine-service/internal/transport/http"
)

// catalogStore is what the server needs from a durable catalog.
type catalogStore interface {
	app.CatalogReader
	seed.Writer
	ListTopics(ctx context.Context) ([]domain.Topic, error)
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		catalog    catalogStore
		ledgerRepo app.LedgerRepository
		seedFile   *seed.File
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		catalog = postgres.NewCatalog(pool)
		ledgerRepo = postgres.NewLedgerStore(pool)
	} else {
		if cfg.Catalog.File != "" {
			file, err := seed.Load(cfg.Catalog.File)
			if err != nil {
				return err
			}
			seedFile = &file
		}
		catalog = memory.NewCatalog()
		ledgerRepo = memory.NewLedgerStore()
	}

	cacheTTL := config.TTLDuration(cfg.Catalog.CacheTTL, time.Minute)
	batchTTL := config.TTLDuration(cfg.Quiz.BatchTTL, time.Hour)

	var (
		cached   memory.CatalogSource = catalog
		batches  app.BatchRepository
		sessions app.SessionRepository
	)
	if cfg.Redis.Addr != "" {
		redisClient := newRedisClient(cfg)
		defer redisClient.Close()
		cached = rediscache.NewCatalog(redisClient, catalog, cacheTTL, logger.Named("catalog"))
		batches = rediscache.NewBatchStore(redisClient, batchTTL)
		sessions = rediscache.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	} else {
		batches = memory.NewBatchStore(batchTTL)
		sessions = memory.NewSessionStore()
	}
	reader := memory.NewTopicCache(cached, cacheTTL)

	// Seed through the caches so pools left in Redis by an earlier run are dropped.
	if seedFile != nil {
		if _, err := seed.Apply(ctx, reader, *seedFile, logger.Named("seed")); err != nil {
			return err
		}
	}

	m := metrics.New()
	sampler := app.NewSampler(reader, app.WithSamplerMetrics(m), app.WithSamplerLogger(logger.Named("sampler")))
	ledger := app.NewLedger(ledgerRepo, logger.Named("ledger"), m)
	service := app.NewQuizService(sampler, ledger, batches, sessions, app.ServiceConfig{
		Limits: app.Limits{Default: cfg.Quiz.DefaultLimit, Max: cfg.Quiz.MaxLimit},
		Retry: app.RetryPolicy{
			MaxAttempts:     cfg.Ledger.MaxAttempts,
			InitialInterval: config.TTLDuration(cfg.Ledger.InitialBackoff, app.DefaultRetryPolicy.InitialInterval),
			MaxInterval:     config.TTLDuration(cfg.Ledger.MaxBackoff, app.DefaultRetryPolicy.MaxInterval),
		},
		Logger:  logger.Named("service"),
		Metrics: m,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", m.Handler())
	transport.NewHandler(service, catalog, logger.Named("http")).Register(mux)
	mux.HandleFunc("GET /ws", transport.NewWSHandler(service, logger.Named("ws")).ServeWS)

	var handler http.Handler = mux
	if cfg.RateLimit.RequestsPerSecond > 0 {
		handler = transport.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).Middleware(handler)
	}
	handler = transport.Instrument(handler, m, logger.Named("http"))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz engine", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
