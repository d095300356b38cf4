package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-engine-service/internal/config"
	"quiz-engine-service/internal/infra/postgres"
	rediscache "quiz-engine-service/internal/infra/redis"
	"quiz-engine-service/internal/logging"
	"quiz-engine-service/internal/seed"
)

// NewSeedCmd loads a catalog YAML file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a question catalog file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfigAndLogger(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if file == "" {
				file = cfg.Catalog.File
			}
			if file == "" {
				return fmt.Errorf("no catalog file: pass --file or set catalog.file")
			}
			catalog, err := seed.Load(file)
			if err != nil {
				return err
			}

			writer, closeFn, err := openCatalogWriter(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			_, err = seed.Apply(ctx, writer, catalog, logger)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog YAML file (defaults to catalog.file)")
	return cmd
}

// NewRetireCmd deactivates questions so they are no longer served.
func NewRetireCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "retire QUESTION_ID...",
		Short: "Retire questions in the Postgres catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfigAndLogger(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			writer, closeFn, err := openCatalogWriter(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			for _, id := range args {
				if err := writer.DeactivateQuestion(ctx, id); err != nil {
					return fmt.Errorf("retire %s: %w", id, err)
				}
				logger.Info("question retired", zap.String("question_id", id))
			}
			return nil
		},
	}
}

func loadConfigAndLogger(configPath string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// openCatalogWriter migrates and opens the Postgres catalog. With Redis
// configured, writes go through the Redis catalog so running servers stop
// serving retired questions immediately.
func openCatalogWriter(ctx context.Context, cfg config.Config, logger *zap.Logger) (seed.Writer, func(), error) {
	if cfg.Postgres.URL == "" {
		return nil, nil, fmt.Errorf("postgres url not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	catalog := postgres.NewCatalog(pool)
	if cfg.Redis.Addr == "" {
		return catalog, pool.Close, nil
	}
	redisClient := newRedisClient(cfg)
	writer := rediscache.NewCatalog(redisClient, catalog, config.TTLDuration(cfg.Catalog.CacheTTL, time.Minute), logger.Named("catalog"))
	return writer, func() {
		_ = redisClient.Close()
		pool.Close()
	}, nil
}
