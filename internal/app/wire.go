package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/openfloor/tradedesk/internal/blob/s3"
	"github.com/openfloor/tradedesk/internal/cache/redis"
	"github.com/openfloor/tradedesk/internal/config"
	"github.com/openfloor/tradedesk/internal/domain"
	"github.com/openfloor/tradedesk/internal/notify"
	"github.com/openfloor/tradedesk/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the desk needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Postgres *postgres.Client
	Redis    *redis.Client

	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	Blob     *s3blob.Client   // nil when S3 is disabled
	Archiver *s3blob.Archiver // nil when S3 is disabled
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.Postgres = pgClient

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- S3 blob storage (optional archive target) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Blob = s3Client
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), cfg.Archive.Prefix)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
