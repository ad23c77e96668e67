package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/duelbet/settlement/internal/blob/s3"
	"github.com/duelbet/settlement/internal/cache/redis"
	"github.com/duelbet/settlement/internal/config"
	"github.com/duelbet/settlement/internal/crypto"
	"github.com/duelbet/settlement/internal/domain"
	"github.com/duelbet/settlement/internal/engine"
	"github.com/duelbet/settlement/internal/escrow"
	"github.com/duelbet/settlement/internal/notify"
	"github.com/duelbet/settlement/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Engine
	Registry *engine.Registry
	Platform common.Address
	Token    domain.EscrowToken

	// Stores
	MarketStore domain.MarketStore
	StakeStore  domain.StakeStore
	EventStore  domain.EventStore

	// Redis
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to call on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Engine arena ---
	deps.Platform = common.HexToAddress(cfg.Engine.PlatformAddress)
	deps.Registry = engine.NewRegistry(engine.Config{
		GracePeriod:   cfg.Engine.GracePeriod.Duration,
		ProposalDelay: cfg.Engine.ProposalDelay.Duration,
		MinimumVolume: cfg.Engine.MinimumVolume,
		MaxReversals:  cfg.Engine.MaxReversals,
	}, deps.Platform)

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

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.StakeStore = postgres.NewStakeStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)

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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Escrow token backend ---
	deps.Token, err = wireEscrow(ctx, cfg, deps.Platform)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: escrow: %w", err)
	}

	// --- S3 blob storage (archival only) ---
	if cfg.Archive.Enabled {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.MarketStore,
			deps.StakeStore,
			deps.EventStore,
		)
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

// wireEscrow builds the configured escrow token backend. The memory backend
// escrows into the platform account and is meant for development and tests;
// the erc20 backend escrows into the operator account on chain.
func wireEscrow(ctx context.Context, cfg *config.Config, platform common.Address) (domain.EscrowToken, error) {
	switch cfg.Escrow.Backend {
	case "memory":
		return escrow.NewMemoryToken(platform), nil

	case "erc20":
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Escrow.OperatorKey,
			EncryptedKeyPath: cfg.Escrow.EncryptedKeyPath,
			KeyPassword:      cfg.Escrow.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("load operator key: %w", err)
		}
		token, err := escrow.NewERC20Token(ctx, escrow.ERC20Config{
			RPCURL:         cfg.Escrow.RPCURL,
			TokenAddress:   common.HexToAddress(cfg.Escrow.TokenAddress),
			OperatorKeyHex: keyHex,
			ChainID:        cfg.Escrow.ChainID,
			GasLimit:       cfg.Escrow.GasLimit,
		})
		if err != nil {
			return nil, err
		}
		return token, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Escrow.Backend)
	}
}
