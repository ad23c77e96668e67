// Package config defines the top-level configuration for the settlement
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SETTLE_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Escrow   EscrowConfig   `toml:"escrow"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the settlement engine parameters.
type EngineConfig struct {
	// GracePeriod after the market end time during which stakes still settle.
	GracePeriod duration `toml:"grace_period"`
	// ProposalDelay is the dispute window between proposal and finalization.
	ProposalDelay duration `toml:"proposal_delay"`
	// MinimumVolume a market needs to resolve rather than refund.
	MinimumVolume int64 `toml:"minimum_volume"`
	// MaxReversals bounds post-finalization outcome corrections.
	MaxReversals int `toml:"max_reversals"`
	// PlatformAddress is the only caller allowed to withdraw platform fees
	// and pause market creation.
	PlatformAddress string `toml:"platform_address"`
}

// EscrowConfig selects and configures the escrow token backend.
type EscrowConfig struct {
	// Backend is "memory" or "erc20".
	Backend string `toml:"backend"`
	// RPCURL of the chain node, for the erc20 backend.
	RPCURL string `toml:"rpc_url"`
	// TokenAddress of the ERC-20 contract stakes are escrowed in.
	TokenAddress string `toml:"token_address"`
	// ChainID of the target network.
	ChainID int64 `toml:"chain_id"`
	// GasLimit per transfer transaction.
	GasLimit uint64 `toml:"gas_limit"`
	// OperatorKey is the hex-encoded escrow operator private key.
	OperatorKey string `toml:"operator_key"`
	// EncryptedKeyPath points at an encrypted operator key file.
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey gates API requests; empty disables authentication.
	APIKey string `toml:"api_key"`
	// ClaimRateLimit is the per-caller claim submissions allowed per window.
	ClaimRateLimit int `toml:"claim_rate_limit"`
	// ClaimRateWindow is the sliding window for ClaimRateLimit.
	ClaimRateWindow duration `toml:"claim_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig controls cold-storage archival of finalized markets.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`
	// Interval between archival sweeps.
	Interval duration `toml:"interval"`
	// RetentionDays before a finalized market's journal is moved to S3.
	RetentionDays int `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "48h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "48h".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the standard engine parameters and
// local development endpoints.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			GracePeriod:   duration{5 * time.Minute},
			ProposalDelay: duration{48 * time.Hour},
			MinimumVolume: 10_000,
			MaxReversals:  2,
		},
		Escrow: EscrowConfig{
			Backend:  "memory",
			ChainID:  137,
			GasLimit: 100_000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "settlement",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settlement-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			ClaimRateLimit:  10,
			ClaimRateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "market_refunding", "resolution_reversed", "error"},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{time.Hour},
			RetentionDays: 90,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"engine":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, engine, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.GracePeriod.Duration < 0 {
		errs = append(errs, "engine: grace_period must not be negative")
	}
	if c.Engine.ProposalDelay.Duration <= 0 {
		errs = append(errs, "engine: proposal_delay must be positive")
	}
	if c.Engine.MinimumVolume < 0 {
		errs = append(errs, "engine: minimum_volume must not be negative")
	}
	if c.Engine.MaxReversals < 0 {
		errs = append(errs, "engine: max_reversals must not be negative")
	}
	if c.Engine.PlatformAddress == "" {
		errs = append(errs, "engine: platform_address must be set")
	}

	// Escrow
	switch c.Escrow.Backend {
	case "memory":
	case "erc20":
		if c.Escrow.RPCURL == "" {
			errs = append(errs, "escrow: rpc_url is required for the erc20 backend")
		}
		if c.Escrow.TokenAddress == "" {
			errs = append(errs, "escrow: token_address is required for the erc20 backend")
		}
		if c.Escrow.OperatorKey == "" && c.Escrow.EncryptedKeyPath == "" {
			errs = append(errs, "escrow: either operator_key or encrypted_key_path must be set for the erc20 backend")
		}
		if c.Escrow.EncryptedKeyPath != "" && c.Escrow.KeyPassword == "" {
			errs = append(errs, "escrow: key_password is required when encrypted_key_path is set")
		}
		if c.Escrow.ChainID <= 0 {
			errs = append(errs, "escrow: chain_id must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("escrow: unknown backend %q (valid: memory, erc20)", c.Escrow.Backend))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only needed when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must not be negative")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.ClaimRateLimit < 1 {
			errs = append(errs, "server: claim_rate_limit must be >= 1")
		}
		if c.Server.ClaimRateWindow.Duration <= 0 {
			errs = append(errs, "server: claim_rate_window must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
