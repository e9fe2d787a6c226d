// Package config assembles a provenance engine from environment-driven
// configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medchain/provenance/pkg/provenance"
	ledgermemory "github.com/medchain/provenance/pkg/provenance/ledger/memory"
	repomemory "github.com/medchain/provenance/pkg/provenance/repo/memory"
	repopg "github.com/medchain/provenance/pkg/provenance/repo/postgres"
	fsstore "github.com/medchain/provenance/pkg/provenance/store/fs"
	memorystore "github.com/medchain/provenance/pkg/provenance/store/memory"
	s3store "github.com/medchain/provenance/pkg/provenance/store/s3"
)

// ServerConfig represents server configuration for the provenance service
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// Auth gateway token verification
	JWTSecret string `env:"JWT_SECRET" env-default:""`

	// Index configuration
	IndexType   string `env:"INDEX_TYPE" env-default:"memory"` // "memory", "postgres"
	DatabaseURL string `env:"DATABASE_URL" env-default:""`

	// Content store configuration
	StoreType  string `env:"STORE_TYPE" env-default:"memory"` // "memory", "fs", "s3"
	FSBaseDir  string `env:"FS_BASE_DIR" env-default:"./data/blobs"`
	S3Region   string `env:"S3_REGION" env-default:"us-east-1"`
	S3Bucket   string `env:"S3_BUCKET" env-default:""`
	S3Endpoint string `env:"S3_ENDPOINT" env-default:""`
	S3AccessKey string `env:"S3_ACCESS_KEY" env-default:""`
	S3SecretKey string `env:"S3_SECRET_KEY" env-default:""`
	S3UsePathStyle bool `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3KeyPrefix string `env:"S3_KEY_PREFIX" env-default:"records"`

	// Ledger configuration. The in-process ledger is the only built-in;
	// a chain-backed adapter plugs in through BuildEngineWithLedger.
	LedgerLatency  time.Duration `env:"LEDGER_LATENCY" env-default:"0s"`
	ConfirmTimeout time.Duration `env:"CONFIRM_TIMEOUT" env-default:"30s"`
}

// Load reads configuration from the environment.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.IndexType != "memory" && c.IndexType != "postgres" {
		return errors.New("index_type must be 'memory' or 'postgres'")
	}
	if c.IndexType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	switch c.StoreType {
	case "memory", "fs":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("s3_bucket is required when using s3")
		}
	default:
		return errors.New("store_type must be 'memory', 'fs' or 's3'")
	}
	return nil
}

// BuildEngine creates an Engine from the configuration using the
// in-process ledger.
func (c *ServerConfig) BuildEngine(ctx context.Context) (provenance.Engine, error) {
	ledger := ledgermemory.New(ledgermemory.WithLatency(c.LedgerLatency))
	return c.BuildEngineWithLedger(ctx, ledger)
}

// BuildEngineWithLedger creates an Engine wired to the given ledger
// adapter.
func (c *ServerConfig) BuildEngineWithLedger(ctx context.Context, ledger provenance.Ledger) (provenance.Engine, error) {
	index, err := c.buildIndex(ctx)
	if err != nil {
		return nil, err
	}

	store, err := c.buildStore()
	if err != nil {
		return nil, err
	}

	return provenance.New(
		provenance.WithLedger(ledger),
		provenance.WithIndex(index),
		provenance.WithContentStore(store),
		provenance.WithConfirmTimeout(c.ConfirmTimeout),
	)
}

func (c *ServerConfig) buildIndex(ctx context.Context) (provenance.IndexRepository, error) {
	switch c.IndexType {
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return repomemory.New(), nil
	}
}

func (c *ServerConfig) buildStore() (provenance.ContentStore, error) {
	switch c.StoreType {
	case "fs":
		return fsstore.New(fsstore.Config{BaseDir: c.FSBaseDir})
	case "s3":
		return s3store.New(s3store.Config{
			Region:          c.S3Region,
			Bucket:          c.S3Bucket,
			Endpoint:        c.S3Endpoint,
			AccessKeyID:     c.S3AccessKey,
			SecretAccessKey: c.S3SecretKey,
			UsePathStyle:    c.S3UsePathStyle,
			KeyPrefix:       c.S3KeyPrefix,
		})
	default:
		return memorystore.New(), nil
	}
}
