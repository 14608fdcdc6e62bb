package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Remote backend names accepted by REMOTE_BACKEND.
const (
	BackendS3  = "s3"
	BackendDir = "dir"
)

// Config holds all environment-based configuration for tracker-sync.
type Config struct {
	// Path of the local bbolt database. Defaults to
	// ~/.tracker-sync/tracker.db when empty.
	DBPath string `env:"TRACKER_DB_PATH"`

	// Passphrase protecting the remote snapshot. Required.
	Passphrase string `env:"TRACKER_PASSPHRASE"`

	// RemoteBackend selects the snapshot store: "s3" or "dir".
	RemoteBackend string `env:"REMOTE_BACKEND" envDefault:"s3"`

	// S3 settings (required when the s3 backend is selected).
	S3Bucket    string `env:"S3_BUCKET"`
	S3Key       string `env:"S3_KEY" envDefault:"tracker/snapshot.bin"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`

	// S3Endpoint overrides the AWS endpoint for S3-compatible stores
	// such as MinIO.
	S3Endpoint string `env:"S3_ENDPOINT"`

	// RemoteDir is the snapshot directory (required when the dir backend
	// is selected).
	RemoteDir string `env:"REMOTE_DIR"`

	// SyncInterval is the periodic pull-then-push cadence.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`

	// SyncDebounce is how long after the last local mutation a
	// write-triggered cycle fires.
	SyncDebounce time.Duration `env:"SYNC_DEBOUNCE" envDefault:"30s"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the passphrase to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DBPath == "" {
		path, err := defaultDBPath()
		if err != nil {
			return nil, err
		}

		cfg.DBPath = path
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.RemoteBackend == BackendDir {
		absDir, err := filepath.Abs(cfg.RemoteDir)
		if err != nil {
			return nil, fmt.Errorf("resolving remote dir to absolute path: %w", err)
		}

		cfg.RemoteDir = absDir
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Passphrase == "" {
		return fmt.Errorf("TRACKER_PASSPHRASE is required")
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}

	if c.SyncDebounce <= 0 {
		return fmt.Errorf("SYNC_DEBOUNCE must be positive")
	}

	switch c.RemoteBackend {
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when the s3 backend is selected")
		}

		if c.S3AccessKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY is required when the s3 backend is selected")
		}

		if c.S3SecretKey == "" {
			return fmt.Errorf("S3_SECRET_KEY is required when the s3 backend is selected")
		}

	case BackendDir:
		if c.RemoteDir == "" {
			return fmt.Errorf("REMOTE_DIR is required when the dir backend is selected")
		}

	default:
		return fmt.Errorf("unknown REMOTE_BACKEND %q (expected %q or %q)", c.RemoteBackend, BackendS3, BackendDir)
	}

	return nil
}

// defaultDBPath returns ~/.tracker-sync/tracker.db.
func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".tracker-sync", "tracker.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
