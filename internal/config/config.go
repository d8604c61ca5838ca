// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/treasury/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for both databases, always absolute
	Port     int
	DevMode  bool
	LogLevel string

	// Governance defaults; runtime values live in the settings table and
	// take precedence once the database is initialized.
	MultisigThreshold           int
	TimelockSeconds             int
	LargeWithdrawalThresholdBps int64

	SeedFile string // optional YAML seed (policy, roles, pools)
	Seed     *Seed

	Backup BackupConfig
}

// BackupConfig holds S3-compatible backup storage configuration.
// Backups are disabled when the bucket is empty.
type BackupConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Schedule  string // cron expression
	Keep      int    // number of remote backups to retain
}

// Seed is the YAML bootstrap document: the initial allocation policy,
// principal role assignments, and external funding pools. Authorization
// bootstrap itself is outside the engine; the seed only feeds the registry.
type Seed struct {
	Policy []domain.PolicyEntry `yaml:"policy"`
	Roles  map[string][]string  `yaml:"roles"`
	Pools  []PoolSeed           `yaml:"pools"`
}

// PoolSeed configures one named external funding pool.
type PoolSeed struct {
	Name      string          `yaml:"name"`
	Recipient string          `yaml:"recipient"`
	Category  domain.Category `yaml:"category"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TREASURY_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:                     absDataDir,
		Port:                        getEnvAsInt("TREASURY_PORT", 8010),
		DevMode:                     getEnvAsBool("DEV_MODE", false),
		LogLevel:                    getEnv("LOG_LEVEL", "info"),
		MultisigThreshold:           getEnvAsInt("MULTISIG_THRESHOLD", 2),
		TimelockSeconds:             getEnvAsInt("TIMELOCK_SECONDS", 48*3600),
		LargeWithdrawalThresholdBps: int64(getEnvAsInt("LARGE_WITHDRAWAL_BPS", 1000)),
		SeedFile:                    getEnv("TREASURY_SEED_FILE", ""),
		Backup: BackupConfig{
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Schedule:  getEnv("BACKUP_SCHEDULE", "0 3 * * *"),
			Keep:      getEnvAsInt("BACKUP_KEEP", 14),
		},
	}

	if cfg.SeedFile != "" {
		seed, err := LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		cfg.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSeed parses the YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	if len(seed.Policy) > 0 {
		policy := domain.AllocationPolicy{Entries: seed.Policy}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("invalid seed policy in %s: %w", path, err)
		}
	}

	return &seed, nil
}

// DefaultSeedPolicy is the allocation split used when no seed file provides one.
func DefaultSeedPolicy() []domain.PolicyEntry {
	return []domain.PolicyEntry{
		{Category: domain.CategoryMarketing, Bps: 3000},
		{Category: domain.CategoryPartnerships, Bps: 2000},
		{Category: domain.CategoryDevelopment, Bps: 3000},
		{Category: domain.CategoryBuyback, Bps: 2000},
	}
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.MultisigThreshold < 1 {
		return fmt.Errorf("multisig threshold must be at least 1")
	}
	if c.TimelockSeconds < 0 {
		return fmt.Errorf("timelock duration must not be negative")
	}
	if c.LargeWithdrawalThresholdBps < 0 || c.LargeWithdrawalThresholdBps > domain.BpsDenominator {
		return fmt.Errorf("large withdrawal threshold must be between 0 and 10000 bps")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
