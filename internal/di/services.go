package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/auth"
	"github.com/aristath/treasury/internal/config"
	"github.com/aristath/treasury/internal/disbursement"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/metrics"
	"github.com/aristath/treasury/internal/modules/batches"
	"github.com/aristath/treasury/internal/modules/emergency"
	"github.com/aristath/treasury/internal/modules/funding"
	"github.com/aristath/treasury/internal/modules/history"
	"github.com/aristath/treasury/internal/modules/ledger"
	"github.com/aristath/treasury/internal/modules/settings"
	"github.com/aristath/treasury/internal/modules/withdrawals"
	"github.com/aristath/treasury/internal/reliability"
)

// InitializeRepositories creates all repositories.
func InitializeRepositories(c *Container, log zerolog.Logger) error {
	treasury := c.TreasuryDB.Conn()

	c.SettingsRepo = settings.NewRepository(treasury, log)
	c.LedgerRepo = ledger.NewRepository(treasury, log)
	c.WithdrawalRepo = withdrawals.NewRepository(treasury, log)
	c.BatchRepo = batches.NewRepository(treasury, log)
	c.PoolRepo = funding.NewRepository(treasury, log)
	c.HistoryRepo = history.NewRepository(c.HistoryDB.Conn(), log)

	return nil
}

// InitializeServices creates and initializes all services.
//
// Ordering matters: the emergency controller is both the pause gate for
// every workflow service and a disbursement client itself, and the history
// service is the recorder everything settles against. Both come before the
// ledger and the workflow services.
func InitializeServices(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.EventManager = events.NewManager(log)
	c.Metrics, c.PromRegistry = metrics.NewRegistry()

	c.Auth = auth.NewRegistry(log)
	if cfg.Seed != nil {
		for principal, roles := range cfg.Seed.Roles {
			if err := c.Auth.Grant(principal, roles); err != nil {
				return fmt.Errorf("failed to grant roles to %s: %w", principal, err)
			}
		}
	}

	c.SettingsService = settings.NewService(c.SettingsRepo, settings.Defaults{
		MultisigThreshold:           cfg.MultisigThreshold,
		TimelockSeconds:             int64(cfg.TimelockSeconds),
		LargeWithdrawalThresholdBps: cfg.LargeWithdrawalThresholdBps,
	}, c.EventManager, log)

	c.HistoryService = history.NewService(c.HistoryDB.Conn(), c.HistoryRepo, c.Metrics, log)
	if err := c.HistoryService.Init(); err != nil {
		return fmt.Errorf("failed to initialize history service: %w", err)
	}

	// The breaker wraps whatever sink actually moves funds. The log sink is
	// the development default; a production build swaps in a real rail here.
	c.Sink = disbursement.NewBreakerSink(disbursement.NewLogSink(log), c.Metrics, log)

	c.EmergencyControl = emergency.NewController(
		c.SettingsService, c.HistoryService, c.Sink, c.EventManager, c.Metrics, log)
	if err := c.EmergencyControl.Init(); err != nil {
		return fmt.Errorf("failed to restore pause state: %w", err)
	}

	c.LedgerService = ledger.NewService(
		c.TreasuryDB.Conn(), c.LedgerRepo, c.EmergencyControl, c.HistoryService,
		c.EventManager, c.Metrics, log)

	seedPolicy := config.DefaultSeedPolicy()
	if cfg.Seed != nil && len(cfg.Seed.Policy) > 0 {
		seedPolicy = cfg.Seed.Policy
	}
	if err := c.LedgerService.Init(seedPolicy); err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	c.WithdrawalService = withdrawals.NewService(
		c.WithdrawalRepo, c.LedgerService, c.HistoryService, c.SettingsService,
		c.EmergencyControl, c.Sink, c.EventManager, c.Metrics, log)

	c.BatchService = batches.NewService(
		c.BatchRepo, c.LedgerService, c.HistoryService,
		c.EmergencyControl, c.Sink, c.EventManager, c.Metrics, log)

	c.FundingService = funding.NewService(
		c.PoolRepo, c.LedgerService, c.HistoryService,
		c.EmergencyControl, c.Sink, c.EventManager, c.Metrics, log)

	if cfg.Seed != nil && len(cfg.Seed.Pools) > 0 {
		pools := make([]funding.Pool, 0, len(cfg.Seed.Pools))
		for _, p := range cfg.Seed.Pools {
			pools = append(pools, funding.Pool{
				Name:      p.Name,
				Recipient: p.Recipient,
				Category:  p.Category,
			})
		}
		if err := c.FundingService.Seed(pools); err != nil {
			return fmt.Errorf("failed to seed funding pools: %w", err)
		}
	}

	if cfg.Backup.Bucket != "" {
		s3Client, err := reliability.NewS3Client(context.Background(),
			cfg.Backup.Endpoint, cfg.Backup.Bucket,
			cfg.Backup.AccessKey, cfg.Backup.SecretKey, log)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		c.BackupService = reliability.NewBackupService(
			s3Client, c.Databases(), cfg.DataDir, cfg.Backup.Keep, c.EventManager, log)
	}

	return nil
}
