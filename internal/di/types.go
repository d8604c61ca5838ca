// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/treasury/internal/auth"
	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/domain"
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

// Container holds all initialized dependencies.
//
// Two databases back the engine: treasury.db carries the live custody state
// (allocations, policy, proposals, batches, pools, settings) and history.db
// carries the append-only audit trail and aggregate counters. Both run on
// the ledger profile.
type Container struct {
	// Databases
	TreasuryDB *database.DB
	HistoryDB  *database.DB

	// Cross-cutting infrastructure
	EventManager *events.Manager
	Metrics      *metrics.Registry
	PromRegistry *prometheus.Registry
	Auth         *auth.Registry
	Sink         domain.DisbursementSink

	// Repositories
	LedgerRepo     *ledger.Repository
	HistoryRepo    *history.Repository
	WithdrawalRepo *withdrawals.Repository
	BatchRepo      *batches.Repository
	SettingsRepo   *settings.Repository
	PoolRepo       *funding.Repository

	// Services
	SettingsService   *settings.Service
	HistoryService    *history.Service
	EmergencyControl  *emergency.Controller
	LedgerService     *ledger.Service
	WithdrawalService *withdrawals.Service
	BatchService      *batches.Service
	FundingService    *funding.Service

	// Optional S3 backup pipeline, nil when no bucket is configured.
	BackupService *reliability.BackupService
}

// Databases returns the named database handles for maintenance jobs and backups.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"treasury": c.TreasuryDB,
		"history":  c.HistoryDB,
	}
}

// Close closes all database connections.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range []*database.DB{c.TreasuryDB, c.HistoryDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
