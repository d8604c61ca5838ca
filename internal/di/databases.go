package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/config"
	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/modules/batches"
	"github.com/aristath/treasury/internal/modules/funding"
	"github.com/aristath/treasury/internal/modules/history"
	"github.com/aristath/treasury/internal/modules/ledger"
	"github.com/aristath/treasury/internal/modules/settings"
	"github.com/aristath/treasury/internal/modules/withdrawals"
)

// InitializeDatabases opens both databases and applies schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	treasuryDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "treasury.db"),
		Profile: database.ProfileLedger,
		Name:    "treasury",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open treasury database: %w", err)
	}

	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileLedger,
		Name:    "history",
	})
	if err != nil {
		treasuryDB.Close()
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	container := &Container{
		TreasuryDB: treasuryDB,
		HistoryDB:  historyDB,
	}

	if err := initSchemas(container); err != nil {
		container.Close()
		return nil, err
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}

func initSchemas(c *Container) error {
	treasury := c.TreasuryDB.Conn()
	if err := settings.InitSchema(treasury); err != nil {
		return fmt.Errorf("failed to initialize settings schema: %w", err)
	}
	if err := ledger.InitSchema(treasury); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	if err := withdrawals.InitSchema(treasury); err != nil {
		return fmt.Errorf("failed to initialize withdrawals schema: %w", err)
	}
	if err := batches.InitSchema(treasury); err != nil {
		return fmt.Errorf("failed to initialize batches schema: %w", err)
	}
	if err := funding.InitSchema(treasury); err != nil {
		return fmt.Errorf("failed to initialize funding schema: %w", err)
	}
	if err := history.InitSchema(c.HistoryDB.Conn()); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}
