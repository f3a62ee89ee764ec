package di

import (
	"fmt"

	"github.com/aristath/treasury/internal/config"
	"github.com/aristath/treasury/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens history.db and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// history.db - append-only holdings ledger and run audit trail
	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryPath(),
		Profile: database.ProfileLedger, // Maximum safety for immutable history
		Name:    "history",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	if err := historyDB.Migrate(); err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}
	container.HistoryDB = historyDB

	log.Info().Str("path", historyDB.Path()).Msg("History database initialized")
	return container, nil
}
