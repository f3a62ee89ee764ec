package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/database"
)

// CheckHistoryDatabaseJob verifies integrity of the history database
type CheckHistoryDatabaseJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewCheckHistoryDatabaseJob creates a new CheckHistoryDatabaseJob
func NewCheckHistoryDatabaseJob(db *database.DB) *CheckHistoryDatabaseJob {
	return &CheckHistoryDatabaseJob{
		log: zerolog.Nop(),
		db:  db,
	}
}

// SetLogger sets the logger for the job
func (j *CheckHistoryDatabaseJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *CheckHistoryDatabaseJob) Name() string {
	return "check_history_database"
}

// Run executes the integrity check
func (j *CheckHistoryDatabaseJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("Database not initialized, skipping")
		return nil
	}

	if err := j.db.HealthCheck(context.Background()); err != nil {
		// Corruption of the append-only ledger cannot be repaired automatically
		j.log.Error().
			Err(err).
			Str("database", j.db.Name()).
			Msg("History database integrity check failed")
		return fmt.Errorf("database %s is corrupted: %w", j.db.Name(), err)
	}

	j.log.Info().Str("database", j.db.Name()).Msg("History database integrity check passed")
	return nil
}
