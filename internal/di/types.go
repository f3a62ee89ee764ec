// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/exporter"
	"github.com/aristath/treasury/internal/history"
	"github.com/aristath/treasury/internal/metrics"
	"github.com/aristath/treasury/internal/notify"
	"github.com/aristath/treasury/internal/pipeline"
	"github.com/aristath/treasury/internal/reliability"
	"github.com/aristath/treasury/internal/scheduler"
	"github.com/aristath/treasury/internal/source"
)

// Container holds all dependencies for the application.
// It is created by Wire and is the single source of truth for service instances.
type Container struct {
	// Database
	HistoryDB *database.DB

	// Repositories
	Store *history.SQLiteStore
	Runs  *history.RunRepository

	// Services
	Events    *events.Manager
	Metrics   *metrics.Metrics
	Source    source.Source
	Notifiers []notify.Notifier
	Pipeline  *pipeline.Pipeline
	Exporter  *exporter.Exporter
	Backup    *reliability.BackupService // nil when backups are disabled
}

// Close releases the database
func (c *Container) Close() error {
	if c == nil || c.HistoryDB == nil {
		return nil
	}
	return c.HistoryDB.Close()
}

// JobInstances holds references to the scheduled jobs for manual triggering
type JobInstances struct {
	Ingest      *scheduler.IngestJob
	Integrity   *scheduler.CheckHistoryDatabaseJob
	WAL         *scheduler.CheckWALCheckpointsJob
	Maintenance *reliability.DailyMaintenanceJob
}
