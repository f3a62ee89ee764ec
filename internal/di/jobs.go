package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/config"
	"github.com/aristath/treasury/internal/reliability"
	"github.com/aristath/treasury/internal/scheduler"
)

// Maintenance schedules (cron with seconds)
const (
	integritySchedule   = "0 30 3 * * SUN"
	walSchedule         = "0 0 */6 * * *"
	maintenanceSchedule = "0 0 2 * * *"
)

// RegisterJobs creates the background jobs and registers them with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{}

	// Backups only run after a committed period; a nil service disables them
	var backup scheduler.Backuper
	if container.Backup != nil {
		backup = container.Backup
	}
	instances.Ingest = scheduler.NewIngestJob(container.Source, container.Pipeline, backup)
	instances.Ingest.SetLogger(log)

	instances.Integrity = scheduler.NewCheckHistoryDatabaseJob(container.HistoryDB)
	instances.Integrity.SetLogger(log)

	instances.WAL = scheduler.NewCheckWALCheckpointsJob(container.HistoryDB)
	instances.WAL.SetLogger(log)

	instances.Maintenance = reliability.NewDailyMaintenanceJob(container.HistoryDB, cfg.DataDir, log)

	if sched == nil {
		return instances, nil
	}

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedule, instances.Ingest},
		{integritySchedule, instances.Integrity},
		{walSchedule, instances.WAL},
		{maintenanceSchedule, instances.Maintenance},
	}
	for _, r := range registrations {
		if err := sched.AddJob(r.schedule, r.job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", r.job.Name(), err)
		}
	}

	return instances, nil
}
