package reliability

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/treasury/internal/database"
)

// Disk thresholds in bytes
const (
	criticalFreeBytes = 500 * 1000 * 1000
	lowFreeBytes      = 5 * 1000 * 1000 * 1000
)

// DiskUsageFunc reports free space for a path
type DiskUsageFunc func(path string) (free uint64, err error)

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// DailyMaintenanceJob checks disk headroom and logs database growth
type DailyMaintenanceJob struct {
	db      *database.DB
	dataDir string
	free    DiskUsageFunc
	log     zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		db:      db,
		dataDir: dataDir,
		free:    diskFree,
		log:     log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	if err := j.checkDiskSpace(); err != nil {
		return err
	}
	j.analyzeDatabaseGrowth()
	return nil
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// checkDiskSpace fails when the data directory cannot hold another commit
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	free, err := j.free(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	switch {
	case free < criticalFreeBytes:
		j.log.Error().Str("free", humanize.Bytes(free)).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %s free in %s", humanize.Bytes(free), j.dataDir)
	case free < lowFreeBytes:
		j.log.Warn().Str("free", humanize.Bytes(free)).Msg("Disk space running low")
	default:
		j.log.Debug().Str("free", humanize.Bytes(free)).Msg("Disk space check")
	}
	return nil
}

// analyzeDatabaseGrowth logs the size of the history database
func (j *DailyMaintenanceJob) analyzeDatabaseGrowth() {
	if j.db == nil {
		return
	}
	stats, err := j.db.GetStats()
	if err != nil {
		j.log.Error().Err(err).Str("database", j.db.Name()).Msg("Failed to get metrics")
		return
	}

	j.log.Info().
		Str("database", j.db.Name()).
		Str("size", humanize.Bytes(uint64(stats.SizeBytes))).
		Str("wal_size", humanize.Bytes(uint64(stats.WALSizeBytes))).
		Int64("pages", stats.PageCount).
		Int64("free_pages", stats.FreelistCount).
		Msg("Database metrics")
}
