package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/pipeline"
	"github.com/aristath/treasury/internal/source"
)

// Runner executes one ingestion over a raw document
type Runner interface {
	Run(ctx context.Context, doc string) (*pipeline.Result, error)
}

// Backuper uploads a snapshot of the history database
type Backuper interface {
	Backup(ctx context.Context) error
}

// ErrAlreadyRunning is returned by IngestJob.Run while another run of the
// same job is in progress
var ErrAlreadyRunning = errors.New("ingestion already running")

// IngestJob fetches the source document and runs the pipeline over it.
// A committed period triggers a backup when one is configured. The cron
// schedule and manual triggers share one job, so at most one run is active.
type IngestJob struct {
	running atomic.Bool

	log     zerolog.Logger
	source  source.Source
	runner  Runner
	backup  Backuper
	timeout time.Duration
}

// NewIngestJob creates a new IngestJob
func NewIngestJob(src source.Source, runner Runner, backup Backuper) *IngestJob {
	return &IngestJob{
		log:     zerolog.Nop(),
		source:  src,
		runner:  runner,
		backup:  backup,
		timeout: 5 * time.Minute,
	}
}

// SetLogger sets the logger for the job
func (j *IngestJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *IngestJob) Name() string {
	return "ingest_holdings"
}

// Running reports whether a run is in progress
func (j *IngestJob) Running() bool {
	return j.running.Load()
}

// Run executes the ingest job
func (j *IngestJob) Run() error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	doc, err := j.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", j.source.Name(), err)
	}

	res, err := j.runner.Run(ctx, doc)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if res.Duplicate || j.backup == nil {
		return nil
	}
	if err := j.backup.Backup(ctx); err != nil {
		// The period is already committed; a failed upload is retried with the next commit
		j.log.Error().Err(err).Str("period", res.Period.String()).Msg("Backup after commit failed")
	}
	return nil
}
