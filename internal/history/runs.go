package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/domain"
)

// RunStatus is the outcome of one pipeline invocation
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCommitted RunStatus = "committed"
	RunDuplicate RunStatus = "duplicate"
	RunFailed    RunStatus = "failed"
)

// Run is the audit row of one pipeline invocation
type Run struct {
	ID         string        `json:"run_id"`
	Period     domain.Period `json:"period_key"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Accepted   int           `json:"accepted"`
	Rejected   int           `json:"rejected"`
	Movers     int           `json:"movers"`
	Notified   bool          `json:"notified"`
	Error      string        `json:"error,omitempty"`
}

// SectionArchive is the extracted table kept with a run for later inspection
type SectionArchive struct {
	Marker      string   `msgpack:"marker"`
	Lines       []string `msgpack:"lines"`
	LineNumbers []int    `msgpack:"line_numbers"`
	Totals      string   `msgpack:"totals,omitempty"`
}

// RunRepository records pipeline invocations.
// Database: history.db (runs table)
type RunRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRunRepository creates a run repository on a migrated history database
func NewRunRepository(db *database.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("component", "run_repository").Logger(),
	}
}

// Start inserts a run in the running state
func (r *RunRepository) Start(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, period_key, status, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, string(run.Period), string(RunRunning), run.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}
	return nil
}

// Finish stores the final state of a run
func (r *RunRepository) Finish(ctx context.Context, run Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}

	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, accepted = ?, rejected = ?, movers = ?, notified = ?, error = ?
		WHERE run_id = ?
	`, string(run.Status), finished.Unix(), run.Accepted, run.Rejected, run.Movers, boolToInt(run.Notified), errText, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}

	r.log.Debug().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Msg("Run finished")
	return nil
}

// Archive attaches the extracted section to a run
func (r *RunRepository) Archive(ctx context.Context, runID string, section SectionArchive) error {
	blob, err := msgpack.Marshal(&section)
	if err != nil {
		return fmt.Errorf("failed to encode section: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE runs SET section = ? WHERE run_id = ?`, blob, runID); err != nil {
		return fmt.Errorf("failed to archive section for run %s: %w", runID, err)
	}
	return nil
}

// Section returns the archived section of a run, nil when none was stored
func (r *RunRepository) Section(ctx context.Context, runID string) (*SectionArchive, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT section FROM runs WHERE run_id = ?`, runID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read section for run %s: %w", runID, err)
	}
	if len(blob) == 0 {
		return nil, nil
	}

	var section SectionArchive
	if err := msgpack.Unmarshal(blob, &section); err != nil {
		return nil, fmt.Errorf("failed to decode section for run %s: %w", runID, err)
	}
	return &section, nil
}

// Recent returns the latest runs, newest first
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, period_key, status, started_at, finished_at, accepted, rejected, movers, notified, error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			period   string
			status   string
			started  int64
			finished sql.NullInt64
			notified int
			errText  sql.NullString
		)
		err := rows.Scan(&run.ID, &period, &status, &started, &finished,
			&run.Accepted, &run.Rejected, &run.Movers, &notified, &errText)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Period = domain.Period(period)
		run.Status = RunStatus(status)
		run.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			t := time.Unix(finished.Int64, 0).UTC()
			run.FinishedAt = &t
		}
		run.Notified = notified != 0
		run.Error = errText.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
