// Package pipeline runs one ingestion: extract, normalize, reconcile, commit, digest, notify.
//
// Fatal errors (extraction, empty snapshot, store failures) abort before or inside the
// single commit transaction, so a failed run never leaves a partial period behind.
// Notification failures are logged and reported on the Result; they never fail a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/digest"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/extract"
	"github.com/aristath/treasury/internal/history"
	"github.com/aristath/treasury/internal/normalize"
	"github.com/aristath/treasury/internal/notify"
	"github.com/aristath/treasury/internal/reconcile"
	"github.com/aristath/treasury/internal/snapshot"
)

const module = "pipeline"

// Config holds the per-deployment settings of a run
type Config struct {
	Markers extract.Markers
	Layout  snapshot.Layout
	Digest  digest.Formatter
	Subject string // Email subject for digests
}

// DefaultConfig returns the settings for the public companies holdings table
func DefaultConfig() Config {
	return Config{
		Markers: extract.Markers{Start: "Public Companies that Own Bitcoin", Totals: "Totals"},
		Layout:  snapshot.DefaultLayout(),
		Digest:  digest.Formatter{Threshold: digest.DefaultThreshold, Unit: "BTC", Mode: digest.ModePlain},
		Subject: "Bitcoin treasury changes",
	}
}

// RunRecorder persists the audit trail of runs
type RunRecorder interface {
	Start(ctx context.Context, run history.Run) error
	Finish(ctx context.Context, run history.Run) error
	Archive(ctx context.Context, runID string, section history.SectionArchive) error
}

// Result is the outcome of one successful run
type Result struct {
	RunID     string                   `json:"run_id"`
	Period    domain.Period            `json:"period_key"`
	Baseline  domain.Period            `json:"baseline_period_key,omitempty"`
	Accepted  int                      `json:"accepted"`
	Rejected  []*normalize.RowRejected `json:"rejected,omitempty"`
	Report    reconcile.Report         `json:"report"`
	Movers    []domain.Delta           `json:"movers,omitempty"`
	Digest    string                   `json:"digest,omitempty"`
	Duplicate bool                     `json:"duplicate"`
	Notified  bool                     `json:"notified"`
	NotifyErr error                    `json:"-"`
}

// Pipeline wires the stages together
type Pipeline struct {
	cfg       Config
	store     history.Store
	runs      RunRecorder
	notifiers []notify.Notifier
	clock     domain.Clock
	events    *events.Manager
	log       zerolog.Logger
	newID     func() string
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithClock pins the clock used for the period key
func WithClock(c domain.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithNotifiers sets the delivery channels; none means digests are only returned
func WithNotifiers(n ...notify.Notifier) Option {
	return func(p *Pipeline) { p.notifiers = n }
}

// WithRunRecorder enables the run audit trail
func WithRunRecorder(r RunRecorder) Option {
	return func(p *Pipeline) { p.runs = r }
}

// WithEvents publishes pipeline events on m
func WithEvents(m *events.Manager) Option {
	return func(p *Pipeline) { p.events = m }
}

// New creates a pipeline on a store
func New(cfg Config, store history.Store, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		store: store,
		clock: domain.SystemClock,
		log:   log.With().Str("component", module).Logger(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests one raw document
func (p *Pipeline) Run(ctx context.Context, doc string) (*Result, error) {
	started := time.Now()
	period := domain.PeriodOf(p.clock.Now())
	res := &Result{RunID: p.newID(), Period: period}
	log := p.log.With().Str("run_id", res.RunID).Str("period", period.String()).Logger()

	p.startRun(ctx, res, started, log)
	p.events.Emit(module, &events.RunStartedData{RunID: res.RunID, Period: period.String()})

	err := p.run(ctx, doc, res, log)

	status := history.RunCommitted
	switch {
	case err != nil:
		status = history.RunFailed
	case res.Duplicate:
		status = history.RunDuplicate
	}
	p.finishRun(ctx, res, status, err, log)
	p.events.Emit(module, &events.RunFinishedData{
		RunID:    res.RunID,
		Period:   period.String(),
		Status:   string(status),
		Accepted: res.Accepted,
		Rejected: len(res.Rejected),
		Records:  res.Accepted,
		Quantity: res.Report.Aggregate.Quantity,
		Seconds:  time.Since(started).Seconds(),
	})

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, doc string, res *Result, log zerolog.Logger) error {
	table, err := extract.Section(doc, p.cfg.Markers)
	if err != nil {
		return p.fail(res, "extract", err, log)
	}
	p.archive(ctx, res.RunID, table, log)

	builder := snapshot.NewBuilder(p.cfg.Layout, domain.PeriodClock(res.Period), log)
	built, err := builder.BuildTable(table)
	if built != nil {
		res.Rejected = built.Rejected
		for _, r := range built.Rejected {
			p.events.Emit(module, &events.RowRejectedData{
				RunID:  res.RunID,
				Line:   r.Line,
				Entity: r.Entity,
				Column: r.Column,
				Reason: r.Reason,
			})
		}
	}
	if err != nil {
		return p.fail(res, "build", err, log)
	}
	snap := built.Snapshot
	res.Accepted = snap.Len()

	p.events.Emit(module, &events.SnapshotBuiltData{
		RunID:    res.RunID,
		Period:   res.Period.String(),
		Accepted: res.Accepted,
		Rejected: len(res.Rejected),
	})

	latest, hasHistory, err := p.store.LatestPeriod(ctx)
	if err != nil {
		return p.fail(res, "baseline", fmt.Errorf("failed to read latest period: %w", err), log)
	}
	if hasHistory && latest == res.Period {
		p.duplicate(res, log)
		return nil
	}
	if hasHistory && res.Period.Before(latest) {
		return p.fail(res, "baseline", fmt.Errorf("%w: %s < %s", history.ErrOutOfOrderPeriod, res.Period, latest), log)
	}

	var baseline []domain.Record
	if hasHistory {
		baseline, err = p.store.Records(ctx, latest)
		if err != nil {
			return p.fail(res, "baseline", fmt.Errorf("failed to load baseline %s: %w", latest, err), log)
		}
		res.Baseline = latest
	}

	res.Report = reconcile.Reconcile(snap, baseline)
	res.Movers = p.cfg.Digest.Ranked(res.Report)

	committed, err := p.store.Commit(ctx, snap, res.Report.Deltas)
	if err != nil {
		return p.fail(res, "commit", fmt.Errorf("failed to commit period: %w", err), log)
	}
	if committed.Duplicate {
		// Another run committed this period between our read and our write
		p.duplicate(res, log)
		return nil
	}

	log.Info().
		Str("baseline", res.Baseline.String()).
		Int("accepted", res.Accepted).
		Int("rejected", len(res.Rejected)).
		Int("new", res.Report.Aggregate.New).
		Int("changed", res.Report.Aggregate.Changed).
		Int("removed", res.Report.Aggregate.Removed).
		Float64("net_change", res.Report.Aggregate.NetChange).
		Msg("Period committed")

	p.events.Emit(module, &events.PeriodCommittedData{
		RunID:     res.RunID,
		Period:    res.Period.String(),
		Baseline:  res.Baseline.String(),
		Records:   committed.Inserted,
		Movers:    len(res.Movers),
		NetChange: res.Report.Aggregate.NetChange,
	})

	text, ok := p.cfg.Digest.Format(res.Report)
	if !ok {
		reason := "no entity met the threshold"
		if !hasHistory {
			reason = "no baseline period"
		}
		log.Info().Str("reason", reason).Msg("Digest skipped")
		p.events.Emit(module, &events.DigestSkippedData{RunID: res.RunID, Reason: reason})
		return nil
	}
	res.Digest = text

	p.notify(ctx, res, log)
	return nil
}

// notify delivers the digest to every channel. Failures are logged and kept on the result.
func (p *Pipeline) notify(ctx context.Context, res *Result, log zerolog.Logger) {
	msg := notify.Message{Subject: p.cfg.Subject, Text: res.Digest, Mode: p.cfg.Digest.Mode}

	var errs []error
	for _, n := range p.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			log.Error().Err(err).Str("channel", n.Name()).Msg("Notification failed")
			p.events.Emit(module, &events.NotificationData{RunID: res.RunID, Channel: n.Name(), Error: err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		res.Notified = true
		p.events.Emit(module, &events.NotificationData{RunID: res.RunID, Channel: n.Name()})
	}
	res.NotifyErr = errors.Join(errs...)
}

func (p *Pipeline) duplicate(res *Result, log zerolog.Logger) {
	res.Duplicate = true
	log.Info().Msg("Period already ingested, nothing to do")
	p.events.Emit(module, &events.DuplicatePeriodData{RunID: res.RunID, Period: res.Period.String()})
}

func (p *Pipeline) fail(res *Result, stage string, err error, log zerolog.Logger) error {
	log.Error().Err(err).Str("stage", stage).Msg("Run failed")
	p.events.Emit(module, &events.RunFailedData{RunID: res.RunID, Stage: stage, Error: err.Error()})
	return err
}

func (p *Pipeline) startRun(ctx context.Context, res *Result, started time.Time, log zerolog.Logger) {
	if p.runs == nil {
		return
	}
	if err := p.runs.Start(ctx, history.Run{ID: res.RunID, Period: res.Period, StartedAt: started}); err != nil {
		log.Warn().Err(err).Msg("Failed to record run start")
	}
}

func (p *Pipeline) finishRun(ctx context.Context, res *Result, status history.RunStatus, runErr error, log zerolog.Logger) {
	if p.runs == nil {
		return
	}
	run := history.Run{
		ID:       res.RunID,
		Period:   res.Period,
		Status:   status,
		Accepted: res.Accepted,
		Rejected: len(res.Rejected),
		Movers:   len(res.Movers),
		Notified: res.Notified,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := p.runs.Finish(ctx, run); err != nil {
		log.Warn().Err(err).Msg("Failed to record run result")
	}
}

func (p *Pipeline) archive(ctx context.Context, runID string, t *extract.Table, log zerolog.Logger) {
	if p.runs == nil {
		return
	}
	section := history.SectionArchive{
		Marker:      t.Marker,
		Lines:       t.Lines,
		LineNumbers: t.LineNumbers,
		Totals:      t.Totals,
	}
	if err := p.runs.Archive(ctx, runID, section); err != nil {
		log.Warn().Err(err).Msg("Failed to archive extracted section")
	}
}
