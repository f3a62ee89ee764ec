package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/extract"
	"github.com/aristath/treasury/internal/history"
	testingpkg "github.com/aristath/treasury/internal/testing"
)

func day(s string) domain.Clock {
	t, err := time.Parse(domain.PeriodLayout, s)
	if err != nil {
		panic(err)
	}
	return domain.FixedClock(t.Add(9 * time.Hour))
}

func page(holdings ...testingpkg.Holding) string {
	return testingpkg.HoldingsPage(holdings...)
}

type harness struct {
	store    history.Store
	runs     *history.RunRepository
	notifier *testingpkg.MockNotifier
	events   *events.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testingpkg.NewHistoryDB(t)
	log := zerolog.Nop()
	return &harness{
		store:    history.NewSQLiteStore(db, log),
		runs:     history.NewRunRepository(db, log),
		notifier: testingpkg.NewMockNotifier("mock"),
		events:   events.NewManager(log),
	}
}

func (h *harness) run(t *testing.T, period string, doc string) (*Result, error) {
	t.Helper()
	p := New(DefaultConfig(), h.store, zerolog.Nop(),
		WithClock(day(period)),
		WithNotifiers(h.notifier),
		WithRunRecorder(h.runs),
		WithEvents(h.events),
	)
	return p.Run(context.Background(), doc)
}

func countRecords(t *testing.T, s history.Store) int {
	t.Helper()
	all, err := s.Load(context.Background())
	require.NoError(t, err)
	return len(all)
}

func TestPipeline_Scenarios(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Scenario A: empty store, both entities are new, nothing to notify
	res, err := h.run(t, "2024-01-01", page(
		testingpkg.Holding{Entity: "Alpha", Quantity: "100"},
		testingpkg.Holding{Entity: "Beta", Quantity: "50"},
	))
	require.NoError(t, err)
	assert.Equal(t, domain.Period("2024-01-01"), res.Period)
	assert.True(t, res.Baseline.IsZero())
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 2, res.Report.Aggregate.New)
	for _, d := range res.Report.Deltas {
		assert.Equal(t, domain.ClassNew, d.Class)
		assert.Nil(t, d.QuantityChange)
	}
	assert.Empty(t, res.Digest)
	assert.False(t, res.Notified)
	assert.Empty(t, h.notifier.Messages())
	assert.Equal(t, 2, countRecords(t, h.store))

	// Scenario B: Alpha moves by +5, Beta is flat
	res, err = h.run(t, "2024-01-02", page(
		testingpkg.Holding{Entity: "Alpha", Quantity: "105"},
		testingpkg.Holding{Entity: "Beta", Quantity: "50"},
	))
	require.NoError(t, err)
	assert.Equal(t, domain.Period("2024-01-01"), res.Baseline)
	require.Len(t, res.Movers, 1)
	assert.Equal(t, "Alpha", res.Movers[0].EntityID)
	assert.InDelta(t, 5.0, *res.Movers[0].QuantityChange, 1e-9)
	assert.Equal(t, 1, res.Report.Aggregate.Changed)
	assert.Equal(t, 1, res.Report.Aggregate.Unchanged)
	assert.Contains(t, res.Digest, "Alpha increased by 5 BTC to 105 BTC")
	assert.NotContains(t, res.Digest, "Beta")
	assert.Contains(t, res.Digest, "Net change: +5 BTC")
	assert.True(t, res.Notified)
	require.Len(t, h.notifier.Messages(), 1)
	assert.Equal(t, res.Digest, h.notifier.Messages()[0].Text)
	assert.Equal(t, 4, countRecords(t, h.store))

	// Scenario C: the same period again is a no-op and sends nothing
	res, err = h.run(t, "2024-01-02", page(
		testingpkg.Holding{Entity: "Alpha", Quantity: "999"},
		testingpkg.Holding{Entity: "Beta", Quantity: "50"},
	))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, res.Digest)
	assert.Len(t, h.notifier.Messages(), 1)
	assert.Equal(t, 4, countRecords(t, h.store))

	stored, err := h.store.Records(ctx, "2024-01-02")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 105.0, stored[0].Quantity)

	// Scenario D: Beta is de-listed, Alpha reconciles against 2024-01-02
	res, err = h.run(t, "2024-01-03", page(
		testingpkg.Holding{Entity: "Alpha", Quantity: "110"},
	))
	require.NoError(t, err)
	assert.Equal(t, domain.Period("2024-01-02"), res.Baseline)
	require.Len(t, res.Report.Deltas, 1)
	assert.Equal(t, "Alpha", res.Report.Deltas[0].EntityID)
	assert.InDelta(t, 5.0, *res.Report.Deltas[0].QuantityChange, 1e-9)
	require.Len(t, res.Report.Removed, 1)
	assert.Equal(t, "Beta", res.Report.Removed[0].EntityID)
	assert.InDelta(t, 5.0, res.Report.Aggregate.NetChange, 1e-9)
	assert.Equal(t, 5, countRecords(t, h.store))

	periods, err := h.store.Periods(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Period{"2024-01-01", "2024-01-02", "2024-01-03"}, periods)
}

func TestPipeline_RejectedRowDoesNotBlockCommit(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, "2024-01-01", page(
		testingpkg.Holding{Entity: "Alpha", Quantity: "100"},
		testingpkg.Holding{Entity: "Gamma", Quantity: "N/A"},
		testingpkg.Holding{Entity: "Beta", Quantity: "50"},
	))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Accepted)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "Gamma", res.Rejected[0].Entity)
	assert.Equal(t, "# of BTC", res.Rejected[0].Column)
	assert.Equal(t, 2, countRecords(t, h.store))

	rejected := 0
	for _, e := range h.events.Recent(0) {
		if e.Type == events.RowRejected {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)
}

func TestPipeline_FatalErrors(t *testing.T) {
	t.Run("missing marker aborts before touching the store", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run(t, "2024-01-01", "# Something else entirely\n\nNo table here.\n")

		var extractErr *extract.ExtractionError
		require.ErrorAs(t, err, &extractErr)
		assert.Equal(t, 0, countRecords(t, h.store))

		recent, err := h.runs.Recent(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, history.RunFailed, recent[0].Status)
		assert.NotEmpty(t, recent[0].Error)
	})

	t.Run("all rows rejected is an empty snapshot", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run(t, "2024-01-01", page(
			testingpkg.Holding{Entity: "Alpha", Quantity: "N/A"},
		))
		require.Error(t, err)
		assert.Equal(t, 0, countRecords(t, h.store))
	})

	t.Run("older period than the latest is refused", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run(t, "2024-01-05", page(testingpkg.Holding{Entity: "Alpha", Quantity: "1"}))
		require.NoError(t, err)

		_, err = h.run(t, "2024-01-04", page(testingpkg.Holding{Entity: "Alpha", Quantity: "2"}))
		assert.True(t, errors.Is(err, history.ErrOutOfOrderPeriod))
		assert.Equal(t, 1, countRecords(t, h.store))
	})
}

func TestPipeline_NotifierFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "2024-01-01", page(testingpkg.Holding{Entity: "Alpha", Quantity: "100"}))
	require.NoError(t, err)

	failing := testingpkg.NewMockNotifier("broken")
	failing.SetError(errors.New("smtp down"))

	p := New(DefaultConfig(), h.store, zerolog.Nop(),
		WithClock(day("2024-01-02")),
		WithNotifiers(failing, h.notifier),
		WithEvents(h.events),
	)
	res, err := p.Run(context.Background(), page(testingpkg.Holding{Entity: "Alpha", Quantity: "200"}))
	require.NoError(t, err)

	assert.Error(t, res.NotifyErr)
	assert.Contains(t, res.NotifyErr.Error(), "broken")
	assert.True(t, res.Notified)
	assert.Len(t, h.notifier.Messages(), 1)
	assert.Equal(t, 2, countRecords(t, h.store))

	var failed int
	for _, e := range h.events.Recent(0) {
		if e.Type == events.NotificationFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestPipeline_RunAuditTrail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.run(t, "2024-01-01", page(testingpkg.Holding{Entity: "Alpha", Quantity: "100"}))
	require.NoError(t, err)
	_, err = h.run(t, "2024-01-01", page(testingpkg.Holding{Entity: "Alpha", Quantity: "100"}))
	require.NoError(t, err)

	recent, err := h.runs.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, history.RunDuplicate, recent[0].Status)
	assert.Equal(t, history.RunCommitted, recent[1].Status)
	assert.Equal(t, 1, recent[1].Accepted)

	section, err := h.runs.Section(ctx, res.RunID)
	require.NoError(t, err)
	require.NotNil(t, section)
	assert.Contains(t, section.Marker, "Public Companies")
	assert.Len(t, section.Lines, 3)
}

func TestPipeline_DryRunLeavesSourceUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.run(t, "2024-01-01", page(testingpkg.Holding{Entity: "Alpha", Quantity: "100"}))
	require.NoError(t, err)

	scratch, err := history.CopyOf(ctx, h.store)
	require.NoError(t, err)

	p := New(DefaultConfig(), scratch, zerolog.Nop(), WithClock(day("2024-01-02")))
	res, err := p.Run(ctx, page(testingpkg.Holding{Entity: "Alpha", Quantity: "150"}))
	require.NoError(t, err)
	assert.Contains(t, res.Digest, "Alpha increased by 50 BTC")

	assert.Equal(t, 1, countRecords(t, h.store))
	assert.Equal(t, 2, countRecords(t, scratch))
}
