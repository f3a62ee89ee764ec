package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/domain"
)

// SQLiteStore is the Store backed by the holdings table.
// Database: history.db (holdings table)
type SQLiteStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSQLiteStore creates a store on a migrated history database
func NewSQLiteStore(db *database.DB, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		log: log.With().Str("component", "history_store").Logger(),
	}
}

const holdingColumns = `entity_id, country, symbol_exchange, filings_reference,
	quantity, value_metric, share_metric, period_key, quantity_change, value_change`

// Load returns every committed record ordered by (period, entity id)
func (s *SQLiteStore) Load(ctx context.Context) ([]domain.Record, error) {
	entries, err := s.query(ctx, `SELECT `+holdingColumns+` FROM holdings ORDER BY period_key, entity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return records(entries), nil
}

// LatestPeriod returns the most recent committed period
func (s *SQLiteStore) LatestPeriod(ctx context.Context) (domain.Period, bool, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(period_key) FROM holdings`).Scan(&latest); err != nil {
		return "", false, fmt.Errorf("failed to query latest period: %w", err)
	}
	if !latest.Valid {
		return "", false, nil
	}
	return domain.Period(latest.String), true, nil
}

// Records returns the records of one period ordered by entity id
func (s *SQLiteStore) Records(ctx context.Context, period domain.Period) ([]domain.Record, error) {
	entries, err := s.query(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE period_key = ? ORDER BY entity_id`, string(period))
	if err != nil {
		return nil, fmt.Errorf("failed to load period %s: %w", period, err)
	}
	return records(entries), nil
}

// Periods returns committed periods in ascending order
func (s *SQLiteStore) Periods(ctx context.Context) ([]domain.Period, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT period_key FROM holdings ORDER BY period_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []domain.Period
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, domain.Period(p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating periods: %w", err)
	}
	return periods, nil
}

// Commit appends all records of the snapshot in one transaction
func (s *SQLiteStore) Commit(ctx context.Context, snap domain.Snapshot, deltas []domain.Delta) (CommitResult, error) {
	result := CommitResult{Period: snap.Period}
	if snap.Len() == 0 {
		return result, ErrEmptySnapshot
	}
	if snap.Period.IsZero() {
		return result, fmt.Errorf("failed to commit snapshot: period is not set")
	}

	committedAt := time.Now().Unix()

	err := database.WithTransactionContext(ctx, s.db.Conn(), func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM holdings WHERE period_key = ?`, string(snap.Period)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check period: %w", err)
		}
		if exists > 0 {
			result.Duplicate = true
			return nil
		}

		var latest sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT MAX(period_key) FROM holdings`).Scan(&latest); err != nil {
			return fmt.Errorf("failed to query latest period: %w", err)
		}
		if latest.Valid && snap.Period.Before(domain.Period(latest.String)) {
			return fmt.Errorf("%w: %s < %s", ErrOutOfOrderPeriod, snap.Period, latest.String)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO holdings (`+holdingColumns+`, committed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries(snap, deltas) {
			_, err := stmt.ExecContext(ctx,
				e.EntityID,
				nullString(e.Attr(domain.AttrCountry)),
				nullString(e.Attr(domain.AttrSymbolExchange)),
				nullString(e.Attr(domain.AttrFilingsReference)),
				e.Quantity,
				nullFloat(e.Value),
				nullFloat(e.Share),
				string(e.Period),
				nullFloat(e.QuantityChange),
				nullFloat(e.ValueChange),
				committedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert %s: %w", e.EntityID, err)
			}
			result.Inserted++
		}
		return nil
	})
	if err != nil {
		// A concurrent writer may have committed the same period between our
		// check and insert; that is a duplicate, not a failure
		if !errors.Is(err, ErrOutOfOrderPeriod) && s.periodCommitted(ctx, snap.Period) {
			s.log.Warn().Err(err).Str("period", snap.Period.String()).Msg("Lost commit race, period already recorded")
			return CommitResult{Period: snap.Period, Duplicate: true}, nil
		}
		return CommitResult{Period: snap.Period}, err
	}

	if result.Duplicate {
		s.log.Info().Str("period", snap.Period.String()).Msg("Period already committed, skipping")
	} else {
		s.log.Info().
			Str("period", snap.Period.String()).
			Int("inserted", result.Inserted).
			Msg("Committed period")
	}

	return result, nil
}

func (s *SQLiteStore) periodCommitted(ctx context.Context, period domain.Period) bool {
	var n int
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM holdings WHERE period_key = ?`, string(period)).Scan(&n)
	return err == nil && n > 0
}

// History returns entries whose entity id contains match, ordered by entity then period
func (s *SQLiteStore) History(ctx context.Context, match string) ([]Entry, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(match))) + "%"
	entries, err := s.query(ctx, `
		SELECT `+holdingColumns+` FROM holdings
		WHERE LOWER(entity_id) LIKE ? ESCAPE '\'
		ORDER BY entity_id, period_key
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %q: %w", match, err)
	}
	return entries, nil
}

// Totals returns one aggregate per committed period
func (s *SQLiteStore) Totals(ctx context.Context) ([]PeriodTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period_key,
		       COUNT(*),
		       SUM(quantity),
		       COALESCE(SUM(share_metric), 0),
		       SUM(quantity_change)
		FROM holdings
		GROUP BY period_key
		ORDER BY period_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	var totals []PeriodTotal
	for rows.Next() {
		var (
			t   PeriodTotal
			p   string
			net sql.NullFloat64
		)
		if err := rows.Scan(&p, &t.Entities, &t.Quantity, &t.Share, &net); err != nil {
			return nil, fmt.Errorf("failed to scan totals row: %w", err)
		}
		t.Period = domain.Period(p)
		t.ContinuingChange = fromNull(net)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating totals: %w", err)
	}
	chainNetChange(totals)
	return totals, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                  Entry
			country, symbol, filings, period   sql.NullString
			value, share, qtyChange, valChange sql.NullFloat64
		)
		err := rows.Scan(&e.EntityID, &country, &symbol, &filings,
			&e.Quantity, &value, &share, &period, &qtyChange, &valChange)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}

		e.Period = domain.Period(period.String)
		e.Value = fromNull(value)
		e.Share = fromNull(share)
		e.QuantityChange = fromNull(qtyChange)
		e.ValueChange = fromNull(valChange)
		setAttr(&e.Record, domain.AttrCountry, country)
		setAttr(&e.Record, domain.AttrSymbolExchange, symbol)
		setAttr(&e.Record, domain.AttrFilingsReference, filings)

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return out, nil
}

func records(entries []Entry) []domain.Record {
	out := make([]domain.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Record
	}
	return out
}

func setAttr(r *domain.Record, key string, v sql.NullString) {
	if !v.Valid || v.String == "" {
		return
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string]string, 3)
	}
	r.Attributes[key] = v.String
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return domain.Float(v.Float64)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
