package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"moverscan/pkg/errs"
	"moverscan/pkg/logger"
	"moverscan/pkg/metrics"
	"moverscan/pkg/models"
)

// StockStore defines the interface for window-store data access. The read
// methods return the page plus the total row count matching the filter.
type StockStore interface {
	BulkUpsert(ctx context.Context, window models.Window, quotes []models.Quote) (int, error)
	TopGainers(ctx context.Context, window models.Window, limit, offset int) ([]*models.Quote, int, error)
	TopLosers(ctx context.Context, window models.Window, limit, offset int) ([]*models.Quote, int, error)
	Recent(ctx context.Context, window models.Window, limit, offset int) ([]*models.Quote, int, error)
}

// windowTables is the closed set of window stores. Table names are never
// interpolated from user input, only from this map.
var windowTables = map[models.Window]string{
	models.WindowPre:    "premarket_stocks",
	models.WindowActive: "current_stocks",
	models.WindowAfter:  "aftermarket_stocks",
}

type stockStore struct {
	db *DB
}

// NewStockStore creates a new stock store backed by the given connection
func NewStockStore(db *DB) StockStore {
	return &stockStore{db: db}
}

// BulkUpsert writes one window's quotes in a single transaction, keyed on
// (symbol, source). Conflicting rows are overwritten wholesale and stamped
// with a fresh last_updated. Returns the number of rows written.
func (s *stockStore) BulkUpsert(ctx context.Context, window models.Window, quotes []models.Quote) (int, error) {
	table, ok := windowTables[window]
	if !ok {
		return 0, errs.Newf(errs.KindInvalidArgument, "no store for window %q", window)
	}
	if len(quotes) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() {
		metrics.PersistLatency.WithLabelValues(string(window)).Observe(time.Since(start).Seconds())
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, name, price, change, change_percent, volume, source, category, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (symbol, source) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			change = EXCLUDED.change,
			change_percent = EXCLUDED.change_percent,
			volume = EXCLUDED.volume,
			category = EXCLUDED.category,
			last_updated = NOW()
	`, table)

	saved := 0
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range quotes {
			q := &quotes[i]
			q.Sanitize()
			if err := q.Validate(); err != nil {
				logger.Log.Warn("skipping invalid quote at persistence",
					zap.String("symbol", q.Symbol), zap.Error(err))
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				q.Symbol, q.Name, q.Price, q.Change, q.ChangePercent,
				q.Volume.String(), q.Source, string(q.Category)); err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		metrics.PersistErrors.WithLabelValues(string(window)).Inc()
		return 0, errs.Newf(errs.KindPersistenceFailure, "bulk upsert into %s: %v", table, err)
	}

	metrics.UpsertedQuotes.WithLabelValues(string(window)).Add(float64(saved))
	logger.Log.Info("quotes persisted",
		zap.String("window", string(window)), zap.Int("saved", saved))
	return saved, nil
}

const gainerFilter = `category = 'gainer' OR change_percent > 0`

// Rows with a zero percent change still count as losers when the absolute
// change is negative or the source tagged them as such.
const loserFilter = `change_percent < 0
	OR (change_percent = 0 AND change < 0)
	OR category = 'loser'`

// TopGainers returns one page of the window's gainers ordered by percent
// change descending, plus the total gainer count.
func (s *stockStore) TopGainers(ctx context.Context, window models.Window, limit, offset int) ([]*models.Quote, int, error) {
	table, ok := windowTables[window]
	if !ok {
		return nil, 0, errs.Newf(errs.KindInvalidArgument, "no store for window %q", window)
	}
	query := fmt.Sprintf(`
		SELECT symbol, name, price, change, change_percent, volume, source, category, last_updated
		FROM %s
		WHERE %s
		ORDER BY change_percent DESC, change DESC
		LIMIT $1 OFFSET $2
	`, table, gainerFilter)
	return s.queryPage(ctx, table, gainerFilter, query, limit, offset)
}

// TopLosers returns one page of the window's losers, most negative first,
// plus the total loser count.
func (s *stockStore) TopLosers(ctx context.Context, window models.Window, limit, offset int) ([]*models.Quote, int, error) {
	table, ok := windowTables[window]
	if !ok {
		return nil, 0, errs.Newf(errs.KindInvalidArgument, "no store for window %q", window)
	}
	query := fmt.Sprintf(`
		SELECT symbol, name, price, change, change_percent, volume, source, category, last_updated
		FROM %s
		WHERE %s
		ORDER BY change_percent ASC, change ASC
		LIMIT $1 OFFSET $2
	`, table, loserFilter)
	return s.queryPage(ctx, table, loserFilter, query, limit, offset)
}

// Recent returns the window's quotes in reverse update order.
func (s *stockStore) Recent(ctx context.Context, window models.Window, limit, offset int) ([]*models.Quote, int, error) {
	table, ok := windowTables[window]
	if !ok {
		return nil, 0, errs.Newf(errs.KindInvalidArgument, "no store for window %q", window)
	}
	query := fmt.Sprintf(`
		SELECT symbol, name, price, change, change_percent, volume, source, category, last_updated
		FROM %s
		ORDER BY last_updated DESC
		LIMIT $1 OFFSET $2
	`, table)
	return s.queryPage(ctx, table, "TRUE", query, limit, offset)
}

func (s *stockStore) queryPage(ctx context.Context, table, filter, query string, limit, offset int) ([]*models.Quote, int, error) {
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, table, filter)
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, errs.Newf(errs.KindPersistenceFailure, "count quotes: %v", err)
	}

	quotes, err := s.queryQuotes(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return quotes, total, nil
}

func (s *stockStore) queryQuotes(ctx context.Context, query string, limit, offset int) ([]*models.Quote, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, errs.Newf(errs.KindPersistenceFailure, "query quotes: %v", err)
	}
	defer rows.Close()

	var quotes []*models.Quote
	for rows.Next() {
		var q models.Quote
		var volume string
		var category string
		if err := rows.Scan(&q.Symbol, &q.Name, &q.Price, &q.Change, &q.ChangePercent,
			&volume, &q.Source, &category, &q.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		q.Volume = models.VolumeFromString(volume)
		q.Category = models.Category(category)
		quotes = append(quotes, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quotes: %w", err)
	}
	return quotes, nil
}
