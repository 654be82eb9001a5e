// Package candles persists market candles in a local SQLite database.
package candles

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/tradelens/tradelens/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT    NOT NULL,
	open_time  INTEGER NOT NULL,
	open       TEXT    NOT NULL,
	high       TEXT    NOT NULL,
	low        TEXT    NOT NULL,
	close      TEXT    NOT NULL,
	volume     TEXT    NOT NULL,
	close_time INTEGER NOT NULL,
	PRIMARY KEY (symbol, open_time)
);
CREATE INDEX IF NOT EXISTS idx_candles_symbol_time ON candles(symbol, open_time);
`

// Store reads and writes candles for a symbol. Prices are stored as decimal
// strings so no precision is lost on the round trip.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open candle database at %s", path)
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping candle database")
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "failed to create candle schema")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCandles upserts the given candles for a symbol. Re-collected candles
// for the same open time overwrite the previous row.
func (s *Store) SaveCandles(ctx context.Context, symbol string, candles []domain.MarketCandle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin candle transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, open_time, open, high, low, close, volume, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare candle insert")
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx,
			symbol,
			c.OpenTime.UnixMilli(),
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
			c.CloseTime.UnixMilli(),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to insert candle for %s at %s", symbol, c.OpenTime)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit candle transaction")
}

// Candles returns up to limit most recent candles for a symbol in
// chronological order.
func (s *Store) Candles(ctx context.Context, symbol string, limit int) ([]domain.MarketCandle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume, close_time
		FROM candles
		WHERE symbol = ?
		ORDER BY open_time DESC
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query candles for %s", symbol)
	}
	defer rows.Close()

	var result []domain.MarketCandle
	for rows.Next() {
		var (
			openTime, closeTime              int64
			open, high, low, closePx, volume string
		)
		if err := rows.Scan(&openTime, &open, &high, &low, &closePx, &volume, &closeTime); err != nil {
			return nil, errors.Wrap(err, "failed to scan candle row")
		}

		candle, err := parseCandle(openTime, open, high, low, closePx, volume, closeTime)
		if err != nil {
			return nil, err
		}
		result = append(result, candle)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate candle rows")
	}

	// query returns newest first, flip to chronological order
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return result, nil
}

// CandleCount returns the number of stored candles for a symbol.
func (s *Store) CandleCount(ctx context.Context, symbol string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candles WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count candles for %s", symbol)
	}
	return count, nil
}

func parseCandle(openTime int64, open, high, low, closePx, volume string, closeTime int64) (domain.MarketCandle, error) {
	openDec, err := decimal.NewFromString(open)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse open price")
	}
	highDec, err := decimal.NewFromString(high)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse high price")
	}
	lowDec, err := decimal.NewFromString(low)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse low price")
	}
	closeDec, err := decimal.NewFromString(closePx)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse close price")
	}
	volumeDec, err := decimal.NewFromString(volume)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse volume")
	}

	return domain.MarketCandle{
		OpenTime:  time.UnixMilli(openTime),
		Open:      openDec,
		High:      highDec,
		Low:       lowDec,
		Close:     closeDec,
		Volume:    volumeDec,
		CloseTime: time.UnixMilli(closeTime),
	}, nil
}
