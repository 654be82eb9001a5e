// Package collector fetches candles from an exchange and persists them for
// the profile and chart endpoints.
package collector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tradelens/tradelens/internal/domain"
	"github.com/tradelens/tradelens/pkg/retrier"
)

// KlineProvider defines the interface for fetching kline (candlestick) data.
type KlineProvider interface {
	// GetKlines fetches historical kline data for a trading pair.
	// limit specifies the maximum number of klines to fetch,
	// interval the kline interval (e.g. "1m", "5m", "1h", "4h").
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

// CandleWriter persists collected candles.
type CandleWriter interface {
	SaveCandles(ctx context.Context, symbol string, candles []domain.MarketCandle) error
}

// Collector periodically pulls candles for one pair and writes them to storage.
type Collector struct {
	provider KlineProvider
	store    CandleWriter
	retrier  *retrier.Retrier
	logger   *zap.Logger

	pair     domain.Pair
	interval string
	limit    int
}

// New creates a Collector for the given pair and kline interval.
func New(provider KlineProvider, store CandleWriter, logger *zap.Logger, pair domain.Pair, interval string, limit int) *Collector {
	return &Collector{
		provider: provider,
		store:    store,
		retrier:  retrier.New(retrier.WithMaxRetries(3)),
		logger:   logger,
		pair:     pair,
		interval: interval,
		limit:    limit,
	}
}

// CollectOnce fetches the latest candles and persists them.
func (c *Collector) CollectOnce(ctx context.Context) error {
	candles, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) ([]domain.MarketCandle, error) {
		return c.provider.GetKlines(ctx, c.pair, c.interval, c.limit)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to collect candles for %s", c.pair.String())
	}

	if err := c.store.SaveCandles(ctx, c.pair.Symbol(), candles); err != nil {
		return errors.Wrapf(err, "failed to persist candles for %s", c.pair.String())
	}

	c.logger.Debug("collected candles",
		zap.String("pair", c.pair.String()),
		zap.String("interval", c.interval),
		zap.Int("count", len(candles)))

	return nil
}

// Run collects immediately and then on every tick of pollInterval until ctx
// is cancelled. Failed cycles are logged and retried on the next tick.
func (c *Collector) Run(ctx context.Context, pollInterval time.Duration) error {
	if err := c.CollectOnce(ctx); err != nil {
		c.logger.Warn("initial candle collection failed", zap.Error(err))
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.CollectOnce(ctx); err != nil {
				c.logger.Warn("candle collection failed", zap.Error(err))
			}
		}
	}
}
