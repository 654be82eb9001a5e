package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradelens/tradelens/config"
	"github.com/tradelens/tradelens/internal/services/market/collector"
	"github.com/tradelens/tradelens/internal/storage/candles"
	"github.com/tradelens/tradelens/internal/web"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using process environment")
	}

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	store, err := candles.NewStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open candle store", zap.Error(err))
	}
	defer store.Close()

	// public kline endpoints work without credentials, keys are optional
	binanceClient := binance.NewClient(os.Getenv("BINANCE_APIKEY"), os.Getenv("BINANCE_SECRETKEY"))
	provider := collector.NewBinanceKlineProvider(binanceClient)
	candleCollector := collector.New(provider, store, logger, cfg.Pair, cfg.Interval, cfg.CandleLimit)

	server := web.NewServer(cfg.ListenAddr, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return candleCollector.Run(ctx, cfg.PollInterval)
	})
	g.Go(func() error {
		logger.Info("web server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("pair", cfg.Pair.String()))
		return server.Start(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service stopped", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
