// Package web exposes the JSON API consumed by the charting frontend.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradelens/tradelens/internal/domain"
	"github.com/tradelens/tradelens/pkg/indicators"
	"github.com/tradelens/tradelens/pkg/volumeprofile"
)

const (
	defaultCandleLimit = 500
	maxCandleLimit     = 5000

	// bounds applied to the requested bin count before the profile engine
	// is invoked
	minProfileBins = 10
	maxProfileBins = 200

	emaPeriod = 20
	rsiPeriod = 14
)

// CandleReader loads stored candles for the API handlers.
type CandleReader interface {
	Candles(ctx context.Context, symbol string, limit int) ([]domain.MarketCandle, error)
	CandleCount(ctx context.Context, symbol string) (int, error)
}

// Server exposes HTTP endpoints serving candles, volume profiles and a
// market summary.
type Server struct {
	addr   string
	store  CandleReader
	logger *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, store CandleReader, logger *zap.Logger) *Server {
	return &Server{addr: addr, store: store, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/candles", s.handleCandles)
	mux.HandleFunc("/api/volume-profile", s.handleVolumeProfile)
	mux.HandleFunc("/api/summary", s.handleSummary)
	return mux
}

type candleResponse struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol parameter is required", http.StatusBadRequest)
		return
	}

	limit, err := intParam(r, "limit", defaultCandleLimit)
	if err != nil {
		http.Error(w, "invalid limit parameter", http.StatusBadRequest)
		return
	}
	limit = clamp(limit, 1, maxCandleLimit)

	candles, err := s.store.Candles(r.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("failed to load candles", zap.String("symbol", symbol), zap.Error(err))
		http.Error(w, "failed to load candles", http.StatusInternalServerError)
		return
	}

	rows := make([]candleResponse, len(candles))
	for i, c := range candles {
		open, _ := c.Open.Float64()
		high, _ := c.High.Float64()
		low, _ := c.Low.Float64()
		closePx, _ := c.Close.Float64()
		volume, _ := c.Volume.Float64()
		rows[i] = candleResponse{
			Time:   c.OpenTime.Unix(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: volume,
		}
	}

	count, err := s.store.CandleCount(r.Context(), symbol)
	if err != nil {
		s.logger.Error("failed to count candles", zap.String("symbol", symbol), zap.Error(err))
		http.Error(w, "failed to count candles", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"symbol":  symbol,
		"candles": rows,
		"total":   count,
	})
}

func (s *Server) handleVolumeProfile(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol parameter is required", http.StatusBadRequest)
		return
	}

	limit, err := intParam(r, "limit", defaultCandleLimit)
	if err != nil {
		http.Error(w, "invalid limit parameter", http.StatusBadRequest)
		return
	}
	limit = clamp(limit, 1, maxCandleLimit)

	bins, err := intParam(r, "bins", volumeprofile.DefaultNumBins)
	if err != nil {
		http.Error(w, "invalid bins parameter", http.StatusBadRequest)
		return
	}
	bins = clamp(bins, minProfileBins, maxProfileBins)

	hvn, err := floatParam(r, "hvn", volumeprofile.DefaultHVNPercentile)
	if err != nil {
		http.Error(w, "invalid hvn parameter", http.StatusBadRequest)
		return
	}
	lvn, err := floatParam(r, "lvn", volumeprofile.DefaultLVNPercentile)
	if err != nil {
		http.Error(w, "invalid lvn parameter", http.StatusBadRequest)
		return
	}

	opts := volumeprofile.Options{NumBins: bins, HVNPercentile: hvn, LVNPercentile: lvn}
	if err := opts.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	candles, err := s.store.Candles(r.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("failed to load candles", zap.String("symbol", symbol), zap.Error(err))
		http.Error(w, "failed to load candles", http.StatusInternalServerError)
		return
	}

	profile := volumeprofile.Calculate(volumeprofile.BarsFromCandles(candles), opts)

	writeJSON(w, map[string]interface{}{
		"symbol":  symbol,
		"candles": len(candles),
		"profile": profile,
	})
}

type summaryResponse struct {
	Symbol         string  `json:"symbol"`
	Candles        int     `json:"candles"`
	CurrentVolume  float64 `json:"current_volume"`
	AverageVolume  float64 `json:"average_volume"`
	RelativeVolume float64 `json:"relative_volume"`
	VolumeSpikes   []int   `json:"volume_spikes"`
	EMA20          float64 `json:"ema20"`
	RSI14          float64 `json:"rsi14"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol parameter is required", http.StatusBadRequest)
		return
	}

	limit, err := intParam(r, "limit", defaultCandleLimit)
	if err != nil {
		http.Error(w, "invalid limit parameter", http.StatusBadRequest)
		return
	}
	limit = clamp(limit, 1, maxCandleLimit)

	candles, err := s.store.Candles(r.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("failed to load candles", zap.String("symbol", symbol), zap.Error(err))
		http.Error(w, "failed to load candles", http.StatusInternalServerError)
		return
	}

	analysis := domain.NewVolumeAnalysis(candles)

	resp := summaryResponse{
		Symbol:       symbol,
		Candles:      len(candles),
		VolumeSpikes: analysis.VolumeSpikes,
	}
	resp.CurrentVolume, _ = analysis.CurrentVolume.Float64()
	resp.AverageVolume, _ = analysis.AverageVolume.Float64()
	resp.RelativeVolume, _ = analysis.RelativeVolume.Float64()

	closesDec := closePrices(candles)
	if ema, err := indicators.CalculateEMA(closesDec, emaPeriod); err == nil && len(ema) > 0 {
		resp.EMA20, _ = ema[len(ema)-1].Float64()
	}
	if rsi, err := indicators.CalculateRSI(closesDec, rsiPeriod); err == nil && len(rsi) > 0 {
		resp.RSI14, _ = rsi[len(rsi)-1].Float64()
	}

	writeJSON(w, resp)
}

func closePrices(candles []domain.MarketCandle) []decimal.Decimal {
	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func floatParam(r *http.Request, name string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
