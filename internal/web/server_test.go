package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradelens/tradelens/internal/domain"
	"github.com/tradelens/tradelens/pkg/volumeprofile"
)

type fakeStore struct {
	candles   []domain.MarketCandle
	err       error
	lastLimit int
}

func (f *fakeStore) Candles(ctx context.Context, symbol string, limit int) ([]domain.MarketCandle, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func (f *fakeStore) CandleCount(ctx context.Context, symbol string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.candles), nil
}

func testCandles(n int) []domain.MarketCandle {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]domain.MarketCandle, n)
	for i := range candles {
		price := 100 + float64(i%7)
		candles[i] = domain.MarketCandle{
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			Open:      decimal.NewFromFloat(price - 0.5),
			High:      decimal.NewFromFloat(price + 2),
			Low:       decimal.NewFromFloat(price - 2),
			Close:     decimal.NewFromFloat(price),
			Volume:    decimal.NewFromInt(int64(10 + i%5)),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
		}
	}
	return candles
}

func newTestServer(store *fakeStore) *httptest.Server {
	s := NewServer("", store, zap.NewNop())
	return httptest.NewServer(s.Handler())
}

func TestHandleVolumeProfile_ReturnsProfile(t *testing.T) {
	store := &fakeStore{candles: testCandles(60)}
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/volume-profile?symbol=BTCUSDT&bins=20")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Symbol  string                `json:"symbol"`
		Candles int                   `json:"candles"`
		Profile volumeprofile.Profile `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "BTCUSDT", body.Symbol)
	require.Equal(t, 60, body.Candles)
	require.NotEmpty(t, body.Profile.Nodes)
	require.NotNil(t, body.Profile.POCNode)
	require.Positive(t, body.Profile.TotalVolume)
}

func TestHandleVolumeProfile_MissingSymbol(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/volume-profile")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleVolumeProfile_BinsClamped(t *testing.T) {
	store := &fakeStore{candles: testCandles(30)}
	ts := newTestServer(store)
	defer ts.Close()

	// bins above the cap are clamped to 200
	resp, err := http.Get(ts.URL + "/api/volume-profile?symbol=BTCUSDT&bins=100000")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Profile volumeprofile.Profile `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	span := body.Profile.PriceRange[1] - body.Profile.PriceRange[0]
	require.InDelta(t, span/200, body.Profile.BinSize, 1e-9)

	// and bins below the floor are clamped to 10
	resp2, err := http.Get(ts.URL + "/api/volume-profile?symbol=BTCUSDT&bins=1")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	require.InDelta(t, span/10, body.Profile.BinSize, 1e-9)
}

func TestHandleVolumeProfile_InvalidPercentiles(t *testing.T) {
	ts := newTestServer(&fakeStore{candles: testCandles(10)})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/volume-profile?symbol=BTCUSDT&hvn=120")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleVolumeProfile_StoreError(t *testing.T) {
	ts := newTestServer(&fakeStore{err: errors.New("db gone")})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/volume-profile?symbol=BTCUSDT")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleCandles_ReturnsRows(t *testing.T) {
	store := &fakeStore{candles: testCandles(3)}
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/candles?symbol=ETHUSDT&limit=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Symbol  string `json:"symbol"`
		Candles []struct {
			Time   int64   `json:"time"`
			Close  float64 `json:"close"`
			Volume float64 `json:"volume"`
		} `json:"candles"`
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ETHUSDT", body.Symbol)
	require.Len(t, body.Candles, 3)
	require.Equal(t, 3, body.Total)
	require.Equal(t, 100.0, body.Candles[0].Close)
	require.Equal(t, 3, store.lastLimit)
}

func TestHandleCandles_InvalidLimit(t *testing.T) {
	ts := newTestServer(&fakeStore{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/candles?symbol=BTCUSDT&limit=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSummary_ReturnsVolumeAndIndicators(t *testing.T) {
	store := &fakeStore{candles: testCandles(60)}
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/summary?symbol=BTCUSDT")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body summaryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "BTCUSDT", body.Symbol)
	require.Equal(t, 60, body.Candles)
	require.Positive(t, body.CurrentVolume)
	require.Positive(t, body.AverageVolume)
	require.Positive(t, body.EMA20)
	require.Positive(t, body.RSI14)
}

func TestHandleSummary_FewCandlesSkipsIndicators(t *testing.T) {
	// not enough closes for EMA20/RSI14, volume metrics still present
	store := &fakeStore{candles: testCandles(5)}
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/summary?symbol=BTCUSDT")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body summaryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Positive(t, body.CurrentVolume)
	require.Zero(t, body.EMA20)
	require.Zero(t, body.RSI14)
}

func TestServer_StartStopsOnContextCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", &fakeStore{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down on context cancellation")
	}
}
