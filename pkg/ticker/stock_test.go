package ticker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

func candle(date string, o, h, l, c float64) map[string]any {
	return map[string]any{"Date": date, "Open": o, "High": h, "Low": l, "Close": c}
}

func stockReply(ticker string, points ...any) wire.Document {
	return wire.Document{
		"stock_data": map[string]any{
			"ticker":   ticker,
			"duration": "1d",
			"data":     points,
		},
	}
}

func TestParseStockDataDerivedPrices(t *testing.T) {
	doc := stockReply("AAPL",
		candle("2025-06-06 10:00", 100, 102, 98, 101),
		candle("2025-06-06 11:00", 101, 105, 95, 103),
		candle("2025-06-06 12:00", 103, 104, 99, 110),
	)

	sd, err := ParseStockData(doc)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", sd.Symbol)
	assert.Equal(t, "1d", sd.Duration)
	assert.Equal(t, 3, sd.Len())
	assert.Equal(t, 105.0, sd.HighPrice)
	assert.Equal(t, 95.0, sd.LowPrice)
	assert.Equal(t, 100.0, sd.OpenPrice)
	assert.Equal(t, 110.0, sd.CurrentPrice)
	assert.Equal(t, 10.0, sd.PriceChange)
	assert.InDelta(t, 10.0, sd.PercentChange, 1e-9)
	assert.Equal(t, "2025-06-06 12:00", sd.Timestamp)
}

func TestParseStockDataIntegerPrices(t *testing.T) {
	// CBOR replies may carry whole prices as integers.
	doc := stockReply("MSFT", map[string]any{
		"Date": "d", "Open": uint64(10), "High": uint64(12), "Low": int64(-1), "Close": uint64(11),
	})

	sd, err := ParseStockData(doc)
	require.NoError(t, err)
	assert.Equal(t, -1.0, sd.LowPrice)
	assert.Equal(t, 11.0, sd.CurrentPrice)
}

func TestParseStockDataTopLevelShape(t *testing.T) {
	doc := wire.Document{
		"ticker":   "GOOG",
		"duration": "5d",
		"data":     []any{candle("d1", 1, 2, 0.5, 1.5)},
	}

	sd, err := ParseStockData(doc)
	require.NoError(t, err)
	assert.Equal(t, "GOOG", sd.Symbol)
	assert.Equal(t, "5d", sd.Duration)
}

func TestParseStockDataCapsHistory(t *testing.T) {
	points := make([]any, 0, 40)
	for i := 0; i < 40; i++ {
		points = append(points, candle(fmt.Sprintf("p%d", i), 10, float64(20+i), 5, 12))
	}

	sd, err := ParseStockData(stockReply("AAPL", points...))
	require.NoError(t, err)
	assert.Equal(t, MaxHistory, sd.Len())
	assert.Equal(t, "p29", sd.Timestamp)
	assert.Equal(t, 49.0, sd.HighPrice, "points past the cap do not affect derived prices")
}

func TestParseStockDataErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  wire.Document
		want error
	}{
		{"no stock data", wire.Document{"pong": true}, ErrNoStockData},
		{"stock data not a map", wire.Document{"stock_data": "AAPL"}, ErrNoStockData},
		{"missing ticker", wire.Document{"stock_data": map[string]any{"data": []any{}}}, ErrMissingTicker},
		{"empty history", stockReply("AAPL"), ErrEmptyHistory},
		{"point not a map", stockReply("AAPL", "bogus"), ErrMalformedCandle},
		{"point missing close", stockReply("AAPL", map[string]any{"Open": 1.0, "High": 1.0, "Low": 1.0}), ErrMalformedCandle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd, err := ParseStockData(tt.doc)
			assert.Nil(t, sd)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestStockDataZeroOpen(t *testing.T) {
	var sd StockData
	require.True(t, sd.Add(OHLC{Open: 0, High: 1, Low: 0, Close: 1}))
	assert.Equal(t, 1.0, sd.PriceChange)
	assert.Zero(t, sd.PercentChange)
}

func TestStockDataClone(t *testing.T) {
	var sd StockData
	sd.Add(OHLC{Date: "a", Open: 1, High: 2, Low: 1, Close: 2})

	c := sd.Clone()
	c.History[0].Close = 99
	assert.Equal(t, 2.0, sd.History[0].Close)

	var nilRecord *StockData
	assert.Nil(t, nilRecord.Clone())
	assert.Zero(t, nilRecord.Len())
}
