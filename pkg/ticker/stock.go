package ticker

import (
	"errors"
	"fmt"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// MaxHistory is the number of OHLC points kept per record. Extra points in
// a reply are ignored.
const MaxHistory = 30

// Parse errors.
var (
	ErrNoStockData     = errors.New("no stock data in response")
	ErrEmptyHistory    = errors.New("stock data has no history")
	ErrMissingTicker   = errors.New("stock data has no ticker")
	ErrMalformedCandle = errors.New("malformed data point")
)

// OHLC is one candle of price history.
type OHLC struct {
	Date  string
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// StockData is the record shown by the display.
type StockData struct {
	Symbol   string
	Duration string

	// Timestamp is the Date of the newest history point.
	Timestamp string

	CurrentPrice  float64
	OpenPrice     float64
	HighPrice     float64
	LowPrice      float64
	PriceChange   float64
	PercentChange float64

	// History is ordered oldest first and holds at most MaxHistory points.
	History []OHLC
}

// Len returns the number of history points.
func (s *StockData) Len() int {
	if s == nil {
		return 0
	}
	return len(s.History)
}

// Clone returns a deep copy of s.
func (s *StockData) Clone() *StockData {
	if s == nil {
		return nil
	}
	c := *s
	c.History = append([]OHLC(nil), s.History...)
	return &c
}

// Add appends a point and updates the derived prices. It reports false and
// leaves s unchanged once MaxHistory points are held.
func (s *StockData) Add(p OHLC) bool {
	if len(s.History) >= MaxHistory {
		return false
	}
	if len(s.History) == 0 {
		s.OpenPrice = p.Open
		s.HighPrice = p.High
		s.LowPrice = p.Low
	} else {
		s.HighPrice = max(s.HighPrice, p.High)
		s.LowPrice = min(s.LowPrice, p.Low)
	}
	s.History = append(s.History, p)
	s.CurrentPrice = p.Close
	s.Timestamp = p.Date

	s.PriceChange = s.CurrentPrice - s.OpenPrice
	if s.OpenPrice != 0 {
		s.PercentChange = s.PriceChange / s.OpenPrice * 100
	} else {
		s.PercentChange = 0
	}
	return true
}

// ParseStockData builds a record from a get_stock_data reply. The series is
// read from the nested stock_data object or, failing that, from the top
// level of the reply. A record is only returned when it holds at least one
// history point.
func ParseStockData(doc wire.Document) (*StockData, error) {
	series, ok := doc.Map(wire.KeyStockData)
	if !ok {
		if !doc.Has("data") {
			return nil, ErrNoStockData
		}
		series = doc
	}

	symbol, ok := series.String("ticker")
	if !ok || symbol == "" {
		return nil, ErrMissingTicker
	}
	duration, _ := series.String("duration")
	points, ok := series.List("data")
	if !ok || len(points) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrEmptyHistory)
	}

	sd := &StockData{
		Symbol:   symbol,
		Duration: duration,
		History:  make([]OHLC, 0, min(len(points), MaxHistory)),
	}
	for i, raw := range points {
		if i >= MaxHistory {
			break
		}
		p, err := parseCandle(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: point %d: %w", symbol, i, err)
		}
		sd.Add(p)
	}
	return sd, nil
}

func parseCandle(v any) (OHLC, error) {
	point, ok := wire.AsDocument(v)
	if !ok {
		return OHLC{}, ErrMalformedCandle
	}

	var p OHLC
	p.Date, _ = point.String("Date")
	fields := []struct {
		key string
		dst *float64
	}{
		{"Open", &p.Open},
		{"High", &p.High},
		{"Low", &p.Low},
		{"Close", &p.Close},
	}
	for _, f := range fields {
		val, ok := point.Float(f.key)
		if !ok {
			return OHLC{}, fmt.Errorf("%w: missing %s", ErrMalformedCandle, f.key)
		}
		*f.dst = val
	}
	return p, nil
}
