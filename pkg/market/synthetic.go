package market

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// DateLayout formats candle dates.
const DateLayout = "2006-01-02 15:04:05"

// DefaultMaxPoints caps the number of candles in one series.
const DefaultMaxPoints = 500

// Source errors.
var (
	ErrBadTicker       = errors.New("invalid ticker")
	ErrIntervalTooLong = errors.New("interval exceeds duration")
)

// Source returns price series.
type Source interface {
	Series(ctx context.Context, req wire.StockDataRequest) (wire.StockSeries, error)
}

// SyntheticConfig configures a Synthetic source.
type SyntheticConfig struct {
	// Seed perturbs every walk. Two sources with the same seed and clock
	// return the same series.
	Seed int64

	// MaxPoints caps the candles per series (default: 500).
	MaxPoints int

	// Volatility is the per-candle standard deviation as a fraction of
	// price (default: 0.01).
	Volatility float64

	// Now is the clock (default: time.Now).
	Now func() time.Time
}

// Synthetic generates random-walk candles.
type Synthetic struct {
	config SyntheticConfig
}

// NewSynthetic creates a synthetic source.
func NewSynthetic(config SyntheticConfig) *Synthetic {
	if config.MaxPoints <= 0 {
		config.MaxPoints = DefaultMaxPoints
	}
	if config.Volatility <= 0 {
		config.Volatility = 0.01
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Synthetic{config: config}
}

// Series returns the candles covering req.Duration at req.Interval, ending
// with the interval that contains the current time.
func (s *Synthetic) Series(ctx context.Context, req wire.StockDataRequest) (wire.StockSeries, error) {
	if err := ctx.Err(); err != nil {
		return wire.StockSeries{}, err
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if !validTicker(ticker) {
		return wire.StockSeries{}, fmt.Errorf("%w: %q", ErrBadTicker, req.Ticker)
	}
	duration, err := ParsePeriod(req.Duration)
	if err != nil {
		return wire.StockSeries{}, err
	}
	interval, err := ParsePeriod(req.Interval)
	if err != nil {
		return wire.StockSeries{}, err
	}
	if interval > duration {
		return wire.StockSeries{}, fmt.Errorf("%w: %s > %s", ErrIntervalTooLong, req.Interval, req.Duration)
	}

	n := int(duration / interval)
	if n > s.config.MaxPoints {
		n = s.config.MaxPoints
	}
	end := s.config.Now().UTC().Truncate(interval)
	start := end.Add(-time.Duration(n-1) * interval)

	h := fnv.New64a()
	h.Write([]byte(ticker))
	rng := rand.New(rand.NewSource(s.config.Seed ^ int64(h.Sum64()) ^ start.Unix()))

	price := 20 + float64(h.Sum64()%500)
	series := wire.StockSeries{
		Ticker:   ticker,
		Duration: req.Duration,
		Data:     make([]wire.Candle, 0, n),
	}
	for i := 0; i < n; i++ {
		open := price
		closePrice := math.Max(0.01, open*(1+rng.NormFloat64()*s.config.Volatility))
		spread := math.Abs(rng.NormFloat64()) * s.config.Volatility * open / 2
		series.Data = append(series.Data, wire.Candle{
			Date:  start.Add(time.Duration(i) * interval).Format(DateLayout),
			Open:  round2(open),
			High:  round2(math.Max(open, closePrice) + spread),
			Low:   round2(math.Max(0.01, math.Min(open, closePrice)-spread)),
			Close: round2(closePrice),
		})
		price = closePrice
	}
	return series, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func validTicker(s string) bool {
	if s == "" || len(s) > 12 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '^', r == '=':
		default:
			return false
		}
	}
	return true
}

var _ Source = (*Synthetic)(nil)
