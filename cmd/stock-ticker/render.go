package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/ticker"
)

var (
	symbolStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89B4FA"))
	priceStyle  = lipgloss.NewStyle().Bold(true)
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

var panelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("#585B70")).
	Padding(0, 1)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// clock is the device time source.
type clock interface {
	Now() time.Time
}

// consoleRenderer draws each record as a terminal panel.
type consoleRenderer struct {
	out   io.Writer
	clock clock
}

// Render implements session.Renderer.
func (r *consoleRenderer) Render(d *ticker.StockData) {
	fmt.Fprintln(r.out, formatStock(d, r.clock.Now()))
}

func formatStock(d *ticker.StockData, now time.Time) string {
	if d.Len() == 0 {
		return panelStyle.Render(dimStyle.Render("no data"))
	}

	change := upStyle
	sign := "+"
	if d.PriceChange < 0 {
		change = downStyle
		sign = ""
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		symbolStyle.Render(d.Symbol),
		" ",
		dimStyle.Render(d.Duration),
		"  ",
		dimStyle.Render(now.Format("15:04:05")),
	)
	price := lipgloss.JoinHorizontal(lipgloss.Top,
		priceStyle.Render(fmt.Sprintf("%.2f", d.CurrentPrice)),
		"  ",
		change.Render(fmt.Sprintf("%s%.2f (%s%.2f%%)", sign, d.PriceChange, sign, d.PercentChange)),
	)
	ranges := dimStyle.Render(fmt.Sprintf("O %.2f  H %.2f  L %.2f", d.OpenPrice, d.HighPrice, d.LowPrice))

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		header,
		price,
		ranges,
		change.Render(sparkline(d.History)),
		dimStyle.Render("as of "+d.Timestamp),
	))
}

// sparkline scales closing prices onto eight block heights.
func sparkline(history []ticker.OHLC) string {
	if len(history) == 0 {
		return ""
	}
	lo, hi := history[0].Close, history[0].Close
	for _, p := range history[1:] {
		lo = min(lo, p.Close)
		hi = max(hi, p.Close)
	}

	var b strings.Builder
	top := len(sparkLevels) - 1
	for _, p := range history {
		i := top / 2
		if hi > lo {
			i = int((p.Close - lo) / (hi - lo) * float64(top))
		}
		b.WriteRune(sparkLevels[i])
	}
	return b.String()
}
