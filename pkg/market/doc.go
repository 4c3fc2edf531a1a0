// Package market supplies price series for the reference server.
//
// Periods use the chart-API notation the device sends: "5m", "1h", "1d",
// "5d", "1wk", "1mo", "1y". The Synthetic source generates a reproducible
// random walk per ticker so the server runs without an upstream feed.
package market
