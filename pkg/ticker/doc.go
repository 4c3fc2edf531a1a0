// Package ticker holds the application data the device displays.
//
// A get_stock_data reply is parsed into a fresh StockData record with the
// derived open/high/low/current prices and the change since open. Records
// are published through a Store, which replaces the whole record atomically
// so a reader never sees a partially updated one. A failed parse never
// reaches the Store, so the previous record stays on display.
//
// The package also parses the server time string returned by get_time and
// defines the RTC collaborator that receives it.
package ticker
