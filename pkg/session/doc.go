// Package session drives the device's protocol sessions.
//
// One cycle walks a fixed sequence of states:
//
//	IDLE -> CONNECTING -> AUTHENTICATING -> COMMAND_LOOP -> CLOSING -> BACKOFF
//
// A failure at any stage skips straight to CLOSING. The handle is always
// closed, and Run always waits out the backoff before the next cycle, so a
// server that keeps failing is retried at a bounded rate and never stops the
// process.
//
// Command results are applied as they arrive: get_time sets the RTC and
// get_stock_data publishes a new record to the ticker.Store. A reply that
// does not parse leaves the previous record in place.
package session
