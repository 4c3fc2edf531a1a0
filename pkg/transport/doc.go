// Package transport provides the ticker's TLS transport.
//
// The client side is a Handle: one TCP+TLS connection driven by network
// events (resolution, connect, inbound frame, poll tick, peer close) that
// run on their own goroutines. Open and SendAndReceive turn those events
// into blocking calls with explicit timeouts by waiting on per-handle binary
// signals. Every terminal condition funnels through a single teardown that
// closes the socket and wakes all waiters.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Documents            │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│       TLS 1.2 / 1.3            │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Error Codes
//
// Failures are reported as *Error values carrying a numeric Code:
//   - TIMEOUT (-1): handshake or response not received in time
//   - GENERIC (-2): unclassified, including bad arguments and busy handles
//   - MEMORY (-3): resource exhaustion
//   - CONNECTION (-4): resolution, connect, handshake or peer close
//   - TRUNCATED (-5): response larger than the caller's buffer
//
// The server side (Server, ServerConn) accepts TLS connections and delivers
// each inbound frame to a callback. The reference ticker server is built on
// it.
package transport
