// Package connection paces repeated connection attempts.
//
// A Backoff yields the delay to wait before the next attempt. The device
// default is a fixed 5 second pause between session cycles:
//
//	cycle, wait 5s, cycle, wait 5s, ...
//
// An exponential policy is available for deployments that prefer to back
// away from a server that keeps failing:
//
//	1s, 2s, 4s, 8s, 16s, 32s, 60s, 60s, ...
//
// with jitter added on top of each base delay:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// A Loop runs a cycle function until its context is cancelled, waiting on
// the Backoff between cycles and resetting it after a successful cycle.
package connection
