// Package wire defines the CBOR wire format for the ticker protocol.
//
// Every message is a self-describing CBOR (RFC 8949) map with string keys.
// Messages are carried in 4-byte length-prefixed frames over TLS (see
// package transport).
//
// # Requests
//
// Two request shapes exist:
//   - Auth: {"token": "<shared secret>"}, always the first message of a session
//   - Command: {"command": "<name>", "payload": {...}}, payload optional
//
// # Responses
//
// Responses are any well-formed map. They are decoded into a Document, whose
// accessors report absent or mistyped keys through an ok flag instead of
// panicking.
//
// # Number Normalization
//
// After decoding, nested maps are map[string]any, arrays are []any, positive
// integers are uint64, negative integers are int64, and floats are float64.
// Document.Float and Document.Int accept any of these.
package wire
