// Package cert issues and stores the certificates of a ticker deployment.
//
// A deployment has one CA. The server certificate carries the host names
// and addresses clients dial; the optional client certificate is used when
// the server requires mutual TLS. Files are written in the layout the
// server and device commands expect:
//
//	<dir>/ca/ca.crt
//	<dir>/server/server.crt  <dir>/server/server.key
//	<dir>/client/client.crt  <dir>/client/client.key
//
// Keys are ECDSA P-256.
package cert
