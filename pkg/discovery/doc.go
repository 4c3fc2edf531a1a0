// Package discovery advertises and finds ticker servers over mDNS.
//
// A server registers an instance of the "_ticker._tcp" service in the
// "local." domain. Its TXT record carries:
//
//	ver=1             protocol version
//	cmds=ping,...     supported commands
//	mtls=1            present when a client certificate is required
//
// A device that has no fixed server address browses for the service and
// connects to the first instance it finds. The TLS server name is still
// checked against the trust anchor, so discovery only supplies the address.
package discovery
