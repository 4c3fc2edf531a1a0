package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service identification.
const (
	ServiceType = "_ticker._tcp"
	Domain      = "local."

	// DefaultPort is used when an advertisement does not name a port.
	DefaultPort = 8443

	// ProtocolVersion is advertised in the ver TXT key.
	ProtocolVersion = 1
)

// Timing defaults.
const (
	BrowseTimeout = 10 * time.Second
	DefaultTTL    = 120 * time.Second
)

// TXT record keys.
const (
	TXTKeyVersion   = "ver"
	TXTKeyCommands  = "cmds"
	TXTKeyMutualTLS = "mtls"
)

// Discovery errors.
var (
	ErrMissingRequired = errors.New("missing required TXT field")
	ErrInvalidVersion  = errors.New("invalid protocol version")
	ErrInvalidInstance = errors.New("instance name is required")
	ErrNotFound        = errors.New("service not found")
	ErrNoUsableAddress = errors.New("service has no usable address")
	ErrBrowserStopped  = errors.New("browser stopped")
)

// ServiceInfo is what a server advertises.
type ServiceInfo struct {
	// InstanceName is the DNS-SD instance label, e.g. "ticker-server".
	InstanceName string

	// Port is the TLS port (default: DefaultPort).
	Port uint16

	// Version is the protocol version (default: ProtocolVersion).
	Version int

	// Commands lists the commands the server answers.
	Commands []string

	// MutualTLS reports whether the server requires a client certificate.
	MutualTLS bool
}

// Service is a resolved advertisement.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Version   int
	Commands  []string
	MutualTLS bool
}

// Target returns the host to dial, preferring IPv4 addresses, then IPv6,
// then the advertised host name.
func (s *Service) Target() (string, error) {
	var v6 string
	for _, addr := range s.Addresses {
		ip := net.ParseIP(addr)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			return addr, nil
		}
		if v6 == "" {
			v6 = addr
		}
	}
	if v6 != "" {
		return v6, nil
	}
	if s.Host != "" {
		return s.Host, nil
	}
	return "", ErrNoUsableAddress
}

// HostPort returns Target joined with the port.
func (s *Service) HostPort() (string, error) {
	host, err := s.Target()
	if err != nil {
		return "", err
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port))), nil
}

// Supports reports whether the service advertises cmd. A service that
// lists no commands is assumed to support all of them.
func (s *Service) Supports(cmd string) bool {
	if len(s.Commands) == 0 {
		return true
	}
	for _, c := range s.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}
