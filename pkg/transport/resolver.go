package transport

import (
	"context"
	"fmt"
	"net"
)

// Resolver maps a hostname to addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// StaticResolver answers from a fixed table. Hosts that are already IP
// literals resolve to themselves.
type StaticResolver map[string][]string

// LookupHost returns the table entry for host.
func (r StaticResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := r[host]; ok && len(addrs) > 0 {
		return addrs, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

// resolveFirst returns the first address for host.
func resolveFirst(ctx context.Context, r Resolver, host string) (string, error) {
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolve %s: no addresses", host)
	}
	return addrs[0], nil
}

var (
	_ Resolver = (*net.Resolver)(nil)
	_ Resolver = StaticResolver(nil)
)
