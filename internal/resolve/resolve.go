// Package resolve turns a target host into the ordered address list Happy
// Eyeballs races over.
package resolve

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/pcekm/pingx/internal/util"
)

// Family restricts resolution to one IP version, or both.
type Family int

const (
	// Any accepts both IPv4 and IPv6 addresses.
	Any Family = iota
	// V4Only restricts to IPv4.
	V4Only
	// V6Only restricts to IPv6.
	V6Only
)

// Resolver looks up addresses for a host. The default is backed by
// net.DefaultResolver; tests substitute a fake.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]net.IP, error)
}

type netResolver struct{}

func (netResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

// Default is the resolver used outside of tests.
var Default Resolver = netResolver{}

// Addresses resolves host to a non-empty address list filtered by family,
// preserving the order the resolver returned. An empty result after
// filtering is reported as an error: a target whose only addresses don't
// match the requested family has nothing to probe.
func Addresses(ctx context.Context, r Resolver, host string, family Family) ([]net.IP, error) {
	ips, err := r.LookupIP(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve: %q: %w", host, err)
	}
	filtered := make([]net.IP, 0, len(ips))
	for _, ip := range ips {
		v := util.IPVersionOf(ip)
		switch family {
		case V4Only:
			if v != util.IPv4 {
				continue
			}
		case V6Only:
			if v != util.IPv6 {
				continue
			}
		}
		filtered = append(filtered, ip)
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("resolve: %q: no addresses matching requested family", host)
	}
	return filtered, nil
}

// Reverse looks up the PTR name for addr, returning addr's string form if
// none is found. Used for the optional -a banner annotation; never
// returns an error since "no name" is a perfectly normal outcome here.
func Reverse(ctx context.Context, addr net.IP) string {
	names, err := net.DefaultResolver.LookupAddr(ctx, addr.String())
	if err != nil || len(names) == 0 {
		return addr.String()
	}
	return strings.TrimSuffix(names[0], ".")
}
