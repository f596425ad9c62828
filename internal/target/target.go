// Package target parses a user-supplied target string into a protocol tag
// and the pieces needed to resolve and probe it.
package target

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Protocol is the detected transport for a target.
type Protocol int

const (
	// ICMP probes the target with ICMP Echo requests.
	ICMP Protocol = iota
	// TCP probes the target with a bare TCP connect.
	TCP
	// HTTP probes the target with an HTTP HEAD request.
	HTTP
)

func (p Protocol) String() string {
	switch p {
	case ICMP:
		return "icmp"
	case TCP:
		return "tcp"
	case HTTP:
		return "http"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// Options selects protocol-detection overrides, mirroring the force-tcp/
// force-http command-line flags.
type Options struct {
	ForceTCP  bool
	ForceHTTP bool
}

// Target is a parsed, immutable target descriptor. It's created once at
// session start and never mutated afterward.
type Target struct {
	// Input is the exact string the user supplied.
	Input string

	// Protocol is the detected (or forced) transport.
	Protocol Protocol

	// Host is the hostname or IP literal to resolve.
	Host string

	// Port is set for TCP and HTTP targets.
	Port int

	// URL is set for HTTP targets.
	URL *url.URL
}

// Detect classifies input according to the rules in order: an explicit
// --tcp or --http override wins; otherwise an http(s):// prefix, a bare IP
// literal, or a host:port shape decide it, defaulting to ICMP.
func Detect(input string, opts Options) (Target, error) {
	switch {
	case opts.ForceTCP:
		return detectTCP(input)
	case opts.ForceHTTP:
		return detectHTTP(ensureScheme(input))
	case strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://"):
		return detectHTTP(input)
	case net.ParseIP(stripBrackets(input)) != nil:
		return Target{Input: input, Protocol: ICMP, Host: stripBrackets(input)}, nil
	default:
		if host, port, ok := splitHostPort(input); ok {
			return Target{Input: input, Protocol: TCP, Host: host, Port: port}, nil
		}
		return Target{Input: input, Protocol: ICMP, Host: input}, nil
	}
}

func ensureScheme(input string) string {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return input
	}
	return "http://" + input
}

func detectTCP(input string) (Target, error) {
	host, port, ok := splitHostPort(input)
	if !ok {
		return Target{}, fmt.Errorf("target: %q is not a valid host:port", input)
	}
	return Target{Input: input, Protocol: TCP, Host: host, Port: port}, nil
}

func detectHTTP(input string) (Target, error) {
	u, err := url.Parse(input)
	if err != nil {
		return Target{}, fmt.Errorf("target: %q is not a valid URL: %w", input, err)
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, fmt.Errorf("target: %q has no host", input)
	}
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Target{}, fmt.Errorf("target: %q has an invalid port: %w", input, err)
		}
		port = n
	}
	return Target{Input: input, Protocol: HTTP, Host: host, Port: port, URL: u}, nil
}

// splitHostPort reports whether input has a host:port shape, bracket-
// stripping an IPv6 literal host.
func splitHostPort(input string) (host string, port int, ok bool) {
	h, p, err := net.SplitHostPort(input)
	if err != nil {
		return "", 0, false
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, false
	}
	return h, portNum, true
}

func stripBrackets(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
}
