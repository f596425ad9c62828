// Package icmppkt encodes and decodes ICMP Echo messages for IPv4 and IPv6.
//
// Both versions share the same 8-byte header shape: type, code, checksum,
// identifier, and sequence, followed by an opaque payload. The IPv4 checksum
// covers the whole message; the IPv6 checksum field is left zero since the
// kernel fills it in from the pseudo-header, which this package has no way to
// compute without access to the source address the kernel will actually use.
package icmppkt

import (
	"encoding/binary"
	"fmt"

	"github.com/pcekm/pingx/internal/util"
)

// ICMP type values used by this package. Error types (time exceeded,
// destination unreachable) are intentionally not modeled: beyond
// success/failure, this program doesn't interpret ICMP error codes.
const (
	TypeV4EchoRequest byte = 8
	TypeV4EchoReply   byte = 0
	TypeV6EchoRequest byte = 128
	TypeV6EchoReply   byte = 129
)

const headerLen = 8

// Echo is a logical ICMP echo request or reply.
type Echo struct {
	// IPVersion selects the wire type values and checksum behavior.
	IPVersion util.IPVersion

	// Request is true for an echo request, false for an echo reply.
	Request bool

	// ID is the ICMP echo identifier.
	ID int

	// Seq is the ICMP echo sequence number.
	Seq int

	// Payload is the opaque trailing data. Its content is never used for
	// correlation; only (peer, ID, Seq) identify a probe.
	Payload []byte
}

// Encode serializes e into its wire representation.
func Encode(e Echo) []byte {
	buf := make([]byte, headerLen+len(e.Payload))
	buf[0] = requestType(e.IPVersion, e.Request)
	buf[1] = 0 // code
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[4:6], uint16(e.ID))
	binary.BigEndian.PutUint16(buf[6:8], uint16(e.Seq))
	copy(buf[headerLen:], e.Payload)

	if e.IPVersion == util.IPv4 {
		binary.BigEndian.PutUint16(buf[2:4], Checksum(buf))
	}
	return buf
}

// Decode parses the wire representation of an ICMP echo message. It fails if
// buf is shorter than the fixed 8-byte header. It does not validate the
// checksum: by the time a reply reaches userspace the kernel has already
// discarded malformed packets, and nothing in the reply path is adversarial.
func Decode(ipVer util.IPVersion, buf []byte) (Echo, error) {
	if len(buf) < headerLen {
		return Echo{}, fmt.Errorf("icmppkt: short packet: %d bytes", len(buf))
	}
	typ := buf[0]
	req, err := isRequest(ipVer, typ)
	if err != nil {
		return Echo{}, err
	}
	payload := make([]byte, len(buf)-headerLen)
	copy(payload, buf[headerLen:])
	return Echo{
		IPVersion: ipVer,
		Request:   req,
		ID:        int(binary.BigEndian.Uint16(buf[4:6])),
		Seq:       int(binary.BigEndian.Uint16(buf[6:8])),
		Payload:   payload,
	}, nil
}

func requestType(ipVer util.IPVersion, request bool) byte {
	switch {
	case ipVer == util.IPv4 && request:
		return TypeV4EchoRequest
	case ipVer == util.IPv4 && !request:
		return TypeV4EchoReply
	case ipVer == util.IPv6 && request:
		return TypeV6EchoRequest
	default:
		return TypeV6EchoReply
	}
}

func isRequest(ipVer util.IPVersion, typ byte) (bool, error) {
	switch {
	case ipVer == util.IPv4 && typ == TypeV4EchoRequest:
		return true, nil
	case ipVer == util.IPv4 && typ == TypeV4EchoReply:
		return false, nil
	case ipVer == util.IPv6 && typ == TypeV6EchoRequest:
		return true, nil
	case ipVer == util.IPv6 && typ == TypeV6EchoReply:
		return false, nil
	default:
		return false, fmt.Errorf("icmppkt: unhandled ICMP type %d for %v", typ, ipVer)
	}
}

// Checksum computes the 16-bit one's-complement Internet checksum (RFC 1071)
// of b, as used for the ICMPv4 header. The caller must zero the checksum
// field in b before calling this, and it must not be called for IPv6 (the
// kernel computes that one from the pseudo-header).
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
