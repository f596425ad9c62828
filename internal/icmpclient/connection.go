package icmpclient

import (
	"errors"
	"fmt"

	"github.com/pcekm/pingx/internal/util"
	"golang.org/x/net/icmp"
	"golang.org/x/sys/unix"
)

// open acquires an ICMP socket for ipVer. It first tries an unprivileged
// datagram socket (network "udp4"/"udp6"), which the kernel demultiplexes by
// rewriting the echo identifier to the local port; if that's refused, it
// falls back to a raw socket, which requires CAP_NET_RAW (or root) but
// leaves the identifier alone. hasKernelID reports which one was opened.
func open(ipVer util.IPVersion) (conn *icmp.PacketConn, hasKernelID bool, err error) {
	network := util.Choose(ipVer, "udp4", "udp6")
	conn, err = icmp.ListenPacket(network, "")
	if err == nil {
		return conn, true, nil
	}
	if !isPermissionErr(err) {
		return nil, false, fmt.Errorf("icmpclient: opening %v datagram socket: %w", ipVer, err)
	}

	rawNetwork := util.Choose(ipVer, "ip4:icmp", "ip6:ipv6-icmp")
	conn, err = icmp.ListenPacket(rawNetwork, "")
	if err != nil {
		return nil, false, fmt.Errorf("icmpclient: opening %v socket (datagram and raw both failed): %w", ipVer, err)
	}
	return conn, false, nil
}

func isPermissionErr(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM)
}
