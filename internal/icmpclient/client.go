// Package icmpclient provides a single shared ICMP socket per IP version,
// multiplexing replies to many concurrent probes through a reply-dispatch
// table keyed on (peer, identifier, sequence). Callers register interest in
// a probe's reply before sending the request, then read from the channel
// they're handed; a single receiver goroutine owns the socket read side.
package icmpclient

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/pcekm/pingx/internal/icmppkt"
	"github.com/pcekm/pingx/internal/util"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/time/rate"
)

const (
	maxMTU          = 1500
	minSendInterval = 2 * time.Millisecond
	sendBurst       = 50
)

// Reply is a received and matched ICMP echo reply.
type Reply struct {
	Echo     icmppkt.Echo
	Peer     net.Addr
	RecvTime time.Time

	// TTL/hop-limit the reply arrived with. HasTTL is false when neither
	// ancillary control-message data nor a parseable IP header was
	// available, in which case TTL should be omitted from any report.
	TTL    int
	HasTTL bool
}

// Client is a shared ICMP connection for one IP version. It's safe for
// concurrent use: Send and Register may be called from many goroutines,
// typically one per target pinger, while a single internal goroutine reads
// from the socket.
type Client struct {
	ipVer       util.IPVersion
	conn        *icmp.PacketConn
	hasKernelID bool
	rawIPv4     bool
	echoID      int
	limiter     *rate.Limiter
	dispatch    *dispatchTable

	closing chan struct{}
	closed  chan struct{}
}

// New opens a shared ICMP client for ipVer. It tries an unprivileged
// datagram socket first and falls back to a raw socket; see open().
func New(ipVer util.IPVersion) (*Client, error) {
	conn, hasKernelID, err := open(ipVer)
	if err != nil {
		return nil, err
	}

	echoID := util.GenID()
	if hasKernelID {
		if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			echoID = ua.Port
		}
	}

	c := &Client{
		ipVer:       ipVer,
		conn:        conn,
		hasKernelID: hasKernelID,
		rawIPv4:     !hasKernelID && ipVer == util.IPv4,
		echoID:      echoID,
		limiter:     rate.NewLimiter(rate.Every(minSendInterval), sendBurst),
		dispatch:    newDispatchTable(),
		closing:     make(chan struct{}),
		closed:      make(chan struct{}),
	}

	if ipVer == util.IPv4 {
		_ = c.conn.IPv4PacketConn().SetControlMessage(ipv4.FlagTTL, true)
	} else {
		_ = c.conn.IPv6PacketConn().SetControlMessage(ipv6.FlagHopLimit, true)
	}

	go c.receiveLoop()
	return c, nil
}

// EchoID is the identifier this client stamps on outgoing requests when it
// owns a raw socket. On a datagram socket the kernel rewrites the
// identifier in flight, so this value is informational only.
func (c *Client) EchoID() int {
	return c.echoID
}

// HasKernelID reports whether the kernel owns and rewrites the echo
// identifier (true for an unprivileged datagram socket).
func (c *Client) HasKernelID() bool {
	return c.hasKernelID
}

// Addr wraps ip in the net.Addr concrete type this client's socket expects:
// *net.UDPAddr for the unprivileged datagram socket, *net.IPAddr for the
// raw socket.
func (c *Client) Addr(ip net.IP) net.Addr {
	if c.hasKernelID {
		return &net.UDPAddr{IP: ip}
	}
	return &net.IPAddr{IP: ip}
}

// SetTTL sets the time-to-live (or hop limit for IPv6) applied to packets
// sent on this socket from here on.
func (c *Client) SetTTL(ttl int) error {
	if c.ipVer == util.IPv4 {
		return c.conn.IPv4PacketConn().SetTTL(ttl)
	}
	return c.conn.IPv6PacketConn().SetHopLimit(ttl)
}

// Register installs a single-shot waiter for the reply matching (peer, id,
// seq) and returns the channel it will arrive on. Callers must Send the
// matching request only after Register returns, and must call Remove if
// they give up waiting (e.g. on timeout) so the entry doesn't leak.
func (c *Client) Register(peer net.Addr, id, seq int) <-chan Reply {
	ch := make(chan Reply, 1)
	c.dispatch.insert(newIdentity(peer, id, seq, c.hasKernelID), ch)
	return ch
}

// Remove cancels a prior Register. It's a no-op if the reply already
// arrived and was delivered.
func (c *Client) Remove(peer net.Addr, id, seq int) {
	c.dispatch.remove(newIdentity(peer, id, seq, c.hasKernelID))
}

// Send encodes and transmits an ICMP echo request. If ttl is nonzero it's
// set on the socket before sending and stays in effect for later sends until
// changed again; a zero ttl leaves the current setting alone. TTL is a
// connection-wide socket option, so callers using different TTLs on one
// client must serialize their sends.
func (c *Client) Send(peer net.Addr, id, seq int, payload []byte, ttl int) (time.Time, error) {
	if !c.limiter.Allow() {
		return time.Time{}, errors.New("icmpclient: send rate exceeded")
	}
	if ttl != 0 {
		if err := c.SetTTL(ttl); err != nil {
			return time.Time{}, fmt.Errorf("icmpclient: set ttl: %w", err)
		}
	}
	buf := icmppkt.Encode(icmppkt.Echo{
		IPVersion: c.ipVer,
		Request:   true,
		ID:        id,
		Seq:       seq,
		Payload:   payload,
	})
	sendTime := time.Now()
	if _, err := c.conn.WriteTo(buf, peer); err != nil {
		return sendTime, fmt.Errorf("icmpclient: write: %w", err)
	}
	return sendTime, nil
}

// Close shuts down the receive loop and the underlying socket. It's safe to
// call more than once.
func (c *Client) Close() error {
	select {
	case <-c.closing:
	default:
		close(c.closing)
	}
	err := c.conn.Close()
	<-c.closed
	return err
}

func (c *Client) receiveLoop() {
	defer close(c.closed)
	buf := make([]byte, maxMTU)
	for {
		n, ttl, hasTTL, peer, err := c.readOne(buf)
		if err != nil {
			select {
			case <-c.closing:
				return
			default:
			}
			log.Printf("icmpclient: %v receive error: %v", c.ipVer, err)
			continue
		}
		recvTime := time.Now()
		data := buf[:n]
		if c.rawIPv4 {
			payload, hdrTTL, ok := splitRawIPv4(data)
			if ok {
				data = payload
				if !hasTTL {
					ttl, hasTTL = hdrTTL, true
				}
			}
		}

		echo, err := icmppkt.Decode(c.ipVer, data)
		if err != nil || echo.Request {
			continue
		}
		if !c.hasKernelID && echo.ID != c.echoID {
			continue
		}
		key := newIdentity(peer, echo.ID, echo.Seq, c.hasKernelID)
		c.dispatch.takeAndDeliver(key, Reply{
			Echo:     echo,
			Peer:     peer,
			RecvTime: recvTime,
			TTL:      ttl,
			HasTTL:   hasTTL,
		})
	}
}

func (c *Client) readOne(buf []byte) (n, ttl int, hasTTL bool, peer net.Addr, err error) {
	if c.rawIPv4 {
		n, peer, err = c.conn.ReadFrom(buf)
		return n, 0, false, peer, err
	}
	if c.ipVer == util.IPv4 {
		var cm *ipv4.ControlMessage
		n, cm, peer, err = c.conn.IPv4PacketConn().ReadFrom(buf)
		if cm != nil {
			return n, cm.TTL, true, peer, err
		}
		return n, 0, false, peer, err
	}
	var cm *ipv6.ControlMessage
	n, cm, peer, err = c.conn.IPv6PacketConn().ReadFrom(buf)
	if cm != nil {
		return n, cm.HopLimit, true, peer, err
	}
	return n, 0, false, peer, err
}
