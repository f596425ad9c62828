package icmpclient

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/pcekm/pingx/internal/util"
)

var (
	loopbackV4 = &net.UDPAddr{IP: net.ParseIP("127.0.0.1")}
	loopbackV6 = &net.UDPAddr{IP: net.ParseIP("::1")}
)

// TestLiveLoopback sends a real echo request to loopback and waits for the
// reply. It needs either an unprivileged ping group (Linux) or root, so it's
// skipped unless PINGX_LIVE_TESTS is set.
func TestLiveLoopback(t *testing.T) {
	if os.Getenv("PINGX_LIVE_TESTS") == "" {
		t.Skip("set PINGX_LIVE_TESTS=1 to run tests that open real ICMP sockets")
	}
	cases := []struct {
		ipVer util.IPVersion
		dest  *net.UDPAddr
	}{
		{util.IPv4, loopbackV4},
		{util.IPv6, loopbackV6},
	}
	for _, c := range cases {
		t.Run(c.ipVer.String(), func(t *testing.T) {
			client, err := New(c.ipVer)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer client.Close()

			const seq = 1
			id := client.EchoID()
			dest := client.Addr(c.dest.IP)
			replyCh := client.Register(dest, id, seq)
			if _, err := client.Send(dest, id, seq, []byte("hello"), 0); err != nil {
				client.Remove(dest, id, seq)
				t.Fatalf("Send: %v", err)
			}
			select {
			case reply := <-replyCh:
				if reply.Echo.Seq != seq {
					t.Errorf("reply.Echo.Seq = %d, want %d", reply.Echo.Seq, seq)
				}
			case <-time.After(2 * time.Second):
				client.Remove(dest, id, seq)
				t.Fatal("timed out waiting for echo reply")
			}
		})
	}
}

func TestPoolAcquireReleaseSharesClient(t *testing.T) {
	if os.Getenv("PINGX_LIVE_TESTS") == "" {
		t.Skip("set PINGX_LIVE_TESTS=1 to run tests that open real ICMP sockets")
	}
	p := NewPool()
	c1, err := p.Acquire(util.IPv4)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c2, err := p.Acquire(util.IPv4)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if c1 != c2 {
		t.Error("two Acquire calls for the same IP version returned different clients")
	}
	p.Release(util.IPv4)
	p.Release(util.IPv4)
}
