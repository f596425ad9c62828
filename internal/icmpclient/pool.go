package icmpclient

import (
	"sync"

	"github.com/pcekm/pingx/internal/util"
)

// Pool hands out a single shared Client per IP version, opening the
// underlying socket lazily on first use and closing it once the last
// holder releases it. This is what lets every ICMP pinger in a session
// multiplex through one socket per address family instead of one each.
type Pool struct {
	mu      sync.Mutex
	clients map[util.IPVersion]*pooledClient
}

type pooledClient struct {
	client *Client
	refs   int
}

// NewPool returns an empty pool. The zero value is not usable; always
// construct with NewPool.
func NewPool() *Pool {
	return &Pool{clients: make(map[util.IPVersion]*pooledClient)}
}

// Acquire returns the shared Client for ipVer, opening it if this is the
// first caller. Each successful Acquire must be matched with exactly one
// Release.
func (p *Pool) Acquire(ipVer util.IPVersion) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pc, ok := p.clients[ipVer]; ok {
		pc.refs++
		return pc.client, nil
	}
	c, err := New(ipVer)
	if err != nil {
		return nil, err
	}
	p.clients[ipVer] = &pooledClient{client: c, refs: 1}
	return c, nil
}

// Release drops one reference to the shared Client for ipVer, closing it
// once no holders remain. Calling Release for a version with no open
// Client is a no-op.
func (p *Pool) Release(ipVer util.IPVersion) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.clients[ipVer]
	if !ok {
		return
	}
	pc.refs--
	if pc.refs > 0 {
		return
	}
	delete(p.clients, ipVer)
	pc.client.Close()
}
