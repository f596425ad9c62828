package pinger

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCP pings a target by timing a bare TCP handshake.
type TCP struct {
	target  string
	peer    net.IP
	port    int
	timeout time.Duration
	dialer  net.Dialer

	sink    chan<- Result
	stopped chan struct{}
	wg      sync.WaitGroup
}

// NewTCP builds a TCP pinger connecting to (peer, port).
func NewTCP(target string, peer net.IP, port int, timeout time.Duration) *TCP {
	return &TCP{
		target:  target,
		peer:    peer,
		port:    port,
		timeout: timeout,
		stopped: make(chan struct{}),
	}
}

// Start implements Pinger.
func (p *TCP) Start(sink chan<- Result) {
	p.sink = sink
}

// Ping implements Pinger.
func (p *TCP) Ping(seq int) {
	p.wg.Add(1)
	go p.probe(seq)
}

func (p *TCP) probe(seq int) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	addr := net.JoinHostPort(p.peer.String(), fmt.Sprint(p.port))
	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	rtt := time.Since(start)

	switch {
	case err == nil:
		conn.Close()
		p.emit(Result{Seq: seq, Peer: p.peer, RTT: rtt, Status: Success})
	case ctx.Err() != nil:
		p.emit(Result{Seq: seq, Peer: p.peer, Status: Timeout})
	default:
		p.emit(Result{Seq: seq, Peer: p.peer, Status: Error, Message: err.Error()})
	}
}

func (p *TCP) emit(r Result) {
	r.Target = p.target
	select {
	case p.sink <- r:
	case <-p.stopped:
	}
}

// Stop implements Pinger.
func (p *TCP) Stop() {
	close(p.stopped)
	p.wg.Wait()
}
