package pinger

import (
	"net"
	"sync"
	"time"

	"github.com/pcekm/pingx/internal/icmpclient"
)

// ICMP pings a target over the shared ICMP client for its address family.
type ICMP struct {
	target      string
	client      *icmpclient.Client
	peer        net.IP
	payloadSize int
	ttl         int
	timeout     time.Duration

	sink    chan<- Result
	stopped chan struct{}
	wg      sync.WaitGroup
}

// NewICMP builds an ICMP pinger for peer, sending payloadSize bytes of
// payload with the given TTL/hop-limit on each probe.
func NewICMP(target string, client *icmpclient.Client, peer net.IP, payloadSize, ttl int, timeout time.Duration) *ICMP {
	return &ICMP{
		target:      target,
		client:      client,
		peer:        peer,
		payloadSize: payloadSize,
		ttl:         ttl,
		timeout:     timeout,
		stopped:     make(chan struct{}),
	}
}

// Start implements Pinger.
func (p *ICMP) Start(sink chan<- Result) {
	p.sink = sink
}

// Ping implements Pinger.
func (p *ICMP) Ping(seq int) {
	p.wg.Add(1)
	go p.probe(seq)
}

func (p *ICMP) probe(seq int) {
	defer p.wg.Done()

	addr := p.client.Addr(p.peer)
	id := p.client.EchoID()
	replyCh := p.client.Register(addr, id, seq)
	payload := make([]byte, p.payloadSize)
	sendTime, err := p.client.Send(addr, id, seq, payload, p.ttl)
	if err != nil {
		p.client.Remove(addr, id, seq)
		p.emit(Result{Seq: seq, Peer: p.peer, Status: Error, Message: err.Error()})
		return
	}

	select {
	case reply := <-replyCh:
		p.emit(Result{
			Seq:    seq,
			Peer:   p.peer,
			Bytes:  len(reply.Echo.Payload) + 8,
			TTL:    reply.TTL,
			HasTTL: reply.HasTTL,
			RTT:    reply.RecvTime.Sub(sendTime),
			Status: Success,
		})
	case <-time.After(p.timeout):
		p.client.Remove(addr, id, seq)
		p.emit(Result{Seq: seq, Peer: p.peer, Status: Timeout})
	case <-p.stopped:
		p.client.Remove(addr, id, seq)
	}
}

func (p *ICMP) emit(r Result) {
	r.Target = p.target
	select {
	case p.sink <- r:
	case <-p.stopped:
	}
}

// Stop implements Pinger.
func (p *ICMP) Stop() {
	close(p.stopped)
	p.wg.Wait()
}
