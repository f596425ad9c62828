package pinger

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HTTP pings a target by issuing a single HEAD request per probe over a
// reused client. The client is configured to (a) accept self-signed
// certificates and (b) pin DNS to the already-selected peer address, so
// the reported RTT reflects that address rather than a fresh resolution.
type HTTP struct {
	target  string
	url     *url.URL
	peer    net.IP
	timeout time.Duration
	headers http.Header
	client  *http.Client

	sink    chan<- Result
	stopped chan struct{}
	wg      sync.WaitGroup
}

// NewHTTP builds an HTTP pinger issuing HEAD requests for u, pinned to
// peer:port regardless of what u's host resolves to.
func NewHTTP(target string, u *url.URL, peer net.IP, port int, timeout time.Duration, headers http.Header) *HTTP {
	var dialer net.Dialer
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, net.JoinHostPort(peer.String(), fmt.Sprint(port)))
		},
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	return &HTTP{
		target:  target,
		url:     u,
		peer:    peer,
		timeout: timeout,
		headers: headers,
		client:  &http.Client{Transport: transport},
		stopped: make(chan struct{}),
	}
}

// Start implements Pinger.
func (p *HTTP) Start(sink chan<- Result) {
	p.sink = sink
}

// Ping implements Pinger.
func (p *HTTP) Ping(seq int) {
	p.wg.Add(1)
	go p.probe(seq)
}

func (p *HTTP) probe(seq int) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url.String(), nil)
	if err != nil {
		p.emit(Result{Seq: seq, Peer: p.peer, Status: Error, Message: err.Error()})
		return
	}
	for name, values := range p.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	rtt := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			p.emit(Result{Seq: seq, Peer: p.peer, Status: Timeout})
		} else {
			p.emit(Result{Seq: seq, Peer: p.peer, Status: Error, Message: err.Error()})
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		p.emit(Result{Seq: seq, Peer: p.peer, RTT: rtt, Status: Success})
	} else {
		p.emit(Result{Seq: seq, Peer: p.peer, Status: Error, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)})
	}
}

func (p *HTTP) emit(r Result) {
	r.Target = p.target
	select {
	case p.sink <- r:
	case <-p.stopped:
	}
}

// Stop implements Pinger.
func (p *HTTP) Stop() {
	close(p.stopped)
	p.wg.Wait()
	p.client.CloseIdleConnections()
}

// ParseHeaders builds an http.Header from repeatable --header flag values.
// Each value may itself carry several "Name: Value" pairs separated by ';'
// or a newline; whitespace around names and values is trimmed, and entries
// without a colon are silently skipped rather than failing the whole run.
func ParseHeaders(raw []string) http.Header {
	h := http.Header{}
	for _, entry := range raw {
		for _, line := range strings.Split(strings.ReplaceAll(entry, ";", "\n"), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			idx := strings.IndexByte(line, ':')
			if idx < 0 {
				continue
			}
			name := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			if name == "" {
				continue
			}
			h.Add(name, value)
		}
	}
	return h
}
