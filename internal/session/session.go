// Package session runs the probe scheduler: it ticks every configured
// pinger, collects their results, updates per-target statistics, and
// enforces the count/deadline/drain shutdown rules.
package session

import (
	"net"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/pcekm/pingx/internal/pinger"
	"github.com/pcekm/pingx/internal/stats"
	"github.com/pcekm/pingx/internal/target"
)

// Target pairs one pinger with the statistics it feeds and the string the
// user typed for it, so final output can be rendered in input order.
type Target struct {
	Input    string
	Protocol target.Protocol
	Peer     net.IP
	Pinger   pinger.Pinger
	Stats    *stats.Target
}

// Options configures the scheduler's timing. ProbeTimeout must match (or
// exceed) the timeout each Pinger implementation was built with, since it's
// also used to size the drain deadline.
type Options struct {
	// Interval between ticks. Defaults to one second.
	Interval time.Duration

	// Count caps the number of ticks; zero means unlimited.
	Count int

	// Deadline, if nonzero, terminates the session unconditionally once
	// elapsed, regardless of outstanding probes.
	Deadline time.Duration

	// ProbeTimeout is the per-probe timeout every Pinger was built with.
	// Used to size the post-drain grace period.
	ProbeTimeout time.Duration

	// Clock is the time source for ticks and deadlines. Defaults to the
	// real clock; tests inject a fake.
	Clock clock.Clock
}

func (o Options) interval() time.Duration {
	if o.Interval == 0 {
		return time.Second
	}
	return o.Interval
}

func (o Options) clock() clock.Clock {
	if o.Clock == nil {
		return clock.NewClock()
	}
	return o.Clock
}

// drainGrace is the padding added to the per-probe timeout when sizing the
// drain deadline, per §4.5: "per-probe-timeout + 100ms".
const drainGrace = 100 * time.Millisecond

// ProbeObserver is notified of every probe result as the scheduler receives
// it, before statistics are updated. Implemented by internal/printer.
type ProbeObserver interface {
	Observe(t Target, r pinger.Result)
}

// noopObserver discards every result; used when Run is called without one.
type noopObserver struct{}

func (noopObserver) Observe(Target, pinger.Result) {}

// Session drives a fixed set of targets through one probing run.
type Session struct {
	targets   []Target
	opts      Options
	observer  ProbeObserver
	interrupt <-chan struct{}
}

// New builds a Session over targets. interrupt, if non-nil, is closed (or
// receives a value) to request an immediate graceful shutdown, mirroring a
// terminal SIGINT.
func New(targets []Target, opts Options, observer ProbeObserver, interrupt <-chan struct{}) *Session {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Session{targets: targets, opts: opts, observer: observer, interrupt: interrupt}
}

// Run starts every target's pinger, executes the main loop described in
// §4.5, and stops every pinger before returning. It blocks until the
// session terminates via count exhaustion (plus drain), deadline, or
// interrupt.
func (s *Session) Run() {
	clk := s.opts.clock()

	sink := make(chan pinger.Result)
	for _, t := range s.targets {
		t.Pinger.Start(sink)
	}
	defer func() {
		for _, t := range s.targets {
			t.Pinger.Stop()
		}
	}()

	ticker := clk.NewTicker(s.opts.interval())
	defer ticker.Stop()

	var deadlineCh <-chan time.Time
	if s.opts.Deadline > 0 {
		timer := clk.NewTimer(s.opts.Deadline)
		defer timer.Stop()
		deadlineCh = timer.C()
	}

	var drainCh <-chan time.Time
	var drainTimer clock.Timer
	defer func() {
		if drainTimer != nil {
			drainTimer.Stop()
		}
	}()
	draining := false
	seq := 1
	inFlight := 0

	// advance fires one round of probes (or, once the configured count is
	// exhausted, arms the drain deadline instead). Sequence numbers
	// transmitted are the contiguous range [1, transmitted].
	advance := func() {
		if s.opts.Count > 0 && seq > s.opts.Count {
			draining = true
			ticker.Stop()
			drainTimer = clk.NewTimer(s.opts.ProbeTimeout + drainGrace)
			drainCh = drainTimer.C()
			return
		}
		for _, t := range s.targets {
			t.Pinger.Ping(seq)
			t.Stats.Sent()
			inFlight++
		}
		seq++
	}

	// The interval tick fires immediately rather than only after the first
	// full interval elapses, per §4.5's "every interval seconds, starting
	// immediately".
	advance()

	for {
		select {
		case <-ticker.C():
			if draining {
				continue
			}
			advance()
			if draining && inFlight <= 0 {
				return
			}

		case r := <-sink:
			inFlight--
			s.deliver(r)
			if draining && inFlight <= 0 {
				return
			}

		case <-deadlineCh:
			return

		case <-drainCh:
			return

		case <-s.interrupt:
			return
		}
	}
}

func (s *Session) deliver(r pinger.Result) {
	for _, t := range s.targets {
		if t.Input != r.Target {
			continue
		}
		s.observer.Observe(t, r)
		if r.Status == pinger.Success {
			t.Stats.Received(r.RTT)
		}
		return
	}
}
