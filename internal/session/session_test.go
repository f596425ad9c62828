package session

import (
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"

	"github.com/pcekm/pingx/internal/pinger"
	"github.com/pcekm/pingx/internal/stats"
)

// fakePinger records every Ping call and lets the test control when (and
// whether) a result is emitted back on the sink.
type fakePinger struct {
	mu      sync.Mutex
	sink    chan<- pinger.Result
	target  string
	pings   []int
	respond func(seq int) (pinger.Result, bool) // false means: never reply
}

func (p *fakePinger) Start(sink chan<- pinger.Result) { p.sink = sink }

func (p *fakePinger) Ping(seq int) {
	p.mu.Lock()
	p.pings = append(p.pings, seq)
	p.mu.Unlock()
	if p.respond == nil {
		return
	}
	if r, ok := p.respond(seq); ok {
		r.Target = p.target
		go func() { p.sink <- r }()
	}
}

func (p *fakePinger) Stop() {}

func (p *fakePinger) seen() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.pings...)
}

func TestRunStopsAfterCountAndDrain(t *testing.T) {
	fp := &fakePinger{target: "a", respond: func(seq int) (pinger.Result, bool) {
		return pinger.Result{Seq: seq, Status: pinger.Success, RTT: time.Millisecond}, true
	}}
	st := stats.New()
	clk := fakeclock.NewFakeClock(time.Unix(0, 0))

	s := New([]Target{{Input: "a", Pinger: fp, Stats: st}}, Options{
		Interval:     time.Second,
		Count:        3,
		ProbeTimeout: 100 * time.Millisecond,
		Clock:        clk,
	}, nil, nil)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// The first probe round fires immediately, before any tick; two more
	// ticks complete the count of 3, and a third tick pushes the scheduler
	// into draining instead of sending any more pings.
	for i := 0; i < 2; i++ {
		waitForTicker(t, clk)
		clk.Increment(time.Second)
	}
	waitForTicker(t, clk)
	clk.Increment(time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after count+drain")
	}

	if got := fp.seen(); len(got) != 3 {
		t.Errorf("pings sent = %v, want exactly 3", got)
	} else if got[0] != 1 || got[len(got)-1] != 3 {
		t.Errorf("pings sent = %v, want sequence numbers [1, 3]", got)
	}
	if snap := st.Snapshot(); snap.Received != 3 {
		t.Errorf("received = %d, want 3", snap.Received)
	}
}

func TestRunRespectsDeadlineEvenWithProbesOutstanding(t *testing.T) {
	fp := &fakePinger{target: "a"} // never replies
	st := stats.New()
	clk := fakeclock.NewFakeClock(time.Unix(0, 0))

	s := New([]Target{{Input: "a", Pinger: fp, Stats: st}}, Options{
		Interval:     time.Second,
		Deadline:     500 * time.Millisecond,
		ProbeTimeout: time.Second,
		Clock:        clk,
	}, nil, nil)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// The first probe round fires immediately at Run start, so by the time
	// both the ticker and the deadline timer are armed there's already one
	// outstanding, never-replied probe.
	waitForNTimers(t, clk, 2)
	clk.Increment(500 * time.Millisecond) // reaches the deadline

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop at deadline")
	}
}

func TestRunStopsOnInterrupt(t *testing.T) {
	fp := &fakePinger{target: "a"}
	st := stats.New()
	clk := fakeclock.NewFakeClock(time.Unix(0, 0))
	interrupt := make(chan struct{})

	s := New([]Target{{Input: "a", Pinger: fp, Stats: st}}, Options{
		Interval:     time.Second,
		ProbeTimeout: time.Second,
		Clock:        clk,
	}, nil, interrupt)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	close(interrupt)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on interrupt")
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	results []pinger.Result
	// receivedAtObserve is the target's Received count at each Observe call.
	receivedAtObserve []int
}

func (o *recordingObserver) Observe(t Target, r pinger.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
	o.receivedAtObserve = append(o.receivedAtObserve, t.Stats.Snapshot().Received)
}

func TestRunNotifiesObserverBeforeStatsUpdate(t *testing.T) {
	fp := &fakePinger{target: "a", respond: func(seq int) (pinger.Result, bool) {
		return pinger.Result{Seq: seq, Status: pinger.Success, RTT: time.Millisecond}, true
	}}
	st := stats.New()
	clk := fakeclock.NewFakeClock(time.Unix(0, 0))
	obs := &recordingObserver{}

	s := New([]Target{{Input: "a", Pinger: fp, Stats: st}}, Options{
		Interval:     time.Second,
		Count:        1,
		ProbeTimeout: 10 * time.Millisecond,
		Clock:        clk,
	}, obs, nil)

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	// The sole probe round (seq 1) fires immediately at Run start; the
	// first tick then finds the count already exhausted and enters
	// draining.
	waitForTicker(t, clk)
	clk.Increment(time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.results) != 1 {
		t.Fatalf("observer saw %d results, want 1", len(obs.results))
	}
	if got := obs.receivedAtObserve[0]; got != 0 {
		t.Errorf("stats showed %d received when the observer ran, want 0 (observer must run before the stats update)", got)
	}
	if snap := st.Snapshot(); snap.Received != 1 {
		t.Errorf("received after run = %d, want 1", snap.Received)
	}
}

func waitForTicker(t *testing.T, clk *fakeclock.FakeClock) {
	t.Helper()
	if err := waitForWatchers(clk, 1, 2*time.Second); err != nil {
		t.Fatal(err)
	}
}

func waitForNTimers(t *testing.T, clk *fakeclock.FakeClock, n int) {
	t.Helper()
	if err := waitForWatchers(clk, n, 2*time.Second); err != nil {
		t.Fatal(err)
	}
}

func waitForWatchers(clk *fakeclock.FakeClock, n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if clk.WatcherCount() >= n {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return errWatcherTimeout
}

var errWatcherTimeout = &watcherTimeoutError{}

type watcherTimeoutError struct{}

func (*watcherTimeoutError) Error() string { return "timed out waiting for fake clock watcher" }
