// Package stats accumulates per-target transmit/receive counts and RTT
// samples and derives the summary values printed at session exit.
package stats

import (
	"math"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
)

// Target holds the running statistics for one probed target. Safe for
// concurrent use: the scheduler calls Sent and Received from a single
// goroutine in practice, but Snapshot may be called concurrently from a
// live dashboard.
type Target struct {
	mu          sync.Mutex
	transmitted int
	received    int
	rtts        []time.Duration
	last        time.Duration
	start       time.Time
	clock       clock.Clock
}

// New starts a new Target's statistics clock running now.
func New() *Target {
	return newWithClock(clock.NewClock())
}

func newWithClock(c clock.Clock) *Target {
	return &Target{clock: c, start: c.Now()}
}

// Sent records that a probe was transmitted, regardless of its outcome.
func (t *Target) Sent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transmitted++
}

// Received records a successful reply and its round-trip time.
func (t *Target) Received(rtt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.received++
	t.rtts = append(t.rtts, rtt)
	t.last = rtt
}

// Summary is the snapshot of derived values printed in the per-target
// summary block.
type Summary struct {
	Transmitted int
	Received    int
	LossPercent float64
	Elapsed     time.Duration

	// Min/Max/Avg/Mdev/Last are only meaningful when Received > 0.
	Min, Max, Avg, Mdev, Last time.Duration

	// Jitter is only meaningful when HasJitter is true (Received >= 2).
	Jitter    time.Duration
	HasJitter bool
}

// Snapshot computes the current Summary.
func (t *Target) Snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		Transmitted: t.transmitted,
		Received:    t.received,
		Elapsed:     t.clock.Now().Sub(t.start),
	}
	if t.transmitted > 0 {
		s.LossPercent = 100 * (1 - float64(t.received)/float64(t.transmitted))
	}
	if t.received == 0 {
		return s
	}
	s.Last = t.last

	s.Min, s.Max = t.rtts[0], t.rtts[0]
	var sum time.Duration
	for _, r := range t.rtts {
		if r < s.Min {
			s.Min = r
		}
		if r > s.Max {
			s.Max = r
		}
		sum += r
	}
	s.Avg = sum / time.Duration(len(t.rtts))

	var absDevSum time.Duration
	for _, r := range t.rtts {
		absDevSum += absDuration(r - s.Avg)
	}
	s.Mdev = absDevSum / time.Duration(len(t.rtts))

	if len(t.rtts) >= 2 {
		var jitterSum time.Duration
		for i := 1; i < len(t.rtts); i++ {
			jitterSum += absDuration(t.rtts[i] - t.rtts[i-1])
		}
		s.Jitter = jitterSum / time.Duration(len(t.rtts)-1)
		s.HasJitter = true
	}
	return s
}

func absDuration(d time.Duration) time.Duration {
	return time.Duration(math.Abs(float64(d)))
}
