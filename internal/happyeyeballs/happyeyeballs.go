// Package happyeyeballs implements the RFC 8305 "Happy Eyeballs v2"
// address-selection race: interleave a resolved address list by family and
// fire overlapping attempts against it until one succeeds.
package happyeyeballs

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pcekm/pingx/internal/util"
)

// Defaults per RFC 8305's guidance, also used as the spec's fixed values.
const (
	DefaultAttemptDelay = 50 * time.Millisecond
	MinAttemptDelay     = 10 * time.Millisecond
	MaxAttemptDelay     = 2 * time.Second
	DefaultProbeTimeout = time.Second
)

// Options tunes the race. Zero value uses the package defaults.
type Options struct {
	// AttemptDelay is the time between starting successive attempts absent
	// any failures. Clamped to [MinAttemptDelay, MaxAttemptDelay].
	AttemptDelay time.Duration
	// ProbeTimeout bounds a single attempt.
	ProbeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.AttemptDelay <= 0 {
		o.AttemptDelay = DefaultAttemptDelay
	}
	if o.AttemptDelay < MinAttemptDelay {
		o.AttemptDelay = MinAttemptDelay
	}
	if o.AttemptDelay > MaxAttemptDelay {
		o.AttemptDelay = MaxAttemptDelay
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	return o
}

// Attempt probes one candidate address, returning nil on success. It must
// respect ctx cancellation: Race cancels every loser's context the instant
// any attempt succeeds.
type Attempt func(ctx context.Context, addr net.IP) error

// Interleave partitions addrs into IPv6 and IPv4 sub-lists, preserving
// resolver order within each, then zips them one at a time starting with
// IPv6. Any tail left over from the longer sub-list is appended in order.
func Interleave(addrs []net.IP) []net.IP {
	var v4, v6 []net.IP
	for _, a := range addrs {
		if util.IPVersionOf(a) == util.IPv6 {
			v6 = append(v6, a)
		} else {
			v4 = append(v4, a)
		}
	}
	out := make([]net.IP, 0, len(addrs))
	for i := 0; i < len(v6) || i < len(v4); i++ {
		if i < len(v6) {
			out = append(out, v6[i])
		}
		if i < len(v4) {
			out = append(out, v4[i])
		}
	}
	return out
}

// ErrAllFailed is returned when every address in the list was attempted and
// none succeeded.
var ErrAllFailed = errors.New("happyeyeballs: all probes failed")

type attemptResult struct {
	addr net.IP
	err  error
}

// Race interleaves addrs and fires overlapping attempts against them,
// returning the first address to succeed. A single address is returned
// without probing it at all (nothing to race). Losing attempts are
// cancelled via context the moment a winner is found.
func Race(ctx context.Context, addrs []net.IP, attempt Attempt, opts Options) (net.IP, error) {
	if len(addrs) == 0 {
		return nil, errors.New("happyeyeballs: empty address list")
	}
	ordered := Interleave(addrs)
	if len(ordered) == 1 {
		return ordered[0], nil
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan attemptResult)
	var wg sync.WaitGroup
	launch := func(addr net.IP) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attemptCtx, attemptCancel := context.WithTimeout(ctx, opts.ProbeTimeout)
			defer attemptCancel()
			err := attempt(attemptCtx, addr)
			select {
			case results <- attemptResult{addr, err}:
			case <-ctx.Done():
			}
		}()
	}
	defer wg.Wait()

	next := 0
	start := func() {
		launch(ordered[next])
		next++
	}

	timer := time.NewTimer(opts.AttemptDelay)
	defer timer.Stop()
	start()
	pending := 1
	lastStart := time.Now()

	for {
		var tick <-chan time.Time
		if next < len(ordered) {
			tick = timer.C
		}
		select {
		case r := <-results:
			pending--
			if r.err == nil {
				cancel()
				return r.addr, nil
			}
			if next < len(ordered) {
				since := time.Since(lastStart)
				if since >= MinAttemptDelay {
					start()
					pending++
					lastStart = time.Now()
					resetTimer(timer, opts.AttemptDelay)
				} else {
					resetTimer(timer, MinAttemptDelay-since)
				}
			} else if pending == 0 {
				return nil, ErrAllFailed
			}
		case <-tick:
			start()
			pending++
			lastStart = time.Now()
			resetTimer(timer, opts.AttemptDelay)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
