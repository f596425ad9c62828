package icmpclient

import (
	"net"
	"sync"

	"github.com/pcekm/pingx/internal/util"
)

// identity is the key used to match a received ICMP echo reply to the
// pending probe that is waiting for it. The id field is omitted (left at
// zero) when the underlying socket is a kernel-mediated datagram socket: the
// kernel rewrites and owns the identifier in that case, so it must not
// participate in matching.
type identity struct {
	peer string
	id   int
	seq  int
}

func newIdentity(peer net.Addr, id, seq int, hasKernelID bool) identity {
	k := identity{peer: util.IP(peer).String(), seq: seq}
	if !hasKernelID {
		k.id = id
	}
	return k
}

// dispatchTable maps a probe identity to a single-shot result sink. There is
// at most one entry per identity: an entry is either consumed by a matching
// received packet (take) or removed by a timeout or cancellation (remove).
// No entry outlives the probe that inserted it. The lock is held only for
// map operations, never across I/O or a channel send.
type dispatchTable struct {
	mu      sync.Mutex
	waiters map[identity]chan<- Reply
}

func newDispatchTable() *dispatchTable {
	return &dispatchTable{waiters: make(map[identity]chan<- Reply)}
}

// insert registers ch to receive the reply matching key. Replaces any
// existing entry for the same key (callers are expected never to reuse a key
// while it's still live).
func (d *dispatchTable) insert(key identity, ch chan<- Reply) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiters[key] = ch
}

// remove deletes the entry for key without delivering anything to it. Used
// on timeout or send failure to prevent the entry from leaking.
func (d *dispatchTable) remove(key identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.waiters, key)
}

// takeAndDeliver looks up key; on a hit it removes the entry and sends v to
// it, returning true. On a miss it does nothing and returns false. The
// channel send happens without the lock held.
func (d *dispatchTable) takeAndDeliver(key identity, v Reply) bool {
	d.mu.Lock()
	ch, ok := d.waiters[key]
	if ok {
		delete(d.waiters, key)
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	ch <- v
	return true
}

// size returns the number of live entries. Exposed for tests verifying the
// "empty at session exit" invariant.
func (d *dispatchTable) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}
