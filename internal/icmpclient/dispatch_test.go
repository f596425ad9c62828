package icmpclient

import (
	"net"
	"testing"
)

var (
	peerA = &net.UDPAddr{IP: net.ParseIP("192.0.2.1")}
	peerB = &net.UDPAddr{IP: net.ParseIP("192.0.2.2")}
)

func TestDispatchTableTakeAndDeliver(t *testing.T) {
	d := newDispatchTable()
	key := newIdentity(peerA, 7, 3, false)
	ch := make(chan Reply, 1)
	d.insert(key, ch)

	want := Reply{Peer: peerA}
	if !d.takeAndDeliver(key, want) {
		t.Fatal("takeAndDeliver: want true for registered key")
	}
	got := <-ch
	if got.Peer != want.Peer {
		t.Errorf("delivered reply = %+v, want %+v", got, want)
	}
	if d.size() != 0 {
		t.Errorf("size after delivery = %d, want 0", d.size())
	}
}

func TestDispatchTableMissIsNotDelivered(t *testing.T) {
	d := newDispatchTable()
	key := newIdentity(peerA, 7, 3, false)
	if d.takeAndDeliver(key, Reply{}) {
		t.Error("takeAndDeliver on unregistered key: want false")
	}
}

func TestDispatchTableRemove(t *testing.T) {
	d := newDispatchTable()
	key := newIdentity(peerA, 7, 3, false)
	d.insert(key, make(chan Reply, 1))
	d.remove(key)
	if d.size() != 0 {
		t.Errorf("size after remove = %d, want 0", d.size())
	}
	if d.takeAndDeliver(key, Reply{}) {
		t.Error("takeAndDeliver after remove: want false")
	}
}

func TestDispatchTableKernelIDOmitsID(t *testing.T) {
	// With a kernel-owned identifier, two different local IDs for the same
	// peer/seq must collide on the same key: the kernel may have rewritten
	// the ID, so it can't be part of the match.
	k1 := newIdentity(peerA, 111, 5, true)
	k2 := newIdentity(peerA, 222, 5, true)
	if k1 != k2 {
		t.Errorf("keys with hasKernelID=true differ by ID: %+v vs %+v", k1, k2)
	}
}

func TestDispatchTableRawIDDistinguishes(t *testing.T) {
	k1 := newIdentity(peerA, 111, 5, false)
	k2 := newIdentity(peerA, 222, 5, false)
	if k1 == k2 {
		t.Error("keys with hasKernelID=false and different IDs should differ")
	}
}

func TestDispatchTablePeerDistinguishes(t *testing.T) {
	k1 := newIdentity(peerA, 1, 1, false)
	k2 := newIdentity(peerB, 1, 1, false)
	if k1 == k2 {
		t.Error("keys for different peers should differ")
	}
}
