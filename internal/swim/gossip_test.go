package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func member(addr string, s Status) Member {
	return Member{Peer: Node{Addr: addr}, Status: s}
}

func TestGossipBuffer_DrainOrdersByCount(t *testing.T) {
	b := NewGossipBuffer(6)
	b.Upsert(member("A", Alive(1)))
	b.Upsert(member("B", Alive(1)))
	b.Upsert(member("C", Alive(1)))

	first := b.Drain(1)
	assert.Len(t, first, 1)
	firstAddr := first[0].member.Peer.Addr

	second := b.Drain(2)
	assert.Len(t, second, 2)
	for _, e := range second {
		assert.NotEqual(t, firstAddr, e.member.Peer.Addr)
	}
}

func TestGossipBuffer_UpsertReplacesExisting(t *testing.T) {
	b := NewGossipBuffer(6)
	b.Upsert(member("A", Alive(1)))
	b.Drain(1) // gossip_count for A is now 1

	b.Upsert(member("A", Alive(2)))
	assert.Equal(t, 1, b.Len())

	out := b.Drain(1)
	assert.Equal(t, Incarnation(2), out[0].member.Status.Incarnation)
	assert.Equal(t, 1, out[0].gossipCount) // count reset to 0 by Upsert, then incremented once by this Drain
}

func TestGossipBuffer_DecaysOutAfterMaxSeen(t *testing.T) {
	b := NewGossipBuffer(2)
	b.Upsert(member("A", Alive(1)))

	b.Drain(1) // count -> 1, re-inserted (1 < 2)
	assert.Equal(t, 1, b.Len())

	b.Drain(1) // count -> 2, not re-inserted (2 !< 2)
	assert.Equal(t, 0, b.Len())
}

func TestGossipBuffer_RemoveDeletesPendingEntry(t *testing.T) {
	b := NewGossipBuffer(6)
	b.Upsert(member("A", Alive(1)))
	b.Upsert(member("B", Alive(1)))

	b.Remove("A")

	assert.Equal(t, 1, b.Len())
	out := b.Drain(10)
	assert.Len(t, out, 1)
	assert.Equal(t, "B", out[0].member.Peer.Addr)
}

func TestGossipBuffer_DrainMoreThanAvailable(t *testing.T) {
	b := NewGossipBuffer(6)
	b.Upsert(member("A", Alive(1)))

	out := b.Drain(10)
	assert.Len(t, out, 1)
}

func TestGossipBuffer_DrainNonPositiveIsNil(t *testing.T) {
	b := NewGossipBuffer(6)
	b.Upsert(member("A", Alive(1)))
	assert.Nil(t, b.Drain(0))
}

func TestGossipBuffer_WithholdThenRestorePreservesCount(t *testing.T) {
	b := NewGossipBuffer(6)
	b.Upsert(member("A", Alive(1)))
	b.Upsert(member("B", Alive(1)))
	b.Drain(1) // one of A/B now at count 1

	entry, ok := b.Withhold("A")
	assert.True(t, ok)
	assert.Equal(t, "A", entry.member.Peer.Addr)
	assert.Equal(t, 1, b.Len())

	b.Restore(entry)

	assert.Equal(t, 2, b.Len())
	got, ok := b.byAddr["A"]
	assert.True(t, ok)
	assert.Equal(t, entry.gossipCount, got.gossipCount)
}

func TestGossipBuffer_WithholdUnknownAddrIsNoop(t *testing.T) {
	b := NewGossipBuffer(6)
	_, ok := b.Withhold("Z")
	assert.False(t, ok)
}
