package swim

import "container/heap"

// gossipEntry is one pending Gossip record: the member to disseminate and
// how many times it has already been handed out. index is maintained by the
// heap so a node's entry can be located and removed directly (the update-
// by-key scheme the gossip buffer needs, analogous to a priority queue's
// decrease-key).
type gossipEntry struct {
	member      Member
	gossipCount int
	index       int
}

type gossipHeap []*gossipEntry

func (h gossipHeap) Len() int           { return len(h) }
func (h gossipHeap) Less(i, j int) bool { return h[i].gossipCount < h[j].gossipCount }
func (h gossipHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *gossipHeap) Push(x interface{}) {
	e := x.(*gossipEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *gossipHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// GossipBuffer is the min-heap of pending Gossip entries ordered by
// fewest-times-gossiped-first, keyed for uniqueness by node address so a
// fresh write for a node replaces any entry already queued for it.
type GossipBuffer struct {
	heap    gossipHeap
	byAddr  map[string]*gossipEntry
	maxSeen int
}

func NewGossipBuffer(maxGossipCountPerMessage int) *GossipBuffer {
	b := &GossipBuffer{
		byAddr:  make(map[string]*gossipEntry),
		maxSeen: maxGossipCountPerMessage,
	}
	heap.Init(&b.heap)
	return b
}

// Upsert inserts a fresh Gossip entry (gossip_count: 0) for m.Peer, first
// removing any prior entry for the same node.
func (b *GossipBuffer) Upsert(m Member) {
	b.Remove(m.Peer.Addr)
	e := &gossipEntry{member: m}
	heap.Push(&b.heap, e)
	b.byAddr[m.Peer.Addr] = e
}

// Remove deletes any pending entry for the given node address.
func (b *GossipBuffer) Remove(addr string) {
	e, ok := b.byAddr[addr]
	if !ok {
		return
	}
	heap.Remove(&b.heap, e.index)
	delete(b.byAddr, addr)
}

// Len returns the number of pending entries.
func (b *GossipBuffer) Len() int { return b.heap.Len() }

// Withhold pulls addr's pending entry out of the buffer without counting it
// as dissemination, so a caller sending it through some other channel this
// round (the buddy system) can put it back unchanged afterward with Restore.
func (b *GossipBuffer) Withhold(addr string) (gossipEntry, bool) {
	e, ok := b.byAddr[addr]
	if !ok {
		return gossipEntry{}, false
	}
	saved := *e
	b.Remove(addr)
	return saved, true
}

// Restore re-queues an entry previously taken out by Withhold, preserving
// its gossip_count rather than resetting it the way Upsert would.
func (b *GossipBuffer) Restore(e gossipEntry) {
	b.Remove(e.member.Peer.Addr)
	ne := &gossipEntry{member: e.member, gossipCount: e.gossipCount}
	heap.Push(&b.heap, ne)
	b.byAddr[e.member.Peer.Addr] = ne
}

// Drain pops up to n lowest-gossip_count entries, increments each one's
// count, and re-inserts any entry whose count is still below the per-
// message cap. Entries that decay out are simply not re-inserted.
func (b *GossipBuffer) Drain(n int) []gossipEntry {
	if n <= 0 {
		return nil
	}
	out := make([]gossipEntry, 0, n)
	var keep []*gossipEntry
	for i := 0; i < n && b.heap.Len() > 0; i++ {
		e := heap.Pop(&b.heap).(*gossipEntry)
		delete(b.byAddr, e.member.Peer.Addr)
		e.gossipCount++
		out = append(out, *e)
		if e.gossipCount < b.maxSeen {
			keep = append(keep, e)
		}
	}
	for _, e := range keep {
		heap.Push(&b.heap, e)
		b.byAddr[e.member.Peer.Addr] = e
	}
	return out
}
