package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubRand is a RandSource whose Intn answers are scripted, for exercising
// exact insertion positions deterministically.
type stubRand struct {
	intns []int
	pos   int
}

func (s *stubRand) Intn(n int) int {
	v := s.intns[s.pos]
	s.pos++
	return v
}

func (s *stubRand) Shuffle(n int, swap func(i, j int)) {}

func nodes(addrs ...string) []Node {
	out := make([]Node, len(addrs))
	for i, a := range addrs {
		out[i] = Node{Addr: a}
	}
	return out
}

func TestProbeScheduler_InsertAdvancesIndex(t *testing.T) {
	// list [A,B,C], index=1 (next up is B); inserting N at position 0 must
	// advance the index so Next() still returns B, not N.
	rng := &stubRand{intns: []int{0}}
	p := NewProbeScheduler(rng)
	p.list = nodes("A", "B", "C")
	p.index = 1

	p.Insert(Node{Addr: "N"})

	assert.Equal(t, nodes("N", "A", "B", "C"), p.list)
	assert.Equal(t, 2, p.Index())
	n, ok := p.Next()
	assert.True(t, ok)
	assert.Equal(t, "B", n.Addr)
}

func TestProbeScheduler_InsertAfterIndexLeavesIndexAlone(t *testing.T) {
	rng := &stubRand{intns: []int{3}}
	p := NewProbeScheduler(rng)
	p.list = nodes("A", "B", "C")
	p.index = 1

	p.Insert(Node{Addr: "N"})

	assert.Equal(t, nodes("A", "B", "C", "N"), p.list)
	assert.Equal(t, 1, p.Index())
}

func TestProbeScheduler_InsertIntoEmptyListKeepsIndexInBounds(t *testing.T) {
	p := NewProbeScheduler(&stubRand{})

	p.Insert(Node{Addr: "A"})

	assert.Equal(t, nodes("A"), p.list)
	assert.Equal(t, 0, p.Index())
	n, ok := p.Next()
	assert.True(t, ok)
	assert.Equal(t, "A", n.Addr)
}

func TestProbeScheduler_RemoveBeforeIndexDecrements(t *testing.T) {
	rng := &stubRand{}
	p := NewProbeScheduler(rng)
	p.list = nodes("A", "B", "C")
	p.index = 2

	ok := p.Remove(Node{Addr: "A"})

	assert.True(t, ok)
	assert.Equal(t, nodes("B", "C"), p.list)
	assert.Equal(t, 1, p.Index())
}

func TestProbeScheduler_RemoveWrapsIndex(t *testing.T) {
	rng := &stubRand{}
	p := NewProbeScheduler(rng)
	p.list = nodes("A", "B")
	p.index = 1

	ok := p.Remove(Node{Addr: "B"})

	assert.True(t, ok)
	assert.Equal(t, nodes("A"), p.list)
	assert.Equal(t, 0, p.Index())
}

func TestProbeScheduler_RemoveUnknownIsNoop(t *testing.T) {
	rng := &stubRand{}
	p := NewProbeScheduler(rng)
	p.list = nodes("A", "B")

	assert.False(t, p.Remove(Node{Addr: "Z"}))
	assert.Equal(t, nodes("A", "B"), p.list)
}

func TestProbeScheduler_NextOnEmptyList(t *testing.T) {
	p := NewProbeScheduler(&stubRand{})
	_, ok := p.Next()
	assert.False(t, ok)
}

func TestProbeScheduler_NextWrapsAndReshuffles(t *testing.T) {
	shuffled := false
	rng := &recordingShuffleRand{onShuffle: func() { shuffled = true }}
	p := NewProbeScheduler(rng)
	p.list = nodes("A", "B")
	p.index = 1

	n, ok := p.Next()
	assert.True(t, ok)
	assert.Equal(t, "B", n.Addr)
	assert.Equal(t, 0, p.Index())
	assert.True(t, shuffled)
}

type recordingShuffleRand struct {
	onShuffle func()
}

func (r *recordingShuffleRand) Intn(n int) int { return 0 }
func (r *recordingShuffleRand) Shuffle(n int, swap func(i, j int)) {
	r.onShuffle()
}
