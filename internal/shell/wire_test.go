package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"swimguard/internal/swim"
)

func TestNodeWireRoundTrip(t *testing.T) {
	n := swim.Node{Addr: "10.0.0.1:7946", Gen: "abc"}
	assert.Equal(t, n, nodeFromWire(nodeToWire(n)))
}

func TestStatusWireRoundTrip(t *testing.T) {
	t.Run("alive", func(t *testing.T) {
		s := swim.Alive(4)
		assert.Equal(t, s, statusFromWire(statusToWire(s)))
	})

	t.Run("suspect carries suspectors", func(t *testing.T) {
		s := swim.Suspect(2, "a", "b")
		got := statusFromWire(statusToWire(s))
		assert.Equal(t, s.Kind, got.Kind)
		assert.Equal(t, s.Incarnation, got.Incarnation)
		assert.Equal(t, s.SuspectedBy, got.SuspectedBy)
	})
}

func TestGossipPayloadWireRoundTrip(t *testing.T) {
	p := swim.GossipPayload{
		Kind: swim.GossipMembership,
		Members: []swim.GossipMember{
			{Node: swim.Node{Addr: "A"}, Status: swim.Alive(1)},
			{Node: swim.Node{Addr: "B"}, Status: swim.Suspect(0, "A")},
		},
	}

	got := payloadFromWire(payloadToWire(p))

	assert.Equal(t, p.Kind, got.Kind)
	assert.Equal(t, p.Members, got.Members)
}

func TestGossipPayloadWireRoundTrip_Empty(t *testing.T) {
	p := swim.GossipPayload{Kind: swim.GossipNone}
	got := payloadFromWire(payloadToWire(p))
	assert.Equal(t, p.Kind, got.Kind)
	assert.Empty(t, got.Members)
}
