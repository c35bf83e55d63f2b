package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNode_String(t *testing.T) {
	t.Run("without generation tag", func(t *testing.T) {
		n := Node{Addr: "10.0.0.1:7946"}
		assert.Equal(t, "10.0.0.1:7946", n.String())
	})

	t.Run("with generation tag", func(t *testing.T) {
		n := Node{Addr: "10.0.0.1:7946", Gen: "abc123"}
		assert.Equal(t, "10.0.0.1:7946/abc123", n.String())
	})
}

func TestStatusKind_Rank(t *testing.T) {
	assert.Less(t, StatusAlive.rank(), StatusSuspect.rank())
	assert.Less(t, StatusSuspect.rank(), StatusUnreachable.rank())
	assert.Less(t, StatusUnreachable.rank(), StatusDead.rank())
}

func TestStatusConstructors(t *testing.T) {
	t.Run("Alive carries no suspectors", func(t *testing.T) {
		s := Alive(3)
		assert.Equal(t, StatusAlive, s.Kind)
		assert.Equal(t, Incarnation(3), s.Incarnation)
		assert.Empty(t, s.SuspectedBy)
	})

	t.Run("Suspect collects its suspectors", func(t *testing.T) {
		s := Suspect(2, "a", "b")
		assert.Equal(t, StatusSuspect, s.Kind)
		assert.Len(t, s.SuspectedBy, 2)
		_, ok := s.SuspectedBy["a"]
		assert.True(t, ok)
	})

	t.Run("Dead has zero incarnation", func(t *testing.T) {
		s := Dead()
		assert.Equal(t, StatusDead, s.Kind)
		assert.Equal(t, Incarnation(0), s.Incarnation)
	})
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	assert.NotPanics(t, func() {
		l.Debugf("x")
		l.Infof("x")
		l.Warnf("x")
		l.Errorf("x")
	})
}
