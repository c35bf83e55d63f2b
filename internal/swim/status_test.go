package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupersedes_Incarnation(t *testing.T) {
	a := Alive(5)
	b := Alive(4)
	assert.True(t, Supersedes(a, b))
	assert.False(t, Supersedes(b, a))
}

func TestSupersedes_Rank(t *testing.T) {
	t.Run("Suspect outranks Alive at the same incarnation", func(t *testing.T) {
		assert.True(t, Supersedes(Suspect(1), Alive(1)))
	})

	t.Run("Dead outranks everything regardless of incarnation", func(t *testing.T) {
		assert.True(t, Supersedes(Dead(), Suspect(1)))
	})

	t.Run("Alive does not supersede Suspect at the same incarnation", func(t *testing.T) {
		assert.False(t, Supersedes(Alive(1), Suspect(1)))
	})
}

func TestSupersedes_SuspectorSuperset(t *testing.T) {
	t.Run("strict superset supersedes", func(t *testing.T) {
		a := Suspect(1, "a", "b")
		b := Suspect(1, "a")
		assert.True(t, Supersedes(a, b))
	})

	t.Run("equal suspector sets do not supersede each other", func(t *testing.T) {
		a := Suspect(1, "a", "b")
		b := Suspect(1, "b", "a")
		assert.False(t, Supersedes(a, b))
		assert.False(t, Supersedes(b, a))
	})

	t.Run("disjoint non-superset sets do not supersede", func(t *testing.T) {
		a := Suspect(1, "a")
		b := Suspect(1, "b")
		assert.False(t, Supersedes(a, b))
	})
}

func TestIsStrictSuperset(t *testing.T) {
	set := func(keys ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			m[k] = struct{}{}
		}
		return m
	}

	assert.True(t, isStrictSuperset(set("a", "b"), set("a")))
	assert.False(t, isStrictSuperset(set("a"), set("a")))
	assert.False(t, isStrictSuperset(set("a"), set("a", "b")))
}
