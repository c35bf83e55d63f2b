package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_Validates(t *testing.T) {
	assert.NoError(t, DefaultConfig().validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Run("non-positive ProbeInterval rejected", func(t *testing.T) {
		c := DefaultConfig()
		c.ProbeInterval = 0
		assert.Error(t, c.validate())
	})

	t.Run("non-positive PingTimeout rejected", func(t *testing.T) {
		c := DefaultConfig()
		c.PingTimeout = 0
		assert.Error(t, c.validate())
	})

	t.Run("negative IndirectProbeCount rejected", func(t *testing.T) {
		c := DefaultConfig()
		c.IndirectProbeCount = -1
		assert.Error(t, c.validate())
	})

	t.Run("MaxIndependentSuspicions must be positive", func(t *testing.T) {
		c := DefaultConfig()
		c.MaxIndependentSuspicions = 0
		assert.Error(t, c.validate())
	})

	t.Run("SuspicionTimeoutMax below min rejected", func(t *testing.T) {
		c := DefaultConfig()
		c.SuspicionTimeoutMin = 5
		c.SuspicionTimeoutMax = 1
		assert.Error(t, c.validate())
	})

	t.Run("negative MaxLocalHealthMultiplier rejected", func(t *testing.T) {
		c := DefaultConfig()
		c.MaxLocalHealthMultiplier = -1
		assert.Error(t, c.validate())
	})
}
