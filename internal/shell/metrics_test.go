package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_SnapshotReflectsRecords(t *testing.T) {
	m := &Metrics{}
	m.RecordPingSent()
	m.RecordPingSent()
	m.RecordPingRequestSent()
	m.RecordAckReceived()
	m.RecordNackReceived()
	m.RecordProbeTimeout()
	m.RecordStatusChange()

	snap := m.Snapshot()

	assert.Equal(t, uint64(2), snap.PingsSent)
	assert.Equal(t, uint64(1), snap.PingRequestsSent)
	assert.Equal(t, uint64(1), snap.AcksReceived)
	assert.Equal(t, uint64(1), snap.NacksReceived)
	assert.Equal(t, uint64(1), snap.ProbeTimeouts)
	assert.Equal(t, uint64(1), snap.StatusChanges)
}
