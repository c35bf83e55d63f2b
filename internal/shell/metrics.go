package shell

import "sync/atomic"

// Metrics is a small set of atomic counters the shell updates as it
// dispatches engine directives and feeds probe results back in. These are
// shell-level observability, not engine state; the engine itself never
// touches a Metrics value.
type Metrics struct {
	pingsSent        atomic.Uint64
	pingRequestsSent atomic.Uint64
	acksReceived     atomic.Uint64
	nacksReceived    atomic.Uint64
	probeTimeouts    atomic.Uint64
	statusChanges    atomic.Uint64
}

func (m *Metrics) RecordPingSent()        { m.pingsSent.Add(1) }
func (m *Metrics) RecordPingRequestSent() { m.pingRequestsSent.Add(1) }
func (m *Metrics) RecordAckReceived()     { m.acksReceived.Add(1) }
func (m *Metrics) RecordNackReceived()    { m.nacksReceived.Add(1) }
func (m *Metrics) RecordProbeTimeout()    { m.probeTimeouts.Add(1) }
func (m *Metrics) RecordStatusChange()    { m.statusChanges.Add(1) }

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics for
// reporting.
type MetricsSnapshot struct {
	PingsSent        uint64
	PingRequestsSent uint64
	AcksReceived     uint64
	NacksReceived    uint64
	ProbeTimeouts    uint64
	StatusChanges    uint64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		PingsSent:        m.pingsSent.Load(),
		PingRequestsSent: m.pingRequestsSent.Load(),
		AcksReceived:     m.acksReceived.Load(),
		NacksReceived:    m.nacksReceived.Load(),
		ProbeTimeouts:    m.probeTimeouts.Load(),
		StatusChanges:    m.statusChanges.Load(),
	}
}
