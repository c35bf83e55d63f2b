package swim

import (
	"math"
	"time"
)

// LifeguardController owns the Local Health Multiplier: a saturating
// counter in [0, maxLHM] that inflates the probe interval and ping timeout
// when the local node's own processing looks degraded (missed acks, missed
// nacks, having to refute a suspicion about itself).
type LifeguardController struct {
	lhm    int
	maxLHM int
}

func NewLifeguardController(maxLHM int) *LifeguardController {
	return &LifeguardController{maxLHM: maxLHM}
}

func (l *LifeguardController) LHM() int { return l.lhm }

func (l *LifeguardController) bump() {
	if l.lhm < l.maxLHM {
		l.lhm++
	}
}

// OnSuccessfulProbe decrements the LHM (floor 0).
func (l *LifeguardController) OnSuccessfulProbe() {
	if l.lhm > 0 {
		l.lhm--
	}
}

// OnFailedProbe, OnProbeWithMissedNack, and OnRefutingSuspectAboutSelf all
// increment the LHM (ceiling maxLHM); they are kept distinct rather than
// aliased to make the call sites self-documenting.
func (l *LifeguardController) OnFailedProbe()              { l.bump() }
func (l *LifeguardController) OnProbeWithMissedNack()      { l.bump() }
func (l *LifeguardController) OnRefutingSuspectAboutSelf() { l.bump() }

// ProbeInterval scales base by (1 + lhm).
func (l *LifeguardController) ProbeInterval(base time.Duration) time.Duration {
	return base * time.Duration(1+l.lhm)
}

// PingTimeout scales base by (1 + lhm).
func (l *LifeguardController) PingTimeout(base time.Duration) time.Duration {
	return base * time.Duration(1+l.lhm)
}

// SuspicionTimeout implements the Lifeguard paper's decay curve: more independent
// suspicions about a member shrink its timeout from max toward min on a
// log2 curve, bounded by [min, max].
func SuspicionTimeout(independentSuspicions, maxIndependentSuspicions int, min, max time.Duration) time.Duration {
	k := maxIndependentSuspicions
	if k < 1 {
		k = 1
	}
	c := independentSuspicions
	if c < 0 {
		c = 0
	}
	frac := math.Log2(float64(c)+1) / math.Log2(float64(k)+1)
	t := float64(max) - (float64(max)-float64(min))*frac
	if t < float64(min) {
		t = float64(min)
	}
	return time.Duration(t)
}
