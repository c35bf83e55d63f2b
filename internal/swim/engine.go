package swim

import (
	"fmt"
	"time"
)

// Engine is the top-level, pure protocol engine: given configuration, the
// local node's identity, and a stream of external events, it mutates its
// membership table, probe list, gossip buffer, and Local Health Multiplier,
// and returns the directives the shell should carry out. No method here
// performs I/O, reads the wall clock, or spawns anything; time is supplied
// by the caller on every call that needs it.
type Engine struct {
	cfg    Config
	self   Node
	table  *MemberTable
	sched  *ProbeScheduler
	gossip *GossipBuffer
	lg     *LifeguardController
	rng    RandSource

	selfIncarnation Incarnation
	protocolPeriod  uint64
}

// NewEngine constructs an engine for self, starting at incarnation 0. rng
// must be seeded by the caller for deterministic tests; in production the
// shell supplies a process-wide *rand.Rand.
func NewEngine(cfg Config, self Node, rng RandSource) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("swim: invalid config: %w", err)
	}
	if rng == nil {
		return nil, fmt.Errorf("swim: rng must not be nil")
	}
	e := &Engine{
		cfg:    cfg,
		self:   self,
		table:  NewMemberTable(self, 0),
		sched:  NewProbeScheduler(rng),
		gossip: NewGossipBuffer(cfg.MaxGossipCountPerMessage),
		lg:     NewLifeguardController(cfg.MaxLocalHealthMultiplier),
		rng:    rng,
	}
	return e, nil
}

// Self returns the local node identity.
func (e *Engine) Self() Node { return e.self }

// SelfIncarnation returns the local node's current incarnation.
func (e *Engine) SelfIncarnation() Incarnation { return e.selfIncarnation }

// LHM returns the current Local Health Multiplier value.
func (e *Engine) LHM() int { return e.lg.LHM() }

// ProtocolPeriod returns the current protocol period counter.
func (e *Engine) ProtocolPeriod() uint64 { return e.protocolPeriod }

// StatusOf returns the engine's current view of peer. The local node
// reports Alive{self.incarnation} unless it has already transitioned to
// the terminal Dead state (the self-directed Dead gossip case below).
func (e *Engine) StatusOf(peer Node) (Status, bool) {
	if peer.Addr == e.self.Addr {
		if m, ok := e.table.Get(e.self); ok && m.Status.Kind == StatusDead {
			return Dead(), true
		}
		return Alive(e.selfIncarnation), true
	}
	return e.table.StatusOf(peer)
}

// AllMembers returns a snapshot of the member table, local node included.
func (e *Engine) AllMembers() []Member { return e.table.AllMembers() }

// ProbeTargets returns a snapshot of the current probe list.
func (e *Engine) ProbeTargets() []Node { return append([]Node(nil), e.sched.Members()...) }

func (e *Engine) self_() Member {
	m, _ := e.table.Get(e.self)
	return m
}

func (e *Engine) writeSelf(status Status) {
	e.table.setSelf(Member{Peer: e.self, Status: status})
}

// mark routes every table write through the engine's current protocol
// period and clock reading, and through the scheduler/gossip it owns.
func (e *Engine) mark(peer Node, status Status, nowNanos int64) MarkResult {
	return e.table.Mark(peer, status, e.protocolPeriod, nowNanos, e.cfg.MaxIndependentSuspicions, e.sched, e.gossip)
}

// ensureMember creates peer in the table with initial status if it is not
// already known, and inserts it into the probe scheduler: insertion happens
// the first time a non-local member appears.
func (e *Engine) ensureMember(peer Node, initial Status, nowNanos int64) (created bool) {
	if e.table.IsMember(peer) {
		return false
	}
	e.mark(peer, initial, nowNanos)
	if peer.Addr != e.self.Addr && initial.Kind != StatusDead {
		e.sched.Insert(peer)
	}
	return true
}

// Join introduces a known seed address into the member table and probe
// scheduler, the way any other unknown gossiped member would be learned
// (the same unknown-peer branch gossip uses), so a shell can bootstrap membership from
// a configured seed list before any gossip has arrived.
func (e *Engine) Join(peer Node, nowNanos int64) []Directive {
	if peer.Addr == e.self.Addr {
		return nil
	}
	if e.table.IsMember(peer) {
		return nil
	}
	e.ensureMember(peer, Alive(0), nowNanos)
	return []Directive{Connect{Node: peer}}
}

// OnPing handles an incoming direct probe: process its piggybacked gossip,
// then reply with our own ack and payload.
func (e *Engine) OnPing(payload GossipPayload, nowNanos int64) []Directive {
	directives := e.processGossipPayload(payload, nowNanos)
	ack := PingResponse{
		Kind:        PingAck,
		Target:      e.self,
		Incarnation: e.selfIncarnation,
		Payload:     e.MakeGossipPayload(nil),
	}
	return append(directives, Reply{Response: ack})
}

// OnPingRequest handles an incoming relayed probe request: ping target on
// reply_to's behalf.
func (e *Engine) OnPingRequest(target, replyTo Node, nowNanos int64) []Directive {
	if target.Addr == e.self.Addr {
		return nil
	}
	e.ensureMember(target, Alive(0), nowNanos)
	timeout := e.lg.PingTimeout(e.cfg.PingTimeout)
	origin := replyTo
	return []Directive{SendPing{Target: target, Timeout: timeout, PingReqOrigin: &origin}}
}

// OnPingResponse handles the resolution of a direct probe this engine
// dispatched.
func (e *Engine) OnPingResponse(result PingResponse, pingedPeer Node, nowNanos int64) (Outcome, []Directive) {
	return e.onProbeResult(result, pingedPeer, nowNanos, e.lg.OnFailedProbe)
}

// OnPingRequestResponse handles the resolution of an indirect probe relayed
// through a third party.
func (e *Engine) OnPingRequestResponse(result PingResponse, pingedMember Node, nowNanos int64) (Outcome, []Directive) {
	return e.onProbeResult(result, pingedMember, nowNanos, e.lg.OnProbeWithMissedNack)
}

// onProbeResult is the shared core behind both probe kinds: success always fires
// OnSuccessfulProbe and marks the peer Alive; failure fires the caller-
// supplied LHM event and marks the peer newly Suspect (or reports why it
// couldn't).
func (e *Engine) onProbeResult(result PingResponse, pinged Node, nowNanos int64, onFailure func()) (Outcome, []Directive) {
	last, known := e.table.Get(pinged)
	if !known {
		return OutcomeUnknownMember, nil
	}

	switch result.Kind {
	case PingTimeout, PingError:
		onFailure()
		switch last.Status.Kind {
		case StatusUnreachable:
			return OutcomeAlreadyUnreachable, nil
		case StatusDead:
			return OutcomeAlreadyDead, nil
		default:
			res := e.mark(pinged, Suspect(last.Status.Incarnation, e.self.Addr), nowNanos)
			if res.Outcome == MarkIgnoredDueToOlderStatus {
				return OutcomeIgnoredDueToOlderStatus, nil
			}
			return OutcomeNewlySuspect, statusChangeDirective(pinged, res)

		}
	case PingNack:
		return OutcomeNackReceived, nil
	case PingAck:
		if result.Target.Addr != pinged.Addr {
			return OutcomeUnknownMember, []Directive{LogEvent{Level: LogWarn, Message: "ack target does not match pinged peer"}}
		}
		e.lg.OnSuccessfulProbe()
		res := e.mark(pinged, Alive(result.Incarnation), nowNanos)
		directives := e.processGossipPayload(result.Payload, nowNanos)
		directives = append(directives, statusChangeDirective(pinged, res)...)
		return OutcomeAliveConfirmed, directives
	default:
		return OutcomeUnknownMember, nil
	}
}

// statusChangeDirective emits MemberStatusChanged only when mark actually
// applied a change.
func statusChangeDirective(peer Node, res MarkResult) []Directive {
	if res.Outcome != MarkApplied {
		return nil
	}
	return []Directive{MemberStatusChanged{Member: peer, From: res.Previous, To: res.Current}}
}

// OnPeriodicTick drives one protocol period: dispatch the next scheduled
// probe, expire any suspicions whose Lifeguard-decayed timeout has elapsed,
// and advance the period counter.
func (e *Engine) OnPeriodicTick(nowNanos int64) []Directive {
	var directives []Directive

	if target, ok := e.sched.Next(); ok {
		timeout := e.lg.PingTimeout(e.cfg.PingTimeout)
		directives = append(directives, SendPing{Target: target, Timeout: timeout})
	}

	for _, m := range e.table.Suspects() {
		if m.SuspicionStartedAtNanos == nil {
			continue
		}
		timeout := SuspicionTimeout(len(m.Status.SuspectedBy), e.cfg.MaxIndependentSuspicions, e.cfg.SuspicionTimeoutMin, e.cfg.SuspicionTimeoutMax)
		if nowNanos-*m.SuspicionStartedAtNanos <= int64(timeout) {
			continue
		}
		var next Status
		if e.cfg.UnreachableEnabled {
			next = Unreachable(m.Status.Incarnation)
		} else {
			next = Dead()
		}
		res := e.mark(m.Peer, next, nowNanos)
		directives = append(directives, statusChangeDirective(m.Peer, res)...)
	}

	e.protocolPeriod++
	return directives
}

// CurrentPingTimeout returns the Lifeguard-scaled ping timeout a shell
// should use when fanning out indirect probes on its own initiative.
func (e *Engine) CurrentPingTimeout() time.Duration {
	return e.lg.PingTimeout(e.cfg.PingTimeout)
}

// MakeGossipPayload implements the buddy system (always tell a
// suspect it is suspected) followed by draining the lowest-gossip_count
// entries out of the buffer.
func (e *Engine) MakeGossipPayload(target *Node) GossipPayload {
	var members []GossipMember
	buddyAddr := ""

	if target != nil {
		if m, ok := e.table.Get(*target); ok && m.isSuspect() {
			members = append(members, GossipMember{Node: m.Peer, Status: m.Status})
			buddyAddr = m.Peer.Addr
		}
	}

	// The buddy entry, if any, is withheld before draining so it neither
	// wastes a drain slot nor pays a decay tick for gossip it is already
	// receiving through the buddy system this round.
	var withheld gossipEntry
	var hadWithheld bool
	if buddyAddr != "" {
		withheld, hadWithheld = e.gossip.Withhold(buddyAddr)
	}

	for _, entry := range e.gossip.Drain(e.cfg.MaxNumberOfMessages) {
		members = append(members, GossipMember{Node: entry.member.Peer, Status: entry.member.Status})
	}

	if hadWithheld {
		e.gossip.Restore(withheld)
	}

	if len(members) == 0 {
		return GossipPayload{Kind: GossipNone}
	}
	return GossipPayload{Kind: GossipMembership, Members: members}
}

// MembersToPingRequest returns a uniformly random sample of
// IndirectProbeCount members that are neither target nor self and are
// currently Alive or Suspect.
func (e *Engine) MembersToPingRequest(target Node) []Node {
	var candidates []Node
	for _, m := range e.table.AllMembers() {
		if m.Peer.Addr == target.Addr || m.Peer.Addr == e.self.Addr {
			continue
		}
		if m.Status.Kind == StatusAlive || m.Status.Kind == StatusSuspect {
			candidates = append(candidates, m.Peer)
		}
	}
	e.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	n := e.cfg.IndirectProbeCount
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// processGossipPayload classifies each gossip entry as
// myself-gossip or other-member-gossip and dispatch accordingly.
func (e *Engine) processGossipPayload(payload GossipPayload, nowNanos int64) []Directive {
	if payload.Kind != GossipMembership {
		return nil
	}
	var directives []Directive
	for _, gm := range payload.Members {
		if gm.Node.Addr == e.self.Addr {
			directives = append(directives, e.handleSelfGossip(gm.Status)...)
		} else {
			directives = append(directives, e.handleOtherGossip(gm.Node, gm.Status, nowNanos)...)
		}
	}
	return directives
}

func (e *Engine) handleSelfGossip(status Status) []Directive {
	if e.self_().Status.Kind == StatusDead {
		return nil
	}
	switch status.Kind {
	case StatusAlive:
		return nil

	case StatusSuspect:
		switch {
		case status.Incarnation == e.selfIncarnation:
			e.lg.OnRefutingSuspectAboutSelf()
			e.selfIncarnation++
			e.writeSelf(Alive(e.selfIncarnation))
			e.gossip.Upsert(e.self_())
			return nil
		case status.Incarnation > e.selfIncarnation:
			return []Directive{LogEvent{Level: LogWarn, Message: "peer reported a suspicion of us at an incarnation higher than our own"}}
		default:
			return nil
		}

	case StatusUnreachable:
		if status.Incarnation == e.selfIncarnation {
			e.selfIncarnation++
			e.writeSelf(Alive(e.selfIncarnation))
		}
		return nil

	case StatusDead:
		prev := e.self_().Status
		e.writeSelf(Dead())
		return []Directive{MemberStatusChanged{Member: e.self, From: prev, To: Dead()}}
	}
	return nil
}

func (e *Engine) handleOtherGossip(peer Node, status Status, nowNanos int64) []Directive {
	if !e.table.IsMember(peer) {
		e.mark(peer, status, nowNanos)
		if status.Kind != StatusDead {
			e.sched.Insert(peer)
		}
		return []Directive{Connect{Node: peer}}
	}

	prevStatus, _ := e.table.StatusOf(peer)
	res := e.mark(peer, status, nowNanos)
	if res.Outcome != MarkApplied {
		return nil
	}
	if prevStatus.Kind == StatusAlive && res.Current.Kind == StatusSuspect {
		return []Directive{MemberStatusChanged{Member: peer, From: res.Previous, To: res.Current}}
	}
	return nil
}
