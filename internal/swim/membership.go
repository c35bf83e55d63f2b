package swim

import "sort"

// MarkOutcome is the logical result of a Mark call.
type MarkOutcome int

const (
	MarkApplied MarkOutcome = iota
	MarkIgnoredDueToOlderStatus
)

// MarkResult reports what Mark did.
type MarkResult struct {
	Outcome  MarkOutcome
	Previous Status
	Current  Status
	// WasNew is true when peer had no prior entry in the table.
	WasNew bool
}

// MemberTable is the authoritative local view: a mapping from Node to
// Member record. Mark is the single write path for every member other than
// the local node, whose entry is written by setSelf.
type MemberTable struct {
	self    Node
	members map[string]*Member
}

func NewMemberTable(self Node, selfIncarnation Incarnation) *MemberTable {
	t := &MemberTable{
		self:    self,
		members: make(map[string]*Member),
	}
	t.members[self.Addr] = &Member{Peer: self, Status: Alive(selfIncarnation)}
	return t
}

func (t *MemberTable) Get(peer Node) (Member, bool) {
	m, ok := t.members[peer.Addr]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

func (t *MemberTable) StatusOf(peer Node) (Status, bool) {
	m, ok := t.Get(peer)
	if !ok {
		return Status{}, false
	}
	return m.Status, true
}

func (t *MemberTable) IsMember(peer Node) bool {
	_, ok := t.members[peer.Addr]
	return ok
}

// AllMembers returns a snapshot of every member, in address order, for
// deterministic iteration.
func (t *MemberTable) AllMembers() []Member {
	out := make([]Member, 0, len(t.members))
	for _, m := range t.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer.Addr < out[j].Peer.Addr })
	return out
}

// Suspects returns a snapshot of every currently-Suspect member.
func (t *MemberTable) Suspects() []Member {
	var out []Member
	for _, m := range t.members {
		if m.isSuspect() {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer.Addr < out[j].Peer.Addr })
	return out
}

// OtherMemberCount returns the member count excluding the local node.
func (t *MemberTable) OtherMemberCount() int {
	n := len(t.members)
	if _, ok := t.members[t.self.Addr]; ok {
		n--
	}
	return n
}

// setSelf directly overwrites the local node's table entry. Self-updates
// bypass Mark's supersedes guard because the local node is always the
// authority on its own incarnation.
func (t *MemberTable) setSelf(m Member) {
	t.members[t.self.Addr] = &m
}

// Mark is the single write path for the member table. It merges
// suspector sets for same-incarnation Suspect reports, refuses to move a
// member backward per Supersedes, removes a newly-Dead member from the
// probe scheduler, and re-queues a fresh Gossip entry for the node.
func (t *MemberTable) Mark(
	peer Node,
	incoming Status,
	protocolPeriod uint64,
	nowNanos int64,
	maxIndependentSuspicions int,
	scheduler *ProbeScheduler,
	gossip *GossipBuffer,
) MarkResult {
	prev, exists := t.members[peer.Addr]
	var prevStatus Status
	if exists {
		prevStatus = prev.Status
	}

	merged := incoming
	sameIncarnationSuspect := exists && prevStatus.Kind == StatusSuspect &&
		incoming.Kind == StatusSuspect && incoming.Incarnation == prevStatus.Incarnation
	if sameIncarnationSuspect {
		merged.SuspectedBy = mergeSuspectors(prevStatus.SuspectedBy, incoming.SuspectedBy, maxIndependentSuspicions)
	}

	var suspicionStart *int64
	if merged.Kind == StatusSuspect {
		if sameIncarnationSuspect {
			suspicionStart = prev.SuspicionStartedAtNanos
		} else {
			t := nowNanos
			suspicionStart = &t
		}
	}

	if exists && prevStatus.Kind == StatusDead {
		return MarkResult{Outcome: MarkIgnoredDueToOlderStatus, Previous: prevStatus, Current: prevStatus}
	}

	if exists && Supersedes(prevStatus, merged) {
		return MarkResult{Outcome: MarkIgnoredDueToOlderStatus, Previous: prevStatus, Current: prevStatus}
	}

	newMember := &Member{
		Peer:                    peer,
		Status:                  merged,
		ProtocolPeriod:          protocolPeriod,
		SuspicionStartedAtNanos: suspicionStart,
	}
	t.members[peer.Addr] = newMember

	if merged.Kind == StatusDead && scheduler != nil {
		scheduler.Remove(peer)
	}

	if gossip != nil {
		gossip.Upsert(*newMember)
	}

	return MarkResult{Outcome: MarkApplied, Previous: prevStatus, Current: merged, WasNew: !exists}
}

// mergeSuspectors unions prev with as many elements of incoming (taken in
// sorted order, for determinism) as fit under the cap.
func mergeSuspectors(prev, incoming map[string]struct{}, max int) map[string]struct{} {
	result := make(map[string]struct{}, len(prev))
	for k := range prev {
		result[k] = struct{}{}
	}
	keys := make([]string, 0, len(incoming))
	for k := range incoming {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(result) >= max {
			break
		}
		result[k] = struct{}{}
	}
	return result
}
