package shell

import (
	"sync"
	"time"

	"swimguard/internal/pubsub"
	"swimguard/internal/swim"
)

// forwardInfo remembers who to relay a probe's outcome back to, and under
// which of their sequence numbers, when this node is acting as the Via
// relay for someone else's ping-request.
type forwardInfo struct {
	addr string
	seq  uint64
}

// indirectAggregate tracks the K outstanding ping-request relays this node
// fanned out for a single direct-probe failure; the first Ack wins, and the
// failure is only surfaced to the engine once every relay has reported in
// without one.
type indirectAggregate struct {
	target    swim.Node
	remaining int
	resolved  bool
}

type pendingProbe struct {
	target    swim.Node
	forward   *forwardInfo
	aggregate *indirectAggregate
	timer     *time.Timer
}

// Shell is the I/O-performing driver around a pure *swim.Engine: it owns
// the wall clock, the wire transport, probe timers, and the pub/sub fan-out
// of membership events. Every call into the engine is made while holding
// mu, so the engine's single-threaded, non-reentrant contract holds no
// matter which goroutine (ticker, socket reader, timer) triggered the call.
type Shell struct {
	engine    *swim.Engine
	transport Transport
	logger    swim.Logger
	bus       *pubsub.PubSubClient
	metrics   *Metrics
	clock     func() int64

	mu      sync.Mutex
	seqNo   uint64
	pending map[uint64]*pendingProbe

	tickInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

func New(engine *swim.Engine, transport Transport, logger swim.Logger, bus *pubsub.PubSubClient, metrics *Metrics, tickInterval time.Duration) *Shell {
	if logger == nil {
		logger = swim.NopLogger{}
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	s := &Shell{
		engine:       engine,
		transport:    transport,
		logger:       logger,
		bus:          bus,
		metrics:      metrics,
		clock:        func() int64 { return time.Now().UnixNano() },
		pending:      make(map[uint64]*pendingProbe),
		tickInterval: tickInterval,
		stopCh:       make(chan struct{}),
	}
	transport.SetHandler(s.handleIncoming)
	return s
}

func (s *Shell) Start() error {
	if err := s.transport.Start(); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *Shell) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	_ = s.transport.Stop()
}

func (s *Shell) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			directives := s.engine.OnPeriodicTick(s.clock())
			s.mu.Unlock()
			s.dispatch(directives)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Shell) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqNo++
	return s.seqNo
}

// dispatch carries out directives that do not need to be tied back to a
// specific incoming wire message (the periodic-tick and probe-resolution
// paths).
func (s *Shell) dispatch(directives []swim.Directive) {
	for _, d := range directives {
		s.dispatchOne(d, nil)
	}
}

func (s *Shell) dispatchOne(d swim.Directive, reply *forwardInfo) {
	switch v := d.(type) {
	case swim.SendPing:
		s.sendPing(v, reply)
	case swim.SendPingRequest:
		s.sendPingRequest(v)
	case swim.Reply:
		if reply != nil {
			s.sendAck(v.Response, reply.addr, reply.seq)
		}
	case swim.Connect:
		s.logger.Debugf("[shell] connect requested for %s (no-op: UDP is connectionless)", v.Node)
	case swim.MemberStatusChanged:
		s.metrics.RecordStatusChange()
		if s.bus != nil {
			publishStatusChange(s.bus, v)
		}
		s.logger.Infof("[shell] %s: %s -> %s", v.Member, v.From, v.To)
	case swim.LogEvent:
		s.logDirective(v)
	}
}

func (s *Shell) logDirective(v swim.LogEvent) {
	switch v.Level {
	case swim.LogDebug:
		s.logger.Debugf("%s", v.Message)
	case swim.LogInfo:
		s.logger.Infof("%s", v.Message)
	case swim.LogWarn:
		s.logger.Warnf("%s", v.Message)
	case swim.LogError:
		s.logger.Errorf("%s", v.Message)
	}
}

func (s *Shell) sendPing(d swim.SendPing, forward *forwardInfo) {
	seq := s.nextSeq()

	s.mu.Lock()
	payload := s.engine.MakeGossipPayload(nil)
	self := s.engine.Self()
	inc := s.engine.SelfIncarnation()
	s.mu.Unlock()

	msg := wireMessage{
		Kind:        wirePing,
		SeqNo:       seq,
		From:        nodeToWire(self),
		Incarnation: uint64(inc),
		Payload:     payloadToWire(payload),
	}
	if err := s.transport.Send(d.Target.Addr, msg); err != nil {
		s.logger.Warnf("[shell] send ping to %s: %v", d.Target.Addr, err)
	}
	s.metrics.RecordPingSent()

	pending := &pendingProbe{target: d.Target, forward: forward}
	pending.timer = time.AfterFunc(d.Timeout, func() { s.onProbeTimeout(seq) })

	s.mu.Lock()
	s.pending[seq] = pending
	s.mu.Unlock()
}

func (s *Shell) sendPingRequest(d swim.SendPingRequest) {
	s.sendPingRequestVia(d.Target, d.Via, d.Timeout, nil)
}

func (s *Shell) sendPingRequestVia(target, via swim.Node, timeout time.Duration, agg *indirectAggregate) {
	seq := s.nextSeq()

	s.mu.Lock()
	self := s.engine.Self()
	s.mu.Unlock()

	msg := wireMessage{
		Kind:   wirePingRequest,
		SeqNo:  seq,
		From:   nodeToWire(self),
		Target: nodeToWire(target),
	}
	if err := s.transport.Send(via.Addr, msg); err != nil {
		s.logger.Warnf("[shell] send ping-request to %s: %v", via.Addr, err)
	}
	s.metrics.RecordPingRequestSent()

	pending := &pendingProbe{target: target, aggregate: agg}
	pending.timer = time.AfterFunc(timeout, func() { s.onProbeTimeout(seq) })

	s.mu.Lock()
	s.pending[seq] = pending
	s.mu.Unlock()
}

// beginIndirectProbe is the shell's policy (not mandated by on_ping_response
// itself) of trying IndirectProbeCount relays before surfacing a direct
// probe's failure to the engine, the classic SWIM fan-out. It exercises
// MembersToPingRequest and the SendPingRequest wire path end to end.
func (s *Shell) beginIndirectProbe(target swim.Node) {
	s.mu.Lock()
	relays := s.engine.MembersToPingRequest(target)
	timeout := s.engine.CurrentPingTimeout()
	s.mu.Unlock()

	if len(relays) == 0 {
		s.resolveDirectFailure(target)
		return
	}

	agg := &indirectAggregate{target: target, remaining: len(relays)}
	for _, relay := range relays {
		s.sendPingRequestVia(target, relay, timeout, agg)
	}
}

func (s *Shell) resolveDirectFailure(target swim.Node) {
	s.mu.Lock()
	_, directives := s.engine.OnPingResponse(swim.PingResponse{Kind: swim.PingTimeout, Target: target}, target, s.clock())
	s.mu.Unlock()
	s.metrics.RecordProbeTimeout()
	s.dispatch(directives)
}

func (s *Shell) onProbeTimeout(seq uint64) {
	s.mu.Lock()
	pending, ok := s.pending[seq]
	if ok {
		delete(s.pending, seq)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case pending.forward != nil:
		s.forwardResult(pending.forward, wireNack, 0, swim.GossipPayload{})
	case pending.aggregate != nil:
		s.resolveAggregateFailure(pending.aggregate)
	default:
		s.beginIndirectProbe(pending.target)
	}
}

func (s *Shell) resolveAggregateFailure(agg *indirectAggregate) {
	s.mu.Lock()
	agg.remaining--
	done := !agg.resolved && agg.remaining <= 0
	if done {
		agg.resolved = true
	}
	s.mu.Unlock()
	if !done {
		return
	}
	s.resolveDirectFailure(agg.target)
}

func (s *Shell) resolveAggregateSuccess(agg *indirectAggregate, inc swim.Incarnation, payload swim.GossipPayload) {
	s.mu.Lock()
	already := agg.resolved
	agg.resolved = true
	s.mu.Unlock()
	if already {
		return
	}
	s.mu.Lock()
	_, directives := s.engine.OnPingRequestResponse(swim.PingResponse{Kind: swim.PingAck, Target: agg.target, Incarnation: inc, Payload: payload}, agg.target, s.clock())
	s.mu.Unlock()
	s.dispatch(directives)
}

func (s *Shell) handleIncoming(fromAddr string, msg wireMessage) {
	switch msg.Kind {
	case wirePing:
		s.handlePing(fromAddr, msg)
	case wirePingRequest:
		s.handlePingRequest(fromAddr, msg)
	case wireAck:
		s.handleAck(msg)
	case wireNack:
		s.handleNack(msg)
	}
}

func (s *Shell) handlePing(fromAddr string, msg wireMessage) {
	payload := payloadFromWire(msg.Payload)
	s.mu.Lock()
	directives := s.engine.OnPing(payload, s.clock())
	s.mu.Unlock()
	reply := &forwardInfo{addr: fromAddr, seq: msg.SeqNo}
	for _, d := range directives {
		s.dispatchOne(d, reply)
	}
}

func (s *Shell) handlePingRequest(fromAddr string, msg wireMessage) {
	target := nodeFromWire(msg.Target)
	replyTo := swim.Node{Addr: fromAddr}
	s.mu.Lock()
	directives := s.engine.OnPingRequest(target, replyTo, s.clock())
	s.mu.Unlock()
	forward := &forwardInfo{addr: fromAddr, seq: msg.SeqNo}
	for _, d := range directives {
		s.dispatchOne(d, forward)
	}
}

func (s *Shell) handleAck(msg wireMessage) {
	s.mu.Lock()
	pending, ok := s.pending[msg.SeqNo]
	if ok {
		pending.timer.Stop()
		delete(s.pending, msg.SeqNo)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	inc := swim.Incarnation(msg.Incarnation)
	payload := payloadFromWire(msg.Payload)

	switch {
	case pending.forward != nil:
		s.forwardResult(pending.forward, wireAck, inc, payload)
	case pending.aggregate != nil:
		s.resolveAggregateSuccess(pending.aggregate, inc, payload)
	default:
		s.mu.Lock()
		_, directives := s.engine.OnPingResponse(swim.PingResponse{Kind: swim.PingAck, Target: pending.target, Incarnation: inc, Payload: payload}, pending.target, s.clock())
		s.mu.Unlock()
		s.metrics.RecordAckReceived()
		s.dispatch(directives)
	}
}

func (s *Shell) handleNack(msg wireMessage) {
	s.mu.Lock()
	pending, ok := s.pending[msg.SeqNo]
	if ok {
		pending.timer.Stop()
		delete(s.pending, msg.SeqNo)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.metrics.RecordNackReceived()

	switch {
	case pending.aggregate != nil:
		s.resolveAggregateFailure(pending.aggregate)
	default:
		s.mu.Lock()
		_, directives := s.engine.OnPingRequestResponse(swim.PingResponse{Kind: swim.PingNack, Target: pending.target}, pending.target, s.clock())
		s.mu.Unlock()
		s.dispatch(directives)
	}
}

// forwardResult relays a relayed probe's outcome back to the node that
// asked us to ping on its behalf: a relay never feeds the result into its
// own engine, it only forwards what it observed.
func (s *Shell) forwardResult(f *forwardInfo, kind wireKind, inc swim.Incarnation, payload swim.GossipPayload) {
	msg := wireMessage{Kind: kind, SeqNo: f.seq, Incarnation: uint64(inc), Payload: payloadToWire(payload)}
	if err := s.transport.Send(f.addr, msg); err != nil {
		s.logger.Warnf("[shell] forward probe result to %s: %v", f.addr, err)
	}
}

func (s *Shell) sendAck(resp swim.PingResponse, toAddr string, seq uint64) {
	msg := wireMessage{
		Kind:        wireAck,
		SeqNo:       seq,
		Incarnation: uint64(resp.Incarnation),
		Payload:     payloadToWire(resp.Payload),
	}
	if err := s.transport.Send(toAddr, msg); err != nil {
		s.logger.Warnf("[shell] send ack to %s: %v", toAddr, err)
	}
}

// Join bootstraps membership from a known seed address.
func (s *Shell) Join(peer swim.Node) {
	s.mu.Lock()
	directives := s.engine.Join(peer, s.clock())
	s.mu.Unlock()
	s.dispatch(directives)
}

// Engine exposes the underlying engine for read-only inspection (CLI
// status printers and the like). Mutating calls must go through the Shell.
func (s *Shell) Engine() *swim.Engine { return s.engine }
