package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"swimguard/internal/pubsub"
	"swimguard/internal/shell"
	"swimguard/internal/swim"
)

// simpleLogger implements swim.Logger by prefixing every line with the
// node's advertise address.
type simpleLogger struct {
	id string
}

func (l *simpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[%s] DEBUG: "+format, append([]interface{}{l.id}, args...)...)
}

func (l *simpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[%s] INFO: "+format, append([]interface{}{l.id}, args...)...)
}

func (l *simpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[%s] WARN: "+format, append([]interface{}{l.id}, args...)...)
}

func (l *simpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[%s] ERROR: "+format, append([]interface{}{l.id}, args...)...)
}

func main() {
	bindAddr := flag.String("bind", "127.0.0.1:7946", "Bind address")
	advertiseAddr := flag.String("advertise", "", "Advertise address (defaults to bind address)")
	joinAddrs := flag.String("join", "", "Comma-separated list of seed node addresses to join")
	tickInterval := flag.Duration("tick", time.Second, "Protocol period duration")
	flag.Parse()

	if *advertiseAddr == "" {
		*advertiseAddr = *bindAddr
	}

	var seeds []string
	if *joinAddrs != "" {
		seeds = strings.Split(*joinAddrs, ",")
	}

	logger := &simpleLogger{id: *advertiseAddr}
	self := shell.NewLocalIdentity(*advertiseAddr)

	cfg := swim.DefaultConfig()
	engine, err := swim.NewEngine(cfg, self, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	transport := shell.NewUDPTransport(*bindAddr, logger)
	bus := pubsub.NewPubSub()
	metrics := &shell.Metrics{}
	sh := shell.New(engine, transport, logger, bus, metrics, *tickInterval)

	log.Printf("[%s] starting on %s", self, *bindAddr)
	if err := sh.Start(); err != nil {
		log.Fatalf("failed to start shell: %v", err)
	}

	for _, addr := range seeds {
		addr = strings.TrimSpace(addr)
		if addr == "" || addr == *bindAddr {
			continue
		}
		logger.Infof("seeding membership via %s", addr)
		sh.Join(swim.Node{Addr: addr})
	}

	events := make(chan *pubsub.Event[swim.MemberStatusChanged], 32)
	shell.Subscribe(bus, events, false)
	go func() {
		for ev := range events {
			c := ev.Payload
			logger.Infof("membership change: %s %s -> %s", c.Member, c.From, c.To)
		}
	}()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			members := engine.AllMembers()
			logger.Infof("cluster members (%d):", len(members))
			for _, m := range members {
				logger.Infof("  - %s status=%s incarnation=%d", m.Peer, m.Status, m.Status.Incarnation)
			}
			snap := metrics.Snapshot()
			logger.Infof("pings=%d ping-requests=%d acks=%d nacks=%d timeouts=%d changes=%d",
				snap.PingsSent, snap.PingRequestsSent, snap.AcksReceived, snap.NacksReceived, snap.ProbeTimeouts, snap.StatusChanges)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Infof("shutting down")
	sh.Stop()
}
