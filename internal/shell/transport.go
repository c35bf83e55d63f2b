package shell

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"swimguard/internal/swim"
)

// Transport is the network seam the shell depends on. It is the only place
// in this repository that performs actual socket I/O.
type Transport interface {
	Start() error
	Stop() error
	Send(addr string, msg wireMessage) error
	SetHandler(handler func(fromAddr string, msg wireMessage))
}

// UDPTransport implements Transport over a single UDP socket, exactly the
// transport shape the engine's wire contract was designed against: lossy,
// unordered, unauthenticated datagrams.
type UDPTransport struct {
	bindAddr   string
	conn       *net.UDPConn
	handler    func(string, wireMessage)
	mu         sync.RWMutex
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	logger     swim.Logger
}

func NewUDPTransport(bindAddr string, logger swim.Logger) *UDPTransport {
	if logger == nil {
		logger = swim.NopLogger{}
	}
	return &UDPTransport{
		bindAddr:   bindAddr,
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}
}

func (t *UDPTransport) Start() error {
	addr, err := net.ResolveUDPAddr("udp", t.bindAddr)
	if err != nil {
		return fmt.Errorf("shell: resolve bind address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("shell: listen udp: %w", err)
	}
	t.conn = conn
	t.wg.Add(1)
	go t.listen()
	t.logger.Infof("[transport] listening on %s", t.bindAddr)
	return nil
}

func (t *UDPTransport) Stop() error {
	close(t.shutdownCh)
	if t.conn != nil {
		if err := t.conn.Close(); err != nil {
			t.logger.Errorf("[transport] error closing socket: %v", err)
		}
	}
	t.wg.Wait()
	return nil
}

func (t *UDPTransport) listen() {
	defer t.wg.Done()
	buf := make([]byte, 65536)

	for {
		select {
		case <-t.shutdownCh:
			return
		default:
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			t.logger.Errorf("[transport] set read deadline: %v", err)
			continue
		}

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-t.shutdownCh:
				return
			default:
				t.logger.Errorf("[transport] read error: %v", err)
				continue
			}
		}

		var msg wireMessage
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			t.logger.Errorf("[transport] decode error from %s: %v", addr, err)
			continue
		}

		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(addr.String(), msg)
		}
	}
}

func (t *UDPTransport) Send(addr string, msg wireMessage) error {
	if t.conn == nil {
		return fmt.Errorf("shell: transport not started")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("shell: encode message: %w", err)
	}
	target, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("shell: resolve target address: %w", err)
	}
	if _, err := t.conn.WriteToUDP(data, target); err != nil {
		return fmt.Errorf("shell: send message: %w", err)
	}
	return nil
}

func (t *UDPTransport) SetHandler(handler func(string, wireMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}
