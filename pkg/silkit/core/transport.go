// Package core implements the peer fabric, lifecycle, and time-sync
// layers (L1–L7 of spec.md §2) on top of the L0 wire codec.
package core

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

// MaxFrameSize bounds a single wire frame; a larger size prefix terminates
// the connection with a protocol-error reason (§4.2 Failure semantics).
const MaxFrameSize = 64 * 1024 * 1024

// DefaultQueueCapacity is the bounded outbound mpsc capacity chosen at
// construction per connection (§5 Shared resources).
const DefaultQueueCapacity = 256

// FrameHandler is invoked once per decoded frame arriving from peerName.
type FrameHandler func(peerName string, kind types.FrameKind, body []byte)

// DisconnectHandler is invoked once a connection is torn down, whether by
// I/O error, protocol error, or orderly close.
type DisconnectHandler func(peerName string, reason error)

// Conn is one full-duplex ordered byte stream to a single remote peer: an
// outbound queue drained FIFO by a writer goroutine, and a reader
// goroutine decoding complete frames before handing them to the owning
// Transport. Writes block the caller when the outbound queue is full —
// the discipline §4.2 requires the implementer to choose and apply
// consistently; blocking is what lets the time-sync barrier (§4.5) throttle
// a fast peer against a slow one.
type Conn struct {
	peerName string
	conn     net.Conn
	outbound chan []byte
	closed   chan struct{}
	closeOnce sync.Once
	isOutbound bool // true if this participant dialed the connection

	logger types.Logger
}

func newConn(peerName string, netConn net.Conn, isOutbound bool, logger types.Logger) *Conn {
	return &Conn{
		peerName:   peerName,
		conn:       netConn,
		outbound:   make(chan []byte, DefaultQueueCapacity),
		closed:     make(chan struct{}),
		isOutbound: isOutbound,
		logger:     logger,
	}
}

// Send enqueues frame for delivery, blocking while the outbound queue is
// full. It returns an error once the connection has been closed.
func (c *Conn) Send(frame []byte) error {
	select {
	case c.outbound <- frame:
		return nil
	case <-c.closed:
		return types.NewFault(types.Transport, "Conn.Send", fmt.Errorf("connection to %s closed", c.peerName))
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *Conn) writeLoop() {
	w := bufio.NewWriter(c.conn)
	for {
		select {
		case frame := <-c.outbound:
			if _, err := w.Write(frame); err != nil {
				c.logger.Errorf("peer %s: write error: %v", c.peerName, err)
				c.close()
				return
			}
			if err := w.Flush(); err != nil {
				c.logger.Errorf("peer %s: flush error: %v", c.peerName, err)
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if size < 4 || int(size) > MaxFrameSize {
		return nil, types.NewFault(types.Protocol, "readFrame", fmt.Errorf("frame size %d out of bounds", size))
	}
	frame := make([]byte, size)
	copy(frame, sizeBuf[:])
	if _, err := io.ReadFull(r, frame[4:]); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *Conn) readLoop(onFrame FrameHandler, onDisconnect DisconnectHandler) {
	r := bufio.NewReader(c.conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			c.close()
			onDisconnect(c.peerName, types.NewFault(types.Transport, "Conn.readLoop", err))
			return
		}
		kind, reader, err := wire.Decode(frame)
		if err != nil {
			c.close()
			onDisconnect(c.peerName, types.NewFault(types.Protocol, "Conn.readLoop", err))
			return
		}
		onFrame(c.peerName, kind, wire.RemainingBody(reader))
	}
}

// Transport manages one connection per remote peer: dialing a peer's
// advertised AcceptorUris in order, accepting inbound connections on this
// participant's own listener, and resolving the tie-break rule when both
// sides dial simultaneously.
type Transport struct {
	localName string
	logger    types.Logger

	onFrame      FrameHandler
	onDisconnect DisconnectHandler
	onConnect    func(peerName string, outbound bool)

	mu    sync.RWMutex
	conns map[string]*Conn

	listeners []net.Listener
	wg        sync.WaitGroup

	connectAttempts int
	tcpNoDelay      bool

	proxySend func(peerName string, frame []byte) error
}

// NewTransport builds a Transport for localName. onFrame and onDisconnect
// are invoked from reader goroutines — callers must not block in them
// longer than they are willing to stall that single peer's delivery.
func NewTransport(localName string, connectAttempts int, logger types.Logger, onFrame FrameHandler, onDisconnect DisconnectHandler, onConnect func(peerName string, outbound bool)) *Transport {
	if connectAttempts <= 0 {
		connectAttempts = 5
	}
	return &Transport{
		localName:       localName,
		logger:          logger,
		onFrame:         onFrame,
		onDisconnect:    onDisconnect,
		onConnect:       onConnect,
		conns:           make(map[string]*Conn),
		connectAttempts: connectAttempts,
	}
}

// Listen binds network/address (as produced by config.ParseAcceptorURI)
// and starts accepting connections in the background. A participant may
// call this once per entry in its AcceptorUris preference list.
func (t *Transport) Listen(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return types.NewFault(types.Transport, "Transport.Listen", err)
	}
	t.listeners = append(t.listeners, ln)
	t.wg.Add(1)
	go t.acceptLoop(ln)
	return nil
}

// Addrs returns every bound listener address.
func (t *Transport) Addrs() []net.Addr {
	out := make([]net.Addr, 0, len(t.listeners))
	for _, ln := range t.listeners {
		out = append(out, ln.Addr())
	}
	return out
}

func (t *Transport) acceptLoop(ln net.Listener) {
	defer t.wg.Done()
	for {
		netConn, err := ln.Accept()
		if err != nil {
			return
		}
		go t.handleInbound(netConn)
	}
}

// handleInbound performs the listener side of the announcement handshake
// (§4.2, step 3): read the announcement, record the peer, reply.
func (t *Transport) handleInbound(netConn net.Conn) {
	t.applyTCPNoDelay(netConn)
	r := bufio.NewReader(netConn)
	frame, err := readFrame(r)
	if err != nil {
		netConn.Close()
		return
	}
	kind, reader, err := wire.Decode(frame)
	if err != nil || kind != types.FrameAnnouncement {
		netConn.Close()
		return
	}
	ann, err := wire.DecodeAnnouncementBody(reader)
	if err != nil {
		netConn.Close()
		return
	}
	if !types.CurrentProtocolVersion.Compatible(ann.Version) {
		reply := wire.EncodeAnnouncementReply(wire.AnnouncementReply{Accepted: false, RejectReason: "protocol version mismatch"})
		netConn.Write(reply)
		netConn.Close()
		return
	}

	conn := newConn(ann.ParticipantName, netConn, false, t.logger)
	if !t.register(ann.ParticipantName, conn) {
		netConn.Close()
		return
	}

	reply := wire.EncodeAnnouncementReply(wire.AnnouncementReply{Accepted: true})
	if _, err := netConn.Write(reply); err != nil {
		t.removeConn(ann.ParticipantName, conn)
		return
	}

	go conn.writeLoop()
	if t.onConnect != nil {
		t.onConnect(ann.ParticipantName, false)
	}
	conn.readLoop(t.onFrame, t.disconnect)
}

// Dial connects to a peer by trying each of its AcceptorUris in order
// (§4.2 step 1), sending our announcement and waiting for the reply
// (step 2). Each DialTarget in candidates is produced by the caller via
// config.ParseAcceptorURI.
func (t *Transport) Dial(ctx context.Context, peerName string, candidates []DialTarget, localAnnouncement wire.Announcement) error {
	var lastErr error
	for attempt := 0; attempt < t.connectAttempts; attempt++ {
		for _, candidate := range candidates {
			netConn, err := (&net.Dialer{}).DialContext(ctx, candidate.Network, candidate.Address)
			if err != nil {
				lastErr = err
				continue
			}
			t.applyTCPNoDelay(netConn)

			frame := wire.EncodeAnnouncement(localAnnouncement)
			if _, err := netConn.Write(frame); err != nil {
				netConn.Close()
				lastErr = err
				continue
			}

			r := bufio.NewReader(netConn)
			replyFrame, err := readFrame(r)
			if err != nil {
				netConn.Close()
				lastErr = err
				continue
			}
			kind, reader, err := wire.Decode(replyFrame)
			if err != nil || kind != types.FrameAnnouncementReply {
				netConn.Close()
				lastErr = types.NewFault(types.Protocol, "Transport.Dial", fmt.Errorf("unexpected reply frame"))
				continue
			}
			reply, err := wire.DecodeAnnouncementReplyBody(reader)
			if err != nil || !reply.Accepted {
				netConn.Close()
				lastErr = types.NewFault(types.Protocol, "Transport.Dial", fmt.Errorf("announcement rejected: %s", reply.RejectReason))
				continue
			}

			conn := newConn(peerName, netConn, true, t.logger)
			if !t.register(peerName, conn) {
				netConn.Close()
				return nil
			}
			go conn.writeLoop()
			if t.onConnect != nil {
				t.onConnect(peerName, true)
			}
			go conn.readLoop(t.onFrame, t.disconnect)
			return nil
		}
		select {
		case <-ctx.Done():
			return types.NewFault(types.Timeout, "Transport.Dial", ctx.Err())
		case <-time.After(backoff(attempt)):
		}
	}
	return types.NewFault(types.Timeout, "Transport.Dial", fmt.Errorf("exhausted %d attempts dialing %s: %w", t.connectAttempts, peerName, lastErr))
}

// backoff is a finite, bounded, increasing delay — the exact shape is left
// to the implementer per spec.md §9's Open Question; this uses a capped
// linear ramp.
func backoff(attempt int) time.Duration {
	d := time.Duration(attempt+1) * 200 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

// DialTarget is a single candidate address to dial, already resolved to a
// network/address pair.
type DialTarget struct {
	Network string
	Address string
}

// register applies the §3 tie-break rule: at most one live connection per
// (local, remote) pair, lower participant name keeps its outbound leg. It
// returns false (and leaves the existing connection in place) when the new
// connection loses the tie-break.
func (t *Transport) register(peerName string, candidate *Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.conns[peerName]
	if !ok {
		t.conns[peerName] = candidate
		return true
	}

	localWins := t.localName < peerName
	existingShouldSurvive := existing.isOutbound == localWins
	if existingShouldSurvive {
		return false
	}
	existing.close()
	t.conns[peerName] = candidate
	return true
}

func (t *Transport) removeConn(peerName string, conn *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[peerName] == conn {
		delete(t.conns, peerName)
	}
}

func (t *Transport) disconnect(peerName string, reason error) {
	t.mu.Lock()
	delete(t.conns, peerName)
	t.mu.Unlock()
	if t.onDisconnect != nil {
		t.onDisconnect(peerName, reason)
	}
}

// Send enqueues frame for delivery to peerName, blocking while that
// peer's outbound queue is full.
func (t *Transport) Send(peerName string, frame []byte) error {
	t.mu.RLock()
	conn, ok := t.conns[peerName]
	proxy := t.proxySend
	t.mu.RUnlock()
	if !ok {
		if proxy != nil {
			return proxy(peerName, frame)
		}
		return types.NewFault(types.Transport, "Transport.Send", fmt.Errorf("no connection to %s", peerName))
	}
	return conn.Send(frame)
}

// SetProxySender installs the fallback used by Send when peerName has no
// live direct connection, letting a participant route through the
// registry's relay (§4.3) for peers it could not dial directly.
func (t *Transport) SetProxySender(fn func(peerName string, frame []byte) error) {
	t.mu.Lock()
	t.proxySend = fn
	t.mu.Unlock()
}

// SetTCPNoDelay controls whether new TCP connections (both accepted and
// dialed) disable Nagle's algorithm, per the Middleware.TcpNoDelay
// configuration key (§6). Unix domain sockets ignore it.
func (t *Transport) SetTCPNoDelay(noDelay bool) {
	t.mu.Lock()
	t.tcpNoDelay = noDelay
	t.mu.Unlock()
}

func (t *Transport) applyTCPNoDelay(netConn net.Conn) {
	t.mu.RLock()
	noDelay := t.tcpNoDelay
	t.mu.RUnlock()
	if tc, ok := netConn.(*net.TCPConn); ok {
		tc.SetNoDelay(noDelay)
	}
}

// ConnectedPeers returns the names of every peer with a live connection,
// sorted for deterministic iteration in tests and logs.
func (t *Transport) ConnectedPeers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.conns))
	for name := range t.conns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsConnected reports whether peerName currently has a live connection.
func (t *Transport) IsConnected(peerName string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[peerName]
	return ok
}

// Close tears down every connection and stops accepting new ones.
func (t *Transport) Close() {
	for _, ln := range t.listeners {
		ln.Close()
	}
	t.mu.Lock()
	conns := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[string]*Conn)
	t.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	t.wg.Wait()
}
