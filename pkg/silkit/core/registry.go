package core

import (
	"bufio"
	"net"
	"sort"
	"sync"

	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

// registryPeer is the registry's bookkeeping for one connected
// participant: its announced identity plus the live connection used both
// to detect disconnection and, when enabled, to relay proxied frames.
type registryPeer struct {
	info wire.PeerWireInfo
	conn *Conn
}

// Registry is the L2 rendezvous process (§4.3): it accepts participant
// connections, replies with the bootstrap list of already-connected
// peers, and optionally relays frames between two participants that
// share the proxy-message capability and cannot reach one another
// directly.
type Registry struct {
	logger types.Logger

	mu           sync.Mutex
	participants map[string]*registryPeer
	nextID       uint64
	required     map[string]bool

	listener net.Listener
	wg       sync.WaitGroup

	onAllDown func()
}

// NewRegistry builds a Registry. requiredParticipants is the workflow's
// required set (may be nil — AllParticipantsDown then never fires).
func NewRegistry(logger types.Logger, requiredParticipants []string, onAllDown func()) *Registry {
	required := make(map[string]bool, len(requiredParticipants))
	for _, n := range requiredParticipants {
		required[n] = true
	}
	return &Registry{
		logger:       logger,
		participants: make(map[string]*registryPeer),
		required:     required,
		onAllDown:    onAllDown,
	}
}

// ProvideDomain binds network/address and starts accepting connections.
// Calling it twice on an already-bound Registry is a no-op.
func (r *Registry) ProvideDomain(network, address string) error {
	if r.listener != nil {
		return nil
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return types.NewFault(types.Transport, "Registry.ProvideDomain", err)
	}
	r.listener = ln
	r.wg.Add(1)
	go r.acceptLoop()
	return nil
}

// Addr returns the bound listener address.
func (r *Registry) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *Registry) acceptLoop() {
	defer r.wg.Done()
	for {
		netConn, err := r.listener.Accept()
		if err != nil {
			return
		}
		go r.handleConn(netConn)
	}
}

func (r *Registry) handleConn(netConn net.Conn) {
	br := bufio.NewReader(netConn)
	frame, err := readFrame(br)
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
		r.logger.Warnf("registry: rejecting %s: protocol version %s incompatible", ann.ParticipantName, ann.Version)
		netConn.Close()
		return
	}

	conn := newConn(ann.ParticipantName, netConn, false, r.logger)
	known := r.onAnnouncement(ann, conn)

	if _, err := netConn.Write(wire.EncodeKnownParticipants(known)); err != nil {
		r.onDisconnect(ann.ParticipantName)
		netConn.Close()
		return
	}

	go conn.writeLoop()
	conn.readLoop(r.onFrame, func(name string, _ error) { r.onDisconnect(name) })
}

// onAnnouncement registers the newcomer and returns the bootstrap list of
// peers that were already connected — computed and returned before the
// newcomer is added, so it never sees itself in its own list.
func (r *Registry) onAnnouncement(ann wire.Announcement, conn *Conn) wire.KnownParticipants {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]wire.PeerWireInfo, 0, len(r.participants))
	names := make([]string, 0, len(r.participants))
	for name := range r.participants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		peers = append(peers, r.participants[name].info)
	}

	r.nextID++
	info := wire.PeerWireInfo{
		Name:          ann.ParticipantName,
		ParticipantID: r.nextID,
		AcceptorURIs:  ann.AcceptorURIs,
		Capabilities:  ann.Capabilities,
		Version:       ann.Version,
	}
	r.participants[ann.ParticipantName] = &registryPeer{info: info, conn: conn}

	return wire.KnownParticipants{Peers: peers}
}

func (r *Registry) onFrame(peerName string, kind types.FrameKind, body []byte) {
	if kind != types.FrameRegistryMessage {
		return
	}
	rkind, rest, err := decodeRegistryKind(body)
	if err != nil || rkind != types.RegistryProxyFrame {
		return
	}
	dest, hops, inner, err := wire.DecodeProxyFrame(rest)
	if err != nil {
		return
	}
	r.relay(dest, hops, inner)
}

func decodeRegistryKind(body []byte) (types.RegistryMessageKind, []byte, error) {
	reader := wire.NewReader(body)
	kind, err := wire.DecodeRegistryMessage(reader)
	if err != nil {
		return 0, nil, err
	}
	return kind, wire.RemainingBody(reader), nil
}

// relay forwards a proxied frame to dest's live connection, if any.
func (r *Registry) relay(dest string, hops uint8, inner []byte) {
	r.mu.Lock()
	peer, ok := r.participants[dest]
	r.mu.Unlock()
	if !ok {
		return
	}
	peer.conn.Send(wire.EncodeProxyFrame(dest, hops+1, inner))
}

// OnDisconnect removes peerName from the connected set and signals
// AllParticipantsDown once every required participant is gone.
func (r *Registry) onDisconnect(peerName string) {
	r.mu.Lock()
	delete(r.participants, peerName)
	remaining := len(r.required)
	if remaining > 0 {
		for name := range r.required {
			if _, ok := r.participants[name]; ok {
				remaining--
			}
		}
	}
	allDown := len(r.required) > 0 && remaining == len(r.required)
	r.mu.Unlock()

	r.logger.Infof("registry: %s disconnected", peerName)
	if allDown && r.onAllDown != nil {
		r.onAllDown()
	}
}

// ConnectedParticipants returns the names of every participant currently
// registered, sorted for deterministic iteration.
func (r *Registry) ConnectedParticipants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.participants))
	for name := range r.participants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close stops accepting connections and tears down every live one.
func (r *Registry) Close() {
	if r.listener != nil {
		r.listener.Close()
	}
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.participants))
	for _, p := range r.participants {
		conns = append(conns, p.conn)
	}
	r.participants = make(map[string]*registryPeer)
	r.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	r.wg.Wait()
}
