// Package silkit composes the peer fabric, lifecycle, and time-sync
// layers into the L8 participant facade described in spec.md §2: the
// single entry point an embedding application uses to join a simulation,
// register controllers, and drive its own lifecycle.
package silkit

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/silkit-go/silkit/pkg/silkit/config"
	"github.com/silkit-go/silkit/pkg/silkit/core"
	"github.com/silkit-go/silkit/pkg/silkit/definition"
	"github.com/silkit-go/silkit/pkg/silkit/metrics"
	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

var participantIDSeq uint64

// Participant owns every peer connection, the service registry, the
// lifecycle state, the optional time-sync barrier, the router, and the
// logger for one process (§3). It is created once per process.
type Participant struct {
	name string
	id   uint64
	cfg  config.Config

	logger  types.Logger
	metrics *metrics.Set

	transport    *core.Transport
	registryConn *core.Conn
	discovery    *core.Discovery
	router       *core.Router
	lifecycle    *core.Lifecycle
	monitor      *core.Monitor
	timeSync     *core.TimeSync

	capabilities *types.Capabilities

	mu           sync.Mutex
	peers        map[string]types.PeerInfo
	proxiedPeers map[string]bool

	lifecycleCfg types.LifecycleConfiguration
}

// Option customizes Participant construction.
type Option func(*Participant)

// WithLogger overrides the default logrus-backed logger.
func WithLogger(logger types.Logger) Option {
	return func(p *Participant) { p.logger = logger }
}

// WithCapabilities advertises additional capability names beyond the
// defaults this build always carries.
func WithCapabilities(names ...string) Option {
	return func(p *Participant) {
		for _, n := range names {
			p.capabilities.Add(n)
		}
	}
}

// NewParticipant constructs a participant from cfg, binds its advertised
// acceptor URIs, and prepares (without yet starting) its lifecycle.
func NewParticipant(cfg config.Config, lifecycleCfg types.LifecycleConfiguration, opts ...Option) (*Participant, error) {
	p := &Participant{
		name:         cfg.ParticipantName,
		id:           atomic.AddUint64(&participantIDSeq, 1),
		cfg:          cfg,
		logger:       definition.NewDefaultLogger(),
		capabilities: types.NewCapabilities(types.CapabilityRequestParticipantConnV2),
		peers:        make(map[string]types.PeerInfo),
		proxiedPeers: make(map[string]bool),
		lifecycleCfg: lifecycleCfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(types.Fields{"participant": p.name})
	p.metrics = metrics.New(p.name)

	p.discovery = core.NewDiscovery(p.name)
	p.transport = core.NewTransport(p.name, cfg.Middleware.ConnectAttempts, p.logger, p.onFrame, p.onPeerDisconnect, p.onPeerConnect)
	p.transport.SetTCPNoDelay(cfg.Middleware.TcpNoDelay)
	p.transport.SetProxySender(p.sendViaRegistryProxy)
	p.router = core.NewRouter(p.name, p.transport, p.discovery, p.logger, p.metrics)
	p.lifecycle = core.NewLifecycle(p.name, lifecycleCfg, p.router, p.logger)
	p.monitor = core.NewMonitor(p.router, p.metrics)
	p.timeSync = core.NewTimeSync(p.name, time.Millisecond, p.router, p.logger, p.metrics)
	p.timeSync.SetAnimationFactor(cfg.Experimental.TimeSynchronization.AnimationFactor)
	p.timeSync.SetPauseGate(func() bool { return p.lifecycle.State() == types.Paused })

	p.router.OnControl(core.ReceiverServiceDiscoveryEvent, p.onServiceDiscoveryEvent)
	p.router.OnControl(core.ReceiverParticipantDiscoveryEvent, p.onParticipantDiscoveryEvent)

	configured := cfg.Middleware.AcceptorURIs
	for _, raw := range configured {
		addr, err := config.ParseAcceptorURI(raw)
		if err != nil {
			return nil, err
		}
		if err := p.transport.Listen(addr.Network, addr.Address); err != nil {
			return nil, err
		}
	}
	if cfg.Middleware.EnableDomainSockets {
		sockPath := filepath.Join(os.TempDir(), fmt.Sprintf("silkit-%s.sock", cfg.ParticipantName))
		os.Remove(sockPath)
		if err := p.transport.Listen("unix", sockPath); err != nil {
			return nil, err
		}
	}
	// A listener bound to an ephemeral port (":0") only learns its real
	// port once net.Listen returns; announce the resolved addresses so
	// peers dialing back in don't target port 0.
	if bound := p.transport.Addrs(); len(bound) > 0 {
		uris := make([]string, 0, len(bound))
		for _, addr := range bound {
			uris = append(uris, acceptorURIForAddr(addr))
		}
		p.cfg.Middleware.AcceptorURIs = uris
	}

	return p, nil
}

func acceptorURIForAddr(addr net.Addr) string {
	if addr.Network() == "unix" {
		return "local://" + addr.String()
	}
	return "tcp://" + addr.String()
}

// Name returns the participant's immutable identity.
func (p *Participant) Name() string { return p.name }

// Logger returns the participant's structured logger.
func (p *Participant) Logger() types.Logger { return p.logger }

// Router exposes the message router for controller construction.
func (p *Participant) Router() *core.Router { return p.router }

// RegisterController assigns desc a ServiceID, binds handler to receive
// its data messages, and announces the new descriptor to every connected
// peer with a ServiceDiscoveryEvent (§4.4: "On controller creation, the
// participant emits a ServiceDiscoveryEvent{Created, descriptor} to every
// connected peer").
func (p *Participant) RegisterController(desc types.ServiceDescriptor, handler core.MessageHandler) types.ServiceDescriptor {
	desc = p.router.RegisterController(desc, handler)
	event := p.discovery.RegisterLocal(desc)
	p.broadcastServiceDiscoveryEvent(event)
	return desc
}

// UnregisterController removes desc's binding and announces its teardown
// to every connected peer.
func (p *Participant) UnregisterController(desc types.ServiceDescriptor) {
	p.router.UnregisterController(desc)
	event := p.discovery.UnregisterLocal(desc)
	p.broadcastServiceDiscoveryEvent(event)
}

func (p *Participant) broadcastServiceDiscoveryEvent(event types.ServiceDiscoveryEvent) {
	body := wire.EncodeServiceDiscoveryEvent(event)
	if err := p.router.SendControl(types.MsgServiceDiscoveryEvent, core.ReceiverServiceDiscoveryEvent, body); err != nil {
		p.logger.Warnf("participant: failed to announce %s: %v", event.Descriptor.ServiceName, err)
	}
}

// Discovery exposes the service-discovery map for controller construction.
func (p *Participant) Discovery() *core.Discovery { return p.discovery }

// Lifecycle exposes the per-participant state machine.
func (p *Participant) Lifecycle() *core.Lifecycle { return p.lifecycle }

// Monitor exposes the system-state aggregator.
func (p *Participant) Monitor() *core.Monitor { return p.monitor }

// TimeSync exposes the virtual-time barrier.
func (p *Participant) TimeSync() *core.TimeSync { return p.timeSync }

// JoinSimulation connects to the registry, publishes the workflow
// configuration, dials every peer the registry reports as already
// connected, and returns. It does not wait for the rest of the workflow's
// required set; the lifecycle's ServicesCreated → CommunicationInitializing
// step waits for those connections instead. It must be called before
// StartLifecycle.
func (p *Participant) JoinSimulation(ctx context.Context, registryNetwork, registryAddress string, workflow types.WorkflowConfiguration) error {
	p.lifecycle.SetRequiredParticipants(workflow.RequiredParticipantNames)
	p.timeSync.SetRequiredParticipants(workflow.RequiredParticipantNames)

	ann := wire.Announcement{
		ParticipantName: p.name,
		ParticipantID:   p.id,
		AcceptorURIs:    p.cfg.Middleware.AcceptorURIs,
		Capabilities:    p.capabilities.String(),
		Version:         types.CurrentProtocolVersion,
	}

	known, regConn, err := core.ConnectRegistry(ctx, registryNetworkOrDefault(registryNetwork), registryAddress, ann, p.logger, p.onRegistryFrame, p.onRegistryDisconnect)
	if err != nil {
		return err
	}
	p.registryConn = regConn

	wcBody := wire.EncodeWorkflowConfiguration(workflow)
	p.router.SendControl(types.MsgWorkflowConfiguration, core.ReceiverWorkflowConfiguration, wcBody)

	for _, peer := range known.Peers {
		p.dialPeer(ctx, peer)
	}

	return nil
}

func registryNetworkOrDefault(network string) string {
	if network == "" {
		return "tcp"
	}
	return network
}

func (p *Participant) dialPeer(ctx context.Context, peer wire.PeerWireInfo) {
	var targets []core.DialTarget
	for _, raw := range peer.AcceptorURIs {
		addr, err := config.ParseAcceptorURI(raw)
		if err != nil {
			continue
		}
		targets = append(targets, core.DialTarget{Network: addr.Network, Address: addr.Address})
	}
	// Prefer a local domain socket over TCP when the peer advertises one
	// (§4.2): if both peers are on the same host the unix dial succeeds
	// first; otherwise it fails fast and the loop falls through to TCP.
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Network == "unix" && targets[j].Network != "unix"
	})

	caps, _ := types.ParseCapabilities(peer.Capabilities)

	p.mu.Lock()
	p.peers[peer.Name] = types.PeerInfo{
		Name:          peer.Name,
		ParticipantID: peer.ParticipantID,
		AcceptorURIs:  peer.AcceptorURIs,
		Capabilities:  caps,
		Version:       peer.Version,
	}
	p.mu.Unlock()

	ann := wire.Announcement{
		ParticipantName: p.name,
		ParticipantID:   p.id,
		AcceptorURIs:    p.cfg.Middleware.AcceptorURIs,
		Capabilities:    p.capabilities.String(),
		Version:         types.CurrentProtocolVersion,
	}

	if err := p.transport.Dial(ctx, peer.Name, targets, ann); err != nil {
		if p.capabilities.HasProxyMessage() && caps.HasProxyMessage() && p.registryConn != nil {
			p.logger.Warnf("direct dial to %s failed, falling back to registry proxy: %v", peer.Name, err)
			p.mu.Lock()
			p.proxiedPeers[peer.Name] = true
			p.mu.Unlock()
			return
		}
		p.logger.Errorf("peer %s unreachable: %v", peer.Name, err)
	}
}

// sendViaRegistryProxy is the Transport's fallback sender (§4.3): it only
// relays to peers dialPeer already marked as reachable solely through the
// registry, refusing anyone else rather than silently proxying traffic to
// a peer that was never announced as proxy-eligible.
func (p *Participant) sendViaRegistryProxy(peerName string, frame []byte) error {
	p.mu.Lock()
	proxied := p.proxiedPeers[peerName]
	p.mu.Unlock()
	if !proxied || p.registryConn == nil {
		return types.NewFault(types.Transport, "Participant.sendViaRegistryProxy", fmt.Errorf("no route to %s", peerName))
	}
	return core.RequestProxy(p.registryConn, peerName, frame)
}

func (p *Participant) onPeerConnect(peerName string, outbound bool) {
	p.lifecycle.NotifyPeerConnected(peerName)
	p.metrics.ConnectedPeers.Set(float64(len(p.transport.ConnectedPeers())))
	bulk := p.discovery.LocalBulkEvent()
	body := wire.EncodeParticipantDiscoveryEvent(bulk)
	frame := wire.EncodeSimMessage(core.ReceiverParticipantDiscoveryEvent, types.MsgParticipantDiscoveryEvent, body)
	if err := p.transport.Send(peerName, frame); err != nil {
		p.logger.Warnf("participant: failed to replay discovery history to %s: %v", peerName, err)
	}
}

func (p *Participant) onPeerDisconnect(peerName string, reason error) {
	p.logger.Warnf("peer %s disconnected: %v", peerName, reason)
	p.lifecycle.NotifyPeerDisconnected(peerName)
	p.discovery.OnPeerDisconnect(peerName)
	p.metrics.ConnectedPeers.Set(float64(len(p.transport.ConnectedPeers())))
}

func (p *Participant) onFrame(peerName string, kind types.FrameKind, body []byte) {
	p.router.HandleFrame(peerName, kind, body)
}

func (p *Participant) onRegistryFrame(peerName string, kind types.FrameKind, body []byte) {
	if kind != types.FrameRegistryMessage {
		return
	}
	reader := wire.NewReader(body)
	rkind, err := wire.DecodeRegistryMessage(reader)
	if err != nil || rkind != types.RegistryProxyFrame {
		return
	}
	_, _, inner, err := wire.DecodeProxyFrame(wire.RemainingBody(reader))
	if err != nil {
		return
	}
	innerKind, innerReader, err := wire.Decode(inner)
	if err != nil {
		return
	}
	p.router.HandleFrame(peerName, innerKind, wire.RemainingBody(innerReader))
}

func (p *Participant) onRegistryDisconnect(peerName string, reason error) {
	p.logger.Errorf("registry connection lost: %v", reason)
}

func (p *Participant) onServiceDiscoveryEvent(sender string, _ types.MessageType, body []byte) {
	ev, err := wire.DecodeServiceDiscoveryEvent(body)
	if err != nil {
		return
	}
	p.discovery.OnPeerEvent(sender, ev)
}

func (p *Participant) onParticipantDiscoveryEvent(sender string, _ types.MessageType, body []byte) {
	ev, err := wire.DecodeParticipantDiscoveryEvent(body)
	if err != nil {
		return
	}
	p.discovery.OnPeerBulk(sender, ev)
}

// StartLifecycle drives the participant's state machine to a terminal
// state, launching the time-sync barrier once Running is reached when
// the participant is time-synchronized.
func (p *Participant) StartLifecycle() types.State {
	if p.lifecycleCfg.TimeSynced {
		p.lifecycle.AddStateChangeHandler(func(old, new types.State, _ types.ParticipantStatus) {
			if new == types.Running && old != types.Paused {
				go p.timeSync.Run()
			}
			if new.IsTerminal() || new == types.Aborted {
				p.timeSync.Stop()
			}
		})
	}
	return p.lifecycle.StartLifecycle()
}

// Close stops the router's dispatch goroutine and tears down the
// transport's listeners and peer connections. The registry connection
// opened by JoinSimulation is not closed.
func (p *Participant) Close() {
	p.router.Close()
	p.transport.Close()
}
