package core

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/silkit-go/silkit/pkg/silkit/metrics"
	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

// Reserved receiver indices address the fixed orchestration message kinds
// that are not owned by any user controller and are never subject to
// discovery-based fan-out: they broadcast to every connected peer.
const (
	ReceiverParticipantStatus        uint16 = 0
	ReceiverSystemCommand            uint16 = 1
	ReceiverWorkflowConfiguration    uint16 = 2
	ReceiverNextSimTask              uint16 = 3
	ReceiverServiceDiscoveryEvent    uint16 = 4
	ReceiverParticipantDiscoveryEvent uint16 = 5

	firstUserServiceID uint16 = 16
)

// MessageHandler is invoked once per delivered message, in registration
// order, on the participant's single serialized dispatch goroutine.
type MessageHandler func(senderName string, msgType types.MessageType, body []byte)

type routerSlot struct {
	descriptor types.ServiceDescriptor
	handlers   []MessageHandler
}

type inboundItem struct {
	senderName string
	receiver   uint16
	msgType    types.MessageType
	body       []byte
}

// Router is the L4 message router (§4.5): it serializes every sender's
// data message once, fans it out to the peers the discovery map says
// currently subscribe to the sender's network, and dispatches inbound
// frames to local handlers on a single serialized goroutine per
// participant (§5), eliminating re-entrancy hazards in handler code.
type Router struct {
	localName string
	transport *Transport
	discovery *Discovery
	logger    types.Logger
	metrics   *metrics.Set

	mu            sync.RWMutex
	slots         map[uint16]*routerSlot
	controlSlots  map[uint16][]MessageHandler
	nextServiceID uint32

	inbound chan inboundItem
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewRouter(localName string, transport *Transport, discovery *Discovery, logger types.Logger, metricsSet *metrics.Set) *Router {
	r := &Router{
		localName:     localName,
		transport:     transport,
		discovery:     discovery,
		logger:        logger,
		metrics:       metricsSet,
		slots:         make(map[uint16]*routerSlot),
		controlSlots:  make(map[uint16][]MessageHandler),
		nextServiceID: uint32(firstUserServiceID),
		inbound:       make(chan inboundItem, 1024),
		done:          make(chan struct{}),
	}
	r.wg.Add(1)
	go r.dispatchLoop()
	return r
}

// Close stops the dispatch goroutine. Pending inbound items are dropped.
func (r *Router) Close() {
	close(r.done)
	r.wg.Wait()
}

func (r *Router) dispatchLoop() {
	defer r.wg.Done()
	for {
		select {
		case item := <-r.inbound:
			r.deliver(item)
		case <-r.done:
			return
		}
	}
}

func (r *Router) deliver(item inboundItem) {
	r.mu.RLock()
	var handlers []MessageHandler
	if slot, ok := r.slots[item.receiver]; ok {
		handlers = append(handlers, slot.handlers...)
	} else {
		handlers = append(handlers, r.controlSlots[item.receiver]...)
	}
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.RouterMessagesRecv.WithLabelValues(item.msgType.String()).Inc()
	}
	for _, h := range handlers {
		h(item.senderName, item.msgType, item.body)
	}
}

// RegisterController assigns desc a stable, participant-local ServiceID
// and binds handler to receive every data message routed to it. Returns
// the descriptor with ServiceID populated, ready for discovery
// registration.
func (r *Router) RegisterController(desc types.ServiceDescriptor, handler MessageHandler) types.ServiceDescriptor {
	id := uint16(atomic.AddUint32(&r.nextServiceID, 1) - 1)
	desc.ServiceID = id
	desc.ParticipantName = r.localName

	r.mu.Lock()
	r.slots[id] = &routerSlot{descriptor: desc, handlers: []MessageHandler{handler}}
	r.mu.Unlock()
	return desc
}

// UnregisterController removes the slot bound to desc.ServiceID.
func (r *Router) UnregisterController(desc types.ServiceDescriptor) {
	r.mu.Lock()
	delete(r.slots, desc.ServiceID)
	r.mu.Unlock()
}

// OnControl registers handler for one of the reserved control receiver
// indices (lifecycle, monitor, time-sync, discovery).
func (r *Router) OnControl(receiver uint16, handler MessageHandler) {
	r.mu.Lock()
	r.controlSlots[receiver] = append(r.controlSlots[receiver], handler)
	r.mu.Unlock()
}

// HandleFrame is the FrameHandler the Transport invokes for every decoded
// inbound frame. Only FrameSimMessage carries router-addressed payloads.
func (r *Router) HandleFrame(peerName string, kind types.FrameKind, body []byte) {
	if kind != types.FrameSimMessage {
		return
	}
	reader := wire.NewReader(body)
	receiver, msgType, err := wire.DecodeSimMessage(reader)
	if err != nil {
		r.logger.Warnf("router: malformed SimMessage from %s: %v", peerName, err)
		return
	}
	item := inboundItem{senderName: peerName, receiver: receiver, msgType: msgType, body: wire.RemainingBody(reader)}
	select {
	case r.inbound <- item:
	case <-r.done:
	}
}

// SendControl broadcasts an orchestration message to every connected peer
// and, when msgType enforces self delivery, to the local dispatch loop as
// well.
func (r *Router) SendControl(msgType types.MessageType, receiver uint16, payload []byte) error {
	if r.metrics != nil {
		r.metrics.RouterMessagesSent.WithLabelValues(msgType.String()).Inc()
	}
	frame := wire.EncodeSimMessage(receiver, msgType, payload)
	var eg errgroup.Group
	for _, peer := range r.transport.ConnectedPeers() {
		peer := peer
		eg.Go(func() error {
			if err := r.transport.Send(peer, frame); err != nil {
				r.logger.Warnf("router: send %s to %s: %v", msgType, peer, err)
			}
			return nil
		})
	}
	eg.Wait()
	if msgType.EnforcesSelfDelivery() {
		r.enqueueLocal(receiver, msgType, payload)
	}
	return nil
}

// SendData serializes payload once and fans it out to every peer the
// discovery map currently shows subscribed to sender's network, per
// §4.5. The sender's own descriptor is skipped unless msgType enforces
// self delivery (bus-style data messages never do).
func (r *Router) SendData(sender types.ServiceDescriptor, msgType types.MessageType, payload []byte) error {
	if r.metrics != nil {
		r.metrics.RouterMessagesSent.WithLabelValues(msgType.String()).Inc()
	}
	sub := types.Subscription{NetworkName: sender.NetworkName}
	matches := r.discovery.Match(sub)

	var eg errgroup.Group
	for _, m := range matches {
		if m.Descriptor.Equal(sender) && !msgType.EnforcesSelfDelivery() {
			continue
		}
		if m.Owner == r.localName {
			r.enqueueLocal(m.Descriptor.ServiceID, msgType, payload)
			continue
		}
		m := m
		targeted := wire.EncodeSimMessage(m.Descriptor.ServiceID, msgType, payload)
		eg.Go(func() error {
			if err := r.transport.Send(m.Owner, targeted); err != nil {
				r.logger.Warnf("router: send %s to %s: %v", msgType, m.Owner, err)
			}
			return nil
		})
	}
	eg.Wait()
	return nil
}

func (r *Router) enqueueLocal(receiver uint16, msgType types.MessageType, payload []byte) {
	item := inboundItem{senderName: r.localName, receiver: receiver, msgType: msgType, body: payload}
	select {
	case r.inbound <- item:
	case <-r.done:
	}
}
