package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

// DiscoveryHandler is invoked once per discovery event, in the order the
// owning peer emitted them.
type DiscoveryHandler func(owner string, event types.ServiceDiscoveryEvent)

func descriptorKey(d types.ServiceDescriptor) string {
	return fmt.Sprintf("%s/%s/%s/%d/%s", d.ParticipantName, d.NetworkName, d.ServiceName, d.ServiceID, d.ServiceType)
}

// Discovery is the L3 service registry (§4.4): a flat map from descriptor
// to owning peer, kept current by Created/Removed events from every
// connected peer, plus this participant's own locally-owned descriptors.
type Discovery struct {
	mu sync.RWMutex

	localName string
	local     map[string]types.ServiceDescriptor // key -> descriptor, owned locally
	owners    map[string]string                  // key -> owner participant name
	all       map[string]types.ServiceDescriptor // key -> descriptor, every peer

	handlers []DiscoveryHandler
}

func NewDiscovery(localName string) *Discovery {
	return &Discovery{
		localName: localName,
		local:     make(map[string]types.ServiceDescriptor),
		owners:    make(map[string]string),
		all:       make(map[string]types.ServiceDescriptor),
	}
}

// AddHandler registers fn to be invoked for every discovery event, local
// or remote.
func (d *Discovery) AddHandler(fn DiscoveryHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, fn)
}

// RegisterLocal adds a locally-owned descriptor and returns the
// ServiceDiscoveryEvent the router must broadcast to every connected peer.
func (d *Discovery) RegisterLocal(desc types.ServiceDescriptor) types.ServiceDiscoveryEvent {
	desc.ParticipantName = d.localName
	key := descriptorKey(desc)

	d.mu.Lock()
	d.local[key] = desc
	d.owners[key] = d.localName
	d.all[key] = desc
	d.mu.Unlock()

	event := types.ServiceDiscoveryEvent{Change: types.DiscoveryCreated, Descriptor: desc}
	d.dispatch(d.localName, event)
	return event
}

// UnregisterLocal removes a locally-owned descriptor and returns the
// teardown event to broadcast.
func (d *Discovery) UnregisterLocal(desc types.ServiceDescriptor) types.ServiceDiscoveryEvent {
	desc.ParticipantName = d.localName
	key := descriptorKey(desc)

	d.mu.Lock()
	delete(d.local, key)
	delete(d.owners, key)
	delete(d.all, key)
	d.mu.Unlock()

	event := types.ServiceDiscoveryEvent{Change: types.DiscoveryRemoved, Descriptor: desc}
	d.dispatch(d.localName, event)
	return event
}

// OnPeerEvent applies a single Created/Removed event received from owner,
// in the strict per-peer arrival order the transport already guarantees.
func (d *Discovery) OnPeerEvent(owner string, event types.ServiceDiscoveryEvent) {
	key := descriptorKey(event.Descriptor)
	d.mu.Lock()
	switch event.Change {
	case types.DiscoveryCreated:
		d.owners[key] = owner
		d.all[key] = event.Descriptor
	case types.DiscoveryRemoved:
		delete(d.owners, key)
		delete(d.all, key)
	}
	d.mu.Unlock()
	d.dispatch(owner, event)
}

// OnPeerBulk applies the history-1 ParticipantDiscoveryEvent replayed by
// owner at connect time: every descriptor it currently carries replaces
// whatever this participant previously knew about owner.
func (d *Discovery) OnPeerBulk(owner string, bulk types.ParticipantDiscoveryEvent) {
	d.mu.Lock()
	for key, o := range d.owners {
		if o == owner {
			delete(d.owners, key)
			delete(d.all, key)
		}
	}
	for _, desc := range bulk.Descriptors {
		key := descriptorKey(desc)
		d.owners[key] = owner
		d.all[key] = desc
	}
	d.mu.Unlock()

	for _, desc := range bulk.Descriptors {
		d.dispatch(owner, types.ServiceDiscoveryEvent{Change: types.DiscoveryCreated, Descriptor: desc})
	}
}

// OnPeerDisconnect tears down every descriptor owned by the disconnected
// peer.
func (d *Discovery) OnPeerDisconnect(owner string) {
	d.mu.Lock()
	var removed []types.ServiceDescriptor
	for key, o := range d.owners {
		if o == owner {
			removed = append(removed, d.all[key])
			delete(d.owners, key)
			delete(d.all, key)
		}
	}
	d.mu.Unlock()

	for _, desc := range removed {
		d.dispatch(owner, types.ServiceDiscoveryEvent{Change: types.DiscoveryRemoved, Descriptor: desc})
	}
}

// LocalBulkEvent snapshots every locally-owned descriptor, sent once to
// each newly connected peer per the history-1 policy.
func (d *Discovery) LocalBulkEvent() types.ParticipantDiscoveryEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.ServiceDescriptor, 0, len(d.local))
	for _, desc := range d.local {
		out = append(out, desc)
	}
	return types.ParticipantDiscoveryEvent{Descriptors: out}
}

// match is a (descriptor, owner) pair returned by Match.
type match struct {
	Descriptor types.ServiceDescriptor
	Owner      string
}

// Match returns every descriptor currently known, local or remote, that
// satisfies sub — used by the router to resolve a send's target peers.
func (d *Discovery) Match(sub types.Subscription) []match {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []match
	for key, desc := range d.all {
		if sub.Matches(desc) {
			out = append(out, match{Descriptor: desc, Owner: d.owners[key]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

func (d *Discovery) dispatch(owner string, event types.ServiceDiscoveryEvent) {
	d.mu.RLock()
	handlers := make([]DiscoveryHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(owner, event)
	}
}
