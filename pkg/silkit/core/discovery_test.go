package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

func TestDiscovery_RegisterLocal_EmitsCreatedEvent(t *testing.T) {
	d := NewDiscovery("alice")
	desc := types.ServiceDescriptor{NetworkName: "CAN1", ServiceName: "ecu", ServiceID: 16}

	ev := d.RegisterLocal(desc)
	require.Equal(t, types.DiscoveryCreated, ev.Change)
	require.Equal(t, "alice", ev.Descriptor.ParticipantName)
	require.Equal(t, desc.ServiceName, ev.Descriptor.ServiceName)
}

func TestDiscovery_OnPeerBulk_ThenMatch(t *testing.T) {
	d := NewDiscovery("alice")
	bob := types.ServiceDescriptor{ParticipantName: "bob", NetworkName: "CAN1", ServiceName: "gateway", ServiceID: 20}
	d.OnPeerBulk("bob", types.ParticipantDiscoveryEvent{Descriptors: []types.ServiceDescriptor{bob}})

	matches := d.Match(types.Subscription{NetworkName: "CAN1"})
	require.Len(t, matches, 1)
	require.Equal(t, "bob", matches[0].Owner)
	require.True(t, matches[0].Descriptor.Equal(bob))
}

func TestDiscovery_OnPeerDisconnect_RemovesOwnedDescriptors(t *testing.T) {
	d := NewDiscovery("alice")
	bob := types.ServiceDescriptor{ParticipantName: "bob", NetworkName: "CAN1", ServiceName: "gateway", ServiceID: 20}
	d.OnPeerBulk("bob", types.ParticipantDiscoveryEvent{Descriptors: []types.ServiceDescriptor{bob}})
	require.Len(t, d.Match(types.Subscription{NetworkName: "CAN1"}), 1)

	d.OnPeerDisconnect("bob")
	require.Empty(t, d.Match(types.Subscription{NetworkName: "CAN1"}))
}

func TestDiscovery_LocalBulkEvent_ReflectsRegistrations(t *testing.T) {
	d := NewDiscovery("alice")
	d.RegisterLocal(types.ServiceDescriptor{NetworkName: "CAN1", ServiceName: "a", ServiceID: 16})
	d.RegisterLocal(types.ServiceDescriptor{NetworkName: "CAN1", ServiceName: "b", ServiceID: 17})

	bulk := d.LocalBulkEvent()
	require.Len(t, bulk.Descriptors, 2)
}

func TestDiscovery_AddHandler_NotifiedOnLocalAndRemoteEvents(t *testing.T) {
	d := NewDiscovery("alice")
	var got []string
	d.AddHandler(func(owner string, ev types.ServiceDiscoveryEvent) {
		got = append(got, owner)
	})

	d.RegisterLocal(types.ServiceDescriptor{NetworkName: "CAN1", ServiceName: "a", ServiceID: 16})
	d.OnPeerEvent("bob", types.ServiceDiscoveryEvent{
		Change:     types.DiscoveryCreated,
		Descriptor: types.ServiceDescriptor{ParticipantName: "bob", NetworkName: "CAN1", ServiceName: "c", ServiceID: 5},
	})

	require.Equal(t, []string{"alice", "bob"}, got)
}
