package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

func TestRegistry_BootstrapListExcludesNewcomerButIncludesEarlierPeers(t *testing.T) {
	reg := NewRegistry(newNoopLogger(), nil, nil)
	t.Cleanup(reg.Close)
	require.NoError(t, reg.ProvideDomain("tcp", "127.0.0.1:0"))
	addr := reg.Addr().String()

	aliceKnown, aliceConn, err := ConnectRegistry(context.Background(), "tcp", addr,
		wire.Announcement{ParticipantName: "alice", Version: types.CurrentProtocolVersion},
		newNoopLogger(), func(string, types.FrameKind, []byte) {}, func(string, error) {})
	require.NoError(t, err)
	t.Cleanup(func() { aliceConn.close() })
	require.Empty(t, aliceKnown.Peers)

	require.Eventually(t, func() bool { return len(reg.ConnectedParticipants()) == 1 }, time.Second, 10*time.Millisecond)

	bobKnown, bobConn, err := ConnectRegistry(context.Background(), "tcp", addr,
		wire.Announcement{ParticipantName: "bob", Version: types.CurrentProtocolVersion},
		newNoopLogger(), func(string, types.FrameKind, []byte) {}, func(string, error) {})
	require.NoError(t, err)
	t.Cleanup(func() { bobConn.close() })

	require.Len(t, bobKnown.Peers, 1)
	require.Equal(t, "alice", bobKnown.Peers[0].Name)

	require.Eventually(t, func() bool { return len(reg.ConnectedParticipants()) == 2 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"alice", "bob"}, reg.ConnectedParticipants())
}

func TestRegistry_RejectsIncompatibleProtocolVersion(t *testing.T) {
	reg := NewRegistry(newNoopLogger(), nil, nil)
	t.Cleanup(reg.Close)
	require.NoError(t, reg.ProvideDomain("tcp", "127.0.0.1:0"))

	_, _, err := ConnectRegistry(context.Background(), "tcp", reg.Addr().String(),
		wire.Announcement{ParticipantName: "alice", Version: types.ProtocolVersion{Major: 99}},
		newNoopLogger(), func(string, types.FrameKind, []byte) {}, func(string, error) {})
	require.Error(t, err)
}

func TestRegistry_AllParticipantsDownFiresOnceRequiredSetDisconnects(t *testing.T) {
	down := make(chan struct{}, 1)
	reg := NewRegistry(newNoopLogger(), []string{"alice"}, func() { down <- struct{}{} })
	t.Cleanup(reg.Close)
	require.NoError(t, reg.ProvideDomain("tcp", "127.0.0.1:0"))

	_, aliceConn, err := ConnectRegistry(context.Background(), "tcp", reg.Addr().String(),
		wire.Announcement{ParticipantName: "alice", Version: types.CurrentProtocolVersion},
		newNoopLogger(), func(string, types.FrameKind, []byte) {}, func(string, error) {})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(reg.ConnectedParticipants()) == 1 }, time.Second, 10*time.Millisecond)

	aliceConn.close()

	select {
	case <-down:
	case <-time.After(time.Second):
		t.Fatal("onAllDown never fired after the required participant disconnected")
	}
}

func TestRegistry_RelaysProxyFrameBetweenTwoPeers(t *testing.T) {
	reg := NewRegistry(newNoopLogger(), nil, nil)
	t.Cleanup(reg.Close)
	require.NoError(t, reg.ProvideDomain("tcp", "127.0.0.1:0"))
	addr := reg.Addr().String()

	_, aliceConn, err := ConnectRegistry(context.Background(), "tcp", addr,
		wire.Announcement{ParticipantName: "alice", Version: types.CurrentProtocolVersion},
		newNoopLogger(), func(string, types.FrameKind, []byte) {}, func(string, error) {})
	require.NoError(t, err)
	t.Cleanup(func() { aliceConn.close() })

	relayed := make(chan []byte, 1)
	_, bobConn, err := ConnectRegistry(context.Background(), "tcp", addr,
		wire.Announcement{ParticipantName: "bob", Version: types.CurrentProtocolVersion},
		newNoopLogger(), func(peer string, kind types.FrameKind, body []byte) {
			if kind == types.FrameRegistryMessage {
				relayed <- body
			}
		}, func(string, error) {})
	require.NoError(t, err)
	t.Cleanup(func() { bobConn.close() })

	require.Eventually(t, func() bool { return len(reg.ConnectedParticipants()) == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, RequestProxy(aliceConn, "bob", []byte("inner-frame")))

	select {
	case body := <-relayed:
		dest, hops, inner, err := wire.DecodeProxyFrame(body[1:])
		require.NoError(t, err)
		require.Equal(t, "bob", dest)
		require.Equal(t, uint8(1), hops)
		require.Equal(t, "inner-frame", string(inner))
	case <-time.After(time.Second):
		t.Fatal("bob never received the relayed proxy frame")
	}
}
