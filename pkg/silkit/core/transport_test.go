package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("time.Sleep"),
	)
}

func TestTransport_DialAndAccept_ExchangeFrames(t *testing.T) {
	serverRecv := make(chan []byte, 1)
	server := NewTransport("server", 1, newNoopLogger(),
		func(peer string, kind types.FrameKind, body []byte) { serverRecv <- body },
		func(string, error) {}, nil)
	t.Cleanup(server.Close)
	require.NoError(t, server.Listen("tcp", "127.0.0.1:0"))
	addrs := server.Addrs()
	require.Len(t, addrs, 1)

	clientRecv := make(chan []byte, 1)
	client := NewTransport("client", 1, newNoopLogger(),
		func(peer string, kind types.FrameKind, body []byte) { clientRecv <- body },
		func(string, error) {}, nil)
	t.Cleanup(client.Close)

	ann := wire.Announcement{ParticipantName: "client", Version: types.CurrentProtocolVersion}
	target := DialTarget{Network: "tcp", Address: addrs[0].String()}
	require.NoError(t, client.Dial(context.Background(), "server", []DialTarget{target}, ann))

	require.True(t, client.IsConnected("server"))
	require.Eventually(t, func() bool { return server.IsConnected("client") }, time.Second, 10*time.Millisecond)

	require.NoError(t, client.Send("server", wire.Encode(types.FrameSimMessage, []byte("ping"))))
	select {
	case body := <-serverRecv:
		require.Equal(t, "ping", string(body))
	case <-time.After(time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestTransport_ConnectedPeers_SortedAndUpdated(t *testing.T) {
	server := NewTransport("server", 1, newNoopLogger(), func(string, types.FrameKind, []byte) {}, func(string, error) {}, nil)
	t.Cleanup(server.Close)
	require.NoError(t, server.Listen("tcp", "127.0.0.1:0"))
	addr := server.Addrs()[0]

	for _, name := range []string{"zeta", "alpha"} {
		c := NewTransport(name, 1, newNoopLogger(), func(string, types.FrameKind, []byte) {}, func(string, error) {}, nil)
		t.Cleanup(c.Close)
		require.NoError(t, c.Dial(context.Background(), "server", []DialTarget{{Network: "tcp", Address: addr.String()}}, wire.Announcement{ParticipantName: name, Version: types.CurrentProtocolVersion}))
	}

	require.Eventually(t, func() bool { return len(server.ConnectedPeers()) == 2 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"alpha", "zeta"}, server.ConnectedPeers())
}
