package core

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

// ConnectRegistry dials the registry at network/address, sends the local
// announcement, and returns the bootstrap list plus a live Conn usable for
// registry-proxied relay. The caller owns the returned Conn and must route
// its inbound frames (typically just RegistryProxyFrame) to the router.
func ConnectRegistry(ctx context.Context, network, address string, announcement wire.Announcement, logger types.Logger, onFrame FrameHandler, onDisconnect DisconnectHandler) (wire.KnownParticipants, *Conn, error) {
	netConn, err := (&net.Dialer{}).DialContext(ctx, network, address)
	if err != nil {
		return wire.KnownParticipants{}, nil, types.NewFault(types.Timeout, "ConnectRegistry", err)
	}

	frame := wire.EncodeAnnouncement(announcement)
	if _, err := netConn.Write(frame); err != nil {
		netConn.Close()
		return wire.KnownParticipants{}, nil, types.NewFault(types.Transport, "ConnectRegistry", err)
	}

	br := bufio.NewReader(netConn)
	replyFrame, err := readFrame(br)
	if err != nil {
		netConn.Close()
		return wire.KnownParticipants{}, nil, types.NewFault(types.Transport, "ConnectRegistry", err)
	}
	kind, reader, err := wire.Decode(replyFrame)
	if err != nil || kind != types.FrameRegistryMessage {
		netConn.Close()
		return wire.KnownParticipants{}, nil, types.NewFault(types.Protocol, "ConnectRegistry", fmt.Errorf("expected registry reply frame"))
	}
	rkind, err := wire.DecodeRegistryMessage(reader)
	if err != nil || rkind != types.RegistryKnownParticipants {
		netConn.Close()
		return wire.KnownParticipants{}, nil, types.NewFault(types.Protocol, "ConnectRegistry", fmt.Errorf("expected KnownParticipants"))
	}
	known, err := wire.DecodeKnownParticipants(wire.RemainingBody(reader))
	if err != nil {
		netConn.Close()
		return wire.KnownParticipants{}, nil, types.NewFault(types.Protocol, "ConnectRegistry", err)
	}

	conn := newConn("registry", netConn, true, logger)
	go conn.writeLoop()
	go conn.readLoop(onFrame, onDisconnect)

	return known, conn, nil
}

// RequestProxy asks the registry to relay frame to destName on behalf of
// the local participant, used when direct dial to destName has exhausted
// its retry budget and both sides advertise proxy-message.
func RequestProxy(registryConn *Conn, destName string, frame []byte) error {
	return registryConn.Send(wire.EncodeProxyFrame(destName, 0, frame))
}
