package types

import "fmt"

// ProtocolVersion is the (major, minor) tuple exchanged in every
// announcement. A peer with a different major version is rejected at
// announcement time; minor differences are accepted and unknown optional
// message kinds are ignored.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// CurrentProtocolVersion is the version this build speaks.
var CurrentProtocolVersion = ProtocolVersion{Major: 1, Minor: 0}

// Compatible reports whether a peer announcing version `other` can be
// accepted by a participant speaking version v.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// PeerInfo identifies a remote participant: its name and numeric id, its
// ordered list of acceptor URIs (tried in order when dialing), its
// capability set and protocol version. It carries no live connection
// state — that lives on the transport side.
type PeerInfo struct {
	Name         string
	ParticipantID uint64
	AcceptorURIs []string
	Capabilities *Capabilities
	Version      ProtocolVersion
}
