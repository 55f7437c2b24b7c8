package wire

import (
	"sort"
	"time"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

// This file serializes the SimMessage-carried payloads. Field order for
// ParticipantStatus, SystemCommand, WorkflowConfiguration, and
// NextSimTask mirrors the original wire layout exactly (see
// SPEC_FULL.md's Supplemented Features): name, state, reason, enter
// time, refresh time for status; requiredParticipantNames for workflow
// config; timePoint, duration for the barrier emission.

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeTime(w *Writer, t time.Time) {
	w.WriteInt64(t.UnixNano())
}

func readTime(r *Reader) (time.Time, error) {
	ns, err := r.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	if ns == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, ns).UTC(), nil
}

func EncodeNextSimTask(t types.NextSimTask) []byte {
	w := NewWriter()
	w.WriteInt64(int64(t.TimePoint))
	w.WriteInt64(int64(t.Duration))
	return w.Bytes()
}

func DecodeNextSimTask(body []byte) (types.NextSimTask, error) {
	r := NewReader(body)
	tp, err := r.ReadInt64()
	if err != nil {
		return types.NextSimTask{}, ErrTruncated
	}
	dur, err := r.ReadInt64()
	if err != nil {
		return types.NextSimTask{}, ErrTruncated
	}
	return types.NextSimTask{TimePoint: time.Duration(tp), Duration: time.Duration(dur)}, nil
}

func EncodeSystemCommand(c types.SystemCommand) []byte {
	w := NewWriter()
	w.WriteUint8(uint8(c.Kind))
	return w.Bytes()
}

func DecodeSystemCommand(body []byte) (types.SystemCommand, error) {
	r := NewReader(body)
	k, err := r.ReadUint8()
	if err != nil {
		return types.SystemCommand{}, ErrTruncated
	}
	return types.SystemCommand{Kind: types.SystemCommandKind(k)}, nil
}

func EncodeParticipantStatus(s types.ParticipantStatus) []byte {
	w := NewWriter()
	w.WriteString(s.ParticipantName)
	w.WriteUint8(uint8(s.State))
	w.WriteString(s.EnterReason)
	writeTime(w, s.EnterTime)
	writeTime(w, s.RefreshTime)
	return w.Bytes()
}

func DecodeParticipantStatus(body []byte) (types.ParticipantStatus, error) {
	r := NewReader(body)
	name, err := r.ReadString()
	if err != nil {
		return types.ParticipantStatus{}, ErrTruncated
	}
	state, err := r.ReadUint8()
	if err != nil {
		return types.ParticipantStatus{}, ErrTruncated
	}
	reason, err := r.ReadString()
	if err != nil {
		return types.ParticipantStatus{}, ErrTruncated
	}
	enter, err := readTime(r)
	if err != nil {
		return types.ParticipantStatus{}, ErrTruncated
	}
	refresh, err := readTime(r)
	if err != nil {
		return types.ParticipantStatus{}, ErrTruncated
	}
	return types.ParticipantStatus{
		ParticipantName: name,
		State:           types.State(state),
		EnterReason:     reason,
		EnterTime:       enter,
		RefreshTime:     refresh,
	}, nil
}

func EncodeWorkflowConfiguration(wc types.WorkflowConfiguration) []byte {
	w := NewWriter()
	w.WriteStringSlice(wc.RequiredParticipantNames)
	return w.Bytes()
}

func DecodeWorkflowConfiguration(body []byte) (types.WorkflowConfiguration, error) {
	r := NewReader(body)
	names, err := r.ReadStringSlice()
	if err != nil {
		return types.WorkflowConfiguration{}, ErrTruncated
	}
	return types.WorkflowConfiguration{RequiredParticipantNames: names}, nil
}

func encodeDescriptor(w *Writer, d types.ServiceDescriptor) {
	w.WriteString(d.ParticipantName)
	w.WriteUint8(uint8(d.ServiceType))
	w.WriteString(d.NetworkName)
	w.WriteString(d.ServiceName)
	w.WriteUint16(d.ServiceID)
	keys := sortedKeys(d.Supplements)
	w.WriteStringMap(d.Supplements, keys)
}

func decodeDescriptor(r *Reader) (types.ServiceDescriptor, error) {
	var d types.ServiceDescriptor
	var err error
	if d.ParticipantName, err = r.ReadString(); err != nil {
		return d, ErrTruncated
	}
	st, err := r.ReadUint8()
	if err != nil {
		return d, ErrTruncated
	}
	d.ServiceType = types.ServiceType(st)
	if d.NetworkName, err = r.ReadString(); err != nil {
		return d, ErrTruncated
	}
	if d.ServiceName, err = r.ReadString(); err != nil {
		return d, ErrTruncated
	}
	if d.ServiceID, err = r.ReadUint16(); err != nil {
		return d, ErrTruncated
	}
	supp, _, err := r.ReadStringMap()
	if err != nil {
		return d, ErrTruncated
	}
	d.Supplements = supp
	return d, nil
}

func EncodeServiceDiscoveryEvent(e types.ServiceDiscoveryEvent) []byte {
	w := NewWriter()
	w.WriteUint8(uint8(e.Change))
	encodeDescriptor(w, e.Descriptor)
	return w.Bytes()
}

func DecodeServiceDiscoveryEvent(body []byte) (types.ServiceDiscoveryEvent, error) {
	r := NewReader(body)
	change, err := r.ReadUint8()
	if err != nil {
		return types.ServiceDiscoveryEvent{}, ErrTruncated
	}
	d, err := decodeDescriptor(r)
	if err != nil {
		return types.ServiceDiscoveryEvent{}, err
	}
	return types.ServiceDiscoveryEvent{Change: types.DiscoveryChangeKind(change), Descriptor: d}, nil
}

func EncodeParticipantDiscoveryEvent(e types.ParticipantDiscoveryEvent) []byte {
	w := NewWriter()
	w.WriteUint32(uint32(len(e.Descriptors)))
	for _, d := range e.Descriptors {
		encodeDescriptor(w, d)
	}
	return w.Bytes()
}

func DecodeParticipantDiscoveryEvent(body []byte) (types.ParticipantDiscoveryEvent, error) {
	r := NewReader(body)
	n, err := r.ReadUint32()
	if err != nil {
		return types.ParticipantDiscoveryEvent{}, ErrTruncated
	}
	out := make([]types.ServiceDescriptor, 0, n)
	for i := uint32(0); i < n; i++ {
		d, err := decodeDescriptor(r)
		if err != nil {
			return types.ParticipantDiscoveryEvent{}, err
		}
		out = append(out, d)
	}
	return types.ParticipantDiscoveryEvent{Descriptors: out}, nil
}

// Announcement is the identity/capability/endpoint handshake exchanged on
// every new connection, peer-to-peer or peer-to-registry.
type Announcement struct {
	ParticipantName string
	ParticipantID   uint64
	AcceptorURIs    []string
	Capabilities    string
	Version         types.ProtocolVersion
}

func EncodeAnnouncement(a Announcement) []byte {
	w := NewWriter()
	w.WriteString(a.ParticipantName)
	w.WriteUint64(a.ParticipantID)
	w.WriteStringSlice(a.AcceptorURIs)
	w.WriteString(a.Capabilities)
	w.WriteUint16(a.Version.Major)
	w.WriteUint16(a.Version.Minor)
	return Encode(types.FrameAnnouncement, w.Bytes())
}

func DecodeAnnouncementBody(r *Reader) (Announcement, error) {
	var a Announcement
	var err error
	if a.ParticipantName, err = r.ReadString(); err != nil {
		return a, ErrTruncated
	}
	if a.ParticipantID, err = r.ReadUint64(); err != nil {
		return a, ErrTruncated
	}
	if a.AcceptorURIs, err = r.ReadStringSlice(); err != nil {
		return a, ErrTruncated
	}
	if a.Capabilities, err = r.ReadString(); err != nil {
		return a, ErrTruncated
	}
	if a.Version.Major, err = r.ReadUint16(); err != nil {
		return a, ErrTruncated
	}
	if a.Version.Minor, err = r.ReadUint16(); err != nil {
		return a, ErrTruncated
	}
	return a, nil
}

// AnnouncementReply accepts or rejects an Announcement. It carries no
// receiver indices: each service's ServiceID is used as its receiver index.
type AnnouncementReply struct {
	ParticipantID uint64
	Accepted      bool
	RejectReason  string
}

func EncodeAnnouncementReply(r AnnouncementReply) []byte {
	w := NewWriter()
	w.WriteUint64(r.ParticipantID)
	w.WriteBool(r.Accepted)
	w.WriteString(r.RejectReason)
	return Encode(types.FrameAnnouncementReply, w.Bytes())
}

func DecodeAnnouncementReplyBody(r *Reader) (AnnouncementReply, error) {
	var out AnnouncementReply
	var err error
	if out.ParticipantID, err = r.ReadUint64(); err != nil {
		return out, ErrTruncated
	}
	if out.Accepted, err = r.ReadBool(); err != nil {
		return out, ErrTruncated
	}
	if out.RejectReason, err = r.ReadString(); err != nil {
		return out, ErrTruncated
	}
	return out, nil
}

// KnownParticipants is the registry's bootstrap reply: every peer already
// connected at the time of announcement.
type KnownParticipants struct {
	Peers []PeerWireInfo
}

// PeerWireInfo is the wire form of types.PeerInfo (capabilities travel as
// their serialized string form, not the parsed set).
type PeerWireInfo struct {
	Name          string
	ParticipantID uint64
	AcceptorURIs  []string
	Capabilities  string
	Version       types.ProtocolVersion
}

func EncodeKnownParticipants(k KnownParticipants) []byte {
	w := NewWriter()
	w.WriteUint32(uint32(len(k.Peers)))
	for _, p := range k.Peers {
		w.WriteString(p.Name)
		w.WriteUint64(p.ParticipantID)
		w.WriteStringSlice(p.AcceptorURIs)
		w.WriteString(p.Capabilities)
		w.WriteUint16(p.Version.Major)
		w.WriteUint16(p.Version.Minor)
	}
	return EncodeRegistryMessage(types.RegistryKnownParticipants, w.Bytes())
}

// EncodeProxyFrame wraps an already-encoded frame for relay through the
// registry to destName, incrementing the hop count each time it is
// re-wrapped by a further relay.
func EncodeProxyFrame(destName string, hopCount uint8, inner []byte) []byte {
	w := NewWriter()
	w.WriteString(destName)
	w.WriteUint8(hopCount)
	w.WriteBytes(inner)
	return EncodeRegistryMessage(types.RegistryProxyFrame, w.Bytes())
}

func DecodeProxyFrame(body []byte) (destName string, hopCount uint8, inner []byte, err error) {
	r := NewReader(body)
	if destName, err = r.ReadString(); err != nil {
		return "", 0, nil, ErrTruncated
	}
	if hopCount, err = r.ReadUint8(); err != nil {
		return "", 0, nil, ErrTruncated
	}
	if inner, err = r.ReadBytes(); err != nil {
		return "", 0, nil, ErrTruncated
	}
	return destName, hopCount, inner, nil
}

func DecodeKnownParticipants(body []byte) (KnownParticipants, error) {
	r := NewReader(body)
	n, err := r.ReadUint32()
	if err != nil {
		return KnownParticipants{}, ErrTruncated
	}
	out := make([]PeerWireInfo, 0, n)
	for i := uint32(0); i < n; i++ {
		var p PeerWireInfo
		if p.Name, err = r.ReadString(); err != nil {
			return KnownParticipants{}, ErrTruncated
		}
		if p.ParticipantID, err = r.ReadUint64(); err != nil {
			return KnownParticipants{}, ErrTruncated
		}
		if p.AcceptorURIs, err = r.ReadStringSlice(); err != nil {
			return KnownParticipants{}, ErrTruncated
		}
		if p.Capabilities, err = r.ReadString(); err != nil {
			return KnownParticipants{}, ErrTruncated
		}
		if p.Version.Major, err = r.ReadUint16(); err != nil {
			return KnownParticipants{}, ErrTruncated
		}
		if p.Version.Minor, err = r.ReadUint16(); err != nil {
			return KnownParticipants{}, ErrTruncated
		}
		out = append(out, p)
	}
	return KnownParticipants{Peers: out}, nil
}
