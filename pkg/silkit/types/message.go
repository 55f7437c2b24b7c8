package types

// UID uniquely identifies a single in-flight message or request.
type UID string

// FrameKind is the outermost discriminant of a wire frame (§4.1, §6):
// the reader consumes a complete frame before ever looking inside it.
type FrameKind uint8

const (
	FrameAnnouncement FrameKind = iota
	FrameAnnouncementReply
	FrameRegistryMessage
	FrameSimMessage
)

func (k FrameKind) String() string {
	switch k {
	case FrameAnnouncement:
		return "Announcement"
	case FrameAnnouncementReply:
		return "AnnouncementReply"
	case FrameRegistryMessage:
		return "RegistryMessage"
	case FrameSimMessage:
		return "SimMessage"
	default:
		return "Unknown"
	}
}

// RegistryMessageKind discriminates the payload of a FrameRegistryMessage.
type RegistryMessageKind uint8

const (
	RegistryKnownParticipants RegistryMessageKind = iota
	RegistryProxyFrame
)

// MessageType discriminates the payload carried inside a SimMessage
// frame: the tagged union the router dispatches on.
type MessageType uint8

const (
	MsgParticipantStatus MessageType = iota
	MsgSystemCommand
	MsgWorkflowConfiguration
	MsgNextSimTask
	MsgServiceDiscoveryEvent
	MsgParticipantDiscoveryEvent
	MsgCanFrame
	MsgEthernetFrame
	MsgLinFrame
	MsgFlexRayFrame
	MsgPubSub
	MsgRpcCall
	MsgRpcCallReturn
)

func (m MessageType) String() string {
	switch m {
	case MsgParticipantStatus:
		return "ParticipantStatus"
	case MsgSystemCommand:
		return "SystemCommand"
	case MsgWorkflowConfiguration:
		return "WorkflowConfiguration"
	case MsgNextSimTask:
		return "NextSimTask"
	case MsgServiceDiscoveryEvent:
		return "ServiceDiscoveryEvent"
	case MsgParticipantDiscoveryEvent:
		return "ParticipantDiscoveryEvent"
	case MsgCanFrame:
		return "CanFrame"
	case MsgEthernetFrame:
		return "EthernetFrame"
	case MsgLinFrame:
		return "LinFrame"
	case MsgFlexRayFrame:
		return "FlexRayFrame"
	case MsgPubSub:
		return "PubSub"
	case MsgRpcCall:
		return "RpcCall"
	case MsgRpcCallReturn:
		return "RpcCallReturn"
	default:
		return "Unknown"
	}
}

// EnforcesSelfDelivery reports whether messages of this type must be
// looped back to a local subscriber on the same participant that sent
// them. Per §4.5, this applies only to lifecycle commands, participant
// statuses, and workflow configuration.
func (m MessageType) EnforcesSelfDelivery() bool {
	switch m {
	case MsgParticipantStatus, MsgSystemCommand, MsgWorkflowConfiguration:
		return true
	default:
		return false
	}
}

// DiscoveryChangeKind distinguishes add/remove in a ServiceDiscoveryEvent.
type DiscoveryChangeKind uint8

const (
	DiscoveryCreated DiscoveryChangeKind = iota
	DiscoveryRemoved
)

// ServiceDiscoveryEvent announces a single controller's creation or
// teardown to every connected peer.
type ServiceDiscoveryEvent struct {
	Change     DiscoveryChangeKind
	Descriptor ServiceDescriptor
}

// ParticipantDiscoveryEvent is the bulk, history-1 event sent once per
// peer at connect time, carrying every descriptor currently announced by
// the sender.
type ParticipantDiscoveryEvent struct {
	Descriptors []ServiceDescriptor
}

// CanFrame is the generic CAN payload the router treats as an opaque,
// serialized body; arbitration semantics are out of scope for the core.
type CanFrame struct {
	CanID     uint32
	Payload   []byte
	Timestamp int64 // virtual-time nanoseconds at send
}

// PubSubMessage is a generic publish/subscribe payload.
type PubSubMessage struct {
	Data      []byte
	Timestamp int64
}

// RpcCall and RpcCallReturn are the generic RPC envelopes; per spec.md the
// RPC semantics beyond serialization belong to collaborators, so these
// carry only an opaque body and a call identifier.
type RpcCall struct {
	CallUID UID
	Data    []byte
}

type RpcCallReturn struct {
	CallUID UID
	Data    []byte
	Success bool
}

// Envelope is the decoded, in-memory form of a SimMessage frame: the
// receiver index that selects a local subscription slot, the type tag,
// and the raw serialized body. The router does not construct Envelope
// values; it hands the sender name, type and raw body to handlers directly.
type Envelope struct {
	ReceiverIndex uint16
	Type          MessageType
	Body          []byte

	// SenderParticipant and Network do not travel on the wire frame itself
	// (the receiver index already encodes the destination).
	SenderParticipant string
	Network           string
}
