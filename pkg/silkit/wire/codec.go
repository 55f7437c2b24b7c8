package wire

import "github.com/silkit-go/silkit/pkg/silkit/types"

// headerSize is the 4-byte size prefix plus the 1-byte kind tag that
// precede every frame's payload.
const headerSize = 5

// Encode serializes kind and body into a complete frame: a 4-byte
// little-endian total size (including itself), a 1-byte frame kind, then
// body verbatim. Encoding always succeeds.
func Encode(kind types.FrameKind, body []byte) []byte {
	total := headerSize + len(body)
	frame := make([]byte, total)
	w := NewWriter()
	w.WriteUint32(uint32(total))
	w.WriteUint8(uint8(kind))
	copy(frame, w.Bytes())
	copy(frame[headerSize:], body)
	return frame
}

// Decode reverses Encode. It fails with ErrTruncated when fewer bytes are
// present than the size prefix claims, ErrUnknownKind when the kind byte
// names no known FrameKind, and ErrTrailingBytes when frame contains more
// bytes than the size prefix claims (the caller handed in more than one
// frame's worth of bytes).
func Decode(frame []byte) (types.FrameKind, *Reader, error) {
	r := NewReader(frame)
	size, err := r.ReadUint32()
	if err != nil {
		return 0, nil, ErrTruncated
	}
	if int(size) > len(frame) {
		return 0, nil, ErrTruncated
	}
	if int(size) < len(frame) {
		return 0, nil, ErrTrailingBytes
	}
	kindByte, err := r.ReadUint8()
	if err != nil {
		return 0, nil, ErrTruncated
	}
	kind := types.FrameKind(kindByte)
	switch kind {
	case types.FrameAnnouncement, types.FrameAnnouncementReply, types.FrameRegistryMessage, types.FrameSimMessage:
	default:
		return 0, nil, ErrUnknownKind
	}
	return kind, r, nil
}

// EncodeSimMessage serializes a SimMessage payload: a 2-byte receiver
// index, a 1-byte message-type tag, then the body, wrapped in a frame.
func EncodeSimMessage(receiverIndex uint16, msgType types.MessageType, body []byte) []byte {
	w := NewWriter()
	w.WriteUint16(receiverIndex)
	w.WriteUint8(uint8(msgType))
	payload := append(w.Bytes(), body...)
	return Encode(types.FrameSimMessage, payload)
}

// DecodeSimMessage reads the receiver index and message-type tag from a
// SimMessage frame's payload reader, leaving the remainder of r positioned
// at the start of the serialized body.
func DecodeSimMessage(r *Reader) (uint16, types.MessageType, error) {
	idx, err := r.ReadUint16()
	if err != nil {
		return 0, 0, ErrTruncated
	}
	tag, err := r.ReadUint8()
	if err != nil {
		return 0, 0, ErrTruncated
	}
	return idx, types.MessageType(tag), nil
}

// EncodeRegistryMessage serializes a registry-message payload: a 1-byte
// RegistryMessageKind tag, then the body, wrapped in a frame.
func EncodeRegistryMessage(kind types.RegistryMessageKind, body []byte) []byte {
	w := NewWriter()
	w.WriteUint8(uint8(kind))
	payload := append(w.Bytes(), body...)
	return Encode(types.FrameRegistryMessage, payload)
}

func DecodeRegistryMessage(r *Reader) (types.RegistryMessageKind, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return 0, ErrTruncated
	}
	return types.RegistryMessageKind(tag), nil
}

// RemainingBody returns whatever bytes are left unconsumed in r — the
// serialized body of a sub-frame, handed to a type-specific decoder.
func RemainingBody(r *Reader) []byte {
	return r.buf[r.pos:]
}
