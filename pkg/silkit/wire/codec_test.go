package wire

import (
	"testing"
	"time"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	body := []byte("hello frame")
	frame := Encode(types.FrameAnnouncement, body)

	kind, r, err := Decode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != types.FrameAnnouncement {
		t.Fatalf("kind = %v, want %v", kind, types.FrameAnnouncement)
	}
	if got := RemainingBody(r); string(got) != string(body) {
		t.Fatalf("body = %q, want %q", got, body)
	}
}

func TestDecode_Truncated(t *testing.T) {
	frame := Encode(types.FrameAnnouncement, []byte("payload"))
	_, _, err := Decode(frame[:len(frame)-2])
	if err != ErrTruncated {
		t.Fatalf("err = %v, want %v", err, ErrTruncated)
	}
}

func TestDecode_TrailingBytes(t *testing.T) {
	frame := Encode(types.FrameAnnouncement, []byte("payload"))
	frame = append(frame, 0xFF)
	_, _, err := Decode(frame)
	if err != ErrTrailingBytes {
		t.Fatalf("err = %v, want %v", err, ErrTrailingBytes)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	frame := Encode(types.FrameAnnouncement, nil)
	frame[4] = 0xFF
	_, _, err := Decode(frame)
	if err != ErrUnknownKind {
		t.Fatalf("err = %v, want %v", err, ErrUnknownKind)
	}
}

func TestSimMessage_RoundTrip(t *testing.T) {
	body := EncodeNextSimTask(types.NextSimTask{TimePoint: 5 * time.Millisecond, Duration: time.Millisecond})
	frame := EncodeSimMessage(7, types.MsgNextSimTask, body)

	kind, r, err := Decode(frame)
	if err != nil || kind != types.FrameSimMessage {
		t.Fatalf("decode failed: %v kind=%v", err, kind)
	}
	idx, msgType, err := DecodeSimMessage(r)
	if err != nil {
		t.Fatalf("DecodeSimMessage: %v", err)
	}
	if idx != 7 || msgType != types.MsgNextSimTask {
		t.Fatalf("idx=%d msgType=%v", idx, msgType)
	}
	task, err := DecodeNextSimTask(RemainingBody(r))
	if err != nil {
		t.Fatalf("DecodeNextSimTask: %v", err)
	}
	if task.TimePoint != 5*time.Millisecond || task.Duration != time.Millisecond {
		t.Fatalf("task = %+v", task)
	}
}

func TestParticipantStatus_RoundTrip(t *testing.T) {
	now := time.Now().UTC()
	status := types.ParticipantStatus{
		ParticipantName: "P1",
		State:           types.Running,
		EnterReason:     "manual",
		EnterTime:       now,
		RefreshTime:     now,
	}
	body := EncodeParticipantStatus(status)
	decoded, err := DecodeParticipantStatus(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ParticipantName != status.ParticipantName || decoded.State != status.State ||
		decoded.EnterReason != status.EnterReason || !decoded.EnterTime.Equal(status.EnterTime) {
		t.Fatalf("decoded = %+v, want %+v", decoded, status)
	}
}

func TestServiceDescriptor_RoundTrip(t *testing.T) {
	d := types.ServiceDescriptor{
		ParticipantName: "P1",
		ServiceType:     types.ServiceController,
		NetworkName:     "CAN1",
		ServiceName:     "CanCtrl1",
		ServiceID:       3,
		Supplements:     map[string]string{"media-type": "application/vnd.can", "label": "x"},
	}
	body := EncodeServiceDiscoveryEvent(types.ServiceDiscoveryEvent{Change: types.DiscoveryCreated, Descriptor: d})
	decoded, err := DecodeServiceDiscoveryEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Descriptor.Equal(d) {
		t.Fatalf("decoded = %+v, want %+v", decoded.Descriptor, d)
	}
}

func TestAnnouncement_RoundTrip(t *testing.T) {
	a := Announcement{
		ParticipantName: "P1",
		ParticipantID:   42,
		AcceptorURIs:    []string{"tcp://0.0.0.0:8502", "local:///tmp/p1.sock"},
		Capabilities:    `[{"name":"proxy-message"}]`,
		Version:         types.CurrentProtocolVersion,
	}
	frame := EncodeAnnouncement(a)
	kind, r, err := Decode(frame)
	if err != nil || kind != types.FrameAnnouncement {
		t.Fatalf("decode failed: %v kind=%v", err, kind)
	}
	decoded, err := DecodeAnnouncementBody(r)
	if err != nil {
		t.Fatalf("DecodeAnnouncementBody: %v", err)
	}
	if decoded.ParticipantName != a.ParticipantName || decoded.ParticipantID != a.ParticipantID ||
		len(decoded.AcceptorURIs) != 2 || decoded.Version != a.Version {
		t.Fatalf("decoded = %+v", decoded)
	}
}
