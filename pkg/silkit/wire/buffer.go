// Package wire implements the L0 message framing codec: length-prefixed
// binary frames, little-endian, byte-packed, plus the primitive
// serialization rules every higher-level message type builds on.
package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// DecodeError is the sentinel family returned by Reader when a buffer
// does not match the frame it claims to hold.
var (
	ErrTruncated    = errors.New("wire: truncated frame")
	ErrUnknownKind  = errors.New("wire: unknown frame kind")
	ErrTrailingBytes = errors.New("wire: trailing bytes after frame body")
)

// Writer accumulates primitive values in the wire's byte-packed,
// little-endian layout. The zero value is ready to use.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WriteBytes writes a length (u32) prefix followed by the raw bytes.
func (w *Writer) WriteBytes(v []byte) {
	w.WriteUint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// WriteString writes a length (u32) prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(v string) {
	w.WriteBytes([]byte(v))
}

// WriteStringSlice writes a length (u32) element count, then each string.
func (w *Writer) WriteStringSlice(v []string) {
	w.WriteUint32(uint32(len(v)))
	for _, s := range v {
		w.WriteString(s)
	}
}

// WriteStringMap writes a length (u32) pair count equal to len(keys), then
// each key/value pair in the order given by keys (callers wanting a
// deterministic wire form pass a sorted key list).
func (w *Writer) WriteStringMap(v map[string]string, keys []string) {
	w.WriteUint32(uint32(len(keys)))
	for _, k := range keys {
		w.WriteString(k)
		w.WriteString(v[k])
	}
}

// Reader consumes primitive values from a byte slice in the same layout
// Writer produces, failing with ErrTruncated when the buffer runs short.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left unconsumed.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrTruncated
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadStringSlice() ([]string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Reader) ReadStringMap() (map[string]string, []string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, nil, err
	}
	out := make(map[string]string, n)
	keys := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, nil, err
		}
		v, err := r.ReadString()
		if err != nil {
			return nil, nil, err
		}
		out[k] = v
		keys = append(keys, k)
	}
	return out, keys, nil
}
