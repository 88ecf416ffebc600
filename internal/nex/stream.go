package nex

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// RMC payloads are little-endian. StreamIn keeps a sticky error: after a
// short read every subsequent read returns the zero value, and the caller
// checks Err once after decoding the whole request.

var ErrStreamShort = errors.New("stream: read past end of payload")

type StreamIn struct {
	buf []byte
	pos int
	err error
}

func NewStreamIn(buf []byte) *StreamIn {
	return &StreamIn{buf: buf}
}

func (s *StreamIn) Err() error {
	return s.err
}

// Remaining returns the number of unread bytes.
func (s *StreamIn) Remaining() int {
	return len(s.buf) - s.pos
}

func (s *StreamIn) take(n int) []byte {
	if s.err != nil {
		return nil
	}
	if s.pos+n > len(s.buf) {
		s.err = ErrStreamShort
		return nil
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b
}

func (s *StreamIn) ReadU8() uint8 {
	b := s.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (s *StreamIn) ReadU16() uint16 {
	b := s.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (s *StreamIn) ReadU32() uint32 {
	b := s.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (s *StreamIn) ReadU64() uint64 {
	b := s.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (s *StreamIn) ReadF32() float32 {
	return math.Float32frombits(s.ReadU32())
}

func (s *StreamIn) ReadBool() bool {
	return s.ReadU8() != 0
}

// ReadPID reads a principal id (u32 on this wire revision).
func (s *StreamIn) ReadPID() uint32 {
	return s.ReadU32()
}

// ReadString reads a u16-length-prefixed string including its trailing
// NUL, which is stripped.
func (s *StreamIn) ReadString() string {
	n := int(s.ReadU16())
	b := s.take(n)
	if b == nil {
		return ""
	}
	if n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// ReadBuffer reads a u32-length-prefixed byte buffer.
func (s *StreamIn) ReadBuffer() []byte {
	n := int(s.ReadU32())
	b := s.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ReadQBuffer reads a u16-length-prefixed byte buffer.
func (s *StreamIn) ReadQBuffer() []byte {
	n := int(s.ReadU16())
	b := s.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (s *StreamIn) ReadListU32() []uint32 {
	n := int(s.ReadU32())
	if s.err != nil || n > s.Remaining()/4 {
		if n > s.Remaining()/4 {
			s.err = ErrStreamShort
		}
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = s.ReadU32()
	}
	return out
}

func (s *StreamIn) ReadListString() []string {
	n := int(s.ReadU32())
	if s.err != nil || n > s.Remaining() {
		if n > s.Remaining() {
			s.err = ErrStreamShort
		}
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = s.ReadString()
	}
	return out
}

func (s *StreamIn) ReadDateTime() DateTime {
	return DateTime(s.ReadU64())
}

type StreamOut struct {
	buf []byte
}

func NewStreamOut() *StreamOut {
	return &StreamOut{}
}

func (s *StreamOut) Bytes() []byte {
	return s.buf
}

func (s *StreamOut) WriteU8(v uint8) {
	s.buf = append(s.buf, v)
}

func (s *StreamOut) WriteU16(v uint16) {
	s.buf = binary.LittleEndian.AppendUint16(s.buf, v)
}

func (s *StreamOut) WriteU32(v uint32) {
	s.buf = binary.LittleEndian.AppendUint32(s.buf, v)
}

func (s *StreamOut) WriteU64(v uint64) {
	s.buf = binary.LittleEndian.AppendUint64(s.buf, v)
}

func (s *StreamOut) WriteF32(v float32) {
	s.WriteU32(math.Float32bits(v))
}

func (s *StreamOut) WriteBool(v bool) {
	if v {
		s.WriteU8(1)
	} else {
		s.WriteU8(0)
	}
}

func (s *StreamOut) WritePID(v uint32) {
	s.WriteU32(v)
}

func (s *StreamOut) WriteString(v string) {
	s.WriteU16(uint16(len(v) + 1))
	s.buf = append(s.buf, v...)
	s.buf = append(s.buf, 0)
}

func (s *StreamOut) WriteBuffer(v []byte) {
	s.WriteU32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *StreamOut) WriteQBuffer(v []byte) {
	s.WriteU16(uint16(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *StreamOut) WriteListU32(v []uint32) {
	s.WriteU32(uint32(len(v)))
	for _, e := range v {
		s.WriteU32(e)
	}
}

func (s *StreamOut) WriteListString(v []string) {
	s.WriteU32(uint32(len(v)))
	for _, e := range v {
		s.WriteString(e)
	}
}

func (s *StreamOut) WriteDateTime(v DateTime) {
	s.WriteU64(uint64(v))
}

// DateTime is the packed rendezvous timestamp:
// second | minute<<6 | hour<<12 | day<<17 | month<<22 | year<<26.
type DateTime uint64

func DateTimeFromTime(t time.Time) DateTime {
	t = t.UTC()
	return DateTime(uint64(t.Second()) |
		uint64(t.Minute())<<6 |
		uint64(t.Hour())<<12 |
		uint64(t.Day())<<17 |
		uint64(t.Month())<<22 |
		uint64(t.Year())<<26)
}

func (d DateTime) Time() time.Time {
	v := uint64(d)
	return time.Date(
		int(v>>26),
		time.Month(v>>22&0xF),
		int(v>>17&0x1F),
		int(v>>12&0x1F),
		int(v>>6&0x3F),
		int(v&0x3F),
		0, time.UTC)
}
