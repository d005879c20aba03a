// SPDX-License-Identifier: GPL-2.0-or-later

// Package qmsg assembles outgoing messages on top of the bit-stream writer
// and handles length-prefixed framing. It owns no transport; a delivery
// layer hands the framed bytes to whatever socket it likes.
package qmsg

import (
	"github.com/pkg/errors"

	"github.com/DeWolfRobin/TF2CodeRefactor/bitbuf"
	"github.com/DeWolfRobin/TF2CodeRefactor/protocol"
)

// MaxMessage bounds a single framed payload. Anything larger is treated as
// a corrupt or hostile frame.
const MaxMessage = 32000

// Message accumulates typed fields into a fixed-capacity bit buffer.
// Overflow is sticky and checked once per batch via IsOverflowed, the same
// contract as the underlying writer.
type Message struct {
	backing []byte
	w       *bitbuf.Writer
}

// NewMessage returns a message with capacity for maxBytes of payload.
func NewMessage(maxBytes int) *Message {
	backing := make([]byte, maxBytes)
	return &Message{
		backing: backing,
		w:       bitbuf.NewWriterNamed("qmsg", backing),
	}
}

// Bytes returns the written portion of the message. After an overflow the
// writer's cursor sits past capacity, so the count is clamped to the backing
// buffer; only committed bytes are ever exposed.
func (m *Message) Bytes() []byte {
	n := m.w.BytesWritten()
	if n > len(m.backing) {
		n = len(m.backing)
	}
	return m.backing[:n]
}

func (m *Message) Len() int {
	return len(m.Bytes())
}

func (m *Message) HasMessage() bool {
	return m.w.BitsWritten() > 0
}

func (m *Message) ClearMessage() {
	m.w.Reset()
}

func (m *Message) IsOverflowed() bool {
	return m.w.IsOverflowed()
}

func (m *Message) WriteChar(c int) {
	m.w.WriteChar(c)
}

func (m *Message) WriteByte(c int) {
	m.w.WriteByte(c)
}

func (m *Message) WriteShort(c int) {
	m.w.WriteShort(c)
}

func (m *Message) WriteLong(c int32) {
	m.w.WriteLong(c)
}

func (m *Message) WriteFloat(f float32) {
	m.w.WriteFloat(f)
}

func (m *Message) WriteCoord(f float32) {
	m.w.WriteBitCoord(f)
}

func (m *Message) WriteAngle(f float32, numBits int) {
	m.w.WriteBitAngle(f, numBits)
}

func (m *Message) WriteString(s string) {
	m.w.WriteString(s)
}

func (m *Message) WriteVarInt32(v uint32) {
	m.w.WriteVarInt32(v)
}

func (m *Message) WriteBytes(b []byte) {
	m.w.WriteBytes(b)
}

// Packet returns the message prefixed with its byte length as a varint.
func (m *Message) Packet() []byte {
	payload := m.Bytes()
	var hdr [protocol.MaxVarint32Bytes + 3]byte
	hw := bitbuf.NewWriter(hdr[:])
	hw.WriteVarInt32(uint32(len(payload)))
	out := make([]byte, 0, hw.BytesWritten()+len(payload))
	out = append(out, hdr[:hw.BytesWritten()]...)
	out = append(out, payload...)
	return out
}

// ParsePacket splits one length-prefixed packet off data, returning the
// payload and the unconsumed remainder.
func ParsePacket(data []byte) (payload, rest []byte, err error) {
	r := bitbuf.NewReaderNamed("qmsg", data)
	length := r.ReadVarInt32()
	if r.IsOverflowed() {
		return nil, nil, errors.New("packet header truncated")
	}
	if length > MaxMessage {
		return nil, nil, errors.Errorf("packet length %d exceeds maximum %d", length, MaxMessage)
	}
	start := r.BitsRead() >> 3
	end := start + int(length)
	if end > len(data) {
		return nil, nil, errors.Errorf("packet truncated: need %d bytes, have %d", end-start, len(data)-start)
	}
	return data[start:end], data[end:], nil
}
