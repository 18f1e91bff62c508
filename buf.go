package pgwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// readBuf is a cursor over one message body (the 4-byte length already
// consumed by the framer). Each accessor advances the cursor and panics
// on underrun; every call site runs under errRecover so a short message
// degrades to a *ProtocolError instead of a crash.
type readBuf []byte

func (b *readBuf) int16() int {
	return int(binary.BigEndian.Uint16(b.take(2)))
}

func (b *readBuf) int32() int32 {
	return int32(binary.BigEndian.Uint32(b.take(4)))
}

func (b *readBuf) uint32() uint32 {
	return binary.BigEndian.Uint32(b.take(4))
}

func (b *readBuf) byte() byte {
	return b.take(1)[0]
}

func (b *readBuf) take(n int) []byte {
	if len(*b) < n {
		panic(&ProtocolError{Detail: fmt.Sprintf("short message body: want %d bytes, have %d", n, len(*b))})
	}
	v := (*b)[:n]
	*b = (*b)[n:]
	return v
}

// cstring reads a zero-terminated string and advances past the terminator.
func (b *readBuf) cstring() string {
	i := bytes.IndexByte(*b, 0)
	if i < 0 {
		panic(&ProtocolError{Detail: "expected C-string terminator"})
	}
	s := string((*b)[:i])
	*b = (*b)[i+1:]
	return s
}

// rest returns, and consumes, whatever remains of the buffer.
func (b *readBuf) rest() []byte {
	v := *b
	*b = nil
	return v
}

// skip discards n bytes without interpreting them, used for fields the
// statement manager doesn't retain (table OID, attribute number, type
// modifier, format code, ...).
func (b *readBuf) skip(n int) {
	b.take(n)
}

// writeBuf accumulates one outbound message's payload. The tag and
// 4-byte length prefix are added by framer.queue/queueUntagged, not here.
type writeBuf struct {
	buf []byte
}

func newWriteBuf() *writeBuf {
	return &writeBuf{buf: make([]byte, 0, 64)}
}

func (b *writeBuf) int16(n int) *writeBuf {
	var x [2]byte
	binary.BigEndian.PutUint16(x[:], uint16(n))
	b.buf = append(b.buf, x[:]...)
	return b
}

func (b *writeBuf) int32(n int) *writeBuf {
	var x [4]byte
	binary.BigEndian.PutUint32(x[:], uint32(n))
	b.buf = append(b.buf, x[:]...)
	return b
}

func (b *writeBuf) byte(c byte) *writeBuf {
	b.buf = append(b.buf, c)
	return b
}

// cstring appends s followed by a zero terminator.
func (b *writeBuf) cstring(s string) *writeBuf {
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	return b
}

// bytes appends raw bytes with no length prefix and no terminator.
func (b *writeBuf) bytes(v []byte) *writeBuf {
	b.buf = append(b.buf, v...)
	return b
}

// lenPrefixed appends a 4-byte big-endian length followed by v, or -1
// and nothing else when v is nil, the wire form of a null Bind
// parameter.
func (b *writeBuf) lenPrefixed(v []byte) *writeBuf {
	if v == nil {
		return b.int32(-1)
	}
	b.int32(len(v))
	return b.bytes(v)
}
