package pgwire

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
)

// framer reads and writes length-prefixed, tag-prefixed wire messages
// over a byte-stream socket. It has no notion of
// authentication state, statements, or rows, those live in auth.go,
// statement.go and executor.go, all of which share one framer per
// Session.
type framer struct {
	conn    net.Conn
	reader  *bufio.Reader
	pending []byte
}

func newFramer(conn net.Conn) *framer {
	return &framer{conn: conn, reader: bufio.NewReaderSize(conn, 8192)}
}

// queue appends one tagged frame ([tag][i32 length][body]) to the
// pending batch without writing to the socket.
func (f *framer) queue(tag byte, body *writeBuf) {
	n := len(body.buf)
	f.pending = append(f.pending, tag)
	f.pending = appendUint32(f.pending, uint32(n+4))
	f.pending = append(f.pending, body.buf...)
}

// queueUntagged appends one untagged frame ([i32 length][body]), used
// only for SSLRequest and StartupMessage.
func (f *framer) queueUntagged(body *writeBuf) {
	n := len(body.buf)
	f.pending = appendUint32(f.pending, uint32(n+4))
	f.pending = append(f.pending, body.buf...)
}

// flush writes every queued frame to the socket in a single write call
// and clears the batch.
func (f *framer) flush() error {
	if len(f.pending) == 0 {
		return nil
	}
	buf := f.pending
	f.pending = nil
	if _, err := f.conn.Write(buf); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// writeOne queues and immediately flushes a single tagged message,
// sugar for call sites that don't batch (e.g. Terminate on close).
func (f *framer) writeOne(tag byte, body *writeBuf) error {
	f.queue(tag, body)
	return f.flush()
}

// recv reads exactly one tagged message: one tag byte, a 4-byte
// big-endian length L, then (L-4) bytes of body.
func (f *framer) recv() (byte, readBuf, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(f.reader, hdr[:]); err != nil {
		return 0, nil, &TransportError{Op: "read header", Err: err}
	}
	tag := hdr[0]
	length := binary.BigEndian.Uint32(hdr[1:])
	if length < 4 {
		return 0, nil, &ProtocolError{Detail: "message length smaller than its own prefix"}
	}
	body := make([]byte, length-4)
	if len(body) > 0 {
		if _, err := io.ReadFull(f.reader, body); err != nil {
			return 0, nil, &TransportError{Op: "read body", Err: err}
		}
	}
	return tag, readBuf(body), nil
}

// recvRawByte reads a single untagged byte, used only for the SSLRequest
// response ('S' or 'N') which precedes any tagged message on the wire.
func (f *framer) recvRawByte() (byte, error) {
	b, err := f.reader.ReadByte()
	if err != nil {
		return 0, &TransportError{Op: "read SSLRequest response", Err: err}
	}
	return b, nil
}

// rebind swaps the underlying net.Conn (used after a TLS handshake
// wraps the raw socket) and resets the buffered reader so no bytes are
// lost or stale.
func (f *framer) rebind(conn net.Conn) {
	f.conn = conn
	f.reader = bufio.NewReaderSize(conn, 8192)
}

func appendUint32(b []byte, v uint32) []byte {
	var x [4]byte
	binary.BigEndian.PutUint32(x[:], v)
	return append(b, x[:]...)
}
