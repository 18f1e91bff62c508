package pgwire

import (
	"log/slog"
	"net"
	"sync"

	"github.com/pgwire/pgwire/internal/wire"
)

// Session owns one authenticated connection: the backend PID/secret, the
// prepared-statement cache, and the socket itself. Every operation that
// touches Session state runs under guard, so only one logical operation
// is ever in flight.
type Session struct {
	cfg Config

	guard sync.Mutex

	framer *framer
	pid    int32
	secret int32

	statements map[string]*Statement

	// generation increments on every successful dial. A Statement's
	// generation field is stamped at parse time; ensureCurrent compares
	// the two to detect a reconnect that happened underneath it.
	generation uint64

	closed bool
}

// Connect performs startup and authentication and returns a ready
// Session.
func Connect(cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, statements: make(map[string]*Statement)}
	if err := s.dial(); err != nil {
		return nil, err
	}
	cfg.logger().Info("pgwire: connected", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return s, nil
}

func (s *Session) dial() error {
	conn, err := net.Dial("tcp", s.cfg.addr())
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	res, err := authenticate(conn, s.cfg)
	if err != nil {
		conn.Close()
		return err
	}
	s.framer = res.framer
	s.pid = res.pid
	s.secret = res.secret
	s.closed = false
	s.generation++
	return nil
}

// Close terminates the session. Idempotent: closing twice is a no-op.
func (s *Session) Close() error {
	s.guard.Lock()
	defer s.guard.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.framer != nil {
		// Best-effort Terminate; the socket is going away regardless.
		_ = s.framer.writeOne(wire.FrontendTerminate, newWriteBuf())
		_ = s.framer.conn.Close()
	}
	s.cfg.logger().Info("pgwire: session closed")
	return nil
}

// IsOpen reports whether the underlying socket is currently open.
// It does not distinguish "never connected" from "disconnected".
func (s *Session) IsOpen() bool {
	s.guard.Lock()
	defer s.guard.Unlock()
	return !s.closed && s.framer != nil
}

// PID and SecretKey expose the BackendKeyData retained for a future
// out-of-band cancellation request; cancellation itself
// is out of scope for this core.
func (s *Session) PID() int32       { return s.pid }
func (s *Session) SecretKey() int32 { return s.secret }

// check is invoked under the guard before any operation.
// If the socket dropped without an explicit Close, it transparently
// reconnects and clears the statement cache; if the Session was
// explicitly closed, or the reconnect itself fails, it returns an error.
func (s *Session) check() error {
	if s.closed {
		return &InterfaceError{Detail: "operation on a closed session"}
	}
	if s.framer != nil && !isSocketDead(s.framer.conn) {
		return nil
	}

	s.cfg.logger().Warn("pgwire: session socket dropped, reconnecting")
	s.cfg.metrics().reconnect()
	for name := range s.statements {
		delete(s.statements, name)
	}
	s.cfg.metrics().cacheSize(0)
	if err := s.dial(); err != nil {
		return &InterfaceError{Detail: "disconnected: " + err.Error()}
	}
	return nil
}

// isSocketDead reports the socket as dead once a prior read/write
// failure has already cleared s.framer (see handleTransportFailure);
// liveness itself is only discovered by attempting I/O, not probed here.
func isSocketDead(conn net.Conn) bool {
	return conn == nil
}

// handleTransportFailure is called by statement.go/executor.go when a
// framer read or write returns a *TransportError. It marks the socket
// as gone so the next check() reconnects, without flipping the
// explicit-close flag.
func (s *Session) handleTransportFailure() {
	if s.framer != nil {
		_ = s.framer.conn.Close()
	}
	s.framer = nil
}

func (s *Session) logger() *slog.Logger { return s.cfg.logger() }

// genStatementName returns a fresh server-assigned statement name: a
// random 36-character printable string, generated with a
// cryptographic RNG.
func (s *Session) genStatementName() string {
	name, err := randomPrintable(36)
	if err != nil {
		// crypto/rand failure is unrecoverable for this process.
		panic(&TransportError{Op: "generate statement name", Err: err})
	}
	return name
}
