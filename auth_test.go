package pgwire

import (
	"io"
	"net"
	"testing"

	"github.com/pgwire/pgwire/internal/wire"
)

func TestAuthenticateCleartextPassword(t *testing.T) {
	addr := fakeServerConn(t, func(conn net.Conn) {
		defer conn.Close()
		fr := newFramer(conn)
		drainStartupMessage(t, conn)

		fr.queue(wire.BackendAuthentication, newWriteBuf().int32(wire.AuthCleartextPassword))
		fr.flush()

		tag, body, err := fr.recv()
		if err != nil || tag != wire.FrontendPasswordMessage {
			t.Errorf("expected PasswordMessage, got tag=%q err=%v", tag, err)
			return
		}
		if got := body.cstring(); got != "secret" {
			t.Errorf("password = %q, want secret", got)
		}

		fr.queue(wire.BackendAuthentication, newWriteBuf().int32(wire.AuthOk))
		fr.queue(wire.BackendBackendKeyData, newWriteBuf().int32(1).int32(2))
		fr.queue(wire.BackendReadyForQuery, newWriteBuf().byte('I'))
		fr.flush()
	})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cfg := Config{Host: "localhost", Port: 0, User: "alice", Password: "secret", Database: "db", TLSMode: TLSDisable}
	res, err := authenticate(conn, cfg)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.pid != 1 || res.secret != 2 {
		t.Errorf("pid/secret = %d/%d, want 1/2", res.pid, res.secret)
	}
}

func TestAuthenticateMD5Password(t *testing.T) {
	salt := []byte{1, 2, 3, 4}
	addr := fakeServerConn(t, func(conn net.Conn) {
		defer conn.Close()
		fr := newFramer(conn)
		drainStartupMessage(t, conn)

		fr.queue(wire.BackendAuthentication, newWriteBuf().int32(wire.AuthMD5Password).bytes(salt))
		fr.flush()

		tag, body, err := fr.recv()
		if err != nil || tag != wire.FrontendPasswordMessage {
			t.Errorf("expected PasswordMessage, got tag=%q err=%v", tag, err)
			return
		}
		want := "md5" + md5Hex(md5Hex("secret"+"alice")+string(salt))
		if got := body.cstring(); got != want {
			t.Errorf("hashed password = %q, want %q", got, want)
		}

		fr.queue(wire.BackendAuthentication, newWriteBuf().int32(wire.AuthOk))
		fr.queue(wire.BackendBackendKeyData, newWriteBuf().int32(7).int32(8))
		fr.queue(wire.BackendReadyForQuery, newWriteBuf().byte('I'))
		fr.flush()
	})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cfg := Config{Host: "localhost", User: "alice", Password: "secret", Database: "db", TLSMode: TLSDisable}
	res, err := authenticate(conn, cfg)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.pid != 7 || res.secret != 8 {
		t.Errorf("pid/secret = %d/%d, want 7/8", res.pid, res.secret)
	}
}

func TestAuthenticateServerErrorDuringStartup(t *testing.T) {
	addr := fakeServerConn(t, func(conn net.Conn) {
		defer conn.Close()
		fr := newFramer(conn)
		drainStartupMessage(t, conn)

		body := newWriteBuf().
			byte('S').cstring("FATAL").
			byte('C').cstring("28000").
			byte('M').cstring("role does not exist").
			byte(0)
		fr.queue(wire.BackendErrorResponse, body)
		fr.flush()
	})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cfg := Config{Host: "localhost", User: "ghost", Database: "db", TLSMode: TLSDisable}
	_, err = authenticate(conn, cfg)
	if err == nil {
		t.Fatal("expected error for a role-does-not-exist startup failure")
	}
	pgErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pgErr.Code != "28000" {
		t.Errorf("Code = %q, want 28000", pgErr.Code)
	}
}

func TestAuthenticateRejectsKerberos(t *testing.T) {
	addr := fakeServerConn(t, func(conn net.Conn) {
		defer conn.Close()
		fr := newFramer(conn)
		drainStartupMessage(t, conn)
		fr.queue(wire.BackendAuthentication, newWriteBuf().int32(wire.AuthKerberosV5))
		fr.flush()
	})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cfg := Config{Host: "localhost", User: "u", Database: "db", TLSMode: TLSDisable}
	_, err = authenticate(conn, cfg)
	if err == nil {
		t.Fatal("expected error rejecting Kerberos authentication")
	}
	if _, ok := err.(*AuthError); !ok {
		t.Fatalf("expected *AuthError, got %T", err)
	}
}

func TestMD5HexKnownVector(t *testing.T) {
	if got := md5Hex(""); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("md5Hex(\"\") = %q", got)
	}
}

func TestContainsFold(t *testing.T) {
	if !containsFold([]string{"SCRAM-SHA-256", "md5"}, "scram-sha-256") {
		t.Error("expected case-insensitive match")
	}
	if containsFold([]string{"md5"}, "scram-sha-256") {
		t.Error("expected no match")
	}
}

// drainStartupMessage consumes the untagged SSLRequest-or-StartupMessage
// frame a client sends first, without inspecting its contents.
func drainStartupMessage(t *testing.T, conn net.Conn) {
	t.Helper()
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		t.Fatalf("read length prefix: %v", err)
	}
	n := int(hdr[0])<<24 | int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	rest := make([]byte, n-4)
	if _, err := io.ReadFull(conn, rest); err != nil {
		t.Fatalf("read startup body: %v", err)
	}
}
