package pgwire

import (
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/pgwire/pgwire/internal/scram"
	"github.com/pgwire/pgwire/internal/wire"
)

// authResult is what a successful Authenticator run hands back to
// Session: an authenticated, possibly TLS-wrapped framer plus the
// BackendKeyData needed for a future cancellation request.
type authResult struct {
	framer *framer
	pid    int32
	secret int32
}

// authenticate drives the startup/authentication state machine:
// SSLRequest negotiation, StartupMessage, then the per-mechanism
// challenge/response loop, ending once both BackendKeyData and
// ReadyForQuery have been observed.
func authenticate(conn net.Conn, cfg Config) (res *authResult, err error) {
	defer errRecover(&err)
	log := cfg.logger()
	metrics := cfg.metrics()
	start := time.Now()
	mechanism := "none"
	defer func() {
		metrics.authTiming(mechanism, time.Since(start))
		if err != nil {
			metrics.connect("error")
		} else {
			metrics.connect("ok")
		}
	}()

	fr := newFramer(conn)

	conn, err = negotiateTLS(fr, conn, cfg)
	if err != nil {
		return nil, err
	}
	fr.rebind(conn)

	if err := sendStartupMessage(fr, cfg); err != nil {
		return nil, err
	}

	authOK := false
	for !authOK {
		tag, body, err := fr.recv()
		if err != nil {
			return nil, err
		}
		switch tag {
		case wire.BackendErrorResponse:
			e := parseErrorOrNotice(&body, "")
			log.Error("pgwire: authentication failed", "error", e)
			return nil, e
		case wire.BackendNegotiateProtocol:
			return nil, &ProtocolError{Detail: "server requires a newer protocol negotiation than this client speaks"}
		case wire.BackendAuthentication:
			m, done, authErr := handleAuthMessage(fr, &body, cfg)
			if authErr != nil {
				return nil, authErr
			}
			if m != "" {
				mechanism = m
			}
			authOK = done
		case wire.BackendParameterStatus, wire.BackendBackendKeyData:
			// Harmless during the pre-OK phase; PostgreSQL can send
			// ParameterStatus before authentication completes.
		default:
			return nil, &ProtocolError{Detail: fmt.Sprintf("unexpected message %q during startup", tag)}
		}
	}

	pid, secret, err := awaitBackendKeyData(fr, log)
	if err != nil {
		return nil, err
	}

	return &authResult{framer: fr, pid: pid, secret: secret}, nil
}

// negotiateTLS sends SSLRequest and upgrades the connection if the
// server agrees. It returns the (possibly wrapped) net.Conn to use from
// here on.
func negotiateTLS(fr *framer, conn net.Conn, cfg Config) (net.Conn, error) {
	if cfg.TLSMode == TLSDisable {
		return conn, nil
	}

	w := newWriteBuf().int32(wire.SSLRequestCode)
	fr.queueUntagged(w)
	if err := fr.flush(); err != nil {
		return nil, err
	}

	resp, err := fr.recvRawByte()
	if err != nil {
		return nil, err
	}
	switch resp {
	case 'S':
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: true, // certificate pinning is out of scope
		})
		if err := tlsConn.Handshake(); err != nil {
			return nil, &TransportError{Op: "TLS handshake", Err: err}
		}
		return tlsConn, nil
	case 'N':
		if cfg.TLSMode == TLSRequire {
			return nil, &AuthError{Detail: "server does not support TLS and TLSRequire was set"}
		}
		return conn, nil
	default:
		return nil, &ProtocolError{Detail: fmt.Sprintf("unexpected SSLRequest response byte %q", resp)}
	}
}

func sendStartupMessage(fr *framer, cfg Config) error {
	w := newWriteBuf().int32(wire.ProtocolVersion30)
	w.cstring("user").cstring(cfg.User)
	w.cstring("database").cstring(cfg.Database)
	w.byte(0)
	fr.queueUntagged(w)
	return fr.flush()
}

// handleAuthMessage processes one Authentication ('R') message body and
// returns the mechanism name used (for metrics), whether authentication
// is now complete (sub-code 0), and any fatal error.
func handleAuthMessage(fr *framer, body *readBuf, cfg Config) (mechanism string, done bool, err error) {
	defer errRecover(&err)
	code := body.int32()
	switch code {
	case wire.AuthOk:
		return "", true, nil

	case wire.AuthKerberosV5, wire.AuthGSS, wire.AuthGSSContinue, wire.AuthSSPI, wire.AuthSCMCredential:
		return "", false, &AuthError{Detail: "Kerberos/GSSAPI/SSPI authentication is not supported"}

	case wire.AuthCleartextPassword:
		w := newWriteBuf().cstring(cfg.Password)
		if err := fr.writeOne(wire.FrontendPasswordMessage, w); err != nil {
			return "", false, err
		}
		if err := expectAuthOk(fr); err != nil {
			return "", false, err
		}
		return "cleartext", true, nil

	case wire.AuthMD5Password:
		salt := body.take(4)
		hashed := "md5" + md5Hex(md5Hex(cfg.Password+cfg.User)+string(salt))
		w := newWriteBuf().cstring(hashed)
		if err := fr.writeOne(wire.FrontendPasswordMessage, w); err != nil {
			return "", false, err
		}
		if err := expectAuthOk(fr); err != nil {
			return "", false, err
		}
		return "md5", true, nil

	case wire.AuthSASL:
		if err := driveSASL(fr, body.rest(), cfg); err != nil {
			return "", false, err
		}
		return "scram-sha-256", true, nil

	default:
		return "", false, &AuthError{Detail: fmt.Sprintf("unsupported authentication sub-code %d", code)}
	}
}

// expectAuthOk reads one more Authentication message and requires it to
// be sub-code 0, completing the cleartext or MD5 password exchange.
func expectAuthOk(fr *framer) (err error) {
	defer errRecover(&err)
	tag, body, err := fr.recv()
	if err != nil {
		return err
	}
	switch tag {
	case wire.BackendErrorResponse:
		return parseErrorOrNotice(&body, "")
	case wire.BackendAuthentication:
		if code := body.int32(); code != wire.AuthOk {
			return &AuthError{Detail: fmt.Sprintf("unexpected authentication response code %d", code)}
		}
		return nil
	default:
		return &ProtocolError{Detail: fmt.Sprintf("unexpected message %q waiting for authentication result", tag)}
	}
}

// driveSASL runs the SCRAM-SHA-256 exchange (AuthenticationSASL through
// AuthenticationSASLFinal), delegating the cryptography to
// internal/scram.
func driveSASL(fr *framer, mechanismList []byte, cfg Config) (err error) {
	defer errRecover(&err)
	mechanisms := strings.Split(strings.TrimRight(string(mechanismList), "\x00"), "\x00")
	if !containsFold(mechanisms, scram.Mechanism) {
		return &AuthError{Detail: fmt.Sprintf("server does not offer %s (offered: %v)", scram.Mechanism, mechanisms)}
	}

	client, err := scram.NewClient(cfg.User, cfg.Password)
	if err != nil {
		return &AuthError{Detail: err.Error()}
	}

	first := client.ClientFirstMessage()
	w := newWriteBuf().cstring(scram.Mechanism).int32(len(first)).bytes([]byte(first))
	if err := fr.writeOne(wire.FrontendPasswordMessage, w); err != nil {
		return err
	}

	tag, body, err := fr.recv()
	if err != nil {
		return err
	}
	if tag != wire.BackendAuthentication {
		return &ProtocolError{Detail: fmt.Sprintf("expected SASLContinue, got %q", tag)}
	}
	if code := body.int32(); code != wire.AuthSASLContinue {
		return &AuthError{Detail: fmt.Sprintf("expected AuthenticationSASLContinue (11), got %d", code)}
	}
	if err := client.SetServerFirstMessage(string(body.rest())); err != nil {
		return &AuthError{Detail: err.Error()}
	}

	final, err := client.ClientFinalMessage()
	if err != nil {
		return &AuthError{Detail: err.Error()}
	}
	w = newWriteBuf().bytes([]byte(final))
	if err := fr.writeOne(wire.FrontendPasswordMessage, w); err != nil {
		return err
	}

	tag, body, err = fr.recv()
	if err != nil {
		return err
	}
	if tag != wire.BackendAuthentication {
		return &ProtocolError{Detail: fmt.Sprintf("expected SASLFinal, got %q", tag)}
	}
	if code := body.int32(); code != wire.AuthSASLFinal {
		return &AuthError{Detail: fmt.Sprintf("expected AuthenticationSASLFinal (12), got %d", code)}
	}
	if err := client.VerifyServerFinalMessage(string(body.rest())); err != nil {
		return &AuthError{Detail: err.Error()}
	}

	return expectAuthOk(fr)
}

// awaitBackendKeyData consumes messages until both BackendKeyData and
// ReadyForQuery have arrived. An interleaved
// ErrorResponse is retained and raised once the terminating
// ReadyForQuery shows up, rather than failing immediately.
func awaitBackendKeyData(fr *framer, log *slog.Logger) (pid, secret int32, err error) {
	defer errRecover(&err)
	var pending *Error
	var gotKeyData bool
	for {
		tag, body, err := fr.recv()
		if err != nil {
			return 0, 0, err
		}
		switch tag {
		case wire.BackendBackendKeyData:
			pid = body.int32()
			secret = body.int32()
			gotKeyData = true
		case wire.BackendErrorResponse:
			pending = parseErrorOrNotice(&body, "")
		case wire.BackendNoticeResponse:
			n := parseErrorOrNotice(&body, "")
			log.Warn("pgwire: notice during startup", "message", n.Message)
		case wire.BackendReadyForQuery:
			if pending != nil {
				return 0, 0, pending
			}
			if !gotKeyData {
				return 0, 0, &ProtocolError{Detail: "ReadyForQuery observed before BackendKeyData"}
			}
			return pid, secret, nil
		default:
			// Unknown tags are skipped by construction: fr.recv already
			// consumed exactly the advertised length.
		}
	}
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
