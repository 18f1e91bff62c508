// Package scram implements the client side of the SCRAM-SHA-256 SASL
// exchange used by PostgreSQL's AuthenticationSASL challenge (RFC 5802
// / RFC 7677). It knows nothing about the wire protocol framing around
// it: callers hand it raw message payloads and get raw message
// payloads back, so the exchange can be driven from a live socket or
// from a table of fixed vectors in a test.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/xdg-go/stringprep"
	"golang.org/x/crypto/pbkdf2"
)

// Mechanism is the only SASL mechanism this client offers or accepts.
const Mechanism = "SCRAM-SHA-256"

// nonceAlphabet and nonceLength define an 18-character client nonce
// drawn from [a-z] using a cryptographic RNG.
const nonceAlphabet = "abcdefghijklmnopqrstuvwxyz"
const nonceLength = 18

// Client drives one SCRAM-SHA-256 exchange. The zero value is not
// usable; construct with NewClient.
type Client struct {
	user     string
	password string

	clientNonce string
	serverNonce string
	salt        []byte
	iterations  int

	clientFirstBare         string
	serverFirstMessage      string
	clientFinalWithoutProof string
	saltedPassword          []byte
	authMessage             string
}

// NewClient prepares a SCRAM-SHA-256 exchange for the given user and
// password. The password is SASLprep-normalised lazily, in
// ClientFinalMessage (step 3); a password SASLprep rejects is used as-is
// there rather than failing.
func NewClient(user, password string) (*Client, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("scram: generating client nonce: %w", err)
	}
	return &Client{user: user, password: password, clientNonce: nonce}, nil
}

// ClientFirstMessage returns the SASLInitialResponse payload:
// "n,,n=<user>,r=<nonce>". PostgreSQL ignores the username embedded
// here (it was already supplied in the startup message) but the field
// is mandatory per RFC 5802.
func (c *Client) ClientFirstMessage() string {
	c.clientFirstBare = "n=" + escapeSASLName(c.user) + ",r=" + c.clientNonce
	return "n,," + c.clientFirstBare
}

// SetServerFirstMessage parses the AuthenticationSASLContinue payload
// ("r=<nonce>,s=<salt>,i=<iterations>") and validates that the server
// echoed back our nonce with its own suffix appended.
func (c *Client) SetServerFirstMessage(payload string) error {
	c.serverFirstMessage = payload
	parts := strings.Split(payload, ",")
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "r=") ||
		!strings.HasPrefix(parts[1], "s=") || !strings.HasPrefix(parts[2], "i=") {
		return fmt.Errorf("scram: malformed server-first-message %q", payload)
	}

	serverNonce := parts[0][2:]
	if len(serverNonce) <= len(c.clientNonce) || !strings.HasPrefix(serverNonce, c.clientNonce) {
		return fmt.Errorf("scram: server nonce does not extend client nonce")
	}
	c.serverNonce = serverNonce

	salt, err := base64.StdEncoding.DecodeString(parts[1][2:])
	if err != nil {
		return fmt.Errorf("scram: decoding salt: %w", err)
	}
	c.salt = salt

	iters, err := strconv.Atoi(parts[2][2:])
	if err != nil || iters <= 0 {
		return fmt.Errorf("scram: invalid iteration count %q", parts[2][2:])
	}
	c.iterations = iters
	return nil
}

// ClientFinalMessage computes SaltedPassword/ClientKey/ClientSignature
// and returns the client-final-message ("c=biws,r=...,p=...") to send as
// the PasswordMessage body.
func (c *Client) ClientFinalMessage() (string, error) {
	normalized, err := stringprep.SASLprep.Prepare(c.password)
	if err != nil {
		// PostgreSQL authenticates successfully even when the password
		// doesn't fit the 4013 profile (e.g. unassigned code points);
		// falling back to the raw password matches server behaviour.
		normalized = c.password
	}

	c.saltedPassword = pbkdf2.Key([]byte(normalized), c.salt, c.iterations, sha256.Size, sha256.New)
	c.clientFinalWithoutProof = "c=biws,r=" + c.serverNonce
	c.authMessage = c.clientFirstBare + "," + c.serverFirstMessage + "," + c.clientFinalWithoutProof

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(c.authMessage))

	proof := make([]byte, len(clientKey))
	for i := range proof {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	return c.clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof), nil
}

// VerifyServerFinalMessage checks the "v=<signature>" AuthenticationSASLFinal
// payload against the expected ServerSignature, rejecting the exchange
// on mismatch rather than treating it as advisory.
func (c *Client) VerifyServerFinalMessage(payload string) error {
	if !strings.HasPrefix(payload, "v=") {
		return fmt.Errorf("scram: malformed server-final-message %q", payload)
	}
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	expected := hmacSHA256(serverKey, []byte(c.authMessage))
	got, err := base64.StdEncoding.DecodeString(payload[2:])
	if err != nil {
		return fmt.Errorf("scram: decoding server signature: %w", err)
	}
	if subtle.ConstantTimeCompare(expected, got) != 1 {
		return fmt.Errorf("scram: server signature mismatch")
	}
	return nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// escapeSASLName escapes ',' and '=' per RFC 5802 §5.1 (saslname).
func escapeSASLName(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

func generateNonce() (string, error) {
	raw := make([]byte, nonceLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, nonceLength)
	for i, b := range raw {
		out[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(out), nil
}
