// Package wire holds the closed set of tag bytes and request codes used by
// the PostgreSQL v3 frontend/backend protocol. It carries no connection
// state; auth.go, session.go, statement.go and executor.go in the parent
// package are its callers.
package wire

// Backend (server→client) message tags. A handful of tags are
// deliberately reused across message kinds, exactly as postgres does:
// frontend Describe and backend DataRow both use 'D', and backend
// CommandComplete and frontend Close both use 'C'.
const (
	BackendAuthentication     = 'R'
	BackendBackendKeyData     = 'K'
	BackendBindComplete       = '2'
	BackendCloseComplete      = '3'
	BackendCommandComplete    = 'C'
	BackendCopyInResponse     = 'G'
	BackendCopyOutResponse    = 'H'
	BackendCopyBothResponse   = 'W'
	BackendDataRow            = 'D'
	BackendEmptyQueryResponse = 'I'
	BackendErrorResponse      = 'E'
	BackendNegotiateProtocol  = 'v'
	BackendNoData             = 'n'
	BackendNoticeResponse     = 'N'
	BackendNotificationResp   = 'A'
	BackendParameterDescr     = 't'
	BackendParameterStatus    = 'S'
	BackendParseComplete      = '1'
	BackendPortalSuspended    = 's'
	BackendReadyForQuery      = 'Z'
	BackendRowDescription     = 'T'
)

// Frontend (client→server) request codes. Several also share a byte:
// PasswordMessage and SASLInitialResponse/SASLResponse are all 'p'.
const (
	FrontendBind            = 'B'
	FrontendClose           = 'C'
	FrontendCopyData        = 'd'
	FrontendCopyDone        = 'c'
	FrontendCopyFail        = 'f'
	FrontendDescribe        = 'D'
	FrontendExecute         = 'E'
	FrontendFlush           = 'H'
	FrontendParse           = 'P'
	FrontendPasswordMessage = 'p'
	FrontendQuery           = 'Q'
	FrontendSync            = 'S'
	FrontendTerminate       = 'X'
)

// Describe/Close target kinds.
const (
	TargetPortal    = 'P'
	TargetStatement = 'S'
)

// ReadyForQuery transaction status bytes.
const (
	StatusIdle          = 'I'
	StatusInTransaction = 'T'
	StatusInFailedTxn   = 'E'
)

// AuthenticationRequest sub-codes, read as the first int32 of an 'R'
// message body.
const (
	AuthOk                = 0
	AuthKerberosV5        = 2
	AuthCleartextPassword = 3
	AuthMD5Password       = 5
	AuthSCMCredential     = 6
	AuthGSS               = 7
	AuthGSSContinue       = 8
	AuthSSPI              = 9
	AuthSASL              = 10
	AuthSASLContinue      = 11
	AuthSASLFinal         = 12
)

// ProtocolVersion30 is the only startup protocol version this client speaks.
const ProtocolVersion30 = (3 << 16) | 0

// SSLRequestCode and CancelRequestCode are sent in lieu of a tagged
// message as the very first bytes of a new connection.
const (
	SSLRequestCode    = (1234 << 16) | 5679
	CancelRequestCode = (1234 << 16) | 5678
)
