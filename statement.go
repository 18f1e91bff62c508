package pgwire

import (
	"fmt"

	"github.com/pgwire/pgwire/internal/wire"
)

// ColumnDescriptor is one entry of a Statement's result-column list:
// name plus the type OID used to pick a decoder.
type ColumnDescriptor struct {
	Name string
	OID  uint32
}

// Statement is a prepared statement: immutable SQL text and parameter
// count/columns, paired with a server-assigned name that is re-issued
// whenever the owning Session reconnects. paramBuf holds
// the text representation encoded for each parameter on the most recent
// Execute call, which Debug
// logging reads without needing to re-encode.
type Statement struct {
	sql        string
	name       string
	numParams  int
	columns    []ColumnDescriptor
	generation uint64

	paramBuf [][]byte
}

// SQL returns the statement's immutable source text.
func (st *Statement) SQL() string { return st.sql }

// NumParams returns the number of bind parameters this statement expects.
func (st *Statement) NumParams() int { return st.numParams }

// Columns returns the statement's result-column descriptors, in order.
// Empty for statements with no result set (e.g. INSERT without RETURNING).
func (st *Statement) Columns() []ColumnDescriptor { return st.columns }

// Prepare returns a cached Statement for sql, or issues Parse/Describe
// and caches the result. Two calls with equal sql return the identical
// *Statement, provided no reconnect intervened.
func (s *Session) Prepare(sql string) (*Statement, error) {
	s.guard.Lock()
	defer s.guard.Unlock()

	if err := s.check(); err != nil {
		return nil, err
	}

	if st, ok := s.statements[sql]; ok && st.generation == s.generation {
		return st, nil
	}

	st, ok := s.statements[sql]
	if !ok {
		st = &Statement{sql: sql}
	}
	if err := s.parseDescribe(st); err != nil {
		return nil, err
	}
	s.statements[sql] = st
	s.cfg.metrics().cacheSize(len(s.statements))
	return st, nil
}

// ensureCurrent re-parses st in place if it was prepared under a
// previous connection generation (i.e. a reconnect happened since). This
// keeps a *Statement usable even when a caller holds one obtained before
// the reconnect, instead of calling Prepare again.
func (s *Session) ensureCurrent(st *Statement) error {
	if st.generation == s.generation {
		return nil
	}
	if err := s.parseDescribe(st); err != nil {
		return err
	}
	s.statements[st.sql] = st
	s.cfg.metrics().cacheSize(len(s.statements))
	return nil
}

// parseDescribe issues Parse+Sync, then Describe+Sync, filling in st's
// name, parameter count and column descriptors.
// st.sql must already be set; everything else is (re)computed.
func (s *Session) parseDescribe(st *Statement) error {
	name := s.genStatementName()

	parse := newWriteBuf().cstring(name).cstring(st.sql).int16(0)
	s.framer.queue(wire.FrontendParse, parse)
	s.framer.queue(wire.FrontendSync, newWriteBuf())
	if err := s.framer.flush(); err != nil {
		s.handleTransportFailure()
		return err
	}

	if err := s.expectParseComplete(st.sql); err != nil {
		return err
	}

	describe := newWriteBuf().byte(wire.TargetStatement).cstring(name)
	s.framer.queue(wire.FrontendDescribe, describe)
	s.framer.queue(wire.FrontendSync, newWriteBuf())
	if err := s.framer.flush(); err != nil {
		s.handleTransportFailure()
		return err
	}

	numParams, columns, err := s.readDescribeResult(st.sql)
	if err != nil {
		return err
	}

	st.name = name
	st.numParams = numParams
	st.columns = columns
	st.generation = s.generation
	st.paramBuf = make([][]byte, numParams)
	return nil
}

// expectParseComplete waits for ParseComplete ('1') then ReadyForQuery
// ('Z'), surfacing any intervening ErrorResponse as a *Error.
func (s *Session) expectParseComplete(query string) (err error) {
	defer errRecover(&err)
	var pending *Error
	for {
		tag, body, err := s.framer.recv()
		if err != nil {
			s.handleTransportFailure()
			return err
		}
		switch tag {
		case wire.BackendParseComplete:
			// nothing to record
		case wire.BackendErrorResponse:
			pending = parseErrorOrNotice(&body, query)
		case wire.BackendNoticeResponse:
			n := parseErrorOrNotice(&body, query)
			s.logger().Warn("pgwire: notice", "message", n.Message)
		case wire.BackendReadyForQuery:
			return pending.asError()
		default:
			return s.protocolViolation(fmt.Sprintf("unexpected message %q waiting for ParseComplete", tag))
		}
	}
}

// readDescribeResult consumes ParameterDescription ('t') and either
// NoData ('n') or RowDescription ('T'), then waits for ReadyForQuery.
func (s *Session) readDescribeResult(query string) (numParams int, columns []ColumnDescriptor, err error) {
	defer errRecover(&err)
	var pending *Error
	for {
		tag, body, rerr := s.framer.recv()
		if rerr != nil {
			s.handleTransportFailure()
			return 0, nil, rerr
		}
		switch tag {
		case wire.BackendParameterDescr:
			numParams = body.int16()
			// Remaining body (one OID per parameter) is not retained:
			// only the count is needed, since bind parameters are always
			// sent in text format.
		case wire.BackendNoData:
			columns = nil
		case wire.BackendRowDescription:
			n := body.int16()
			columns = make([]ColumnDescriptor, n)
			for i := range columns {
				name := body.cstring()
				body.skip(6) // table OID, column number
				oid := body.uint32()
				body.skip(6) // type length, type modifier
				body.skip(2) // format code
				columns[i] = ColumnDescriptor{Name: name, OID: oid}
			}
		case wire.BackendErrorResponse:
			pending = parseErrorOrNotice(&body, query)
		case wire.BackendNoticeResponse:
			n := parseErrorOrNotice(&body, query)
			s.logger().Warn("pgwire: notice", "message", n.Message)
		case wire.BackendReadyForQuery:
			if pending != nil {
				return 0, nil, pending
			}
			return numParams, columns, nil
		default:
			return 0, nil, s.protocolViolation(fmt.Sprintf("unexpected message %q waiting for Describe result", tag))
		}
	}
}

func (s *Session) protocolViolation(detail string) error {
	s.cfg.metrics().protocolError("violation")
	s.handleTransportFailure()
	return &ProtocolError{Detail: detail}
}

// asError returns e as an error, or nil if e is nil. Helper to avoid a
// typed-nil-in-interface footgun when returning *Error as error.
func (e *Error) asError() error {
	if e == nil {
		return nil
	}
	return e
}
