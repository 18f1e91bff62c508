package pgwire

import (
	"fmt"
	"io"
	"time"

	"github.com/pgwire/pgwire/internal/wire"
)

// Execute runs the extended query protocol for stmt with params: a
// Bind/Execute/Sync batch written in one flush, then a row stream the
// caller drains with ResultStream.Next. rowLimit is the Execute
// message's max-rows value; 0 means unlimited.
//
// Execute holds the Session's guard for the entire lifetime of the
// returned ResultStream: only one outstanding request is ever in
// flight, so no other operation may run until the stream is drained or
// closed.
func (s *Session) Execute(stmt *Statement, params []any, rowLimit int32) (rs *ResultStream, err error) {
	s.guard.Lock()
	unlock := true
	defer func() {
		if unlock {
			s.guard.Unlock()
		}
	}()

	if err := s.check(); err != nil {
		return nil, err
	}
	if err := s.ensureCurrent(stmt); err != nil {
		return nil, err
	}

	// Fail on a parameter-count mismatch before writing anything to the
	// socket.
	if len(params) != stmt.numParams {
		return nil, &InterfaceError{Detail: fmt.Sprintf("statement expects %d parameters, got %d", stmt.numParams, len(params))}
	}

	if err := s.writeBindExecuteSync(stmt, params, rowLimit); err != nil {
		s.handleTransportFailure()
		return nil, err
	}
	if s.cfg.Debug {
		s.logger().Debug("pgwire: bind", "statement", stmt.name, "params", stmt.paramBuf)
	}

	start := time.Now()
	if err := s.awaitBindComplete(stmt.sql); err != nil {
		s.cfg.metrics().query("error", time.Since(start))
		return nil, err
	}

	unlock = false
	return &ResultStream{session: s, stmt: stmt, start: start}, nil
}

// ExecuteSimple runs sql through the simple query protocol, used when
// the caller's SQL contains more than one ;-terminated statement. Row
// and status data is not collected; callers needing results should
// split into individual statements and use Prepare/Execute instead.
func (s *Session) ExecuteSimple(sql string) (err error) {
	defer errRecover(&err)

	s.guard.Lock()
	defer s.guard.Unlock()

	if err := s.check(); err != nil {
		return err
	}

	s.framer.queue(wire.FrontendQuery, newWriteBuf().cstring(sql))
	if err := s.framer.flush(); err != nil {
		s.handleTransportFailure()
		return err
	}

	var pending *Error
	for {
		tag, body, rerr := s.framer.recv()
		if rerr != nil {
			s.handleTransportFailure()
			return rerr
		}
		switch tag {
		case wire.BackendDataRow, wire.BackendCommandComplete, wire.BackendRowDescription,
			wire.BackendEmptyQueryResponse, wire.BackendParameterStatus:
			// discarded
		case wire.BackendErrorResponse:
			pending = parseErrorOrNotice(&body, sql)
		case wire.BackendNoticeResponse:
			n := parseErrorOrNotice(&body, sql)
			s.logger().Warn("pgwire: notice", "message", n.Message)
		case wire.BackendReadyForQuery:
			return pending.asError()
		default:
			return s.protocolViolation(fmt.Sprintf("unexpected message %q during simple query", tag))
		}
	}
}

func (s *Session) writeBindExecuteSync(stmt *Statement, params []any, rowLimit int32) error {
	bind := newWriteBuf().cstring("").cstring(stmt.name).int16(0).int16(len(params))
	for i, p := range params {
		text, ok, err := encodeParam(p)
		if err != nil {
			return err
		}
		if !ok {
			stmt.paramBuf[i] = nil
			bind.lenPrefixed(nil)
			continue
		}
		stmt.paramBuf[i] = text
		bind.lenPrefixed(text)
	}
	bind.int16(0)
	s.framer.queue(wire.FrontendBind, bind)

	exec := newWriteBuf().cstring("").int32(int(rowLimit))
	s.framer.queue(wire.FrontendExecute, exec)

	s.framer.queue(wire.FrontendSync, newWriteBuf())
	return s.framer.flush()
}

// awaitBindComplete consumes messages up through BindComplete ('2'). An
// interleaved ErrorResponse (e.g. a Bind-time constraint failure) is
// retained and raised once the terminating ReadyForQuery arrives, the
// same pattern the authentication loop uses for its own errors.
func (s *Session) awaitBindComplete(query string) (err error) {
	defer errRecover(&err)
	for {
		tag, body, rerr := s.framer.recv()
		if rerr != nil {
			s.handleTransportFailure()
			return rerr
		}
		switch tag {
		case wire.BackendBindComplete:
			return nil
		case wire.BackendErrorResponse:
			e := parseErrorOrNotice(&body, query)
			return s.drainAfterError(e)
		case wire.BackendNoticeResponse:
			n := parseErrorOrNotice(&body, query)
			s.logger().Warn("pgwire: notice", "message", n.Message)
		default:
			return s.protocolViolation(fmt.Sprintf("unexpected message %q waiting for BindComplete", tag))
		}
	}
}

// drainAfterError consumes messages through the terminating ReadyForQuery
// after a fatal ErrorResponse, so the Session is quiescent before the
// error is returned to the caller.
func (s *Session) drainAfterError(e *Error) error {
	for {
		tag, _, err := s.framer.recv()
		if err != nil {
			s.handleTransportFailure()
			return err
		}
		if tag == wire.BackendReadyForQuery {
			return e
		}
	}
}

// ResultStream is the Executor's row stream. Created by
// Execute and holds the owning Session's guard until Close or the final
// ReadyForQuery is observed.
type ResultStream struct {
	session *Session
	stmt    *Statement
	start   time.Time

	done     bool
	unlocked bool
	pending  *Error
	tag      string
}

// Columns returns the statement's result-column descriptors.
func (rs *ResultStream) Columns() []ColumnDescriptor { return rs.stmt.columns }

// CommandTag returns the most recent CommandComplete tag (e.g.
// "INSERT 0 1"), valid once Next has returned io.EOF.
func (rs *ResultStream) CommandTag() string { return rs.tag }

// Next decodes the next row into dest, one entry per column in Columns()
// order. It returns io.EOF once ReadyForQuery is observed, and releases
// the Session's guard at that point.
func (rs *ResultStream) Next(dest []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *ProtocolError:
				err = v
			case *TransportError:
				err = v
			case *AuthError:
				err = v
			case *InterfaceError:
				err = v
			case *Error:
				err = v
			default:
				panic(r)
			}
		}
		if err != nil {
			rs.finish()
		}
	}()

	if rs.done {
		return io.EOF
	}
	s := rs.session
	for {
		tag, body, rerr := s.framer.recv()
		if rerr != nil {
			s.handleTransportFailure()
			rs.finish()
			return rerr
		}
		switch tag {
		case wire.BackendDataRow:
			n := body.int16()
			cols := rs.stmt.columns
			for i := 0; i < n; i++ {
				l := body.int32()
				var v any
				if l == -1 {
					v = nil
				} else {
					raw := body.take(int(l))
					oidVal := uint32(0)
					if i < len(cols) {
						oidVal = cols[i].OID
					}
					v = decodeField(oidVal, raw)
				}
				if i < len(dest) {
					dest[i] = v
				}
			}
			s.cfg.metrics().rows(1)
			return nil
		case wire.BackendCommandComplete:
			rs.tag = body.cstring()
			continue
		case wire.BackendNoticeResponse:
			n := parseErrorOrNotice(&body, rs.stmt.sql)
			s.logger().Warn("pgwire: notice", "message", n.Message)
			continue
		case wire.BackendErrorResponse:
			rs.pending = parseErrorOrNotice(&body, rs.stmt.sql)
			continue
		case wire.BackendReadyForQuery:
			rs.finish()
			if rs.pending != nil {
				s.cfg.metrics().query("error", time.Since(rs.start))
				return rs.pending
			}
			s.cfg.metrics().query("ok", time.Since(rs.start))
			return io.EOF
		default:
			rs.finish()
			return s.protocolViolation(fmt.Sprintf("unexpected message %q during row stream", tag))
		}
	}
}

// Close drains any remaining rows and releases the Session's guard. Safe
// to call after Next has already returned io.EOF or an error.
func (rs *ResultStream) Close() error {
	if rs.done {
		return nil
	}
	var dest [1]any
	for {
		err := rs.Next(dest[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (rs *ResultStream) finish() {
	rs.done = true
	if !rs.unlocked {
		rs.unlocked = true
		rs.session.guard.Unlock()
	}
}
