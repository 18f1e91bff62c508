package pgwire

import (
	"io"
	"testing"

	"github.com/pgwire/pgwire/internal/wire"
)

func preparedStatement(s *Session, sql string, numParams int, cols []ColumnDescriptor) *Statement {
	return &Statement{
		sql:        sql,
		name:       "stmt1",
		numParams:  numParams,
		columns:    cols,
		generation: s.generation,
		paramBuf:   make([][]byte, numParams),
	}
}

func TestExecuteRejectsParamCountMismatch(t *testing.T) {
	s, _ := newTestSession(t)
	st := preparedStatement(s, "select $1", 1, nil)

	_, err := s.Execute(st, nil, 0)
	if err == nil {
		t.Fatal("expected error for parameter count mismatch")
	}
	if _, ok := err.(*InterfaceError); !ok {
		t.Fatalf("expected *InterfaceError, got %T", err)
	}
}

func TestExecuteStreamsRows(t *testing.T) {
	s, server := newTestSession(t)
	cols := []ColumnDescriptor{{Name: "id", OID: oidInt4}, {Name: "name", OID: oidText}}
	st := preparedStatement(s, "select id, name from widgets where id = $1", 1, cols)

	go func() {
		sf := newFramer(server)
		sf.recv() // Bind
		sf.recv() // Execute
		sf.recv() // Sync

		sf.queue(wire.BackendBindComplete, newWriteBuf())

		row1 := newWriteBuf().int16(2)
		row1.lenPrefixed([]byte("1"))
		row1.lenPrefixed([]byte("widget-a"))
		sf.queue(wire.BackendDataRow, row1)

		row2 := newWriteBuf().int16(2)
		row2.lenPrefixed([]byte("2"))
		row2.lenPrefixed(nil)
		sf.queue(wire.BackendDataRow, row2)

		sf.queue(wire.BackendCommandComplete, newWriteBuf().cstring("SELECT 2"))
		sf.queue(wire.BackendReadyForQuery, newWriteBuf().byte('I'))
		sf.flush()
	}()

	rs, err := s.Execute(st, []any{int32(1)}, 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	dest := make([]any, 2)
	if err := rs.Next(dest); err != nil {
		t.Fatalf("Next (row 1): %v", err)
	}
	if dest[0] != int32(1) || dest[1] != "widget-a" {
		t.Errorf("row 1 = %#v, want [1 widget-a]", dest)
	}

	if err := rs.Next(dest); err != nil {
		t.Fatalf("Next (row 2): %v", err)
	}
	if dest[0] != int32(2) || dest[1] != nil {
		t.Errorf("row 2 = %#v, want [2 nil]", dest)
	}

	if err := rs.Next(dest); err != io.EOF {
		t.Fatalf("Next (eof) = %v, want io.EOF", err)
	}
	if rs.CommandTag() != "SELECT 2" {
		t.Errorf("CommandTag() = %q, want \"SELECT 2\"", rs.CommandTag())
	}
	if s.IsOpen() == false {
		t.Error("session should remain open after a clean stream")
	}
}

func TestExecuteSurfacesBindError(t *testing.T) {
	s, server := newTestSession(t)
	st := preparedStatement(s, "select 1/0", 0, nil)

	go func() {
		sf := newFramer(server)
		sf.recv()
		sf.recv()
		sf.recv()

		body := newWriteBuf().
			byte('S').cstring("ERROR").
			byte('C').cstring("22012").
			byte('M').cstring("division by zero").
			byte(0)
		sf.queue(wire.BackendErrorResponse, body)
		sf.queue(wire.BackendReadyForQuery, newWriteBuf().byte('I'))
		sf.flush()
	}()

	_, err := s.Execute(st, nil, 0)
	if err == nil {
		t.Fatal("expected error from division by zero")
	}
	pgErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pgErr.Code != "22012" {
		t.Errorf("Code = %q, want 22012", pgErr.Code)
	}
}

func TestResultStreamCloseDrainsRemainingRows(t *testing.T) {
	s, server := newTestSession(t)
	cols := []ColumnDescriptor{{Name: "id", OID: oidInt4}}
	st := preparedStatement(s, "select id from widgets", 0, cols)

	go func() {
		sf := newFramer(server)
		sf.recv()
		sf.recv()
		sf.recv()

		sf.queue(wire.BackendBindComplete, newWriteBuf())
		for i := 1; i <= 3; i++ {
			row := newWriteBuf().int16(1)
			row.lenPrefixed([]byte{byte('0' + i)})
			sf.queue(wire.BackendDataRow, row)
		}
		sf.queue(wire.BackendCommandComplete, newWriteBuf().cstring("SELECT 3"))
		sf.queue(wire.BackendReadyForQuery, newWriteBuf().byte('I'))
		sf.flush()
	}()

	rs, err := s.Execute(st, nil, 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := rs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !s.IsOpen() {
		t.Error("session should remain open after Close drains the stream")
	}
}

func TestExecuteSimpleDiscardsResults(t *testing.T) {
	s, server := newTestSession(t)

	go func() {
		sf := newFramer(server)
		sf.recv() // Query

		row := newWriteBuf().int16(1)
		row.lenPrefixed([]byte("x"))
		sf.queue(wire.BackendRowDescription, newWriteBuf().int16(0))
		sf.queue(wire.BackendDataRow, row)
		sf.queue(wire.BackendCommandComplete, newWriteBuf().cstring("SELECT 1"))
		sf.queue(wire.BackendReadyForQuery, newWriteBuf().byte('I'))
		sf.flush()
	}()

	if err := s.ExecuteSimple("select 1; select 2"); err != nil {
		t.Fatalf("ExecuteSimple: %v", err)
	}
}
