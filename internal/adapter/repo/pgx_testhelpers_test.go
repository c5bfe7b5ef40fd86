package repo

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (testRowsBase) Conn() *pgx.Conn                               { return nil }
func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription  { return nil }
func (testRowsBase) Values() ([]any, error)                        { return nil, nil }
func (testRowsBase) RawValues() [][]byte                           { return nil }

// scriptedRows walks a fixed list of scan funcs, one per row.
type scriptedRows struct {
	testRowsBase
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (r *scriptedRows) Next() bool {
	if r.idx >= len(r.scans) {
		return false
	}
	r.idx++
	return true
}

func (r *scriptedRows) Scan(dest ...any) error { return r.scans[r.idx-1](dest...) }
func (r *scriptedRows) Err() error             { return r.err }
func (r *scriptedRows) Close()                 {}

// scriptedSQL routes each statement to a per-test handler and fails the
// test on anything unrouted.
type scriptedSQL struct {
	t        *testing.T
	exec     func(query string, args []any) (pgconn.CommandTag, error)
	queryRow func(query string, args []any) pgx.Row
	query    func(query string, args []any) (pgx.Rows, error)
}

func (s *scriptedSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.t.Helper()
	if s.exec == nil {
		s.t.Fatalf("unexpected Exec: %s", query)
	}
	return s.exec(query, args)
}

func (s *scriptedSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.t.Helper()
	if s.queryRow == nil {
		s.t.Fatalf("unexpected QueryRow: %s", query)
	}
	return s.queryRow(query, args)
}

func (s *scriptedSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.t.Helper()
	if s.query == nil {
		s.t.Fatalf("unexpected Query: %s", query)
	}
	return s.query(query, args)
}
