package client

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

// SQLiteClient adapts the embedded file-based engine. It is the one driver
// variant that also carries the Transaction capability.
type SQLiteClient struct {
	db *sql.DB
}

var (
	_ Transactor = (*SQLiteClient)(nil)
)

// OpenSQLite opens a SQLite database at the given path. The path may be
// the in-memory marker. The file itself is not touched until the first
// statement runs; database/sql defers the actual open.
func OpenSQLite(path string) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single logical connection: the file-lock level serializes writers
	// anyway, and a shared in-memory database needs one connection to
	// stay alive.
	db.SetMaxOpenConns(1)
	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) Dialect() compile.Dialect { return compile.SQLite }

func (c *SQLiteClient) Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error) {
	rows, err := c.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return sqlq.Result{}, &QueryError{SQL: q.SQL, Err: err}
	}
	res, err := collectRows(rows)
	if err != nil {
		return sqlq.Result{}, &QueryError{SQL: q.SQL, Err: err}
	}
	return res, nil
}

func (c *SQLiteClient) Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error) {
	res, err := c.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return sqlq.ExecInfo{}, &QueryError{SQL: q.SQL, Err: err}
	}
	return execInfo(res, q.SQL), nil
}

// Transaction runs fn inside BEGIN/COMMIT on the same connection. Any
// error from fn rolls the transaction back and surfaces as a
// TransactionError; a rollback failure rides along as a nested cause.
// The client handed to fn rejects nested Transaction calls.
func (c *SQLiteClient) Transaction(ctx context.Context, fn func(tx Client) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &TransactionError{Err: err}
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &TransactionError{Err: err, RollbackErr: rbErr}
		}
		return &TransactionError{Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &TransactionError{Err: err}
	}
	return nil
}

// Close releases the underlying handle. Only the Resolver calls this.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// ErrNestedTransaction rejects a Transaction call made from inside a
// running transaction body; SQLite has no native nested transactions and
// silently flattening them would change commit semantics.
var ErrNestedTransaction = errors.New("nested transactions are not supported")

// sqliteTx is the client bound to one open transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Dialect() compile.Dialect { return compile.SQLite }

func (t *sqliteTx) Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error) {
	rows, err := t.tx.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return sqlq.Result{}, &QueryError{SQL: q.SQL, Err: err}
	}
	res, err := collectRows(rows)
	if err != nil {
		return sqlq.Result{}, &QueryError{SQL: q.SQL, Err: err}
	}
	return res, nil
}

func (t *sqliteTx) Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error) {
	res, err := t.tx.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return sqlq.ExecInfo{}, &QueryError{SQL: q.SQL, Err: err}
	}
	return execInfo(res, q.SQL), nil
}

func (t *sqliteTx) Transaction(ctx context.Context, fn func(tx Client) error) error {
	return &TransactionError{Err: ErrNestedTransaction}
}
