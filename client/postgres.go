package client

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

// PostgresClient adapts a PostgreSQL server over the native pgx API,
// which has a different shape from database/sql: row values arrive as
// value slices, the affected count lives on the command tag, and there is
// no last-insert-id — inserts that need the generated key use RETURNING.
type PostgresClient struct {
	conn *pgx.Conn
}

var _ Client = (*PostgresClient)(nil)

// OpenPostgres connects to the server named by a postgres:// URL.
// Unlike the database/sql backends this dials eagerly; pgx has no
// deferred-open handle.
func OpenPostgres(ctx context.Context, url string) (*PostgresClient, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &PostgresClient{conn: conn}, nil
}

func (c *PostgresClient) Dialect() compile.Dialect { return compile.Postgres }

func (c *PostgresClient) Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error) {
	rows, err := c.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return sqlq.Result{}, &QueryError{SQL: q.SQL, Err: err}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := sqlq.Result{Columns: make([]string, len(fields))}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return sqlq.Result{}, &QueryError{SQL: q.SQL, Err: err}
		}
		row := make([]any, len(vals))
		copy(row, vals)
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return sqlq.Result{}, &QueryError{SQL: q.SQL, Err: err}
	}
	return res, nil
}

func (c *PostgresClient) Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error) {
	tag, err := c.conn.Exec(ctx, q.SQL, q.Args...)
	if err != nil {
		return sqlq.ExecInfo{}, &QueryError{SQL: q.SQL, Err: err}
	}
	// Postgres reports no last-insert-id; HasInsertID stays false and the
	// operations layer compensates with RETURNING.
	return sqlq.ExecInfo{Changes: tag.RowsAffected()}, nil
}

// Close releases the underlying connection. Only the Resolver calls this.
func (c *PostgresClient) Close() error {
	return c.conn.Close(context.Background())
}
