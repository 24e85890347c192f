package client

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/dburl"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

// MySQLClient adapts a MySQL server over the go-sql-driver. Changes and
// last-insert-id come straight from the wire protocol's OK packet.
type MySQLClient struct {
	db *sql.DB
}

var _ Client = (*MySQLClient)(nil)

// OpenMySQL opens a MySQL connection from either a mysql:// URL or a raw
// driver DSN.
func OpenMySQL(descriptor string) (*MySQLClient, error) {
	dsn := descriptor
	if strings.HasPrefix(descriptor, "mysql://") {
		user, password, addr, dbname, err := dburl.SplitMySQLURL(descriptor)
		if err != nil {
			return nil, err
		}
		cfg := mysql.NewConfig()
		cfg.User = user
		cfg.Passwd = password
		cfg.Net = "tcp"
		cfg.Addr = addr
		cfg.DBName = dbname
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return &MySQLClient{db: db}, nil
}

func (c *MySQLClient) Dialect() compile.Dialect { return compile.MySQL }

func (c *MySQLClient) Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error) {
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

func (c *MySQLClient) Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error) {
	res, err := c.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return sqlq.ExecInfo{}, &QueryError{SQL: q.SQL, Err: err}
	}
	return execInfo(res, q.SQL), nil
}

// Close releases the underlying handle. Only the Resolver calls this.
func (c *MySQLClient) Close() error {
	return c.db.Close()
}
