package client

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlbridge/sqlbridge/sqlq"
)

func newTestSQLite(t *testing.T) *SQLiteClient {
	t.Helper()
	c, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	_, err = c.Execute(context.Background(), sqlq.New(
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)"))
	if err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	return c
}

func countUsers(t *testing.T, c Client) int64 {
	t.Helper()
	res, err := c.Query(context.Background(), sqlq.New("SELECT COUNT(*) FROM users"))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return res.Rows[0][0].(int64)
}

func TestSQLiteQueryShape(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	for _, u := range []struct {
		name string
		age  int
	}{{"ana", 30}, {"bo", 25}} {
		if _, err := c.Execute(ctx, sqlq.New("INSERT INTO users (name, age) VALUES (?, ?)", u.name, u.age)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	res, err := c.Query(ctx, sqlq.New("SELECT name, age FROM users ORDER BY age"))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "name" || res.Columns[1] != "age" {
		t.Errorf("columns = %v, want [name age]", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
	if res.Rows[0][0] != "bo" || res.Rows[0][1] != int64(25) {
		t.Errorf("first row = %v", res.Rows[0])
	}
}

func TestSQLiteExecInfo(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	info, err := c.Execute(ctx, sqlq.New("INSERT INTO users (name, age) VALUES (?, ?)", "ana", 30))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if info.Changes != 1 {
		t.Errorf("Changes = %d, want 1", info.Changes)
	}
	if !info.HasInsertID || info.LastInsertID != 1 {
		t.Errorf("insert id = %d (has=%v), want 1", info.LastInsertID, info.HasInsertID)
	}

	info, err = c.Execute(ctx, sqlq.New("UPDATE users SET age = ? WHERE name = ?", 31, "ana"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if info.Changes != 1 {
		t.Errorf("update Changes = %d, want 1", info.Changes)
	}
}

func TestSQLiteInsertIDOnlyAfterInsert(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	info, err := c.Execute(ctx, sqlq.New("INSERT INTO users (name, age) VALUES (?, ?)", "ana", 30))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if !info.HasInsertID {
		t.Fatal("insert reported no id")
	}

	// The engine's last_insert_rowid() is sticky on the pinned connection;
	// later updates and deletes must not carry the previous insert's id.
	info, err = c.Execute(ctx, sqlq.New("UPDATE users SET age = ? WHERE name = ?", 31, "ana"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if info.HasInsertID {
		t.Errorf("update reported HasInsertID with stale id %d", info.LastInsertID)
	}

	info, err = c.Execute(ctx, sqlq.New("DELETE FROM users WHERE name = ?", "ana"))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if info.HasInsertID {
		t.Errorf("delete reported HasInsertID with stale id %d", info.LastInsertID)
	}
}

func TestIsInsert(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"INSERT INTO t (a) VALUES (?)", true},
		{"  insert into t (a) values (?)", true},
		{"UPDATE t SET a = ?", false},
		{"DELETE FROM t", false},
		{"SELECT * FROM t", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isInsert(tt.stmt); got != tt.want {
			t.Errorf("isInsert(%q) = %v, want %v", tt.stmt, got, tt.want)
		}
	}
}

func TestSQLiteQueryErrorPreservesCause(t *testing.T) {
	c := newTestSQLite(t)

	_, err := c.Query(context.Background(), sqlq.New("SELECT * FROM no_such_table"))
	var qErr *QueryError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if qErr.Unwrap() == nil {
		t.Error("native cause was dropped")
	}
	if qErr.SQL != "SELECT * FROM no_such_table" {
		t.Errorf("SQL = %q", qErr.SQL)
	}
}

func TestTransactionCommit(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	err := c.Transaction(ctx, func(tx Client) error {
		if _, err := tx.Execute(ctx, sqlq.New("INSERT INTO users (name, age) VALUES (?, ?)", "ana", 30)); err != nil {
			return err
		}
		_, err := tx.Execute(ctx, sqlq.New("INSERT INTO users (name, age) VALUES (?, ?)", "bo", 25))
		return err
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if n := countUsers(t, c); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestTransactionRollback(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := c.Transaction(ctx, func(tx Client) error {
		if _, err := tx.Execute(ctx, sqlq.New("INSERT INTO users (name, age) VALUES (?, ?)", "ana", 30)); err != nil {
			return err
		}
		return boom
	})

	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("original cause was not preserved")
	}
	if n := countUsers(t, c); n != 0 {
		t.Errorf("count = %d after rollback, want 0", n)
	}
}

func TestNestedTransactionRejected(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	err := c.Transaction(ctx, func(tx Client) error {
		inner, ok := tx.(Transactor)
		if !ok {
			return errors.New("tx client lost the Transaction method")
		}
		return inner.Transaction(ctx, func(Client) error { return nil })
	})
	if !errors.Is(err, ErrNestedTransaction) {
		t.Fatalf("expected ErrNestedTransaction, got %v", err)
	}
}
