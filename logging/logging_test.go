package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/sqlbridge/sqlbridge/client"
	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

type fakeClient struct {
	err error
}

func (f *fakeClient) Dialect() compile.Dialect { return compile.SQLite }

func (f *fakeClient) Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error) {
	if f.err != nil {
		return sqlq.Result{}, f.err
	}
	return sqlq.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}, nil
}

func (f *fakeClient) Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error) {
	if f.err != nil {
		return sqlq.ExecInfo{}, f.err
	}
	return sqlq.ExecInfo{Changes: 3}, nil
}

func capture() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	entry := map[string]any{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, buf.String())
	}
	return entry
}

func TestWrapClientLogsQuery(t *testing.T) {
	logger, buf := capture()
	c := WrapClient(logger, &fakeClient{})

	res, err := c.Query(context.Background(), sqlq.New("SELECT * FROM users WHERE id = ?", 1))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Errorf("rows = %d, want 1", len(res.Rows))
	}

	entry := lastEntry(t, buf)
	if entry["msg"] != "query_completed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["sql"] != "SELECT * FROM users WHERE id = ?" {
		t.Errorf("sql = %v", entry["sql"])
	}
	if entry["args"] != float64(1) {
		t.Errorf("args = %v, want count 1", entry["args"])
	}
	if entry["stmt_id"] == "" || entry["stmt_id"] == nil {
		t.Error("missing stmt_id")
	}
	if _, ok := entry["duration_ms"].(float64); !ok {
		t.Errorf("duration_ms = %v", entry["duration_ms"])
	}
	// Bound values may carry user data and must never appear.
	if bytes.Contains(buf.Bytes(), []byte(`"1"`)) {
		t.Errorf("argument value leaked into log: %s", buf.String())
	}
}

func TestWrapClientLogsExecuteFailure(t *testing.T) {
	logger, buf := capture()
	boom := errors.New("disk full")
	c := WrapClient(logger, &fakeClient{err: boom})

	_, err := c.Execute(context.Background(), sqlq.New("DELETE FROM users"))
	if !errors.Is(err, boom) {
		t.Fatalf("wrapped client changed the error: %v", err)
	}

	entry := lastEntry(t, buf)
	if entry["msg"] != "execute_failed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["error"] != "disk full" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestWrapClientForwardsDialect(t *testing.T) {
	logger, _ := capture()
	c := WrapClient(logger, &fakeClient{})
	if c.Dialect() != compile.SQLite {
		t.Error("dialect not forwarded")
	}
}

var _ client.Client = (*fakeClient)(nil)
