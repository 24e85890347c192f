// Package logging provides the project's slog loggers and a Client
// decorator that logs every statement with its duration.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sqlbridge/sqlbridge/client"
	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

// PrettyJSONHandler is a custom handler that pretty prints JSON in development
type PrettyJSONHandler struct {
	*slog.JSONHandler
	writer io.Writer
}

func (h *PrettyJSONHandler) Handle(ctx context.Context, r slog.Record) error {
	// Convert the record to a map
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	attrs["time"] = r.Time.Format(time.RFC3339)
	attrs["level"] = r.Level.String()
	attrs["msg"] = r.Message

	prettyJSON, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return err
	}

	_, err = h.writer.Write(append(prettyJSON, '\n'))
	return err
}

func newPrettyJSONHandler() *PrettyJSONHandler {
	return &PrettyJSONHandler{
		JSONHandler: slog.NewJSONHandler(os.Stdout, nil),
		writer:      os.Stdout,
	}
}

var ProdLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

var DevLogger = slog.New(newPrettyJSONHandler())

// WrapClient decorates a backend client so every statement is logged with
// a unique id, its argument count, duration, and outcome. SQL text is
// logged as-is; bound argument values are not, since they may carry
// user data.
func WrapClient(logger *slog.Logger, inner client.Client) client.Client {
	return &loggedClient{inner: inner, log: logger}
}

type loggedClient struct {
	inner client.Client
	log   *slog.Logger
}

func (c *loggedClient) Dialect() compile.Dialect { return c.inner.Dialect() }

func (c *loggedClient) Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error) {
	stmtID := uuid.NewString()
	start := time.Now()
	res, err := c.inner.Query(ctx, q)
	c.logStatement(ctx, "query", stmtID, q, start, err, "rows", len(res.Rows))
	return res, err
}

func (c *loggedClient) Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error) {
	stmtID := uuid.NewString()
	start := time.Now()
	info, err := c.inner.Execute(ctx, q)
	c.logStatement(ctx, "execute", stmtID, q, start, err, "changes", info.Changes)
	return info, err
}

func (c *loggedClient) logStatement(ctx context.Context, kind, stmtID string, q sqlq.Query, start time.Time, err error, extra ...any) {
	attrs := []any{
		"stmt_id", stmtID,
		"sql", q.SQL,
		"args", len(q.Args),
		"duration_ms", float64(time.Since(start).Nanoseconds()) / 1e6,
	}
	attrs = append(attrs, extra...)
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		c.log.ErrorContext(ctx, kind+"_failed", attrs...)
		return
	}
	c.log.InfoContext(ctx, kind+"_completed", attrs...)
}
