package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"

	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

// Binding is the host-provided handle for the edge-hosted managed SQL
// service. The service speaks the SQLite dialect over an HTTP API.
type Binding struct {
	// Endpoint is the base URL of the service's HTTP API.
	Endpoint string `envconfig:"ENDPOINT" required:"true"`

	// Token authorizes requests. JWT-shaped tokens are checked for expiry
	// before each round trip; opaque tokens are sent as-is.
	Token string `envconfig:"TOKEN"`

	// HTTPClient overrides the transport; nil uses http.DefaultClient.
	HTTPClient *http.Client `envconfig:"-"`
}

// BindingFromEnv loads a Binding from SQLBRIDGE_REMOTE_* environment
// variables.
func BindingFromEnv() (*Binding, error) {
	var b Binding
	if err := envconfig.Process("sqlbridge_remote", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// RemoteBatchLimit is the service's per-batch statement-count ceiling.
// The operations layer chunks multi-row statements to stay under it.
const RemoteBatchLimit = 50

// RemoteClient adapts the remote-binding backend. The service returns
// object-shaped rows, which are re-projected into the column-list +
// positional-row shape preserving JSON key encounter order.
//
// Known gap, intentionally left: every Query/Execute call is one round
// trip even though the service supports batching multiple statements per
// request.
type RemoteClient struct {
	binding *Binding
	http    *http.Client
}

var (
	_ Client       = (*RemoteClient)(nil)
	_ BatchLimiter = (*RemoteClient)(nil)
)

// NewRemote builds a client for a remote binding.
func NewRemote(b *Binding) *RemoteClient {
	hc := b.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &RemoteClient{binding: b, http: hc}
}

func (c *RemoteClient) Dialect() compile.Dialect { return compile.SQLite }

func (c *RemoteClient) BatchLimit() int { return RemoteBatchLimit }

func (c *RemoteClient) Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error) {
	envelope, err := c.roundTrip(ctx, q)
	if err != nil {
		return sqlq.Result{}, err
	}
	res, err := decodeObjectRows(envelope.Results)
	if err != nil {
		return sqlq.Result{}, &QueryError{SQL: q.SQL, Err: err}
	}
	return res, nil
}

func (c *RemoteClient) Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error) {
	envelope, err := c.roundTrip(ctx, q)
	if err != nil {
		return sqlq.ExecInfo{}, err
	}
	info := sqlq.ExecInfo{Changes: envelope.Meta.Changes}
	if id, ok := parseInsertID(envelope.Meta.LastRowID); ok {
		info.LastInsertID = id
		info.HasInsertID = true
	}
	return info, nil
}

type remoteRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

type remoteMeta struct {
	Changes int64 `json:"changes"`
	// LastRowID arrives as a JSON number or, from some deployments, a
	// decimal string; parseInsertID normalizes both to int64.
	LastRowID any `json:"last_row_id"`
}

type remoteResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Results json.RawMessage `json:"results"`
	Meta    remoteMeta      `json:"meta"`
}

func (c *RemoteClient) roundTrip(ctx context.Context, q sqlq.Query) (*remoteResponse, error) {
	if err := checkToken(c.binding.Token); err != nil {
		return nil, &QueryError{SQL: q.SQL, Err: err}
	}

	params := q.Args
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(remoteRequest{SQL: q.SQL, Params: params})
	if err != nil {
		return nil, &QueryError{SQL: q.SQL, Err: err}
	}

	url := strings.TrimSuffix(c.binding.Endpoint, "/") + "/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &QueryError{SQL: q.SQL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.binding.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.binding.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &QueryError{SQL: q.SQL, Err: err}
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var envelope remoteResponse
	if err := dec.Decode(&envelope); err != nil {
		return nil, &QueryError{SQL: q.SQL, Err: fmt.Errorf("malformed remote response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK || !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, &QueryError{SQL: q.SQL, Err: errors.New(msg)}
	}
	return &envelope, nil
}

// checkToken rejects an expired JWT bearer token before spending a round
// trip. Opaque (non-JWT) tokens and tokens without an exp claim pass
// through untouched; signature verification is the service's job.
func checkToken(token string) error {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return fmt.Errorf("remote token expired at %s", exp.Time.Format(time.RFC3339))
	}
	return nil
}

// decodeObjectRows re-projects the service's object-shaped rows into the
// positional result shape. Column order is the key encounter order of the
// response, which a streaming decoder preserves where a map would not;
// decoding into map[string]any would silently reorder columns away from
// the SELECT list.
func decodeObjectRows(raw json.RawMessage) (sqlq.Result, error) {
	res := sqlq.Result{}
	// The service sends null instead of [] for some no-row responses.
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return res, nil
	}

	index := map[string]int{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return res, err
	}
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return res, err
		}
		row := make([]any, len(res.Columns))
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return res, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return res, fmt.Errorf("malformed remote response: expected object key, got %v", keyTok)
			}

			i, seen := index[key]
			if !seen {
				i = len(res.Columns)
				index[key] = i
				res.Columns = append(res.Columns, key)
				row = append(row, nil)
			}

			var v any
			if err := dec.Decode(&v); err != nil {
				return res, err
			}
			row[i] = normalizeJSONValue(v)
		}
		if _, err := dec.Token(); err != nil { // closing }
			return res, err
		}
		res.Rows = append(res.Rows, row)
	}
	if _, err := dec.Token(); err != nil { // closing ]
		return res, err
	}

	// Rows decoded before a late-appearing column are shorter than the
	// final column list; pad them so every row stays fixed-length.
	for i, row := range res.Rows {
		for len(row) < len(res.Columns) {
			row = append(row, nil)
		}
		res.Rows[i] = row
	}
	return res, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("malformed remote response: expected %q, got %v", want, tok)
	}
	return nil
}

// normalizeJSONValue collapses json.Number into int64 where the value is
// integral, float64 otherwise, so remote results carry the same scalar
// types as the embedded backends.
func normalizeJSONValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// parseInsertID normalizes the service's last-row-id field, which may be
// a number or a decimal string, to int64.
func parseInsertID(v any) (int64, bool) {
	switch id := v.(type) {
	case nil:
		return 0, false
	case json.Number:
		n, err := id.Int64()
		return n, err == nil
	case string:
		if id == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil
	case float64:
		return int64(id), true
	case int64:
		return id, true
	}
	return 0, false
}
