// Package crud composes the compiler's fragments into full CRUD
// statements and drives them through the resolved client. Each verb
// resolves the client once, builds its SQL, and zips the positional
// result back into keyed records.
package crud

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/sqlbridge/sqlbridge/client"
	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

// Record is one keyed row: column name to value.
type Record map[string]any

// ListResult carries one page of records plus the total size of the
// filtered set (not the page).
type ListResult struct {
	Data  []Record
	Total int64
}

// NotFoundError reports that a single-record operation matched zero rows.
// Distinct from QueryError: the statement succeeded, the row isn't there.
type NotFoundError struct {
	Table string
	ID    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no record in %q with id %v", e.Table, e.ID)
}

// defaultChunkSize bounds id-list statements on backends without their own
// per-batch ceiling.
const defaultChunkSize = 500

// Option configures a Repo.
type Option func(*Repo)

// WithIDColumn overrides the primary-key column name (default "id").
func WithIDColumn(name string) Option {
	return func(r *Repo) { r.idColumn = name }
}

// WithLogger sets the repo's logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Repo) { r.log = log }
}

// Repo executes the CRUD verbs against whatever backend the resolver
// selects. It borrows the client per call and never closes it.
type Repo struct {
	resolver *client.Resolver
	idColumn string
	log      *slog.Logger
}

// New creates a Repo over a resolver.
func New(resolver *client.Resolver, opts ...Option) *Repo {
	r := &Repo{resolver: resolver, idColumn: "id", log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns one page of records matching the request plus the total
// count of the filtered set. The count query reuses the WHERE fragment
// but drops ORDER BY and LIMIT.
func (r *Repo) List(ctx context.Context, table string, req compile.ListRequest) (ListResult, error) {
	cl, err := r.resolver.Client(ctx)
	if err != nil {
		return ListResult{}, err
	}
	d := cl.Dialect()

	q, err := compile.Select(d, table, req)
	if err != nil {
		return ListResult{}, err
	}
	res, err := cl.Query(ctx, q)
	if err != nil {
		return ListResult{}, err
	}

	countQ, err := compile.SelectCount(d, table, req.Filters)
	if err != nil {
		return ListResult{}, err
	}
	countRes, err := cl.Query(ctx, countQ)
	if err != nil {
		return ListResult{}, err
	}
	total, err := scalarInt64(countRes)
	if err != nil {
		return ListResult{}, fmt.Errorf("count query for %q: %w", table, err)
	}

	r.log.Debug("list", "table", table, "rows", len(res.Rows), "total", total)
	return ListResult{Data: records(res), Total: total}, nil
}

// GetOne fetches a single record by id.
func (r *Repo) GetOne(ctx context.Context, table string, id any) (Record, error) {
	cl, err := r.resolver.Client(ctx)
	if err != nil {
		return nil, err
	}
	d := cl.Dialect()

	c := compile.NewCompiler(d)
	where, err := c.Where([]compile.Filter{compile.Cond{Field: r.idColumn, Op: compile.OpEq, Value: id}})
	if err != nil {
		return nil, err
	}
	q := sqlq.New("SELECT * FROM " + d.QuoteIdentifier(table)).Append(where)

	res, err := cl.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, &NotFoundError{Table: table, ID: id}
	}
	return records(res)[0], nil
}

// GetMany fetches the records whose ids appear in ids, deduplicated.
// An empty id list short-circuits to an empty result without touching the
// client: an IN () clause is not valid SQL.
func (r *Repo) GetMany(ctx context.Context, table string, ids []any) ([]Record, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return []Record{}, nil
	}
	cl, err := r.resolver.Client(ctx)
	if err != nil {
		return nil, err
	}
	d := cl.Dialect()

	out := []Record{}
	for _, chunk := range chunks(ids, chunkSize(cl)) {
		c := compile.NewCompiler(d)
		where, err := c.Where([]compile.Filter{compile.Cond{Field: r.idColumn, Op: compile.OpIn, Value: chunk}})
		if err != nil {
			return nil, err
		}
		q := sqlq.New("SELECT * FROM " + d.QuoteIdentifier(table)).Append(where)
		res, err := cl.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, records(res)...)
	}
	return out, nil
}

// Create inserts one record and reads the full row back, since the insert
// statement itself does not return it. Backends without a last-insert-id
// counter take the RETURNING path instead; a backend that should report an
// id but didn't is a hard failure, not a guess.
func (r *Repo) Create(ctx context.Context, table string, values Record) (Record, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("create on %q requires at least one column", table)
	}
	cl, err := r.resolver.Client(ctx)
	if err != nil {
		return nil, err
	}
	d := cl.Dialect()

	c := compile.NewCompiler(d)
	cols := sortedKeys(values)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = d.QuoteIdentifier(col)
		placeholders[i] = c.Bind(values[col])
	}
	sql := "INSERT INTO " + d.QuoteIdentifier(table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"

	if !d.SupportsLastInsertID() {
		res, err := cl.Query(ctx, sqlq.Query{SQL: sql + " RETURNING " + d.QuoteIdentifier(r.idColumn), Args: c.Args()})
		if err != nil {
			return nil, err
		}
		if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
			return nil, fmt.Errorf("insert into %q returned no id", table)
		}
		return r.GetOne(ctx, table, res.Rows[0][0])
	}

	info, err := cl.Execute(ctx, sqlq.Query{SQL: sql, Args: c.Args()})
	if err != nil {
		return nil, err
	}
	if !info.HasInsertID {
		return nil, fmt.Errorf("insert into %q reported no insert id; cannot read the created row back", table)
	}
	return r.GetOne(ctx, table, info.LastInsertID)
}

// CreateMany inserts each record in turn, returning the created rows in
// input order. Delegating to single-row creates keeps the id read-back
// semantics identical on every backend.
func (r *Repo) CreateMany(ctx context.Context, table string, values []Record) ([]Record, error) {
	out := make([]Record, 0, len(values))
	for _, v := range values {
		rec, err := r.Create(ctx, table, v)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update changes one record by id and returns the updated row.
func (r *Repo) Update(ctx context.Context, table string, id any, values Record) (Record, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("update on %q requires at least one column", table)
	}
	cl, err := r.resolver.Client(ctx)
	if err != nil {
		return nil, err
	}
	d := cl.Dialect()

	c := compile.NewCompiler(d)
	q, err := r.updateQuery(c, d, table, values, compile.Cond{Field: r.idColumn, Op: compile.OpEq, Value: id})
	if err != nil {
		return nil, err
	}
	if _, err := cl.Execute(ctx, q); err != nil {
		return nil, err
	}
	// The affected count can legitimately be zero when the update is a
	// no-op, so existence is checked by reading the row back.
	return r.GetOne(ctx, table, id)
}

// UpdateMany applies the same column changes to every id in ids and
// returns the number of rows the backend reports changed. An empty id
// list short-circuits without touching the client.
func (r *Repo) UpdateMany(ctx context.Context, table string, ids []any, values Record) (int64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("update on %q requires at least one column", table)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	cl, err := r.resolver.Client(ctx)
	if err != nil {
		return 0, err
	}
	d := cl.Dialect()

	var total int64
	for _, chunk := range chunks(ids, chunkSize(cl)) {
		c := compile.NewCompiler(d)
		q, err := r.updateQuery(c, d, table, values, compile.Cond{Field: r.idColumn, Op: compile.OpIn, Value: chunk})
		if err != nil {
			return total, err
		}
		info, err := cl.Execute(ctx, q)
		if err != nil {
			return total, err
		}
		total += info.Changes
	}
	return total, nil
}

// updateQuery builds UPDATE table SET ... WHERE <cond>, binding the SET
// values before the WHERE arguments so placeholder order matches text
// order.
func (r *Repo) updateQuery(c *compile.Compiler, d compile.Dialect, table string, values Record, cond compile.Cond) (sqlq.Query, error) {
	sets := make([]string, 0, len(values))
	for _, col := range sortedKeys(values) {
		sets = append(sets, d.QuoteIdentifier(col)+" = "+c.Bind(values[col]))
	}
	where, err := c.Where([]compile.Filter{cond})
	if err != nil {
		return sqlq.Query{}, err
	}
	sql := "UPDATE " + d.QuoteIdentifier(table) + " SET " + strings.Join(sets, ", ") + " " + where.SQL
	return sqlq.Query{SQL: sql, Args: c.Args()}, nil
}

// Delete removes one record by id.
func (r *Repo) Delete(ctx context.Context, table string, id any) error {
	cl, err := r.resolver.Client(ctx)
	if err != nil {
		return err
	}
	d := cl.Dialect()

	c := compile.NewCompiler(d)
	where, err := c.Where([]compile.Filter{compile.Cond{Field: r.idColumn, Op: compile.OpEq, Value: id}})
	if err != nil {
		return err
	}
	q := sqlq.New("DELETE FROM " + d.QuoteIdentifier(table)).Append(where)

	info, err := cl.Execute(ctx, q)
	if err != nil {
		return err
	}
	if info.Changes == 0 {
		return &NotFoundError{Table: table, ID: id}
	}
	return nil
}

// DeleteMany removes the records whose ids appear in ids, deduplicated so
// each underlying row is deleted at most once. Returns the number of rows
// the backend reports deleted; missing ids are not an error here.
func (r *Repo) DeleteMany(ctx context.Context, table string, ids []any) (int64, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	cl, err := r.resolver.Client(ctx)
	if err != nil {
		return 0, err
	}
	d := cl.Dialect()

	var total int64
	for _, chunk := range chunks(ids, chunkSize(cl)) {
		c := compile.NewCompiler(d)
		where, err := c.Where([]compile.Filter{compile.Cond{Field: r.idColumn, Op: compile.OpIn, Value: chunk}})
		if err != nil {
			return total, err
		}
		q := sqlq.New("DELETE FROM " + d.QuoteIdentifier(table)).Append(where)
		info, err := cl.Execute(ctx, q)
		if err != nil {
			return total, err
		}
		total += info.Changes
	}
	return total, nil
}

// =============================================================================
// Helpers
// =============================================================================

// records zips the positional result into keyed records.
func records(res sqlq.Result) []Record {
	out := make([]Record, len(res.Rows))
	for i, row := range res.Rows {
		rec := make(Record, len(res.Columns))
		for j, col := range res.Columns {
			rec[col] = row[j]
		}
		out[i] = rec
	}
	return out
}

// chunkSize is the id-list bound for one statement: the driver's own
// per-batch ceiling when it declares one, a generous default otherwise.
// Chunking is this layer's policy, not the driver's.
func chunkSize(cl client.Client) int {
	if bl, ok := cl.(client.BatchLimiter); ok && bl.BatchLimit() > 0 {
		return bl.BatchLimit()
	}
	return defaultChunkSize
}

func chunks(ids []any, size int) [][]any {
	var out [][]any
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	return append(out, ids)
}

// dedupe removes duplicate ids preserving first-seen order.
func dedupe(ids []any) []any {
	seen := make(map[any]bool, len(ids))
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sortedKeys(values Record) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scalarInt64 reads the single value of a one-row, one-column result.
func scalarInt64(res sqlq.Result) (int64, error) {
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, fmt.Errorf("empty result")
	}
	switch n := res.Rows[0][0].(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected scalar type %T", res.Rows[0][0])
	}
}
