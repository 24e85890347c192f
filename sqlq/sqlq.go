// Package sqlq defines the wire-level primitives shared by every backend
// driver: a parameterized SQL statement, the positional result it produces,
// and the affected-rows report for write statements.
package sqlq

// Query is a SQL statement plus its positional arguments. The number of
// placeholders in SQL must equal len(Args), and argument order matches
// placeholder order left to right. A Query is treated as immutable once
// built; composition happens through Append, which returns a new value.
type Query struct {
	SQL  string
	Args []any
}

// New builds a Query from a SQL string and its arguments.
func New(sql string, args ...any) Query {
	return Query{SQL: sql, Args: args}
}

// Empty reports whether the query carries no SQL text.
func (q Query) Empty() bool {
	return q.SQL == ""
}

// Append joins frag onto q with a single space, concatenating the argument
// lists in the same order as the SQL text pieces. Appending an empty
// fragment returns q unchanged.
func (q Query) Append(frag Query) Query {
	if frag.Empty() {
		return q
	}
	if q.Empty() {
		return frag
	}
	args := make([]any, 0, len(q.Args)+len(frag.Args))
	args = append(args, q.Args...)
	args = append(args, frag.Args...)
	return Query{SQL: q.SQL + " " + frag.SQL, Args: args}
}

// Result is the positional shape every driver returns from a read:
// an ordered column list and one fixed-length value array per row.
// Rows are positional, not keyed; higher layers zip Columns with each
// row to produce keyed records.
type Result struct {
	Columns []string
	Rows    [][]any
}

// ExecInfo reports the outcome of a write statement. LastInsertID is
// meaningful only when HasInsertID is set, which backends report after a
// single-row insert; it is normalized to int64 across all backends.
type ExecInfo struct {
	Changes      int64
	LastInsertID int64
	HasInsertID  bool
}
