// Package compile translates the generic filter/sort/pagination request
// shapes into parameterized SQL fragments for a specific dialect. The
// compiler is pure: it never touches a connection, only produces Query
// values whose placeholder count always matches their argument count.
package compile

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/sqlbridge/sqlbridge/sqlq"
)

// MaxPageSize bounds any single page of results; requested page sizes
// above it are clamped.
const MaxPageSize = 100

// Compiler compiles filter trees, sorters and pagination into SQL
// fragments for one dialect. It carries the running placeholder count so
// fragments composed into one statement number their parameters
// continuously (Postgres-style $n placeholders depend on this).
type Compiler struct {
	dialect Dialect
	count   int
	args    []any
}

// NewCompiler creates a compiler for the given dialect with an empty
// argument list.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// Bind registers v as a bound argument and returns its placeholder.
func (c *Compiler) Bind(v any) string {
	c.count++
	c.args = append(c.args, v)
	return c.dialect.Placeholder(c.count)
}

// Args returns all arguments bound so far, in bind order.
func (c *Compiler) Args() []any {
	return append([]any(nil), c.args...)
}

// snapshot copies the arguments bound since mark.
func (c *Compiler) snapshot(mark int) []any {
	return append([]any(nil), c.args[mark:]...)
}

// =============================================================================
// WHERE Compilation
// =============================================================================

// Where compiles the filter list into a WHERE clause, including the
// keyword. Top-level filters are joined by AND without parentheses. When
// every filter elides to nothing the returned Query is empty and no WHERE
// keyword is emitted.
func (c *Compiler) Where(filters []Filter) (sqlq.Query, error) {
	mark := len(c.args)
	parts, err := c.compileList(filters)
	if err != nil {
		return sqlq.Query{}, err
	}
	if len(parts) == 0 {
		return sqlq.Query{}, nil
	}
	return sqlq.Query{
		SQL:  "WHERE " + strings.Join(parts, " AND "),
		Args: c.snapshot(mark),
	}, nil
}

// compileList compiles each filter, dropping the ones that elide to empty.
func (c *Compiler) compileList(filters []Filter) ([]string, error) {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		frag, err := c.compileFilter(f)
		if err != nil {
			return nil, err
		}
		if frag != "" {
			parts = append(parts, frag)
		}
	}
	return parts, nil
}

func (c *Compiler) compileFilter(f Filter) (string, error) {
	switch v := f.(type) {
	case Cond:
		return c.compileCond(v)
	case Group:
		return c.compileGroup(v)
	default:
		return "", fmt.Errorf("unsupported filter type %T", f)
	}
}

// compileGroup joins the group's surviving children with its logical
// operator. Zero children compile to nothing, one child stays
// unparenthesized, two or more are parenthesized.
func (c *Compiler) compileGroup(g Group) (string, error) {
	op := g.Op
	if op == "" {
		op = And
	}
	if op != And && op != Or {
		return "", fmt.Errorf("unknown logical operator %q", string(g.Op))
	}

	parts, err := c.compileList(g.Filters)
	if err != nil {
		return "", err
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	default:
		return "(" + strings.Join(parts, " "+string(op)+" ") + ")", nil
	}
}

// comparisonSQL maps the scalar comparison operators to their SQL form.
var comparisonSQL = map[Operator]string{
	OpEq:  "=",
	OpNe:  "!=",
	OpLt:  "<",
	OpGt:  ">",
	OpLte: "<=",
	OpGte: ">=",
}

func (c *Compiler) compileCond(cond Cond) (string, error) {
	field := c.dialect.QuoteIdentifier(cond.Field)

	if sym, ok := comparisonSQL[cond.Op]; ok {
		return field + " " + sym + " " + c.Bind(cond.Value), nil
	}

	switch cond.Op {
	case OpIn, OpNotIn:
		vals, err := valueList(cond.Value)
		if err != nil {
			return "", fmt.Errorf("%s filter on %q: %w", cond.Op, cond.Field, err)
		}
		if len(vals) == 0 {
			// IN () is invalid SQL; an empty list is a caller error,
			// never a silent no-match.
			return "", fmt.Errorf("%s filter on %q requires a non-empty list", cond.Op, cond.Field)
		}
		placeholders := make([]string, len(vals))
		for i, v := range vals {
			placeholders[i] = c.Bind(v)
		}
		keyword := "IN"
		if cond.Op == OpNotIn {
			keyword = "NOT IN"
		}
		return field + " " + keyword + " (" + strings.Join(placeholders, ", ") + ")", nil

	case OpNull:
		return field + " IS NULL", nil
	case OpNotNull:
		return field + " IS NOT NULL", nil

	case OpBetween, OpNotBetween:
		vals, err := valueList(cond.Value)
		if err != nil {
			return "", fmt.Errorf("%s filter on %q: %w", cond.Op, cond.Field, err)
		}
		if len(vals) != 2 {
			return "", fmt.Errorf("%s filter on %q requires exactly 2 values, got %d", cond.Op, cond.Field, len(vals))
		}
		keyword := "BETWEEN"
		if cond.Op == OpNotBetween {
			keyword = "NOT BETWEEN"
		}
		return field + " " + keyword + " " + c.Bind(vals[0]) + " AND " + c.Bind(vals[1]), nil
	}

	if kind, negate, caseSensitive, ok := matchSpec(cond.Op); ok {
		var b strings.Builder
		c.dialect.WriteMatch(&b, field, kind, fmt.Sprintf("%v", cond.Value), negate, caseSensitive, c.Bind)
		return b.String(), nil
	}

	return "", &UnknownOperatorError{Op: cond.Op}
}

// matchSpec maps a pattern operator to its wildcard kind, negation, and
// case sensitivity.
func matchSpec(op Operator) (kind MatchKind, negate, caseSensitive, ok bool) {
	switch op {
	case OpContains:
		return MatchContains, false, false, true
	case OpNotContains:
		return MatchContains, true, false, true
	case OpContainsS:
		return MatchContains, false, true, true
	case OpNotContainsS:
		return MatchContains, true, true, true
	case OpStartsWith:
		return MatchStartsWith, false, false, true
	case OpNotStartsWith:
		return MatchStartsWith, true, false, true
	case OpStartsWithS:
		return MatchStartsWith, false, true, true
	case OpNotStartsWithS:
		return MatchStartsWith, true, true, true
	case OpEndsWith:
		return MatchEndsWith, false, false, true
	case OpNotEndsWith:
		return MatchEndsWith, true, false, true
	case OpEndsWithS:
		return MatchEndsWith, false, true, true
	case OpNotEndsWithS:
		return MatchEndsWith, true, true, true
	}
	return 0, false, false, false
}

// valueList normalizes a condition value into a []any. Accepts the common
// concrete slice types directly and falls back to reflection for the rest.
func valueList(v any) ([]any, error) {
	switch vv := v.(type) {
	case []any:
		return vv, nil
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, nil
	case []int64:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf("value of type %T is not a list", v)
}

// =============================================================================
// ORDER BY Compilation
// =============================================================================

// OrderBy compiles the sorters into an ORDER BY clause, one field per
// sorter in input order. An empty direction defaults to ASC; no implicit
// sort is added when the list is empty.
func (c *Compiler) OrderBy(sorters []Sorter) (string, error) {
	if len(sorters) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(sorters))
	for _, s := range sorters {
		dir := Direction(strings.ToUpper(string(s.Order)))
		if dir == "" {
			dir = Asc
		}
		if dir != Asc && dir != Desc {
			return "", fmt.Errorf("invalid sort direction %q for field %q", s.Order, s.Field)
		}
		parts = append(parts, c.dialect.QuoteIdentifier(s.Field)+" "+string(dir))
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// =============================================================================
// LIMIT/OFFSET Compilation
// =============================================================================

// Limit compiles pagination into a LIMIT/OFFSET fragment with bound
// arguments [pageSize, (page-1)*pageSize]. A nil pagination emits nothing.
func (c *Compiler) Limit(p *Pagination) sqlq.Query {
	if p == nil {
		return sqlq.Query{}
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	size := p.PageSize
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	mark := len(c.args)
	sql := "LIMIT " + c.Bind(size) + " OFFSET " + c.Bind((page-1)*size)
	return sqlq.Query{SQL: sql, Args: c.snapshot(mark)}
}

// =============================================================================
// Full Statement Composition
// =============================================================================

// ListRequest is the generic list shape the operations layer receives.
type ListRequest struct {
	Filters    []Filter
	Sorters    []Sorter
	Pagination *Pagination
}

// Select compiles a full list statement: SELECT * FROM table plus the
// optional WHERE, ORDER BY and LIMIT/OFFSET fragments in that order, with
// arguments concatenated in the same left-to-right order.
func Select(d Dialect, table string, req ListRequest) (sqlq.Query, error) {
	c := NewCompiler(d)
	q := sqlq.New("SELECT * FROM " + d.QuoteIdentifier(table))

	where, err := c.Where(req.Filters)
	if err != nil {
		return sqlq.Query{}, err
	}
	q = q.Append(where)

	order, err := c.OrderBy(req.Sorters)
	if err != nil {
		return sqlq.Query{}, err
	}
	q = q.Append(sqlq.New(order))

	return q.Append(c.Limit(req.Pagination)), nil
}

// SelectCount compiles the matching total-count statement: the same WHERE
// fragment with no ORDER BY or LIMIT, so the total reflects the whole
// filtered set rather than one page.
func SelectCount(d Dialect, table string, filters []Filter) (sqlq.Query, error) {
	c := NewCompiler(d)
	q := sqlq.New("SELECT COUNT(*) FROM " + d.QuoteIdentifier(table))

	where, err := c.Where(filters)
	if err != nil {
		return sqlq.Query{}, err
	}
	return q.Append(where), nil
}
