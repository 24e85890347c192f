package compile

import "fmt"

// Operator enumerates the closed set of condition operators.
// Anything outside this set fails compilation with UnknownOperatorError.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpLt  Operator = "lt"
	OpGt  Operator = "gt"
	OpLte Operator = "lte"
	OpGte Operator = "gte"

	// List membership. The value must be a non-empty slice; one placeholder
	// is emitted per element.
	OpIn    Operator = "in"
	OpNotIn Operator = "nin"

	// Pattern matching, case-insensitive by default. The trailing-s
	// variants are case-sensitive.
	OpContains       Operator = "contains"
	OpNotContains    Operator = "ncontains"
	OpContainsS      Operator = "containss"
	OpNotContainsS   Operator = "ncontainss"
	OpStartsWith     Operator = "startswith"
	OpNotStartsWith  Operator = "nstartswith"
	OpStartsWithS    Operator = "startswiths"
	OpNotStartsWithS Operator = "nstartswiths"
	OpEndsWith       Operator = "endswith"
	OpNotEndsWith    Operator = "nendswith"
	OpEndsWithS      Operator = "endswiths"
	OpNotEndsWithS   Operator = "nendswiths"

	// Null checks ignore the condition value entirely.
	OpNull    Operator = "null"
	OpNotNull Operator = "nnull"

	// Range checks. The value must be a two-element slice.
	OpBetween    Operator = "between"
	OpNotBetween Operator = "nbetween"
)

// Logical joins the children of a Group.
type Logical string

const (
	And Logical = "AND"
	Or  Logical = "OR"
)

// Filter is the recursive filter tree: either a single Cond leaf or a
// Group of nested filters. The interface is sealed so the compiler's type
// switch is exhaustive.
type Filter interface {
	filter()
}

// Cond is a single field/operator/value leaf.
type Cond struct {
	Field string
	Op    Operator
	Value any
}

// Group combines nested filters with one logical operator. A Group with no
// children compiles to nothing, one child compiles unparenthesized, and two
// or more children are parenthesized around the joined fragment.
type Group struct {
	Op      Logical
	Filters []Filter
}

func (Cond) filter()  {}
func (Group) filter() {}

// Direction orders a sort field.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Sorter is one ORDER BY entry. Sequence order in a []Sorter is the
// tie-break order of the generated clause.
type Sorter struct {
	Field string
	Order Direction
}

// Pagination selects one page of results. Page is 1-based.
// A nil *Pagination means no LIMIT/OFFSET is emitted at all.
type Pagination struct {
	Page     int
	PageSize int
}

// UnknownOperatorError reports a condition operator outside the closed set.
// Unknown operators always fail compilation; they are never downgraded to
// an implicit equality match.
type UnknownOperatorError struct {
	Op Operator
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown filter operator %q", string(e.Op))
}
