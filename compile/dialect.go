package compile

import (
	"fmt"
	"strings"
)

// MatchKind selects the wildcard shape for pattern operators.
type MatchKind int

const (
	MatchContains MatchKind = iota
	MatchStartsWith
	MatchEndsWith
)

// Dialect defines the SQL dialect-specific behavior for compilation:
// identifier quoting, placeholder style, pattern-match predicates, and
// how the engine reports generated ids.
type Dialect interface {
	// Name returns the dialect name for debugging/logging.
	Name() string

	// QuoteIdentifier quotes an identifier (table name, column name).
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for the given index
	// (1-based). Postgres uses $1, $2, etc. MySQL and SQLite use ?.
	Placeholder(index int) string

	// SupportsLastInsertID reports whether the engine exposes a
	// last-insert-id counter after a write. Postgres does not; inserts
	// there use RETURNING instead.
	SupportsLastInsertID() bool

	// WriteMatch writes a pattern-match predicate on the quoted field.
	// The bind callback registers the pattern as a bound argument and
	// returns its placeholder. Case-insensitive and case-sensitive forms
	// differ per engine: Postgres has native ILIKE, MySQL needs LIKE
	// BINARY for sensitivity, and SQLite's LIKE is insensitive for ASCII
	// so the sensitive form falls back to GLOB.
	WriteMatch(b *strings.Builder, field string, kind MatchKind, value string, negate, caseSensitive bool, bind func(any) string)
}

// pattern builds a wildcard pattern for the given match kind.
func pattern(kind MatchKind, value, wildcard string) string {
	switch kind {
	case MatchStartsWith:
		return value + wildcard
	case MatchEndsWith:
		return wildcard + value
	default:
		return wildcard + value + wildcard
	}
}

// writeLowerLike is the shared case-insensitive form for engines without
// native ILIKE: LOWER(field) LIKE LOWER(?).
func writeLowerLike(b *strings.Builder, field string, kind MatchKind, value string, negate bool, bind func(any) string) {
	b.WriteString("LOWER(")
	b.WriteString(field)
	b.WriteString(")")
	if negate {
		b.WriteString(" NOT")
	}
	b.WriteString(" LIKE LOWER(")
	b.WriteString(bind(pattern(kind, value, "%")))
	b.WriteString(")")
}

// =============================================================================
// SQLite Dialect
// =============================================================================

// SQLiteDialect implements Dialect for SQLite (shared by the embedded and
// remote drivers, which both speak the SQLite dialect).
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

func (d *SQLiteDialect) Placeholder(index int) string {
	return "?"
}

func (d *SQLiteDialect) SupportsLastInsertID() bool {
	return true
}

func (d *SQLiteDialect) WriteMatch(b *strings.Builder, field string, kind MatchKind, value string, negate, caseSensitive bool, bind func(any) string) {
	if !caseSensitive {
		writeLowerLike(b, field, kind, value, negate, bind)
		return
	}
	// SQLite's LIKE ignores case for ASCII regardless of collation;
	// GLOB is the case-sensitive form and uses * as its wildcard.
	b.WriteString(field)
	if negate {
		b.WriteString(" NOT")
	}
	b.WriteString(" GLOB ")
	b.WriteString(bind(pattern(kind, value, "*")))
}

// =============================================================================
// MySQL Dialect
// =============================================================================

// MySQLDialect implements Dialect for MySQL.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

func (d *MySQLDialect) Placeholder(index int) string {
	return "?"
}

func (d *MySQLDialect) SupportsLastInsertID() bool {
	return true
}

func (d *MySQLDialect) WriteMatch(b *strings.Builder, field string, kind MatchKind, value string, negate, caseSensitive bool, bind func(any) string) {
	if !caseSensitive {
		writeLowerLike(b, field, kind, value, negate, bind)
		return
	}
	// Default collations compare case-insensitively; BINARY forces a
	// byte-wise match.
	b.WriteString(field)
	if negate {
		b.WriteString(" NOT")
	}
	b.WriteString(" LIKE BINARY ")
	b.WriteString(bind(pattern(kind, value, "%")))
}

// =============================================================================
// Postgres Dialect
// =============================================================================

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) SupportsLastInsertID() bool {
	return false
}

func (d *PostgresDialect) WriteMatch(b *strings.Builder, field string, kind MatchKind, value string, negate, caseSensitive bool, bind func(any) string) {
	// Postgres LIKE is case-sensitive natively; ILIKE is the
	// insensitive form.
	b.WriteString(field)
	if negate {
		b.WriteString(" NOT")
	}
	if caseSensitive {
		b.WriteString(" LIKE ")
	} else {
		b.WriteString(" ILIKE ")
	}
	b.WriteString(bind(pattern(kind, value, "%")))
}

// =============================================================================
// Dialect Singletons
// =============================================================================

var (
	// SQLite is the singleton SQLite dialect.
	SQLite Dialect = &SQLiteDialect{}

	// MySQL is the singleton MySQL dialect.
	MySQL Dialect = &MySQLDialect{}

	// Postgres is the singleton PostgreSQL dialect.
	Postgres Dialect = &PostgresDialect{}
)
