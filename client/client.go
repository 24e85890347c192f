// Package client adapts several native SQL engines to one minimal
// execution contract and resolves a connection descriptor to exactly one
// backend driver. Every driver turns a parameterized Query into either a
// positional Result (reads) or an ExecInfo (writes); transactions are an
// optional capability only some drivers carry.
package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlbridge/sqlbridge/compile"
	"github.com/sqlbridge/sqlbridge/sqlq"
)

// Client is the minimal capability set every backend driver provides.
// Callers borrow a Client from the Resolver per call and never close it.
type Client interface {
	// Query prepares and executes q in read mode, returning column names
	// in the engine's native projection order and rows as positional
	// value arrays.
	Query(ctx context.Context, q sqlq.Query) (sqlq.Result, error)

	// Execute prepares and executes q in write mode, reporting the
	// engine's rows-affected counter and, after a single-row insert, its
	// last generated id.
	Execute(ctx context.Context, q sqlq.Query) (sqlq.ExecInfo, error)

	// Dialect returns the SQL dialect this backend speaks.
	Dialect() compile.Dialect
}

// Transactor is the optional transaction capability. Its absence on a
// driver is not an error, only a missing capability.
type Transactor interface {
	Client

	// Transaction runs fn inside BEGIN/COMMIT on the same connection,
	// rolling back and returning a TransactionError when fn fails.
	Transaction(ctx context.Context, fn func(tx Client) error) error
}

// BatchLimiter is implemented by drivers with a per-batch statement-count
// ceiling. The operations layer chunks multi-row statements accordingly.
type BatchLimiter interface {
	BatchLimit() int
}

// QueryError wraps a native engine failure during prepare/bind/execute.
// The native error is preserved unchanged so callers can distinguish
// constraint violations from syntax errors from connectivity failures.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// UnsupportedRuntimeError reports that no compatible backend could be
// resolved for a descriptor. It names the supported alternatives.
type UnsupportedRuntimeError struct {
	Descriptor string
	Supported  []string
}

func (e *UnsupportedRuntimeError) Error() string {
	return fmt.Sprintf("no supported backend for descriptor %q (supported: %s)",
		e.Descriptor, strings.Join(e.Supported, ", "))
}

// InvalidClientError reports a descriptor value that matches neither the
// direct-client shape nor the factory shape.
type InvalidClientError struct {
	Value any
}

func (e *InvalidClientError) Error() string {
	return fmt.Sprintf("descriptor of type %T is neither a client, a client factory, a remote binding, nor a connection string", e.Value)
}

// TransactionError wraps the original cause when a transaction body or its
// commit fails. Rollback is attempted first; a rollback failure is carried
// alongside the cause, never silently swallowed.
type TransactionError struct {
	Err         error
	RollbackErr error
}

func (e *TransactionError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("transaction failed: %v (rollback also failed: %v)", e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("transaction failed: %v", e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
