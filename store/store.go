// Package store defines the GraphStore collaborator (spec.md §4.1): the
// abstract interface the traversal engine uses to run parameterised queries
// against the schema/data graph, plus four implementations — a Neo4j
// backend for production use, two relational backends (SQLite, MySQL) for
// hosts that would rather embed or already operate a relational database,
// and an in-memory backend for tests.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/arclight-io/qflow/value"
)

// DefaultRowCap is the row cap applied when QueryOptions.RowCap is <= 0.
const DefaultRowCap = 100

// DefaultTimeoutMs is the per-call timeout applied when
// QueryOptions.TimeoutMs is <= 0.
const DefaultTimeoutMs = 500

// Row is a single result record: a mapping from result-column name to value.
type Row map[string]value.Value

// Result is the outcome of a successful RunQuery call.
type Result struct {
	Rows []Row
	// Truncated reports whether the row cap cut off further rows. A
	// truncated result is not an error — the caller is notified via the
	// onWarning callback passed to RunQuery.
	Truncated bool
}

// QueryOptions configures a single RunQuery call.
type QueryOptions struct {
	// TimeoutMs bounds this call's execution time. <= 0 means
	// DefaultTimeoutMs.
	TimeoutMs int
	// RowCap bounds the number of rows returned. <= 0 means DefaultRowCap.
	RowCap int
}

func (o QueryOptions) rowCap() int {
	if o.RowCap <= 0 {
		return DefaultRowCap
	}
	return o.RowCap
}

func (o QueryOptions) timeoutMs() int {
	if o.TimeoutMs <= 0 {
		return DefaultTimeoutMs
	}
	return o.TimeoutMs
}

// GraphStore executes parameterised queries against the schema/data graph.
//
// Implementations must:
//   - Enforce opts' row cap, truncating (not erroring) and reporting via
//     onWarning.
//   - Enforce opts' per-call timeout, returning a *Failure with
//     Kind == FailureTimeout on expiry.
//   - Treat each call as an independent transaction — state is never
//     reused across calls for a given request, let alone across requests.
//   - Copy node/relationship properties by value into the returned Row, so
//     that repeated visits to the same vertex (schema cycles are permitted)
//     never share mutable state with the store's own internals.
type GraphStore interface {
	// RunQuery executes statement with the given parameters and returns its
	// result. onWarning, if non-nil, is invoked synchronously for
	// non-fatal conditions (currently: row-cap truncation) before RunQuery
	// returns; it must not be retained past the call.
	RunQuery(ctx context.Context, statement string, params map[string]value.Value, opts QueryOptions, onWarning func(string)) (Result, error)
}

// FailureKind classifies a GraphStore failure per spec.md §7.
type FailureKind string

// The three GraphStore failure kinds the engine distinguishes.
const (
	FailureTimeout     FailureKind = "timeout"
	FailureQueryError  FailureKind = "query_error"
	FailureUnavailable FailureKind = "unavailable"
)

// Failure is the error type returned by GraphStore implementations.
type Failure struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("store: %s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("store: %s: %s", f.Kind, f.Message)
}

// Unwrap exposes the underlying driver/SQL error for errors.Is/As.
func (f *Failure) Unwrap() error { return f.Cause }

// IsTimeout reports whether err is a GraphStore timeout failure.
func IsTimeout(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == FailureTimeout
}

// IsQueryError reports whether err is a GraphStore query/syntax failure.
func IsQueryError(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == FailureQueryError
}

// IsUnavailable reports whether err is a GraphStore connectivity failure.
func IsUnavailable(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == FailureUnavailable
}
