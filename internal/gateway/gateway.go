// Package gateway is the Planner Gateway (C1, spec.md section 4.1): the only
// part of this repo that talks to a live PostgreSQL server. Every other
// package consumes its interface, never database/sql directly.
package gateway

import (
	"context"
	"errors"

	"github.com/queryadvisor/pgopt/internal/plan"
	"github.com/queryadvisor/pgopt/internal/schema"
)

// Sentinel errors matched with errors.Is, spec.md section 7's error kinds
// Timeout/Transport/Syntax/CapabilityAbsent. ErrTimeout, ErrTransport and
// ErrSyntax are wrapped with context by each call site; ErrUnavailable is
// returned bare.
var (
	ErrTimeout     = errors.New("gateway: statement timeout exceeded")
	ErrTransport   = errors.New("gateway: planner unreachable")
	ErrSyntax      = errors.New("gateway: sql syntax rejected by planner")
	ErrUnavailable = errors.New("gateway: hypothetical-index extension unavailable")
)

// ColumnDef is the DDL shape a caller asks the gateway to materialize as a
// hypothetical index; it never becomes a real index (spec.md section 1).
type ColumnDef struct {
	Relation   string
	Columns    []string // in index order
	Descending []bool   // parallel to Columns; nil/false means ASC
	Name       string
}

// Gateway is the Planner Gateway contract, spec.md section 4.1. Every method
// takes a context carrying the caller's deadline; timeoutMs additionally
// sets the session-scoped `statement_timeout` so a runaway plan on the
// server side is killed even if the local context has slack left.
type Gateway interface {
	// Explain runs EXPLAIN (FORMAT JSON[, ANALYZE, BUFFERS, TIMING]).
	// Non-SELECT statements are rejected before submission when the SQL can
	// be recognized as such without contacting the server.
	Explain(ctx context.Context, sql string, analyze bool, timeoutMs int) (*plan.Tree, error)

	// ExplainCosts runs EXPLAIN (FORMAT JSON) without ANALYZE; used by the
	// what-if hot loop (C7) where re-planning cost, not execution, is what
	// matters.
	ExplainCosts(ctx context.Context, sql string, timeoutMs int) (*plan.Tree, error)

	// FetchSchema returns the catalog/stat snapshot for the given filter.
	FetchSchema(ctx context.Context, filter schema.Filter, timeoutMs int) (*schema.Snapshot, error)

	// HypotheticalIndexCapability probes hypopg's availability once per
	// process lifetime and caches the result, per spec.md section 4.1.
	HypotheticalIndexCapability(ctx context.Context) bool

	// WithHypotheticalIndex creates a hypothetical index on a dedicated
	// session, re-plans sql, and resets hypothetical state on every exit
	// path. It returns ErrUnavailable without attempting creation once the
	// capability probe has reported the extension missing.
	WithHypotheticalIndex(ctx context.Context, col ColumnDef, sql string, timeoutMs int) (tree *plan.Tree, trialDurationMs int64, err error)
}
