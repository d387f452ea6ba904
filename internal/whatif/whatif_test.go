package whatif

import (
	"context"
	"testing"

	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/gateway"
	"github.com/queryadvisor/pgopt/internal/plan"
	"github.com/queryadvisor/pgopt/internal/roundfmt"
	"github.com/queryadvisor/pgopt/internal/schema"
	"github.com/queryadvisor/pgopt/internal/suggestion"
)

// fakeGateway implements gateway.Gateway entirely in memory, so what-if
// trials can be exercised without a live planner.
type fakeGateway struct {
	capability bool
	baseline   float64
	afterCost  map[string]float64 // keyed by hypothetical index name
}

func (f *fakeGateway) Explain(ctx context.Context, sql string, analyze bool, timeoutMs int) (*plan.Tree, error) {
	return nil, nil
}

func (f *fakeGateway) ExplainCosts(ctx context.Context, sql string, timeoutMs int) (*plan.Tree, error) {
	return &plan.Tree{Root: &plan.Node{TotalCost: f.baseline}}, nil
}

func (f *fakeGateway) FetchSchema(ctx context.Context, filter schema.Filter, timeoutMs int) (*schema.Snapshot, error) {
	return schema.Empty(), nil
}

func (f *fakeGateway) HypotheticalIndexCapability(ctx context.Context) bool {
	return f.capability
}

func (f *fakeGateway) WithHypotheticalIndex(ctx context.Context, col gateway.ColumnDef, sql string, timeoutMs int) (*plan.Tree, int64, error) {
	cost, ok := f.afterCost[col.Name]
	if !ok {
		cost = f.baseline
	}
	return &plan.Tree{Root: &plan.Node{TotalCost: cost}}, 1, nil
}

func indexSuggestion(title, ddl string, score float64) suggestion.Suggestion {
	s := roundfmt.NewRat1000(score)
	return suggestion.Suggestion{
		Kind:       suggestion.Index,
		Title:      title,
		Impact:     suggestion.Medium,
		Confidence: roundfmt.NewRat1000(0.7),
		Statements: []string{ddl},
		Score:      &s,
	}
}

func TestEvaluateDisabledReturnsHeuristic(t *testing.T) {
	gw := &fakeGateway{capability: false}
	sugs := []suggestion.Suggestion{indexSuggestion("a", "CREATE INDEX CONCURRENTLY idx_orders_a ON orders (a)", 1)}
	res := Evaluate(context.Background(), gw, "SELECT 1", sugs, config.Default())
	if res.Ranking != "heuristic" || res.Report.Available {
		t.Fatalf("expected heuristic ranking when capability unavailable, got %+v", res)
	}
}

func TestEvaluateAnnotatesAndFilters(t *testing.T) {
	gw := &fakeGateway{
		capability: true,
		baseline:   100,
		afterCost: map[string]float64{
			"idx_orders_a": 10, // 90% reduction, passes
			"idx_orders_b": 99, // 1% reduction, filtered
		},
	}
	cfg := config.Default()
	sugs := []suggestion.Suggestion{
		indexSuggestion("Index on orders(a)", "CREATE INDEX CONCURRENTLY idx_orders_a ON orders (a)", 2),
		indexSuggestion("Index on orders(b)", "CREATE INDEX CONCURRENTLY idx_orders_b ON orders (b)", 1),
	}
	res := Evaluate(context.Background(), gw, "SELECT 1 FROM orders", sugs, cfg)
	if res.Ranking != "cost_based" {
		t.Fatalf("expected cost_based ranking, got %q", res.Ranking)
	}
	if len(res.Suggestions) != 1 {
		t.Fatalf("expected low-reduction candidate filtered out, got %+v", res.Suggestions)
	}
	if !res.Suggestions[0].HasCostDelta() {
		t.Fatalf("expected surviving suggestion to carry a cost delta")
	}
}

func TestColumnDefFromSuggestion(t *testing.T) {
	s := indexSuggestion("t", "CREATE INDEX CONCURRENTLY idx_orders_a_b ON orders (a, b DESC)", 1)
	col, ok := columnDefFromSuggestion(s)
	if !ok {
		t.Fatalf("expected ddl to parse")
	}
	if col.Relation != "orders" || len(col.Columns) != 2 || col.Columns[1] != "b" || !col.Descending[1] || col.Descending[0] {
		t.Fatalf("unexpected parse result: %+v", col)
	}
}
