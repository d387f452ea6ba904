package advisor

import (
	"context"
	"errors"
	"testing"

	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/gateway"
	"github.com/queryadvisor/pgopt/internal/lint"
	"github.com/queryadvisor/pgopt/internal/plan"
	"github.com/queryadvisor/pgopt/internal/schema"
)

type stubGateway struct {
	snap       *schema.Snapshot
	tree       *plan.Tree
	capability bool
}

func (g *stubGateway) Explain(ctx context.Context, sql string, analyze bool, timeoutMs int) (*plan.Tree, error) {
	if g.tree == nil {
		return nil, gateway.ErrTimeout
	}
	return g.tree, nil
}

func (g *stubGateway) ExplainCosts(ctx context.Context, sql string, timeoutMs int) (*plan.Tree, error) {
	return g.tree, nil
}

func (g *stubGateway) FetchSchema(ctx context.Context, filter schema.Filter, timeoutMs int) (*schema.Snapshot, error) {
	if g.snap == nil {
		return nil, gateway.ErrTransport
	}
	return g.snap, nil
}

func (g *stubGateway) HypotheticalIndexCapability(ctx context.Context) bool { return g.capability }

func (g *stubGateway) WithHypotheticalIndex(ctx context.Context, col gateway.ColumnDef, sql string, timeoutMs int) (*plan.Tree, int64, error) {
	return g.tree, 1, nil
}

func ordersSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Tables: map[string]schema.TableDef{
			"orders": {Columns: []schema.ColumnDef{
				{Name: "user_id", Kind: schema.KindBigint},
				{Name: "created_at", Kind: schema.KindTimestamp},
			}},
		},
		RowEstimate: map[string]int64{"orders": 2_500_000},
	}
}

func TestLintReturnsRiskForCartesianJoin(t *testing.T) {
	e := New(&stubGateway{}, config.Default())
	out := e.Lint(`SELECT a.id, b.id FROM a, b WHERE a.x = 1`)
	if out.Risk != lint.RiskHigh {
		t.Fatalf("expected high risk, got %v", out.Risk)
	}
}

func TestOptimizeRejectsNonSelect(t *testing.T) {
	e := New(&stubGateway{snap: ordersSnapshot()}, config.Default())
	_, err := e.Optimize(context.Background(), `UPDATE orders SET x = 1`, OptimizeOptions{TopK: 10})
	if !errors.Is(err, ErrNonSelect) {
		t.Fatalf("expected ErrNonSelect, got %v", err)
	}
}

func TestOptimizeRejectsSyntaxError(t *testing.T) {
	e := New(&stubGateway{snap: ordersSnapshot()}, config.Default())
	_, err := e.Optimize(context.Background(), `SELEKT *** FROM`, OptimizeOptions{TopK: 10})
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected ErrSyntax, got %v", err)
	}
}

func TestOptimizeProducesIndexAndRewriteSuggestions(t *testing.T) {
	gw := &stubGateway{snap: ordersSnapshot(), tree: &plan.Tree{Root: &plan.Node{Op: "Seq Scan", Relation: "orders", TotalCost: 100, PlanRows: 2_500_000}}}
	e := New(gw, config.Default())
	out, err := e.Optimize(context.Background(), `SELECT * FROM orders WHERE user_id = 42 ORDER BY created_at DESC LIMIT 100`, OptimizeOptions{TopK: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Ranking != "heuristic" {
		t.Fatalf("expected heuristic ranking with what_if disabled, got %q", out.Ranking)
	}
	if len(out.Suggestions) == 0 {
		t.Fatalf("expected at least one suggestion")
	}
	var sawIndex, sawRewrite bool
	for _, s := range out.Suggestions {
		if s.Kind.String() == "INDEX" {
			sawIndex = true
		}
		if s.Kind.String() == "REWRITE" {
			sawRewrite = true
		}
	}
	if !sawIndex || !sawRewrite {
		t.Fatalf("expected both an index and a rewrite suggestion, got %+v", out.Suggestions)
	}
}

func TestOptimizeTopKClamped(t *testing.T) {
	gw := &stubGateway{snap: ordersSnapshot(), tree: &plan.Tree{Root: &plan.Node{Op: "Seq Scan"}}}
	e := New(gw, config.Default())
	out, err := e.Optimize(context.Background(), `SELECT * FROM orders WHERE user_id = 42 ORDER BY created_at DESC LIMIT 100`, OptimizeOptions{TopK: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TopKReturned > 1 {
		t.Fatalf("expected at most one suggestion returned, got %d", out.TopKReturned)
	}
}

func TestWorkloadAggregatesAcrossQueries(t *testing.T) {
	gw := &stubGateway{snap: ordersSnapshot(), tree: &plan.Tree{Root: &plan.Node{Op: "Seq Scan", Relation: "orders", PlanRows: 2_500_000}}}
	e := New(gw, config.Default())
	var sqls []string
	for i := 0; i < 3; i++ {
		sqls = append(sqls, `SELECT * FROM orders WHERE user_id = 1`)
	}
	res := e.Workload(context.Background(), sqls, WorkloadOptions{TopK: 10})
	if res.Stats.Total != 3 || res.Stats.UniqueFingerprints != 1 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
}
