package index

import (
	"strings"
	"testing"

	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/model"
	"github.com/queryadvisor/pgopt/internal/schema"
)

func snapWithOrders(rows int64) *schema.Snapshot {
	return &schema.Snapshot{
		Tables: map[string]schema.TableDef{
			"orders": {Columns: []schema.ColumnDef{
				{Name: "customer_id", Kind: schema.KindBigint},
				{Name: "status", Kind: schema.KindInteger},
				{Name: "created_at", Kind: schema.KindTimestamp},
			}},
		},
		RowEstimate: map[string]int64{"orders": rows},
	}
}

func TestAdviseSkipsSmallTable(t *testing.T) {
	m := model.Parse(`SELECT id FROM orders WHERE customer_id = 1`)
	out := Advise(m, snapWithOrders(100), config.Default())
	if len(out) != 0 {
		t.Fatalf("expected no suggestions for a small table, got %+v", out)
	}
}

func TestAdviseProposesCoveringIndex(t *testing.T) {
	m := model.Parse(`SELECT id FROM orders WHERE customer_id = 1 ORDER BY created_at LIMIT 10`)
	out := Advise(m, snapWithOrders(50_000), config.Default())
	if len(out) != 1 {
		t.Fatalf("expected one suggestion, got %+v", out)
	}
	s := out[0]
	if len(s.Statements) != 1 || !strings.Contains(s.Statements[0], "CREATE INDEX CONCURRENTLY") {
		t.Fatalf("expected a CREATE INDEX statement, got %+v", s.Statements)
	}
	if !strings.Contains(s.Statements[0], "customer_id") || !strings.Contains(s.Statements[0], "created_at") {
		t.Fatalf("expected both predicate and order columns in DDL, got %q", s.Statements[0])
	}
}

func TestAdviseRejectsWhenExistingIndexCovers(t *testing.T) {
	snap := snapWithOrders(50_000)
	tbl := snap.Tables["orders"]
	tbl.Indexes = []schema.IndexDef{{Name: "idx_orders_customer_id", Columns: []schema.IndexColumn{{Name: "customer_id"}}}}
	snap.Tables["orders"] = tbl

	m := model.Parse(`SELECT id FROM orders WHERE customer_id = 1`)
	out := Advise(m, snap, config.Default())
	if len(out) != 0 {
		t.Fatalf("expected no suggestion when an existing index already covers the candidate, got %+v", out)
	}
}
