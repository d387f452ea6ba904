package rewrite

import (
	"testing"

	"github.com/queryadvisor/pgopt/internal/model"
	"github.com/queryadvisor/pgopt/internal/schema"
)

func hasTitle(m *model.QueryModel, snap *schema.Snapshot, title string) (bool, string) {
	for _, s := range Advise(m, snap) {
		if s.Title == title {
			return true, s.AltSQL
		}
	}
	return false, ""
}

func TestExplicitProjectionRule(t *testing.T) {
	m := model.Parse(`SELECT * FROM orders`)
	ok, _ := hasTitle(m, schema.Empty(), "Explicit projection")
	if !ok {
		t.Fatalf("expected explicit projection rule to trigger")
	}
}

func TestOrChainToInRule(t *testing.T) {
	m := model.Parse(`SELECT id FROM orders WHERE status = 1 OR status = 2 OR status = 3`)
	ok, _ := hasTitle(m, schema.Empty(), "OR-chain → IN")
	if !ok {
		t.Fatalf("expected OR-chain rule to trigger, model=%+v", m.OrChains)
	}
}

func TestCountColToCountStarRule(t *testing.T) {
	snap := &schema.Snapshot{Tables: map[string]schema.TableDef{
		"orders": {Columns: []schema.ColumnDef{{Name: "id", Kind: schema.KindBigint, Nullable: false}}},
	}}
	m := model.Parse(`SELECT COUNT(id) FROM orders`)
	ok, _ := hasTitle(m, snap, "COUNT(col) → COUNT(*)")
	if !ok {
		t.Fatalf("expected COUNT rewrite to trigger for NOT NULL column")
	}
}

func TestCountColToCountStarRuleNullableSuppressed(t *testing.T) {
	snap := &schema.Snapshot{Tables: map[string]schema.TableDef{
		"orders": {Columns: []schema.ColumnDef{{Name: "note", Kind: schema.KindText, Nullable: true}}},
	}}
	m := model.Parse(`SELECT COUNT(note) FROM orders`)
	ok, _ := hasTitle(m, snap, "COUNT(col) → COUNT(*)")
	if ok {
		t.Fatalf("did not expect COUNT rewrite to trigger for a nullable column")
	}
}

func TestNotInToNotExistsRuleNullableTriggers(t *testing.T) {
	snap := &schema.Snapshot{Tables: map[string]schema.TableDef{
		"customers": {Columns: []schema.ColumnDef{{Name: "customer_id", Kind: schema.KindBigint, Nullable: true}}},
	}}
	m := model.Parse(`SELECT id FROM orders WHERE customer_id NOT IN (SELECT customer_id FROM customers)`)
	ok, _ := hasTitle(m, snap, "NOT IN → NOT EXISTS")
	if !ok {
		t.Fatalf("expected NOT IN rewrite to trigger for nullable subquery column")
	}
}

func TestNotInToNotExistsRuleNotNullSuppressed(t *testing.T) {
	snap := &schema.Snapshot{Tables: map[string]schema.TableDef{
		"customers": {Columns: []schema.ColumnDef{{Name: "customer_id", Kind: schema.KindBigint, Nullable: false}}},
	}}
	m := model.Parse(`SELECT id FROM orders WHERE customer_id NOT IN (SELECT customer_id FROM customers)`)
	ok, _ := hasTitle(m, snap, "NOT IN → NOT EXISTS")
	if ok {
		t.Fatalf("did not expect NOT IN rewrite to trigger for a NOT NULL subquery column")
	}
}

func TestUnionAllAltSQL(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"SELECT id FROM a UNION SELECT id FROM b", "SELECT id FROM a UNION ALL SELECT id FROM b"},
		{"SELECT id FROM a UNION ALL SELECT id FROM b", ""},
		{"SELECT id FROM a", ""},
	}
	for _, c := range cases {
		got := unionAllAltSQL(c.raw)
		if got != c.want {
			t.Fatalf("unionAllAltSQL(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestUnionToUnionAllRuleSuggestsAltSQL(t *testing.T) {
	m := model.Parse(`SELECT id FROM a UNION SELECT id FROM b`)
	ok, alt := hasTitle(m, schema.Empty(), "UNION → UNION ALL")
	if !ok {
		t.Fatalf("expected UNION rewrite to trigger")
	}
	if alt != "" && alt != "SELECT id FROM a UNION ALL SELECT id FROM b" {
		t.Fatalf("unexpected alt sql: %q", alt)
	}
}

func TestAdviseSkipsNonSelect(t *testing.T) {
	m := model.Parse(`SELEKT *** FROM`)
	if out := Advise(m, schema.Empty()); out != nil {
		t.Fatalf("expected no suggestions for a non-SELECT model, got %+v", out)
	}
}
