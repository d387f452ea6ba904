package model

import "testing"

func TestParseSimpleEqualityOrder(t *testing.T) {
	m := Parse(`SELECT * FROM orders WHERE user_id = 42 ORDER BY created_at DESC LIMIT 100`)
	if m.StatementKind != StatementSelect {
		t.Fatalf("expected StatementSelect, got %v", m.StatementKind)
	}
	if len(m.Relations) != 1 || m.Relations[0].Name != "orders" {
		t.Fatalf("unexpected relations: %+v", m.Relations)
	}
	if len(m.Projections) != 1 || !m.Projections[0].IsStar {
		t.Fatalf("expected single star projection, got %+v", m.Projections)
	}
	if len(m.EqualityPredicates) != 1 || m.EqualityPredicates[0].Column.Column != "user_id" {
		t.Fatalf("unexpected equality predicates: %+v", m.EqualityPredicates)
	}
	if len(m.OrderKeys) != 1 || m.OrderKeys[0].Direction != Desc {
		t.Fatalf("unexpected order keys: %+v", m.OrderKeys)
	}
	if m.Limit == nil || *m.Limit != 100 {
		t.Fatalf("unexpected limit: %v", m.Limit)
	}
}

func TestParseImplicitCommaJoinIsCartesian(t *testing.T) {
	m := Parse(`SELECT a.id, b.id FROM a, b WHERE a.x = 1`)
	foundImplicit := false
	for _, j := range m.Joins {
		if j.Kind == JoinImplicitComma {
			foundImplicit = true
		}
	}
	if !foundImplicit {
		t.Fatalf("expected an implicit comma join, got %+v", m.Joins)
	}
}

func TestParseAmbiguousColumn(t *testing.T) {
	m := Parse(`SELECT id FROM a JOIN b ON a.id = b.a_id`)
	found := false
	for _, p := range m.Projections {
		if p.Column.Relation == AmbiguousRef {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ambiguous projection, got %+v", m.Projections)
	}
}

func TestParseNonSelectIsOther(t *testing.T) {
	m := Parse(`UPDATE orders SET total_cents = 0`)
	if m.StatementKind != StatementOther {
		t.Fatalf("expected StatementOther for UPDATE, got %v", m.StatementKind)
	}
}

func TestParseUnparsableYieldsErr(t *testing.T) {
	m := Parse(`SELEKT *** FROM`)
	if m.StatementKind != StatementOther || m.ParseErr == nil {
		t.Fatalf("expected parse error on garbage input, got kind=%v err=%v", m.StatementKind, m.ParseErr)
	}
}
