// Package rewrite implements the Rewrite Advisor (C5, spec.md section 4.5):
// a fixed, ordered catalog of pure rules, each a predicate over a
// *model.QueryModel producing zero or one suggestion. Rule identity is the
// suggestion's title; duplicates are suppressed by construction since each
// rule runs at most once per query.
//
// The rule-catalog-as-a-slice-of-structs shape is grounded on
// other_examples' citus-mcp advisor (internal/citus-advisor/rules.go),
// which evaluates an ordered []Rule and concatenates findings.
package rewrite

import (
	"strings"

	"github.com/queryadvisor/pgopt/internal/model"
	"github.com/queryadvisor/pgopt/internal/roundfmt"
	"github.com/queryadvisor/pgopt/internal/schema"
	"github.com/queryadvisor/pgopt/internal/suggestion"
)

// rule is one entry of the catalog in spec.md section 4.5's table. evaluate
// returns trigger=false when the rule does not trigger.
type rule struct {
	title     string
	rationale string
	impact    suggestion.Impact
	confidence float64
	evaluate  func(m *model.QueryModel, snap *schema.Snapshot) (trigger bool, altSQL string)
}

// catalog is the fixed, ordered rule set of spec.md section 4.5, in the
// table's row order (output tie-breaking order).
var catalog = []rule{
	{
		title:      "Explicit projection",
		rationale:  "SELECT * forces the planner to materialize every column; list only the columns this query needs.",
		impact:     suggestion.Low,
		confidence: 0.900,
		evaluate:   explicitProjectionRule,
	},
	{
		title:      "IN-subquery → EXISTS",
		rationale:  "An uncorrelated IN subquery can be rewritten as EXISTS, letting the planner short-circuit on the first match.",
		impact:     suggestion.Medium,
		confidence: 0.700,
		evaluate:   inSubqueryToExistsRule,
	},
	{
		title:      "Decorrelate EXISTS",
		rationale:  "A correlated EXISTS with a simple equality correlation is often faster as a semi-join.",
		impact:     suggestion.Medium,
		confidence: 0.600,
		evaluate:   decorrelateExistsRule,
	},
	{
		title:      "Top-N alignment",
		rationale:  "ORDER BY + LIMIT without an index covering the equality and order columns forces a full sort before truncation.",
		impact:     suggestion.Medium,
		confidence: 0.700,
		evaluate:   topNAlignmentRule,
	},
	{
		title:      "Predicate pushdown into subquery/CTE",
		rationale:  "A WHERE clause on the outer query that only references grouping keys can be pushed into the aggregated subquery.",
		impact:     suggestion.Medium,
		confidence: 0.600,
		evaluate:   predicatePushdownRule,
	},
	{
		title:      "UNION → UNION ALL",
		rationale:  "UNION deduplicates even when the branches cannot produce overlapping rows; UNION ALL skips that sort/dedupe pass.",
		impact:     suggestion.Low,
		confidence: 0.500,
		evaluate:   unionToUnionAllRule,
	},
	{
		title:      "OR-chain → IN",
		rationale:  "Three or more equality ORs on the same column read more clearly, and often plan better, as a single IN list.",
		impact:     suggestion.Low,
		confidence: 0.700,
		evaluate:   orChainToInRule,
	},
	{
		title:      "NOT IN → NOT EXISTS",
		rationale:  "NOT IN against a nullable column silently returns no rows if the subquery ever produces a NULL; NOT EXISTS does not have this trap.",
		impact:     suggestion.Medium,
		confidence: 0.700,
		evaluate:   notInToNotExistsRule,
	},
	{
		title:      "LIKE with leading wildcard",
		rationale:  "A LIKE pattern starting with a wildcard cannot use a standard B-tree index on that column.",
		impact:     suggestion.Low,
		confidence: 0.500,
		evaluate:   likeLeadingWildcardRule,
	},
	{
		title:      "DISTINCT with GROUP BY",
		rationale:  "DISTINCT is redundant when GROUP BY already collapses rows to the same key set.",
		impact:     suggestion.Low,
		confidence: 0.700,
		evaluate:   distinctWithGroupByRule,
	},
	{
		title:      "Implicit comma-join → explicit JOIN",
		rationale:  "Comma joins hide their join condition among WHERE predicates and are easy to turn into an accidental cartesian product.",
		impact:     suggestion.Low,
		confidence: 0.700,
		evaluate:   implicitJoinRule,
	},
	{
		title:      "COUNT(col) → COUNT(*)",
		rationale:  "COUNT(*) is equivalent to COUNT(col) when col is NOT NULL, and is the form the planner optimizes for.",
		impact:     suggestion.Low,
		confidence: 0.700,
		evaluate:   countColToCountStarRule,
	},
}

// Advise runs the catalog over m and returns the triggered suggestions, in
// catalog order (spec.md section 4.5).
func Advise(m *model.QueryModel, snap *schema.Snapshot) []suggestion.Suggestion {
	if m.StatementKind != model.StatementSelect {
		return nil
	}
	var out []suggestion.Suggestion
	for _, r := range catalog {
		triggered, altSQL := r.evaluate(m, snap)
		if !triggered {
			continue
		}
		out = append(out, suggestion.Suggestion{
			Kind:       suggestion.Rewrite,
			Title:      r.title,
			Rationale:  r.rationale,
			Impact:     r.impact,
			Confidence: roundfmt.NewRat1000(r.confidence),
			AltSQL:     altSQL,
		})
	}
	return out
}

func explicitProjectionRule(m *model.QueryModel, _ *schema.Snapshot) (bool, string) {
	hasStar, hasOpaque := false, false
	for _, p := range m.Projections {
		if p.IsStar {
			hasStar = true
		}
		if p.Opaque {
			hasOpaque = true
		}
	}
	return hasStar && !hasOpaque, ""
}

func inSubqueryToExistsRule(m *model.QueryModel, _ *schema.Snapshot) (bool, string) {
	for _, s := range m.Subqueries {
		if s.Kind == model.SubqueryInUncorrelated {
			return true, ""
		}
	}
	return false, ""
}

func decorrelateExistsRule(m *model.QueryModel, _ *schema.Snapshot) (bool, string) {
	for _, s := range m.Subqueries {
		if s.Kind == model.SubqueryExistsCorrelated && len(s.CorrelationColumns) > 0 {
			return true, ""
		}
	}
	return false, ""
}

func topNAlignmentRule(m *model.QueryModel, snap *schema.Snapshot) (bool, string) {
	if len(m.OrderKeys) == 0 || m.Limit == nil {
		return false, ""
	}
	wanted := wantedColumnOrder(m)
	for _, rel := range m.Relations {
		tbl, ok := snap.Table(rel.Name)
		if !ok {
			continue
		}
		for _, idx := range tbl.Indexes {
			if indexCoversPrefix(idx, wanted) {
				return false, ""
			}
		}
	}
	return true, ""
}

// wantedColumnOrder is the equalities-then-order-keys prefix Top-N alignment
// checks for, reusing the same column-ordering rule as the index advisor
// (spec.md section 4.5 "no existing index covers (equalities..., order-keys)").
func wantedColumnOrder(m *model.QueryModel) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range m.EqualityPredicates {
		if !seen[e.Column.Column] {
			seen[e.Column.Column] = true
			out = append(out, e.Column.Column)
		}
	}
	for _, o := range m.OrderKeys {
		if !seen[o.Column.Column] {
			seen[o.Column.Column] = true
			out = append(out, o.Column.Column)
		}
	}
	return out
}

func indexCoversPrefix(idx schema.IndexDef, wanted []string) bool {
	if len(idx.Columns) < len(wanted) {
		return false
	}
	for i, w := range wanted {
		if idx.Columns[i].Name != w {
			return false
		}
	}
	return true
}

func predicatePushdownRule(m *model.QueryModel, _ *schema.Snapshot) (bool, string) {
	if len(m.GroupKeys) == 0 {
		return false, ""
	}
	hasAggregateSubquery := false
	for _, s := range m.Subqueries {
		if s.Kind == model.SubqueryScalarFromAggregate {
			hasAggregateSubquery = true
		}
	}
	if !hasAggregateSubquery {
		return false, ""
	}
	groupCols := map[string]bool{}
	for _, g := range m.GroupKeys {
		groupCols[g.Column.Column] = true
	}
	for _, e := range m.EqualityPredicates {
		if !groupCols[e.Column.Column] {
			return false, ""
		}
	}
	for _, r := range m.RangePredicates {
		if !groupCols[r.Column.Column] {
			return false, ""
		}
	}
	return true, ""
}

func unionToUnionAllRule(m *model.QueryModel, _ *schema.Snapshot) (bool, string) {
	if m.SetOp != model.SetOpUnion {
		return false, ""
	}
	if len(m.SetOpLegs) != 2 {
		return false, ""
	}
	left, right := m.SetOpLegs[0], m.SetOpLegs[1]
	if primaryKeyProjection(left) || primaryKeyProjection(right) || !projectionsCanOverlap(left, right) {
		return true, unionAllAltSQL(m.RawSQL)
	}
	return false, ""
}

func primaryKeyProjection(leg *model.QueryModel) bool {
	for _, p := range leg.Projections {
		if !p.IsStar && !p.Opaque && strings.EqualFold(p.Column.Column, "id") {
			return true
		}
	}
	return false
}

func projectionsCanOverlap(left, right *model.QueryModel) bool {
	leftRel := map[string]bool{}
	for _, r := range left.Relations {
		leftRel[r.Name] = true
	}
	for _, r := range right.Relations {
		if leftRel[r.Name] {
			return true
		}
	}
	return false
}

// unionAllAltSQL performs the one textually-safe substitution available
// without retaining literal values: widening "UNION" to "UNION ALL" (but
// never touching an existing "UNION ALL"). Every other rule leaves AltSQL
// empty because reconstructing a full statement would require the literal
// values the model deliberately does not retain (spec.md section 3).
func unionAllAltSQL(raw string) string {
	lower := strings.ToLower(raw)
	idx := strings.Index(lower, "union")
	if idx < 0 {
		return ""
	}
	after := lower[idx+len("union"):]
	if strings.HasPrefix(strings.TrimLeft(after, " \t\n"), "all") {
		return ""
	}
	return raw[:idx] + "UNION ALL" + raw[idx+len("union"):]
}

func orChainToInRule(m *model.QueryModel, _ *schema.Snapshot) (bool, string) {
	return len(m.OrChains) > 0, ""
}

// notInToNotExistsRule fires only when the subquery's target column is
// nullable per schema (spec.md section 4.5 "NOT IN with subquery over a
// nullable column"): a NOT IN against a subquery that can return NULL
// silently drops all rows, a footgun NOT EXISTS does not share.
func notInToNotExistsRule(m *model.QueryModel, snap *schema.Snapshot) (bool, string) {
	for i := range m.Subqueries {
		s := &m.Subqueries[i]
		if s.Kind != model.SubqueryNotInNullable {
			continue
		}
		tbl, ok := snap.Table(string(s.TargetColumn.Relation))
		if !ok {
			continue
		}
		col, ok := tbl.ColumnByName(s.TargetColumn.Column)
		if !ok {
			continue
		}
		s.NullableColumn = col.Nullable
		if s.NullableColumn {
			return true, ""
		}
	}
	return false, ""
}

func likeLeadingWildcardRule(m *model.QueryModel, snap *schema.Snapshot) (bool, string) {
	for _, l := range m.LikePredicates {
		if !l.LeadingWildcard {
			continue
		}
		tbl, ok := snap.Table(string(l.Column.Relation))
		if !ok {
			continue
		}
		for _, idx := range tbl.Indexes {
			if len(idx.Columns) > 0 && idx.Columns[0].Name == l.Column.Column {
				return true, ""
			}
		}
	}
	return false, ""
}

func distinctWithGroupByRule(m *model.QueryModel, _ *schema.Snapshot) (bool, string) {
	if !m.Distinct || len(m.GroupKeys) == 0 {
		return false, ""
	}
	projCols := map[string]bool{}
	for _, p := range m.Projections {
		if !p.IsStar && !p.Opaque {
			projCols[p.Column.Column] = true
		}
	}
	groupCols := map[string]bool{}
	for _, g := range m.GroupKeys {
		groupCols[g.Column.Column] = true
	}
	if len(projCols) != len(groupCols) {
		return false, ""
	}
	for c := range projCols {
		if !groupCols[c] {
			return false, ""
		}
	}
	return true, ""
}

func implicitJoinRule(m *model.QueryModel, _ *schema.Snapshot) (bool, string) {
	for _, j := range m.Joins {
		if j.Kind == model.JoinImplicitComma {
			return true, ""
		}
	}
	return false, ""
}

func countColToCountStarRule(m *model.QueryModel, snap *schema.Snapshot) (bool, string) {
	for _, p := range m.Projections {
		if !p.IsCount || p.CountIsStar || p.Opaque {
			continue
		}
		tbl, ok := snap.Table(string(p.CountColumn.Relation))
		if !ok {
			continue
		}
		col, ok := tbl.ColumnByName(p.CountColumn.Column)
		if ok && !col.Nullable {
			return true, ""
		}
	}
	return false, ""
}
