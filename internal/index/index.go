// Package index implements the Index Advisor (C6, spec.md section 4.6): for
// each relation touched by a query it proposes at most one candidate
// multi-column index, scored from the column pools the query actually
// exercises rather than from any live cost estimate (that refinement is the
// What-If Evaluator's job, internal/whatif).
package index

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/model"
	"github.com/queryadvisor/pgopt/internal/roundfmt"
	"github.com/queryadvisor/pgopt/internal/schema"
	"github.com/queryadvisor/pgopt/internal/suggestion"
	"github.com/queryadvisor/pgopt/internal/util"
)

// namedCol is one column of a candidate index vector: a column name paired
// with the sort direction it would be declared with.
type namedCol struct {
	name string
	desc bool
}

// Advise proposes one index candidate per relation referenced by m, ordered
// per spec.md section 4.6's final step: descending score, then ascending
// title.
func Advise(m *model.QueryModel, snap *schema.Snapshot, cfg *config.Config) []suggestion.Suggestion {
	if m.StatementKind != model.StatementSelect {
		return nil
	}
	var out []suggestion.Suggestion
	for _, rel := range m.Relations {
		s, ok := adviseRelation(m, snap, cfg, rel)
		if ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Score.Float(), out[j].Score.Float()
		if si != sj {
			return si > sj
		}
		return out[i].Title < out[j].Title
	})
	return out
}

func adviseRelation(m *model.QueryModel, snap *schema.Snapshot, cfg *config.Config, rel model.Relation) (suggestion.Suggestion, bool) {
	if snap.Rows(rel.Name) < cfg.MinRowsForIndex {
		return suggestion.Suggestion{}, false
	}
	tbl, hasTable := snap.Table(rel.Name)

	pools := m.Pools(rel.Ref())
	equalityNames := dedupNames(pools.Equality)
	rangeNames := dedupNames(pools.Range)

	var orderDesc []namedCol
	for _, o := range pools.Order {
		orderDesc = append(orderDesc, namedCol{name: o.Column.Column, desc: o.Direction == model.Desc})
	}
	var orderGroup []namedCol
	seen := map[string]bool{}
	for _, oc := range orderDesc {
		if !seen[oc.name] {
			seen[oc.name] = true
			orderGroup = append(orderGroup, oc)
		}
	}
	for _, g := range pools.Group {
		if !seen[g.Column] {
			seen[g.Column] = true
			orderGroup = append(orderGroup, namedCol{name: g.Column})
		}
	}

	var combined []namedCol
	for _, n := range equalityNames {
		combined = append(combined, namedCol{name: n})
	}
	for _, n := range rangeNames {
		combined = append(combined, namedCol{name: n})
	}
	combined = append(combined, orderGroup...)

	L := dedupCols(combined)
	if len(L) > cfg.MaxIndexCols {
		L = L[:cfg.MaxIndexCols]
	}
	if len(L) == 0 {
		return suggestion.Suggestion{}, false
	}

	nonDefaultDirections := false
	for _, c := range L {
		if c.desc {
			nonDefaultDirections = true
		}
	}

	if hasTable && coveredByExistingIndex(tbl, L, nonDefaultDirections) {
		return suggestion.Suggestion{}, false
	}

	width := 0
	for _, c := range L {
		if hasTable {
			if col, ok := tbl.ColumnByName(c.name); ok {
				width += col.WidthOf()
				continue
			}
		}
		width += schema.KindOther.DefaultWidthBytes()
	}
	if width > cfg.IndexMaxWidthBytes {
		return suggestion.Suggestion{}, false
	}

	lNames := make(map[string]bool, len(L))
	for _, c := range L {
		lNames[c.name] = true
	}
	eHit := intersectCount(equalityNames, lNames)
	rHit := intersectCount(rangeNames, lNames)
	ogHit := 0
	for _, c := range orderGroup {
		if lNames[c.name] {
			ogHit++
		}
	}
	joinHit := false
	for _, j := range pools.Join {
		if lNames[j.Column] {
			joinHit = true
			break
		}
	}
	oHit := 0
	for _, c := range orderDesc {
		if lNames[c.name] {
			oHit++
		}
	}

	score := (1.0*float64(eHit) + 0.5*float64(rHit) + 0.25*float64(ogHit))
	if joinHit {
		score *= cfg.JoinColPriorBoost
	}
	widthPenalty := math.Max(0.1, math.Sqrt(float64(cfg.IndexMaxWidthBytes)/math.Max(float64(width), 1)))
	score *= widthPenalty

	estReduction := 10*float64(eHit)
	if oHit > 0 {
		estReduction += 5
	}
	estReduction = math.Min(100, estReduction)
	if estReduction < cfg.SuppressLowGainPct {
		return suggestion.Suggestion{}, false
	}

	impact := suggestion.Medium
	if eHit > 0 && ogHit > 0 {
		impact = suggestion.High
	}
	confidence := 0.600
	if oHit > 0 {
		confidence = 0.700
	}

	colNames := util.TransformSlice(L, func(c namedCol) string { return strings.ToLower(c.name) })
	indexName := util.BuildIndexName(rel.Name, strings.Join(colNames, "_"))
	ddl := buildCreateIndexDDL(indexName, rel.Name, L, nonDefaultDirections)

	scoreR := roundfmt.NewRat1000(roundfmt.Round3(score))
	reductionR := roundfmt.NewRat1000(roundfmt.ClampPct(estReduction))
	widthI64 := int64(width)

	return suggestion.Suggestion{
		Kind:               suggestion.Index,
		Title:              fmt.Sprintf("Index on %s(%s)", rel.Name, strings.Join(colNames, ", ")),
		Rationale:          fmt.Sprintf("Queries against %s filter, join or order on columns not covered by an existing index.", rel.Name),
		Impact:             impact,
		Confidence:         roundfmt.NewRat1000(confidence),
		Statements:         []string{ddl},
		Score:              &scoreR,
		EstReductionPct:    &reductionR,
		EstIndexWidthBytes: &widthI64,
	}, true
}

func dedupNames(cols []model.ColumnRef) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range cols {
		if !seen[c.Column] {
			seen[c.Column] = true
			out = append(out, c.Column)
		}
	}
	return out
}

func dedupCols(cols []namedCol) []namedCol {
	seen := map[string]bool{}
	var out []namedCol
	for _, c := range cols {
		if !seen[c.name] {
			seen[c.name] = true
			out = append(out, c)
		}
	}
	return out
}

func intersectCount(names []string, in map[string]bool) int {
	n := 0
	for _, name := range names {
		if in[name] {
			n++
		}
	}
	return n
}

// coveredByExistingIndex reports whether tbl already has an index with L as
// a prefix (spec.md section 4.6 step 4), comparing directions only when L
// carries a non-default direction vector.
func coveredByExistingIndex(tbl schema.TableDef, L []namedCol, directionAware bool) bool {
	for _, idx := range tbl.Indexes {
		if len(idx.Columns) < len(L) {
			continue
		}
		match := true
		for i, c := range L {
			if idx.Columns[i].Name != c.name {
				match = false
				break
			}
			if directionAware && idx.Columns[i].Desc != c.desc {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// buildCreateIndexDDL renders spec.md section 4.6 step 11's statement,
// including explicit directions only when the vector is non-default.
func buildCreateIndexDDL(name, table string, L []namedCol, nonDefaultDirections bool) string {
	parts := make([]string, len(L))
	for i, c := range L {
		if nonDefaultDirections && c.desc {
			parts[i] = fmt.Sprintf("%s DESC", c.name)
		} else {
			parts[i] = c.name
		}
	}
	return fmt.Sprintf("CREATE INDEX CONCURRENTLY %s ON %s (%s)", name, table, strings.Join(parts, ", "))
}
