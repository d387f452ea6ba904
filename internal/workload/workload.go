// Package workload implements the Workload Aggregator (C8, spec.md section
// 4.8): it groups a batch of already-analyzed queries by normalized shape,
// merges their INDEX suggestions across the group, and detects the
// cross-query patterns a single-query analysis can never see. Fingerprinting
// is grounded on pg_query_go's own query normalizer (the same library
// internal/model uses to parse), so literal stripping matches the real
// PostgreSQL grammar rather than a regex approximation.
package workload

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/lint"
	"github.com/queryadvisor/pgopt/internal/plan"
	"github.com/queryadvisor/pgopt/internal/roundfmt"
	"github.com/queryadvisor/pgopt/internal/suggestion"
)

var (
	paramPattern      = regexp.MustCompile(`\$[0-9]+`)
	sortDirPattern    = regexp.MustCompile(`(?i)\b(asc|desc)\b`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Fingerprint reduces sql to a normalized shape per spec.md section 4.8 step
// 1 and returns its 64-bit hash: pg_query.Normalize replaces literal values
// with positional parameters using the real grammar, after which this
// function lowercases, drops ORDER BY directions, and collapses whitespace.
func Fingerprint(sql string) uint64 {
	normalized, err := pg_query.Normalize(sql)
	if err != nil {
		normalized = sql
	}
	shape := strings.ToLower(normalized)
	shape = paramPattern.ReplaceAllString(shape, "?")
	shape = sortDirPattern.ReplaceAllString(shape, "")
	shape = whitespacePattern.ReplaceAllString(shape, " ")
	shape = strings.TrimSpace(shape)
	return xxhash.Sum64String(shape)
}

// QueryResult is one input query's already-computed C2-C6 (and optionally
// C7) output, assembled by the caller (internal/advisor) before handing the
// batch to Aggregate.
type QueryResult struct {
	SQL          string
	Fingerprint  uint64
	Analyzed     bool // false when parsing/analysis failed; still counted, never grouped
	LintResult   lint.Result
	PlanWarnings []plan.Warning
	Suggestions  []suggestion.Suggestion
	SelectStar   bool
	LargeScanRel []string // relations this query's plan flagged SEQ_SCAN_LARGE on
}

// GroupedQuery is one fingerprint's aggregated view, spec.md section 4.8
// step 2.
type GroupedQuery struct {
	Fingerprint uint64
	Count       int
	ExampleSQL  string
	Suggestions []suggestion.Suggestion
}

// MergedIndex is one INDEX suggestion merged across every query whose
// candidate matches on (relation, column list, direction vector), spec.md
// section 4.8 step 3.
type MergedIndex struct {
	Relation   string
	Columns    []string
	Descending []bool
	Statement  string
	Frequency  int
	Score      roundfmt.Rat1000
	EstReductionPct roundfmt.Rat1000
	EstCostDelta    *roundfmt.Rat1000
	Impact          suggestion.Impact
}

// RecommendationKind names a cross-query pattern, spec.md section 4.8 step 4.
type RecommendationKind string

const (
	NPlusOne         RecommendationKind = "N_PLUS_ONE"
	SharedLargeScan  RecommendationKind = "SHARED_LARGE_SCAN"
	WidespreadStar   RecommendationKind = "WIDESPREAD_SELECT_STAR"
)

// Recommendation is one workload-level finding.
type Recommendation struct {
	Kind        RecommendationKind
	Detail      string
	Relation    string // set for SHARED_LARGE_SCAN
	Fingerprint uint64 // set for N_PLUS_ONE, the GroupedQuery it was raised from
}

// Stats summarizes the batch, spec.md section 4.8 step 5.
type Stats struct {
	Total              int
	Analyzed           int
	Skipped            int
	UniqueFingerprints int
}

// Result is the Workload Aggregator's full output.
type Result struct {
	PerQuery                []QueryResult
	Grouped                 []GroupedQuery
	MergedIndexSuggestions  []MergedIndex
	WorkloadRecommendations []Recommendation
	Stats                   Stats
}

// Aggregate implements spec.md section 4.8 steps 2-5 over a batch whose
// per-query analysis (steps handled by internal/advisor) has already run.
func Aggregate(results []QueryResult, cfg *config.Config) Result {
	stats := Stats{Total: len(results)}
	order := []uint64{}
	byFP := map[uint64][]QueryResult{}
	for _, r := range results {
		if !r.Analyzed {
			stats.Skipped++
			continue
		}
		stats.Analyzed++
		if _, seen := byFP[r.Fingerprint]; !seen {
			order = append(order, r.Fingerprint)
		}
		byFP[r.Fingerprint] = append(byFP[r.Fingerprint], r)
	}
	stats.UniqueFingerprints = len(order)

	grouped := make([]GroupedQuery, 0, len(order))
	for _, fp := range order {
		members := byFP[fp]
		example := members[0].SQL
		for _, m := range members[1:] {
			if m.SQL < example {
				example = m.SQL
			}
		}
		var allSugs []suggestion.Suggestion
		for _, m := range members {
			allSugs = append(allSugs, m.Suggestions...)
		}
		grouped = append(grouped, GroupedQuery{
			Fingerprint: fp,
			Count:       len(members),
			ExampleSQL:  example,
			Suggestions: allSugs,
		})
	}
	sort.SliceStable(grouped, func(i, j int) bool {
		if grouped[i].Count != grouped[j].Count {
			return grouped[i].Count > grouped[j].Count
		}
		return grouped[i].Fingerprint < grouped[j].Fingerprint
	})

	merged := mergeIndexSuggestions(grouped)

	var recs []Recommendation
	for _, g := range grouped {
		if g.Count >= cfg.N1Threshold {
			recs = append(recs, Recommendation{
				Kind:        NPlusOne,
				Detail:      "this query shape repeats within the workload; consider batching it into a single query.",
				Fingerprint: g.Fingerprint,
			})
		}
	}
	recs = append(recs, sharedLargeScanRecommendations(byFP, order, merged)...)
	if r, ok := widespreadStarRecommendation(results); ok {
		recs = append(recs, r)
	}

	return Result{
		PerQuery:                results,
		Grouped:                 grouped,
		MergedIndexSuggestions:  merged,
		WorkloadRecommendations: recs,
		Stats:                   stats,
	}
}

func mergeKey(relation string, columns []string, descending []bool) string {
	var b strings.Builder
	b.WriteString(relation)
	for i, c := range columns {
		b.WriteByte('|')
		b.WriteString(c)
		if i < len(descending) && descending[i] {
			b.WriteString(":desc")
		}
	}
	return b.String()
}

// mergeIndexSuggestions implements spec.md section 4.8 step 3: two INDEX
// candidates merge when (relation, column list, direction vector) match
// across the whole grouped batch, summing frequency/score, taking the max
// reduction/impact, and summing cost delta only when every matching
// candidate carries one.
func mergeIndexSuggestions(grouped []GroupedQuery) []MergedIndex {
	type acc struct {
		MergedIndex
		deltaCount int
		total      int
	}
	byKey := map[string]*acc{}
	var order []string

	for _, g := range grouped {
		for _, s := range g.Suggestions {
			if s.Kind != suggestion.Index || len(s.Statements) == 0 {
				continue
			}
			_, relation, columns, descending, ok := suggestion.ParseIndexDDL(s.Statements[0])
			if !ok {
				continue
			}
			key := mergeKey(relation, columns, descending)
			a, exists := byKey[key]
			if !exists {
				a = &acc{MergedIndex: MergedIndex{
					Relation:   relation,
					Columns:    columns,
					Descending: descending,
					Statement:  s.Statements[0],
					Impact:     s.Impact,
				}}
				byKey[key] = a
				order = append(order, key)
			}
			a.total++
			a.Frequency++
			if s.Score != nil {
				a.Score = a.Score.Add(*s.Score)
			}
			if s.EstReductionPct != nil && s.EstReductionPct.Float() > a.EstReductionPct.Float() {
				a.EstReductionPct = *s.EstReductionPct
			}
			a.Impact = suggestion.Max(a.Impact, s.Impact)
			if s.EstCostDelta != nil {
				if a.EstCostDelta == nil {
					zero := roundfmt.NewRat1000(0)
					a.EstCostDelta = &zero
				}
				sum := a.EstCostDelta.Add(*s.EstCostDelta)
				a.EstCostDelta = &sum
				a.deltaCount++
			}
		}
	}

	out := make([]MergedIndex, 0, len(order))
	for _, key := range order {
		a := byKey[key]
		if a.deltaCount != a.total {
			a.EstCostDelta = nil // spec.md 4.8 step 3: only summed "when present on all"
		}
		out = append(out, a.MergedIndex)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Statement < out[j].Statement
	})
	return out
}

func sharedLargeScanRecommendations(byFP map[uint64][]QueryResult, order []uint64, merged []MergedIndex) []Recommendation {
	relFPCount := map[string]map[uint64]bool{}
	for _, fp := range order {
		for _, r := range byFP[fp][:1] { // one representative per fingerprint is enough for relation membership
			for _, rel := range r.LargeScanRel {
				if relFPCount[rel] == nil {
					relFPCount[rel] = map[uint64]bool{}
				}
				relFPCount[rel][fp] = true
			}
		}
	}
	relHasMergedIndex := map[string]bool{}
	for _, m := range merged {
		relHasMergedIndex[m.Relation] = true
	}

	var recs []Recommendation
	var relations []string
	for rel, fps := range relFPCount {
		if len(fps) >= 2 {
			relations = append(relations, rel)
		}
	}
	sort.Strings(relations)
	for _, rel := range relations {
		detail := "multiple query shapes scan this relation without an index; consider adding one."
		if relHasMergedIndex[rel] {
			detail = "multiple query shapes scan this relation; a single merged index covers all of them."
		}
		recs = append(recs, Recommendation{Kind: SharedLargeScan, Relation: rel, Detail: detail})
	}
	return recs
}

func widespreadStarRecommendation(results []QueryResult) (Recommendation, bool) {
	analyzed := 0
	starCount := 0
	for _, r := range results {
		if !r.Analyzed {
			continue
		}
		analyzed++
		if r.SelectStar {
			starCount++
		}
	}
	if analyzed == 0 || float64(starCount)/float64(analyzed) < 0.5 {
		return Recommendation{}, false
	}
	return Recommendation{
		Kind:   WidespreadStar,
		Detail: "at least half of this workload's queries use SELECT *; replace them with explicit projections.",
	}, true
}
