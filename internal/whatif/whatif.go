// Package whatif implements the What-If Evaluator (C7, spec.md section 4.7):
// it takes the heuristic-ordered INDEX suggestions from internal/index and
// re-ranks the top candidates by their actual planner cost delta, measured
// through the Planner Gateway's hypothetical-index capability (hypopg). The
// bounded-parallelism trial dispatcher generalizes the teacher's
// database/concurrent.go ConcurrentMapFuncWithError to the cooperative
// cancellation and early-stop rules this step additionally requires.
package whatif

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/gateway"
	"github.com/queryadvisor/pgopt/internal/roundfmt"
	"github.com/queryadvisor/pgopt/internal/suggestion"
)

const epsilon = 1e-9

// Report summarizes how the what-if step ran, spec.md section 4.7 step 9.
type Report struct {
	Enabled             bool
	Available           bool
	TrialsCompleted     int
	TrialsFilteredByPct int
	BudgetExceeded      bool
}

// Result is the what-if step's full output.
type Result struct {
	Suggestions []suggestion.Suggestion
	Ranking     string // "heuristic" or "cost_based"
	Report      Report
}

func columnDefFromSuggestion(s suggestion.Suggestion) (gateway.ColumnDef, bool) {
	if s.Kind != suggestion.Index || len(s.Statements) == 0 {
		return gateway.ColumnDef{}, false
	}
	name, relation, columns, descending, ok := suggestion.ParseIndexDDL(s.Statements[0])
	if !ok {
		return gateway.ColumnDef{}, false
	}
	return gateway.ColumnDef{Relation: relation, Columns: columns, Descending: descending, Name: name}, true
}

// Evaluate runs the what-if step over sql and suggestions, both already
// ordered per spec.md section 4.6. Non-index suggestions pass through
// unannotated.
func Evaluate(ctx context.Context, gw gateway.Gateway, sql string, suggestions []suggestion.Suggestion, cfg *config.Config) Result {
	available := gw.HypotheticalIndexCapability(ctx)
	if !cfg.WhatIfEnabled || !available {
		return Result{
			Suggestions: suggestions,
			Ranking:     "heuristic",
			Report:      Report{Enabled: cfg.WhatIfEnabled, Available: available},
		}
	}

	baseline, err := gw.ExplainCosts(ctx, sql, cfg.TrialTimeoutMs)
	if err != nil || baseline == nil || baseline.Root == nil {
		return Result{
			Suggestions: suggestions,
			Ranking:     "heuristic",
			Report:      Report{Enabled: true, Available: true},
		}
	}
	costBefore := baseline.Root.TotalCost

	type candidate struct {
		pos    int // index into suggestions
		colDef gateway.ColumnDef
	}
	var candidates []candidate
	for i, s := range suggestions {
		colDef, ok := columnDefFromSuggestion(s)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{pos: i, colDef: colDef})
		if len(candidates) >= cfg.MaxTrials {
			break
		}
	}

	type outcome struct {
		pos       int
		completed bool
		delta     float64
	}
	outcomes := make([]outcome, len(candidates))

	var mu sync.Mutex
	completedCount := 0
	bestRelReduction := math.Inf(-1)
	budgetExceeded := false
	stopDispatch := false

	shouldStop := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return stopDispatch
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.GlobalTimeoutMs)*time.Millisecond)
	defer cancel()

	// g bounds concurrent trial dispatch to cfg.Parallelism, generalizing the
	// teacher's ConcurrentMapFuncWithError (database/concurrent.go): that
	// helper has no early-stop path, so dispatch here still checks
	// shouldStop()/runCtx.Done() itself rather than relying on errgroup's own
	// cancellation, which only fires on a returned error.
	var g errgroup.Group
	g.SetLimit(maxInt(cfg.Parallelism, 1))

	for i, c := range candidates {
		select {
		case <-runCtx.Done():
			mu.Lock()
			budgetExceeded = true
			stopDispatch = true
			mu.Unlock()
		default:
		}
		if shouldStop() {
			break
		}

		i, c := i, c
		g.Go(func() error {
			tree, _, err := gw.WithHypotheticalIndex(runCtx, c.colDef, sql, cfg.TrialTimeoutMs)

			mu.Lock()
			defer mu.Unlock()
			completedCount++
			if err == nil && tree != nil && tree.Root != nil {
				costAfter := tree.Root.TotalCost
				delta := costBefore - costAfter
				outcomes[i] = outcome{pos: c.pos, completed: true, delta: delta}
				relReduction := delta / math.Max(costBefore, epsilon) * 100
				if relReduction > bestRelReduction {
					bestRelReduction = relReduction
				}
			}
			if bestRelReduction < cfg.EarlyStopPct && completedCount*2 >= cfg.MaxTrials {
				stopDispatch = true
			}
			return nil
		})
	}
	g.Wait()

	if runCtx.Err() != nil {
		budgetExceeded = true
	}

	out := make([]suggestion.Suggestion, len(suggestions))
	copy(out, suggestions)

	filtered := 0
	var kept []suggestion.Suggestion
	trialsCompleted := 0
	for i, s := range out {
		annotated := s
		for _, o := range outcomes {
			if o.completed && o.pos == i {
				trialsCompleted++
				before := roundfmt.NewRat1000(roundfmt.Round3(costBefore))
				after := roundfmt.NewRat1000(roundfmt.Round3(costBefore - o.delta))
				delta := roundfmt.NewRat1000(roundfmt.Round3(o.delta))
				annotated.EstCostBefore = &before
				annotated.EstCostAfter = &after
				annotated.EstCostDelta = &delta
				break
			}
		}
		if annotated.Kind == suggestion.Index && annotated.HasCostDelta() {
			pct := annotated.EstCostDelta.Float() / math.Max(costBefore, epsilon) * 100
			if pct < cfg.MinCostReductionPct {
				filtered++
				continue
			}
		}
		kept = append(kept, annotated)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return rankLess(kept[i], kept[j])
	})

	return Result{
		Suggestions: kept,
		Ranking:     "cost_based",
		Report: Report{
			Enabled:             true,
			Available:           true,
			TrialsCompleted:     trialsCompleted,
			TrialsFilteredByPct: filtered,
			BudgetExceeded:      budgetExceeded,
		},
	}
}

// deltaGroup orders the three delta states spec.md section 4.7 step 8
// describes: positive delta first (best first), then missing delta, then
// zero-or-negative delta last.
func deltaGroup(s suggestion.Suggestion) int {
	if s.EstCostDelta == nil {
		return 1
	}
	if s.EstCostDelta.Float() > 0 {
		return 0
	}
	return 2
}

func rankLess(a, b suggestion.Suggestion) bool {
	ga, gb := deltaGroup(a), deltaGroup(b)
	if ga != gb {
		return ga < gb
	}
	if ga == 0 && a.EstCostDelta.Float() != b.EstCostDelta.Float() {
		return a.EstCostDelta.Float() > b.EstCostDelta.Float()
	}
	if a.Impact.Rank() != b.Impact.Rank() {
		return a.Impact.Rank() > b.Impact.Rank()
	}
	if a.Confidence != b.Confidence {
		return a.Confidence.Float() > b.Confidence.Float()
	}
	return a.Title < b.Title
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
