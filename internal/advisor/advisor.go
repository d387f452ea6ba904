// Package advisor wires the eight components into the four inbound
// operations spec.md section 6 defines: Lint, Explain, Optimize, Workload.
// Engine is the only type application code outside this repo's internal/
// tree needs to construct.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/gateway"
	"github.com/queryadvisor/pgopt/internal/index"
	"github.com/queryadvisor/pgopt/internal/lint"
	"github.com/queryadvisor/pgopt/internal/model"
	"github.com/queryadvisor/pgopt/internal/nlhint"
	"github.com/queryadvisor/pgopt/internal/plan"
	"github.com/queryadvisor/pgopt/internal/rewrite"
	"github.com/queryadvisor/pgopt/internal/roundfmt"
	"github.com/queryadvisor/pgopt/internal/schema"
	"github.com/queryadvisor/pgopt/internal/snapcache"
	"github.com/queryadvisor/pgopt/internal/suggestion"
	"github.com/queryadvisor/pgopt/internal/whatif"
	"github.com/queryadvisor/pgopt/internal/workload"
)

// Sentinel errors for Optimize's two fatal error kinds, spec.md section 7
// "the only user-visible fatal errors are Syntax and NonSelect on Optimize".
var (
	ErrSyntax    = errors.New("advisor: sql could not be parsed")
	ErrNonSelect = errors.New("advisor: only SELECT statements can be optimized")
)

// Engine binds one configuration and one set of outbound capabilities to
// the four inbound operations. It holds no per-request mutable state.
type Engine struct {
	Gateway  gateway.Gateway
	Config   *config.Config
	NL       nlhint.Producer
	Cache    snapcache.Cache
}

// New builds an Engine with the optional capabilities defaulted to their
// no-op implementations, per spec.md section 6 "Failures are never fatal".
func New(gw gateway.Gateway, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{Gateway: gw, Config: cfg, NL: nlhint.NullProducer{}, Cache: snapcache.NullCache{}}
}

// LintOutput is Lint's full response shape, spec.md section 6.
type LintOutput struct {
	Model  *model.QueryModel
	Issues []lint.Issue
	Risk   lint.Risk
}

// Lint runs the Linter (C3) alone; it never touches the planner or schema.
func (e *Engine) Lint(sql string) LintOutput {
	m := model.Parse(sql)
	res := lint.Lint(m, e.Config.LargeTablePatterns, e.Config.NumericColumnPatterns)
	return LintOutput{Model: m, Issues: res.Issues, Risk: res.Risk}
}

// NLOptions requests an optional natural-language explanation alongside
// Explain's structured output, spec.md section 6 capability 4.
type NLOptions struct {
	Audience nlhint.Audience
	Style    string
	Length   int
}

// ExplainOutput is Explain's full response shape, spec.md section 6.
type ExplainOutput struct {
	Plan             *plan.Tree
	Warnings         []plan.Warning
	Metrics          plan.Metrics
	ExplanationText  string
	ExplanationReady bool
}

// Explain runs the Planner Gateway and Plan Inspector (C1, C4). A syntax
// error is fatal (spec.md section 7); a planner Timeout or Transport
// failure degrades to a zero-value plan rather than a fatal error.
func (e *Engine) Explain(ctx context.Context, sql string, analyze bool, timeoutMs int, nlOpts *NLOptions) (ExplainOutput, error) {
	m := model.Parse(sql)
	if m.ParseErr != nil {
		return ExplainOutput{}, fmt.Errorf("%w: %v", ErrSyntax, m.ParseErr)
	}

	tree, err := e.Gateway.Explain(ctx, sql, analyze, timeoutMs)
	if err != nil {
		if errors.Is(err, gateway.ErrSyntax) {
			return ExplainOutput{}, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		slog.Default().Warn("explain degraded", "error", err)
		return ExplainOutput{}, nil
	}

	warnings, metrics := plan.Inspect(tree, e.Config.LargeRelationThreshold)
	out := ExplainOutput{Plan: tree, Warnings: warnings, Metrics: metrics}

	if nlOpts != nil {
		prompt := explainPrompt(sql, warnings, metrics)
		text, ok := e.NL.Generate(ctx, nlhint.Request{
			Prompt:   prompt,
			Audience: nlOpts.Audience,
			Style:    nlOpts.Style,
			Length:   nlOpts.Length,
		})
		out.ExplanationText = text
		out.ExplanationReady = ok
	}
	return out, nil
}

func explainPrompt(sql string, warnings []plan.Warning, metrics plan.Metrics) string {
	return fmt.Sprintf("Explain this query plan in plain language: %s (warnings=%d, nodes=%d)", sql, len(warnings), metrics.NodeCount)
}

// OptimizeOptions is Optimize's request shape, spec.md section 6.
type OptimizeOptions struct {
	WhatIf    bool
	TopK      int // clamped to [1, 50]
	TimeoutMs int
	Diff      bool
}

// Summary carries Optimize's single aggregate score, spec.md section 6.
type Summary struct {
	Score float64 // in [0, 1], rounded to 3 digits
}

// OptimizeOutput is Optimize's full response shape, spec.md section 6.
type OptimizeOutput struct {
	Suggestions  []suggestion.Suggestion
	Summary      Summary
	Ranking      string
	WhatIfReport whatif.Report
	PlanWarnings []plan.Warning
	PlanMetrics  plan.Metrics
	TopKReturned int
}

// Optimize runs C2 through C6 (and C7 when requested), spec.md section 4.5
// through 4.7. It is the only operation with user-visible fatal errors.
func (e *Engine) Optimize(ctx context.Context, sql string, opts OptimizeOptions) (OptimizeOutput, error) {
	m := model.Parse(sql)
	if m.ParseErr != nil {
		return OptimizeOutput{}, fmt.Errorf("%w: %v", ErrSyntax, m.ParseErr)
	}
	if m.StatementKind != model.StatementSelect {
		return OptimizeOutput{}, fmt.Errorf("%w: statement kind %v", ErrNonSelect, m.StatementKind)
	}

	topK := clampTopK(opts.TopK)
	snap := e.fetchSchema(ctx, opts.TimeoutMs)

	var warnings []plan.Warning
	var metrics plan.Metrics
	if tree, err := e.Gateway.Explain(ctx, sql, false, opts.TimeoutMs); err == nil {
		warnings, metrics = plan.Inspect(tree, e.Config.LargeRelationThreshold)
	} else {
		slog.Default().Warn("optimize: plan inspection degraded", "error", err)
	}

	suggestions := append(rewrite.Advise(m, snap), index.Advise(m, snap, e.Config)...)

	ranking := "heuristic"
	report := whatif.Report{Enabled: opts.WhatIf && e.Config.WhatIfEnabled}
	if opts.WhatIf && e.Config.WhatIfEnabled {
		result := whatif.Evaluate(ctx, e.Gateway, sql, suggestions, e.Config)
		suggestions = result.Suggestions
		ranking = result.Ranking
		report = result.Report
	}

	if opts.Diff {
		applyDiffs(suggestions)
	}

	total := len(suggestions)
	if total > topK {
		suggestions = suggestions[:topK]
	}

	return OptimizeOutput{
		Suggestions:  suggestions,
		Summary:      Summary{Score: summaryScore(suggestions)},
		Ranking:      ranking,
		WhatIfReport: report,
		PlanWarnings: warnings,
		PlanMetrics:  metrics,
		TopKReturned: len(suggestions),
	}, nil
}

func clampTopK(k int) int {
	if k < 1 {
		return 1
	}
	if k > 50 {
		return 50
	}
	return k
}

// summaryScore condenses the suggestion set into the single [0,1] figure
// spec.md section 6 promises: the confidence-weighted mean of impact rank,
// normalized by the maximum possible rank (HIGH=3). Empty suggestion sets
// score 0.
func summaryScore(suggestions []suggestion.Suggestion) float64 {
	if len(suggestions) == 0 {
		return 0
	}
	var sum float64
	for _, s := range suggestions {
		sum += s.Confidence.Float() * float64(s.Impact.Rank()) / 3.0
	}
	return roundfmt.Round3(roundfmt.Clamp01(sum / float64(len(suggestions))))
}

// applyDiffs renders a minimal unified-style diff for every rewrite
// suggestion that carries an AltSQL, so callers requesting diff=true don't
// need to recompute it from RawSQL themselves.
func applyDiffs(suggestions []suggestion.Suggestion) {
	for i := range suggestions {
		if suggestions[i].Kind == suggestion.Rewrite && suggestions[i].AltSQL != "" {
			suggestions[i].Diff = fmt.Sprintf("- %s\n+ %s", suggestions[i].Rationale, suggestions[i].AltSQL)
		}
	}
}

func (e *Engine) fetchSchema(ctx context.Context, timeoutMs int) *schema.Snapshot {
	filter := schema.Filter{}
	key := snapcache.KeyOf(filter)
	if snap, ok := e.Cache.Get(key); ok {
		return snap
	}
	snap, err := e.Gateway.FetchSchema(ctx, filter, timeoutMs)
	if err != nil {
		slog.Default().Warn("optimize: schema fetch degraded, index advisor will produce nothing", "error", err)
		return schema.Empty()
	}
	e.Cache.Put(key, snap)
	return snap
}

// WorkloadOptions is Workload's request shape, spec.md section 6.
type WorkloadOptions struct {
	TopK   int
	WhatIf bool
}

// Workload runs C2-C6 (and optionally C7) over every input SQL string, then
// aggregates per spec.md section 4.8.
func (e *Engine) Workload(ctx context.Context, sqls []string, opts WorkloadOptions) workload.Result {
	snap := e.fetchSchema(ctx, e.Config.TrialTimeoutMs)

	results := make([]workload.QueryResult, 0, len(sqls))
	for _, sql := range sqls {
		results = append(results, e.analyzeOne(ctx, sql, snap, opts))
	}
	return workload.Aggregate(results, e.Config)
}

func (e *Engine) analyzeOne(ctx context.Context, sql string, snap *schema.Snapshot, opts WorkloadOptions) workload.QueryResult {
	m := model.Parse(sql)
	if m.ParseErr != nil || m.StatementKind != model.StatementSelect {
		return workload.QueryResult{SQL: sql, Fingerprint: workload.Fingerprint(sql), Analyzed: false}
	}

	lintRes := lint.Lint(m, e.Config.LargeTablePatterns, e.Config.NumericColumnPatterns)
	suggestions := append(rewrite.Advise(m, snap), index.Advise(m, snap, e.Config)...)

	var warnings []plan.Warning
	if tree, err := e.Gateway.Explain(ctx, sql, false, e.Config.TrialTimeoutMs); err == nil {
		warnings, _ = plan.Inspect(tree, e.Config.LargeRelationThreshold)
	}

	if opts.WhatIf && e.Config.WhatIfEnabled {
		result := whatif.Evaluate(ctx, e.Gateway, sql, suggestions, e.Config)
		suggestions = result.Suggestions
	}

	selectStar := false
	for _, p := range m.Projections {
		if p.IsStar {
			selectStar = true
			break
		}
	}
	var largeScanRel []string
	for _, w := range warnings {
		if w.Code == plan.SeqScanLarge {
			largeScanRel = append(largeScanRel, w.Relation)
		}
	}

	return workload.QueryResult{
		SQL:          sql,
		Fingerprint:  workload.Fingerprint(sql),
		Analyzed:     true,
		LintResult:   lintRes,
		PlanWarnings: warnings,
		Suggestions:  suggestions,
		SelectStar:   selectStar,
		LargeScanRel: largeScanRel,
	}
}
