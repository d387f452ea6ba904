// Package lint implements the Linter (C3, spec.md section 4.3): a pure
// function of a *model.QueryModel that applies a fixed, ordered rule set and
// produces issues plus a risk summary. It never touches the planner or the
// schema.
package lint

import (
	"path/filepath"
	"strings"

	"github.com/queryadvisor/pgopt/internal/model"
)

// Severity is one of the three levels a lint issue carries.
type Severity int

const (
	Info Severity = iota
	Warn
	High
)

func (s Severity) String() string {
	switch s {
	case High:
		return "high"
	case Warn:
		return "warn"
	default:
		return "info"
	}
}

// Code is a stable rule identifier, spec.md section 4.3.
type Code string

const (
	SelectStar        Code = "SELECT_STAR"
	MissingJoinOn      Code = "MISSING_JOIN_ON"
	CartesianJoin      Code = "CARTESIAN_JOIN"
	AmbiguousColumn    Code = "AMBIGUOUS_COLUMN"
	UnfilteredLarge    Code = "UNFILTERED_LARGE_TABLE"
	ImplicitCastPred   Code = "IMPLICIT_CAST_PREDICATE"
	UnusedJoinedTable  Code = "UNUSED_JOINED_TABLE"
	ParseError         Code = "PARSE_ERROR"
)

// Issue is one finding emitted by a lint rule.
type Issue struct {
	Code     Code
	Severity Severity
	Relation string
	Column   string
	Detail   string
}

// Risk is the request-level risk summary, spec.md section 4.3.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// Result is everything the Linter returns for one query.
type Result struct {
	Issues []Issue
	Risk   Risk
}

// Lint applies the fixed, ordered rule catalog of spec.md section 4.3 to m.
// largeTablePatterns and numericColumnPatterns are glob lists from
// config.Config, consulted by rules 5 and 6.
func Lint(m *model.QueryModel, largeTablePatterns, numericColumnPatterns []string) Result {
	var issues []Issue

	if m.ParseErr != nil {
		// Rule 8: PARSE_ERROR short-circuits every other rule.
		return Result{
			Issues: []Issue{{Code: ParseError, Severity: High, Detail: m.ParseErr.Error()}},
			Risk:   RiskHigh,
		}
	}

	// Rule 1: SELECT_STAR
	for _, p := range m.Projections {
		if p.IsStar {
			issues = append(issues, Issue{Code: SelectStar, Severity: Warn})
			break
		}
	}

	// Rule 2: MISSING_JOIN_ON
	missingJoinOn := false
	cartesian := false
	for _, j := range m.Joins {
		isOuterOrInner := j.Kind == model.JoinInner || j.Kind == model.JoinLeft ||
			j.Kind == model.JoinRight || j.Kind == model.JoinFull
		if isOuterOrInner && !j.HasOnClause {
			missingJoinOn = true
		}
		if j.Kind == model.JoinCross || j.Kind == model.JoinImplicitComma {
			cartesian = true
		}
	}
	if missingJoinOn {
		issues = append(issues, Issue{Code: MissingJoinOn, Severity: High})
	}

	// Rule 3: CARTESIAN_JOIN (also triggered by rule 2)
	if cartesian || missingJoinOn {
		issues = append(issues, Issue{Code: CartesianJoin, Severity: High})
	}

	// Rule 4: AMBIGUOUS_COLUMN
	if len(m.AmbiguousColumns) > 0 {
		issues = append(issues, Issue{Code: AmbiguousColumn, Severity: Warn})
	}

	// Rule 5: UNFILTERED_LARGE_TABLE
	filtered := map[model.RelRef]bool{}
	for _, e := range m.EqualityPredicates {
		filtered[e.Column.Relation] = true
	}
	for _, r := range m.RangePredicates {
		filtered[r.Column.Relation] = true
	}
	if m.Limit == nil {
		for _, rel := range m.Relations {
			if matchesAny(rel.Name, largeTablePatterns) && !filtered[rel.Ref()] {
				issues = append(issues, Issue{Code: UnfilteredLarge, Severity: Warn, Relation: rel.Name})
			}
		}
	}

	// Rule 6: IMPLICIT_CAST_PREDICATE
	for _, e := range m.EqualityPredicates {
		if e.Literal == model.LiteralText && matchesAny(e.Column.Column, numericColumnPatterns) {
			issues = append(issues, Issue{Code: ImplicitCastPred, Severity: Info, Column: e.Column.Column})
		}
	}

	// Rule 7: UNUSED_JOINED_TABLE
	used := usedRelations(m)
	for _, rel := range m.Relations {
		if !used[rel.Ref()] {
			issues = append(issues, Issue{Code: UnusedJoinedTable, Severity: Warn, Relation: rel.Name})
		}
	}

	return Result{Issues: issues, Risk: riskOf(issues)}
}

func usedRelations(m *model.QueryModel) map[model.RelRef]bool {
	used := map[model.RelRef]bool{}
	for _, p := range m.Projections {
		if !p.IsStar && !p.Opaque {
			used[p.Column.Relation] = true
		}
		if p.IsStar {
			// `*` references every relation in scope.
			for _, rel := range m.Relations {
				used[rel.Ref()] = true
			}
		}
	}
	for _, e := range m.EqualityPredicates {
		used[e.Column.Relation] = true
	}
	for _, r := range m.RangePredicates {
		used[r.Column.Relation] = true
	}
	for _, o := range m.OrderKeys {
		used[o.Column.Relation] = true
	}
	for _, g := range m.GroupKeys {
		used[g.Column.Relation] = true
	}
	for _, j := range m.Joins {
		for _, c := range j.OnColumns {
			used[c.Relation] = true
		}
	}
	return used
}

func riskOf(issues []Issue) Risk {
	warnCount := 0
	for _, i := range issues {
		if i.Severity == High {
			return RiskHigh
		}
		if i.Severity == Warn {
			warnCount++
		}
	}
	if warnCount >= 2 {
		return RiskMedium
	}
	return RiskLow
}

func matchesAny(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if ok, _ := filepath.Match(strings.ToLower(p), lower); ok {
			return true
		}
	}
	return false
}
