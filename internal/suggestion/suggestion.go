// Package suggestion defines the Suggestion value (spec.md section 3): the
// single output shape both the Rewrite Advisor (C5) and the Index Advisor
// (C6) emit, later annotated by the What-If Evaluator (C7) and merged by
// the Workload Aggregator (C8).
package suggestion

import (
	"regexp"
	"strings"

	"github.com/queryadvisor/pgopt/internal/roundfmt"
)

// Kind distinguishes a rewrite hint from an index candidate.
type Kind int

const (
	Rewrite Kind = iota
	Index
)

func (k Kind) String() string {
	if k == Index {
		return "INDEX"
	}
	return "REWRITE"
}

// Impact is the coarse severity of a suggestion's expected benefit.
type Impact int

const (
	Low Impact = iota
	Medium
	High
)

func (i Impact) String() string {
	switch i {
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Rank returns the numeric ordering spec.md section 4.7 step 8 sorts by
// (HIGH=3, MEDIUM=2, LOW=1).
func (i Impact) Rank() int {
	switch i {
	case High:
		return 3
	case Medium:
		return 2
	default:
		return 1
	}
}

// Max returns the greater-impact of a and b, used by the workload merge
// (spec.md section 4.8 step 3).
func Max(a, b Impact) Impact {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// Suggestion is the value both advisors emit, spec.md section 3.
type Suggestion struct {
	Kind       Kind
	Title      string
	Rationale  string
	Impact     Impact
	Confidence roundfmt.Rat1000

	Statements []string // REWRITE: always empty
	AltSQL     string   // REWRITE only; "" when not applicable
	Diff       string   // set only when Optimize is called with diff=true and AltSQL is non-empty

	Score              *roundfmt.Rat1000
	EstReductionPct    *roundfmt.Rat1000
	EstIndexWidthBytes *int64

	// Set only by the What-If Evaluator (C7).
	EstCostBefore *roundfmt.Rat1000
	EstCostAfter  *roundfmt.Rat1000
	EstCostDelta  *roundfmt.Rat1000
}

// HasCostDelta reports whether What-If annotation has run on this
// suggestion.
func (s Suggestion) HasCostDelta() bool {
	return s.EstCostDelta != nil
}

// createIndexPattern matches the exact CREATE INDEX statement shape
// internal/index generates for an INDEX-kind Suggestion.
var createIndexPattern = regexp.MustCompile(`(?i)^CREATE INDEX CONCURRENTLY (\S+) ON (\S+) \((.+)\)$`)

// ParseIndexDDL recovers (index name, relation, column list, direction
// vector) from an INDEX suggestion's rendered DDL, the merge key both the
// What-If Evaluator (C7) and the Workload Aggregator (C8) need (spec.md
// sections 4.7 and 4.8), without carrying that structured data as extra
// Suggestion fields.
func ParseIndexDDL(ddl string) (name, relation string, columns []string, descending []bool, ok bool) {
	m := createIndexPattern.FindStringSubmatch(ddl)
	if m == nil {
		return "", "", nil, nil, false
	}
	name, relation = m[1], m[2]
	raw := strings.Split(m[3], ", ")
	columns = make([]string, len(raw))
	descending = make([]bool, len(raw))
	for i, c := range raw {
		c = strings.TrimSpace(c)
		if strings.HasSuffix(strings.ToUpper(c), " DESC") {
			descending[i] = true
			c = strings.TrimSpace(c[:len(c)-len(" DESC")])
		}
		columns[i] = c
	}
	return name, relation, columns, descending, true
}
