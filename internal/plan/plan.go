// Package plan models the EXPLAIN plan tree (spec.md section 3, "PlanTree")
// and implements the Plan Inspector (C4, spec.md section 4.4), which walks
// that tree to produce warnings and a small metrics object. It is grounded
// on the plan-walking shape seen in other_examples' sqlens plan/analyzer
// packages: a recursive PlanNode tree decoded from EXPLAIN (FORMAT JSON).
package plan

import "github.com/queryadvisor/pgopt/internal/roundfmt"

// Node is one operator in an EXPLAIN plan tree.
type Node struct {
	Op           string // "Node Type" in EXPLAIN JSON, e.g. "Seq Scan", "Nested Loop", "Gather"
	Relation     string // "" when the node has no associated relation
	ColumnsUsed  []string
	StartupCost  float64
	TotalCost    float64
	PlanRows     int64
	PlanWidth    int64
	ActualRows   *int64 // nil unless produced by EXPLAIN ANALYZE
	SortMethod   string // "" unless Op == "Sort"
	Filter       string // raw filter expression text, "" if none
	Children     []*Node
}

// Tree is one EXPLAIN plan, spec.md section 3.
type Tree struct {
	Root            *Node
	PlanningTimeMs  float64
	ExecutionTimeMs float64 // 0 when the plan has no ANALYZE data
}

// WarningCode is a stable identifier for one Plan Inspector finding,
// spec.md section 4.4.
type WarningCode string

const (
	SeqScanLarge       WarningCode = "SEQ_SCAN_LARGE"
	SortSpill          WarningCode = "SORT_SPILL"
	EstimateMismatch   WarningCode = "ESTIMATE_MISMATCH"
	NestedLoopSeqInner WarningCode = "NESTED_LOOP_SEQ_INNER"
	NoIndexFilter      WarningCode = "NO_INDEX_FILTER"
	ParallelOff        WarningCode = "PARALLEL_OFF"
)

// Warning is one Plan Inspector finding, carrying enough context to explain
// itself without re-walking the tree.
type Warning struct {
	Code     WarningCode
	Relation string
	Detail   string
}

// Metrics summarizes a plan independent of any specific warning.
type Metrics struct {
	PlanningTimeMs  float64
	ExecutionTimeMs float64
	NodeCount       int
}

// codeOrder fixes the tie-break order among warnings on the same node,
// spec.md section 4.4 "ordered by node pre-order then code".
var codeOrder = map[WarningCode]int{
	SeqScanLarge:       0,
	SortSpill:          1,
	EstimateMismatch:   2,
	NestedLoopSeqInner: 3,
	NoIndexFilter:      4,
	ParallelOff:        5,
}

// Inspect walks t and returns its warnings, ordered by node pre-order then
// warning code, plus the plan's metrics (spec.md section 4.4).
func Inspect(t *Tree, largeRelationThreshold int64) ([]Warning, Metrics) {
	metrics := Metrics{
		PlanningTimeMs:  roundfmt.Round3(t.PlanningTimeMs),
		ExecutionTimeMs: roundfmt.Round3(t.ExecutionTimeMs),
	}
	if t.Root == nil {
		return nil, metrics
	}

	var warnings []Warning
	nodeCount := 0
	hasGather := false
	var rootRows int64

	var walk func(n *Node, parent *Node)
	walk = func(n *Node, parent *Node) {
		if n == nil {
			return
		}
		nodeCount++
		if n.Op == "Gather" || n.Op == "Gather Merge" {
			hasGather = true
		}

		var here []Warning

		if n.Op == "Seq Scan" {
			if n.PlanRows > largeRelationThreshold {
				here = append(here, Warning{Code: SeqScanLarge, Relation: n.Relation})
			}
			if n.Filter != "" && n.PlanRows > largeRelationThreshold {
				here = append(here, Warning{Code: NoIndexFilter, Relation: n.Relation, Detail: n.Filter})
			}
		}

		if n.Op == "Sort" && isDiskSpill(n.SortMethod) {
			here = append(here, Warning{Code: SortSpill, Relation: n.Relation, Detail: n.SortMethod})
		}

		if n.ActualRows != nil {
			denom := n.PlanRows
			if denom < 1 {
				denom = 1
			}
			diff := absInt64(*n.ActualRows - n.PlanRows)
			if float64(diff)/float64(denom) > 0.5 {
				here = append(here, Warning{Code: EstimateMismatch, Relation: n.Relation})
			}
		}

		if n.Op == "Nested Loop" && len(n.Children) == 2 && n.Children[1].Op == "Seq Scan" {
			here = append(here, Warning{Code: NestedLoopSeqInner, Relation: n.Children[1].Relation})
		}

		sortWarnings(here)
		warnings = append(warnings, here...)

		for _, c := range n.Children {
			walk(c, n)
		}
	}
	walk(t.Root, nil)
	rootRows = t.Root.PlanRows

	if rootRows > largeRelationThreshold && !hasGather {
		warnings = append(warnings, Warning{Code: ParallelOff})
	}

	metrics.NodeCount = nodeCount
	return warnings, metrics
}

func sortWarnings(ws []Warning) {
	// Stable insertion sort by codeOrder; the slice is small (at most six
	// entries per node) so this keeps the dependency-free determinism the
	// spec requires without pulling in sort for a handful of elements.
	for i := 1; i < len(ws); i++ {
		for j := i; j > 0 && codeOrder[ws[j].Code] < codeOrder[ws[j-1].Code]; j-- {
			ws[j], ws[j-1] = ws[j-1], ws[j]
		}
	}
}

func isDiskSpill(sortMethod string) bool {
	return sortMethod == "external merge" || sortMethod == "external sort"
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
