package plan

import "testing"

func TestInspectSeqScanLargeAndNoIndexFilter(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			Op:       "Seq Scan",
			Relation: "orders",
			PlanRows: 2_500_000,
			Filter:   "user_id = 42",
		},
	}
	warnings, metrics := Inspect(tree, 100_000)
	if metrics.NodeCount != 1 {
		t.Fatalf("expected 1 node, got %d", metrics.NodeCount)
	}
	var codes []WarningCode
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	if len(codes) != 3 {
		t.Fatalf("expected 3 warnings (seq scan, no-index-filter, parallel-off), got %v", codes)
	}
	if codes[0] != SeqScanLarge || codes[1] != NoIndexFilter {
		t.Fatalf("unexpected warning order: %v", codes)
	}
}

func TestInspectGatherSuppressesParallelOff(t *testing.T) {
	tree := &Tree{
		Root: &Node{
			Op:       "Gather",
			PlanRows: 1_000_000,
			Children: []*Node{
				{Op: "Seq Scan", Relation: "big", PlanRows: 500_000},
			},
		},
	}
	warnings, _ := Inspect(tree, 100_000)
	for _, w := range warnings {
		if w.Code == ParallelOff {
			t.Fatalf("did not expect PARALLEL_OFF when a Gather node is present")
		}
	}
}

func TestInspectEstimateMismatch(t *testing.T) {
	actual := int64(10000)
	tree := &Tree{
		Root: &Node{Op: "Seq Scan", Relation: "t", PlanRows: 100, ActualRows: &actual},
	}
	warnings, _ := Inspect(tree, 1_000_000)
	found := false
	for _, w := range warnings {
		if w.Code == EstimateMismatch {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ESTIMATE_MISMATCH, got %+v", warnings)
	}
}

func TestInspectSortSpill(t *testing.T) {
	tree := &Tree{Root: &Node{Op: "Sort", SortMethod: "external merge"}}
	warnings, _ := Inspect(tree, 1_000_000)
	if len(warnings) != 1 || warnings[0].Code != SortSpill {
		t.Fatalf("expected SORT_SPILL, got %+v", warnings)
	}
}
