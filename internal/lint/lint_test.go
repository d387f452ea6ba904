package lint

import (
	"testing"

	"github.com/queryadvisor/pgopt/internal/model"
)

func TestLintCartesianJoin(t *testing.T) {
	m := model.Parse(`SELECT a.id, b.id FROM a, b WHERE a.x = 1`)
	res := Lint(m, nil, nil)
	if res.Risk != RiskHigh {
		t.Fatalf("expected RiskHigh, got %v", res.Risk)
	}
	found := false
	for _, i := range res.Issues {
		if i.Code == CartesianJoin {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected CARTESIAN_JOIN, got %+v", res.Issues)
	}
}

func TestLintSelectStarAndUnfilteredLarge(t *testing.T) {
	m := model.Parse(`SELECT * FROM orders`)
	res := Lint(m, []string{"orders"}, nil)
	var codes []Code
	for _, i := range res.Issues {
		codes = append(codes, i.Code)
	}
	if !contains(codes, SelectStar) || !contains(codes, UnfilteredLarge) {
		t.Fatalf("expected SELECT_STAR and UNFILTERED_LARGE_TABLE, got %v", codes)
	}
}

func TestLintUnfilteredLargeSuppressedByLimit(t *testing.T) {
	m := model.Parse(`SELECT id FROM orders ORDER BY id LIMIT 10`)
	res := Lint(m, []string{"orders"}, nil)
	for _, i := range res.Issues {
		if i.Code == UnfilteredLarge {
			t.Fatalf("did not expect UNFILTERED_LARGE_TABLE when LIMIT is present")
		}
	}
}

func TestLintParseErrorShortCircuits(t *testing.T) {
	m := model.Parse(`SELEKT *** FROM`)
	res := Lint(m, nil, nil)
	if res.Risk != RiskHigh || len(res.Issues) != 1 || res.Issues[0].Code != ParseError {
		t.Fatalf("expected single PARSE_ERROR issue, got %+v", res)
	}
}

func contains(codes []Code, target Code) bool {
	for _, c := range codes {
		if c == target {
			return true
		}
	}
	return false
}
