package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/queryadvisor/pgopt/internal/plan"
)

// explainRow mirrors the shape of `EXPLAIN (FORMAT JSON)`'s single-row,
// single-column result: a JSON array with one object carrying "Plan" and,
// when ANALYZE was requested, "Planning Time"/"Execution Time".
type explainRow struct {
	Plan           explainNode `json:"Plan"`
	PlanningTimeMs float64     `json:"Planning Time"`
	ExecutionTimeMs float64    `json:"Execution Time"`
}

type explainNode struct {
	NodeType     string        `json:"Node Type"`
	RelationName string        `json:"Relation Name"`
	Alias        string        `json:"Alias"`
	StartupCost  float64       `json:"Startup Cost"`
	TotalCost    float64       `json:"Total Cost"`
	PlanRows     int64         `json:"Plan Rows"`
	PlanWidth    int64         `json:"Plan Width"`
	ActualRows   *int64        `json:"Actual Rows,omitempty"`
	SortMethod   string        `json:"Sort Method"`
	Filter       string        `json:"Filter"`
	Plans        []explainNode `json:"Plans"`
}

func (n explainNode) toPlanNode() *plan.Node {
	out := &plan.Node{
		Op:          n.NodeType,
		Relation:    n.RelationName,
		StartupCost: n.StartupCost,
		TotalCost:   n.TotalCost,
		PlanRows:    n.PlanRows,
		PlanWidth:   n.PlanWidth,
		ActualRows:  n.ActualRows,
		SortMethod:  n.SortMethod,
		Filter:      n.Filter,
	}
	for _, c := range n.Plans {
		out.Children = append(out.Children, c.toPlanNode())
	}
	return out
}

// decodeExplainJSON parses the raw text PostgreSQL returns for
// `EXPLAIN (FORMAT JSON ...)` into a plan.Tree.
func decodeExplainJSON(raw string) (*plan.Tree, error) {
	var rows []explainRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("gateway: decode explain json: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("gateway: explain json: no rows")
	}
	row := rows[0]
	return &plan.Tree{
		Root:            row.Plan.toPlanNode(),
		PlanningTimeMs:  row.PlanningTimeMs,
		ExecutionTimeMs: row.ExecutionTimeMs,
	}, nil
}
