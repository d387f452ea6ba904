package workload

import (
	"testing"

	"github.com/queryadvisor/pgopt/internal/config"
	"github.com/queryadvisor/pgopt/internal/roundfmt"
	"github.com/queryadvisor/pgopt/internal/suggestion"
)

func TestFingerprintIgnoresLiteralsAndOrderDirection(t *testing.T) {
	a := Fingerprint(`SELECT id FROM orders WHERE status = 1 ORDER BY id ASC`)
	b := Fingerprint(`select id from orders where status = 2 order by id desc`)
	if a != b {
		t.Fatalf("expected matching fingerprints, got %x vs %x", a, b)
	}
	c := Fingerprint(`SELECT id FROM customers WHERE status = 1`)
	if a == c {
		t.Fatalf("expected different fingerprints for different relations")
	}
}

func indexSug(title, ddl string, score float64, impact suggestion.Impact) suggestion.Suggestion {
	s := roundfmt.NewRat1000(score)
	return suggestion.Suggestion{Kind: suggestion.Index, Title: title, Statements: []string{ddl}, Score: &s, Impact: impact}
}

func TestAggregateGroupsByFingerprint(t *testing.T) {
	fp := Fingerprint(`SELECT id FROM orders WHERE status = 1`)
	results := []QueryResult{
		{SQL: "SELECT id FROM orders WHERE status = 1", Fingerprint: fp, Analyzed: true},
		{SQL: "SELECT id FROM orders WHERE status = 2", Fingerprint: fp, Analyzed: true},
	}
	res := Aggregate(results, config.Default())
	if len(res.Grouped) != 1 || res.Grouped[0].Count != 2 {
		t.Fatalf("expected one group with count 2, got %+v", res.Grouped)
	}
	if res.Stats.Analyzed != 2 || res.Stats.UniqueFingerprints != 1 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
}

func TestMergeIndexSuggestionsSumsFrequencyAndScore(t *testing.T) {
	ddl := "CREATE INDEX CONCURRENTLY idx_orders_status ON orders (status)"
	grouped := []GroupedQuery{
		{Fingerprint: 1, Count: 3, Suggestions: []suggestion.Suggestion{indexSug("a", ddl, 1.0, suggestion.Medium)}},
		{Fingerprint: 2, Count: 1, Suggestions: []suggestion.Suggestion{indexSug("a", ddl, 2.0, suggestion.High)}},
	}
	merged := mergeIndexSuggestions(grouped)
	if len(merged) != 1 {
		t.Fatalf("expected one merged index, got %+v", merged)
	}
	if merged[0].Frequency != 2 {
		t.Fatalf("expected frequency 2 (one occurrence per grouped entry), got %d", merged[0].Frequency)
	}
	if merged[0].Impact != suggestion.High {
		t.Fatalf("expected merged impact to be the max across matches, got %v", merged[0].Impact)
	}
	if merged[0].Score.Float() != 3.0 {
		t.Fatalf("expected summed score 3.0, got %v", merged[0].Score.Float())
	}
}

func TestWidespreadStarRecommendation(t *testing.T) {
	results := []QueryResult{
		{SQL: "a", Fingerprint: 1, Analyzed: true, SelectStar: true},
		{SQL: "b", Fingerprint: 2, Analyzed: true, SelectStar: true},
		{SQL: "c", Fingerprint: 3, Analyzed: true, SelectStar: false},
	}
	res := Aggregate(results, config.Default())
	found := false
	for _, r := range res.WorkloadRecommendations {
		if r.Kind == WidespreadStar {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a widespread SELECT * recommendation, got %+v", res.WorkloadRecommendations)
	}
}

func TestNPlusOneRecommendation(t *testing.T) {
	cfg := config.Default()
	cfg.N1Threshold = 2
	fp := Fingerprint(`SELECT id FROM orders WHERE status = 1`)
	results := []QueryResult{
		{SQL: "SELECT id FROM orders WHERE status = 1", Fingerprint: fp, Analyzed: true},
		{SQL: "SELECT id FROM orders WHERE status = 2", Fingerprint: fp, Analyzed: true},
	}
	res := Aggregate(results, cfg)
	found := false
	for _, r := range res.WorkloadRecommendations {
		if r.Kind == NPlusOne {
			found = true
			if r.Fingerprint != fp {
				t.Fatalf("expected recommendation.Fingerprint %d, got %d", fp, r.Fingerprint)
			}
		}
	}
	if !found {
		t.Fatalf("expected an N+1 recommendation, got %+v", res.WorkloadRecommendations)
	}
}
