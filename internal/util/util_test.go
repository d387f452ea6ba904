package util

import "testing"

func TestTransformSlice(t *testing.T) {
	got := TransformSlice([]int{1, 2, 3}, func(v int) int { return v * 2 })
	want := []int{2, 4, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestCanonicalMapIterIsSorted(t *testing.T) {
	m := map[string]int{"c": 3, "a": 1, "b": 2}
	var keys []string
	for k := range CanonicalMapIter(m) {
		keys = append(keys, k)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v want %v", keys, want)
		}
	}
}

func TestBuildIndexNameShortNameUnchanged(t *testing.T) {
	got := BuildIndexName("orders", "user_id_created_at")
	if got != "idx_orders_user_id_created_at" {
		t.Fatalf("got %s", got)
	}
}

func TestBuildIndexNameTruncatesLongNames(t *testing.T) {
	got := BuildIndexName("a_very_long_table_name_that_is_quite_verbose", "another_rather_long_column_name_value")
	if len(got) > 63 {
		t.Fatalf("expected truncation to 63 bytes, got %d: %s", len(got), got)
	}
}
