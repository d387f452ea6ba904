// Package util collects small deterministic helpers shared across the
// advisor packages, adapted from the teacher's util package: deterministic
// map iteration (so no hash-randomized container ever reaches an output
// boundary, spec.md section 9), a slice transformer used by the index
// advisor, and index-name truncation.
package util

import (
	"fmt"
	"iter"
	"sort"
)

// TransformSlice applies converter to each element of in and returns the
// results in the same order.
func TransformSlice[T any, R any](in []T, converter func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = converter(v)
	}
	return out
}

// CanonicalMapIter yields map entries in sorted key order, so any advisor
// that must range over a map still produces deterministic output.
func CanonicalMapIter[T any](m map[string]T) iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}

// BuildIndexName generates a candidate index's DDL name following
// PostgreSQL's own truncation rule for identifiers longer than NAMEDATALEN-1
// (63 bytes): reduce the column-list segment to 28 bytes first, then spill
// any remaining overflow onto the table segment. Adapted from the teacher's
// constraint-naming helper (util.BuildPostgresConstraintName), which applies
// the identical algorithm to a different identifier shape.
func BuildIndexName(tableName, columnsJoined string) string {
	fullName := fmt.Sprintf("idx_%s_%s", tableName, columnsJoined)
	if len(fullName) <= 63 {
		return fullName
	}

	overflow := len(fullName) - 63
	tableLen := len(tableName)
	columnLen := len(columnsJoined)

	tableRemove := 0
	columnRemove := 0

	if columnLen > 28 {
		columnRemove = overflow
		if columnRemove > columnLen-28 {
			tableRemove = columnRemove - (columnLen - 28)
			columnRemove = columnLen - 28
		}
	} else {
		tableRemove = overflow
	}
	if tableRemove > tableLen {
		tableRemove = tableLen
	}
	if columnRemove > columnLen {
		columnRemove = columnLen
	}

	truncatedTable := tableName[:tableLen-tableRemove]
	truncatedColumns := columnsJoined[:columnLen-columnRemove]
	return fmt.Sprintf("idx_%s_%s", truncatedTable, truncatedColumns)
}
