// Package schema models the read-only catalog facts the advisors consult
// (spec.md section 3, "SchemaSnapshot"). Fetching a snapshot is an outbound
// capability (spec.md section 6, capability 2); this package only defines
// the shape and the kind-specific width defaults, it never opens a
// connection itself (that lives in internal/gateway).
package schema

// ColumnKind is a coarse classification used for default-width estimation
// (spec.md section 4.6 step 5).
type ColumnKind int

const (
	KindOther ColumnKind = iota
	KindInteger
	KindBigint
	KindTimestamp
	KindBoolean
	KindText
	KindNumeric
)

// DefaultWidthBytes returns the kind-specific constant used when a column's
// avg_width_bytes is missing, per spec.md section 4.6 step 5.
func (k ColumnKind) DefaultWidthBytes() int {
	switch k {
	case KindInteger:
		return 4
	case KindBigint:
		return 8
	case KindTimestamp:
		return 8
	case KindBoolean:
		return 1
	case KindText:
		return 16
	case KindNumeric:
		return 16
	default:
		return 8
	}
}

// ColumnDef describes one table column.
type ColumnDef struct {
	Name          string
	Kind          ColumnKind
	Nullable      bool
	AvgWidthBytes int // 0 means "unknown"; callers must use WidthOf instead of this field directly
}

// WidthOf returns the column's width, falling back to the kind-specific
// default when AvgWidthBytes is unset (spec.md section 3 invariant).
func (c ColumnDef) WidthOf() int {
	if c.AvgWidthBytes > 0 {
		return c.AvgWidthBytes
	}
	return c.Kind.DefaultWidthBytes()
}

// IndexDef describes one existing index on a table, in declared column
// order.
type IndexDef struct {
	Name    string
	Columns []IndexColumn
	Unique  bool
}

// IndexColumn is one column of an existing index, with its declared sort
// direction (ASC is the default absent an explicit DESC).
type IndexColumn struct {
	Name string
	Desc bool
}

// TableDef is one relation's column and index metadata.
type TableDef struct {
	Columns []ColumnDef
	Indexes []IndexDef
}

// ColumnByName looks up a column definition by name, case-sensitively
// (identifiers are lowercased by the time they reach a Snapshot, per
// spec.md section 6 "Identifier casing").
func (t TableDef) ColumnByName(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// Snapshot is the read-only catalog view consulted by one analysis request
// (spec.md section 3, "SchemaSnapshot"). It is never mutated after it is
// built and may be shared by reference across every advisor in the request
// (spec.md section 5 "Shared-resource policy").
type Snapshot struct {
	Tables       map[string]TableDef
	RowEstimate  map[string]int64
}

// Empty returns a Snapshot with no tables, used when schema/stats fetch
// fails (spec.md section 7, ResourceExhausted): the index advisor then
// produces nothing, while lint/rewrite continue unaffected.
func Empty() *Snapshot {
	return &Snapshot{Tables: map[string]TableDef{}, RowEstimate: map[string]int64{}}
}

// Table returns the TableDef for name, and whether it was present.
func (s *Snapshot) Table(name string) (TableDef, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// Rows returns the row estimate for name, defaulting to 0 when unknown so
// callers naturally treat an unknown-size table as eligible for small-table
// suppression (spec.md section 4.6 step 1).
func (s *Snapshot) Rows(name string) int64 {
	return s.RowEstimate[name]
}

// Filter narrows a schema/stats fetch to a specific schema and/or table
// name, per spec.md section 6 capability 2.
type Filter struct {
	Schema string
	Table  string
}
