// Package model defines the normalized representation a SELECT statement is
// parsed into (spec.md section 3, "QueryModel") plus the enumerated variants
// it depends on. Every advisor package (lint, rewrite, index, workload)
// consumes a *QueryModel and never re-parses SQL text itself.
package model

// StatementKind distinguishes a supported SELECT from anything else.
type StatementKind int

const (
	StatementOther StatementKind = iota
	StatementSelect
)

func (k StatementKind) String() string {
	if k == StatementSelect {
		return "SELECT"
	}
	return "OTHER"
}

// JoinKind enumerates the join forms tracked on a QueryModel.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
	JoinImplicitComma
)

func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "INNER"
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	case JoinCross:
		return "CROSS"
	case JoinImplicitComma:
		return "IMPLICIT_COMMA"
	default:
		return "UNKNOWN"
	}
}

// LiteralShape classifies an equality predicate's right-hand side without
// retaining the literal's value, per spec.md section 3.
type LiteralShape int

const (
	LiteralUnknown LiteralShape = iota
	LiteralInteger
	LiteralDecimal
	LiteralText
	LiteralBoolean
	LiteralNull
	LiteralParameter
)

// RangeKind enumerates the comparison operators tracked as range predicates.
type RangeKind int

const (
	RangeLT RangeKind = iota
	RangeLE
	RangeGT
	RangeGE
	RangeBetween
	RangeIn
)

func (k RangeKind) String() string {
	switch k {
	case RangeLT:
		return "<"
	case RangeLE:
		return "<="
	case RangeGT:
		return ">"
	case RangeGE:
		return ">="
	case RangeBetween:
		return "BETWEEN"
	case RangeIn:
		return "IN"
	default:
		return "?"
	}
}

// Direction is an ORDER BY sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// RelRef identifies a relation reference by the name it is addressed by in
// the rest of the statement: its alias when one is declared, otherwise its
// bare relation name. The zero value "" denotes an unresolved/ambiguous
// reference.
type RelRef string

// AmbiguousRef marks a column reference that could not be resolved to a
// single declared relation (spec.md section 3 invariant).
const AmbiguousRef RelRef = ""

// Relation is one FROM-clause entry, in textual order.
type Relation struct {
	Name  string // RelName
	Alias string // "" when unaliased
}

// Ref returns the name the rest of the statement addresses this relation by.
func (r Relation) Ref() RelRef {
	if r.Alias != "" {
		return RelRef(r.Alias)
	}
	return RelRef(r.Name)
}

// ColumnRef is a (relation, column) pair. Relation is AmbiguousRef when the
// column could not be resolved.
type ColumnRef struct {
	Relation RelRef
	Column   string
}

// Projection is one SELECT-list entry. IsStar marks the `*` sentinel;
// Opaque marks a computed expression (function call, arithmetic, etc.)
// whose shape the model does not attempt to decompose. CountOf is the one
// function shape the model does decompose, since the COUNT(col) ->
// COUNT(*) rewrite rule needs it (spec.md section 4.5).
type Projection struct {
	IsStar  bool
	Opaque  bool
	Column  ColumnRef // zero value when IsStar or Opaque

	IsCount      bool      // true for COUNT(...) projections, star or not
	CountIsStar  bool      // true for COUNT(*)
	CountColumn  ColumnRef // valid when IsCount && !CountIsStar
}

// JoinEdge is one join operator in the FROM clause, in textual order.
type JoinEdge struct {
	Kind       JoinKind
	Right      RelRef
	OnColumns  []ColumnRef // empty when the join condition is missing
	HasOnClause bool
}

// EqualityPredicate is one `column = literal` (or `column = $1`) predicate.
type EqualityPredicate struct {
	Column  ColumnRef
	Literal LiteralShape
}

// RangePredicate is one comparison/BETWEEN/IN predicate over a column.
type RangePredicate struct {
	Column ColumnRef
	Kind   RangeKind
}

// OrderKey is one ORDER BY entry, in textual order.
type OrderKey struct {
	Column    ColumnRef
	Direction Direction
}

// GroupKey is one GROUP BY entry, in textual order.
type GroupKey struct {
	Column ColumnRef
}

// SubqueryPatternKind names a fixed set of WHERE/FROM subquery shapes the
// rewrite advisor matches against (spec.md section 4.2).
type SubqueryPatternKind int

const (
	SubqueryNone SubqueryPatternKind = iota
	SubqueryInUncorrelated
	SubqueryExistsCorrelated
	SubqueryExistsUncorrelated
	SubqueryNotInNullable
	SubqueryScalarFromAggregate
)

// SubqueryPattern records the existence and shallow shape of a WHERE/FROM
// subquery; the recursive structure itself is not retained, only what the
// rewrite advisor's fixed pattern set needs (spec.md section 4.2).
type SubqueryPattern struct {
	Kind               SubqueryPatternKind
	OuterColumn        ColumnRef // column being tested, e.g. `x IN (subquery)`
	CorrelationColumns []ColumnRef
	TargetColumn       ColumnRef // subquery's own single SELECT target, resolved against its own FROM scope; zero value when unresolvable (expression, star, multiple targets)
	NullableColumn     bool      // RHS column is nullable per schema, for NOT IN; resolved and set by the rewrite advisor from TargetColumn, not by the parser
}

// SetOpKind enumerates the set operators recorded for UNION-family rewrites.
type SetOpKind int

const (
	SetOpNone SetOpKind = iota
	SetOpUnion
	SetOpUnionAll
	SetOpIntersect
	SetOpExcept
)

// OrChain records a disjunction of equality predicates over a single column,
// used by the OR-chain -> IN rewrite rule.
type OrChain struct {
	Column ColumnRef
	Count  int
}

// LikePredicate records a LIKE predicate whose pattern starts with a
// wildcard, used by the leading-wildcard rewrite rule.
type LikePredicate struct {
	Column         ColumnRef
	LeadingWildcard bool
}

// QueryModel is the normalized representation of one SELECT statement,
// spec.md section 3. It is built once by Parse; afterward the only write is
// the rewrite advisor recording SubqueryPattern.NullableColumn.
type QueryModel struct {
	StatementKind StatementKind
	RawSQL        string

	Relations   []Relation
	Projections []Projection
	Joins       []JoinEdge

	EqualityPredicates []EqualityPredicate
	RangePredicates    []RangePredicate

	OrderKeys []OrderKey
	GroupKeys []GroupKey
	Limit     *int64

	Distinct bool

	Subqueries []SubqueryPattern
	SetOp      SetOpKind
	SetOpLegs  []*QueryModel // for UNION/UNION ALL rewrite, the selects combined

	OrChains       []OrChain
	LikePredicates []LikePredicate

	AmbiguousColumns []ColumnRef

	// ParseErr is set when the parser could not produce any tree at all;
	// StatementKind is then StatementOther and every other field except
	// RawSQL is left empty.
	ParseErr error
}

// RelationByRef returns the Relation declaration addressed by ref, if any.
func (m *QueryModel) RelationByRef(ref RelRef) (Relation, bool) {
	for _, r := range m.Relations {
		if r.Ref() == ref {
			return r, true
		}
	}
	return Relation{}, false
}

// ColumnPools holds the (relation, column) refs touching one relation from
// equality predicates, range predicates, order keys, group keys and join
// edges, in the pool partition the index advisor needs (spec.md section 4.6
// step 2). Pools does not deduplicate within a partition.
type ColumnPools struct {
	Equality []ColumnRef
	Range    []ColumnRef
	Order    []OrderKey
	Group    []ColumnRef
	Join     []ColumnRef
}

// Pools partitions this model's columns for relation ref, preserving
// textual/model order within each partition.
func (m *QueryModel) Pools(ref RelRef) ColumnPools {
	var p ColumnPools
	for _, e := range m.EqualityPredicates {
		if e.Column.Relation == ref {
			p.Equality = append(p.Equality, e.Column)
		}
	}
	for _, r := range m.RangePredicates {
		if r.Column.Relation == ref {
			p.Range = append(p.Range, r.Column)
		}
	}
	for _, o := range m.OrderKeys {
		if o.Column.Relation == ref {
			p.Order = append(p.Order, o)
		}
	}
	for _, g := range m.GroupKeys {
		if g.Column.Relation == ref {
			p.Group = append(p.Group, g.Column)
		}
	}
	for _, j := range m.Joins {
		for _, c := range j.OnColumns {
			if c.Relation == ref {
				p.Join = append(p.Join, c)
			}
		}
	}
	return p
}
