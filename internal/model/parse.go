package model

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/queryadvisor/pgopt/internal/util"
)

// Parse turns SQL text into a QueryModel, spec.md section 4.2. It fails only
// when pg_query cannot produce any tree at all; on success but non-SELECT
// input it returns StatementOther carrying only RawSQL: no relations,
// projections or predicates are extracted from a non-SELECT statement.
//
// Parsing is delegated to the real PostgreSQL grammar via pg_query_go (the
// same library the teacher's database/postgres/parser.go drives for DDL
// splitting), so operator precedence, quoting, and clause nesting match the
// server's own parser rather than an approximation.
func Parse(sql string) *QueryModel {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return &QueryModel{
			StatementKind: StatementOther,
			RawSQL:        sql,
			ParseErr:      err,
		}
	}
	if len(result.Stmts) == 0 {
		return &QueryModel{StatementKind: StatementOther, RawSQL: sql}
	}

	raw := result.Stmts[0]
	sel := raw.GetStmt().GetSelectStmt()
	if sel == nil {
		return &QueryModel{StatementKind: StatementOther, RawSQL: sql}
	}

	b := &builder{m: &QueryModel{StatementKind: StatementSelect, RawSQL: sql}}
	b.buildSelect(sel)
	return b.m
}

// builder accumulates a QueryModel while walking one SelectStmt tree. It is
// not reused across statements.
type builder struct {
	m *QueryModel
	// relRefs lists every relation addressable in this statement's scope,
	// used to resolve unqualified column references.
	relRefs      []RelRef
	orChainCount map[string]int // "relref.column" -> equality-OR count
}

func (b *builder) buildSelect(sel *pg_query.SelectStmt) {
	if sel.GetOp() != pg_query.SetOperation_SETOP_NONE {
		b.buildSetOp(sel)
		return
	}

	for _, f := range sel.GetFromClause() {
		b.walkFromItem(f, JoinInner, true)
	}

	b.m.Distinct = len(sel.GetDistinctClause()) > 0

	for _, t := range sel.GetTargetList() {
		b.addProjection(t)
	}

	if w := sel.GetWhereClause(); w != nil {
		b.walkWhere(w, false)
	}

	for _, g := range sel.GetGroupClause() {
		if cr := b.resolveExprColumn(g); cr != nil {
			b.m.GroupKeys = append(b.m.GroupKeys, GroupKey{Column: *cr})
		}
	}

	for _, s := range sel.GetSortClause() {
		sb := s.GetSortBy()
		if sb == nil {
			continue
		}
		cr := b.resolveExprColumn(sb.GetNode())
		if cr == nil {
			continue
		}
		dir := Asc
		if sb.GetSortbyDir() == pg_query.SortByDir_SORTBY_DESC {
			dir = Desc
		}
		b.m.OrderKeys = append(b.m.OrderKeys, OrderKey{Column: *cr, Direction: dir})
	}

	if lc := sel.GetLimitCount(); lc != nil {
		if ac := lc.GetAConst(); ac != nil {
			if iv := ac.GetIval(); iv != nil {
				n := iv.GetIval()
				b.m.Limit = &n
			}
		}
	}

	b.finalizeOrChains()
}

func (b *builder) buildSetOp(sel *pg_query.SelectStmt) {
	switch sel.GetOp() {
	case pg_query.SetOperation_SETOP_UNION:
		if sel.GetAll() {
			b.m.SetOp = SetOpUnionAll
		} else {
			b.m.SetOp = SetOpUnion
		}
	case pg_query.SetOperation_SETOP_INTERSECT:
		b.m.SetOp = SetOpIntersect
	case pg_query.SetOperation_SETOP_EXCEPT:
		b.m.SetOp = SetOpExcept
	}
	b.m.StatementKind = StatementSelect
	for _, leg := range []*pg_query.SelectStmt{sel.GetLarg(), sel.GetRarg()} {
		if leg == nil {
			continue
		}
		lb := &builder{m: &QueryModel{StatementKind: StatementSelect, RawSQL: b.m.RawSQL}}
		lb.buildSelect(leg)
		b.m.SetOpLegs = append(b.m.SetOpLegs, lb.m)
	}
	// Surface the first leg's projections/relations so non-set-op advisors
	// (lint, index) still see something sensible for the combined query.
	if len(b.m.SetOpLegs) > 0 {
		first := b.m.SetOpLegs[0]
		b.m.Relations = first.Relations
		b.m.Projections = first.Projections
	}
}

// walkFromItem registers relations and joins found in one FROM-clause entry.
// isTopLevelComma marks direct siblings of a multi-table FROM list, which is
// the classic implicit comma join.
func (b *builder) walkFromItem(n *pg_query.Node, _ JoinKind, isTopLevelComma bool) {
	switch {
	case n.GetRangeVar() != nil:
		rv := n.GetRangeVar()
		rel := Relation{Name: rv.GetRelname()}
		if al := rv.GetAlias(); al != nil {
			rel.Alias = al.GetAliasname()
		}
		b.m.Relations = append(b.m.Relations, rel)
		b.relRefs = append(b.relRefs, rel.Ref())
		if isTopLevelComma && len(b.m.Relations) > 1 {
			b.m.Joins = append(b.m.Joins, JoinEdge{Kind: JoinImplicitComma, Right: rel.Ref()})
		}

	case n.GetJoinExpr() != nil:
		je := n.GetJoinExpr()
		b.walkFromItem(je.GetLarg(), JoinInner, false)

		beforeRight := len(b.m.Relations)
		b.walkFromItem(je.GetRarg(), JoinInner, false)
		var rightRef RelRef
		if len(b.m.Relations) > beforeRight {
			rightRef = b.m.Relations[len(b.m.Relations)-1].Ref()
		}

		edge := JoinEdge{Kind: joinKindOf(je), Right: rightRef}
		if q := je.GetQuals(); q != nil {
			edge.HasOnClause = true
			edge.OnColumns = b.collectEqualityColumns(q)
		}
		if len(je.GetUsingClause()) > 0 {
			edge.HasOnClause = true
			for _, u := range je.GetUsingClause() {
				if s := u.GetString_(); s != nil {
					edge.OnColumns = append(edge.OnColumns, ColumnRef{Relation: rightRef, Column: s.GetSval()})
				}
			}
		}
		b.m.Joins = append(b.m.Joins, edge)

	case n.GetRangeSubselect() != nil:
		// Derived table: record existence via a subquery pattern, skip
		// recursive relation extraction (spec.md section 4.2).
		b.m.Subqueries = append(b.m.Subqueries, SubqueryPattern{Kind: SubqueryNone})
	}
}

func joinKindOf(je *pg_query.JoinExpr) JoinKind {
	switch je.GetJointype() {
	case pg_query.JoinType_JOIN_LEFT:
		return JoinLeft
	case pg_query.JoinType_JOIN_RIGHT:
		return JoinRight
	case pg_query.JoinType_JOIN_FULL:
		return JoinFull
	case pg_query.JoinType_JOIN_INNER:
		if je.GetQuals() == nil && len(je.GetUsingClause()) == 0 && !je.GetIsNatural() {
			return JoinCross
		}
		return JoinInner
	default:
		return JoinInner
	}
}

// collectEqualityColumns extracts the columns referenced by a join's ON/USING
// qualification, used for the join column pool in the index advisor.
func (b *builder) collectEqualityColumns(n *pg_query.Node) []ColumnRef {
	var out []ColumnRef
	var walk func(n *pg_query.Node)
	walk = func(n *pg_query.Node) {
		if n == nil {
			return
		}
		if be := n.GetBoolExpr(); be != nil {
			for _, a := range be.GetArgs() {
				walk(a)
			}
			return
		}
		if ae := n.GetAExpr(); ae != nil {
			if cr := b.resolveExprColumn(ae.GetLexpr()); cr != nil {
				out = append(out, *cr)
			}
			if cr := b.resolveExprColumn(ae.GetRexpr()); cr != nil {
				out = append(out, *cr)
			}
		}
	}
	walk(n)
	return out
}

func (b *builder) addProjection(t *pg_query.Node) {
	rt := t.GetResTarget()
	if rt == nil {
		return
	}
	val := rt.GetVal()
	if cref := val.GetColumnRef(); cref != nil {
		if isStarRef(cref) {
			b.m.Projections = append(b.m.Projections, Projection{IsStar: true})
			return
		}
		if cr := b.resolveColumnRef(cref); cr != nil {
			b.m.Projections = append(b.m.Projections, Projection{Column: *cr})
			return
		}
	}
	if fc := val.GetFuncCall(); fc != nil && isCountFunc(fc) {
		b.m.Projections = append(b.m.Projections, b.countProjection(fc))
		return
	}
	// Anything else (other function call, arithmetic, CASE, subquery, ...)
	// is an opaque computed projection (spec.md section 4.2).
	b.m.Projections = append(b.m.Projections, Projection{Opaque: true})
}

func isCountFunc(fc *pg_query.FuncCall) bool {
	names := fc.GetFuncname()
	if len(names) == 0 {
		return false
	}
	last := names[len(names)-1].GetString_()
	return last != nil && strings.EqualFold(last.GetSval(), "count")
}

func (b *builder) countProjection(fc *pg_query.FuncCall) Projection {
	if fc.GetAggStar() {
		return Projection{IsCount: true, CountIsStar: true}
	}
	args := fc.GetArgs()
	if len(args) == 1 {
		if cr := b.resolveExprColumn(args[0]); cr != nil {
			return Projection{IsCount: true, CountColumn: *cr}
		}
	}
	// COUNT(expr) over anything but a bare column is opaque for the
	// COUNT(col) -> COUNT(*) rule's purposes.
	return Projection{IsCount: true, Opaque: true}
}

func isStarRef(cref *pg_query.ColumnRef) bool {
	fields := cref.GetFields()
	if len(fields) == 0 {
		return false
	}
	return fields[len(fields)-1].GetAStar() != nil
}

// resolveColumnRef turns a ColumnRef node into a model ColumnRef, resolving
// the relation qualifier when present and marking the column ambiguous
// (AmbiguousRef) when it is unqualified and more than one relation is in
// scope, per spec.md section 4.2.
func (b *builder) resolveColumnRef(cref *pg_query.ColumnRef) *ColumnRef {
	fields := cref.GetFields()
	var parts []string
	for _, f := range fields {
		if s := f.GetString_(); s != nil {
			parts = append(parts, s.GetSval())
		}
	}
	if len(parts) == 0 {
		return nil
	}
	col := parts[len(parts)-1]
	if len(parts) >= 2 {
		ref := RelRef(parts[len(parts)-2])
		return &ColumnRef{Relation: ref, Column: col}
	}
	if len(b.relRefs) == 1 {
		return &ColumnRef{Relation: b.relRefs[0], Column: col}
	}
	ambiguous := ColumnRef{Relation: AmbiguousRef, Column: col}
	b.m.AmbiguousColumns = append(b.m.AmbiguousColumns, ambiguous)
	return &ambiguous
}

// resolveExprColumn resolves a bare column reference out of an arbitrary
// expression node, returning nil for anything that is not a plain column
// (function calls, literals, etc.), matching spec.md section 4.2's treatment
// of computed expressions as opaque.
func (b *builder) resolveExprColumn(n *pg_query.Node) *ColumnRef {
	if n == nil {
		return nil
	}
	if cref := n.GetColumnRef(); cref != nil {
		return b.resolveColumnRef(cref)
	}
	return nil
}

// walkWhere decomposes the WHERE clause into equality/range predicates, LIKE
// predicates, OR chains and subquery patterns. negated tracks whether we are
// under a NOT, needed for NOT IN / NOT EXISTS detection.
func (b *builder) walkWhere(n *pg_query.Node, negated bool) {
	if n == nil {
		return
	}
	if be := n.GetBoolExpr(); be != nil {
		switch be.GetBoolop() {
		case pg_query.BoolExprType_NOT_EXPR:
			for _, a := range be.GetArgs() {
				b.walkWhere(a, !negated)
			}
		case pg_query.BoolExprType_OR_EXPR:
			b.walkOrChain(n)
			for _, a := range be.GetArgs() {
				b.walkWhere(a, negated)
			}
		default: // AND_EXPR
			for _, a := range be.GetArgs() {
				b.walkWhere(a, negated)
			}
		}
		return
	}

	if sl := n.GetSubLink(); sl != nil {
		b.walkSubLink(sl, negated)
		return
	}

	if ae := n.GetAExpr(); ae != nil {
		b.walkAExpr(ae, negated)
		return
	}
}

func (b *builder) walkAExpr(ae *pg_query.A_Expr, negated bool) {
	cr := b.resolveExprColumn(ae.GetLexpr())
	if cr == nil {
		cr = b.resolveExprColumn(ae.GetRexpr())
	}
	if cr == nil {
		return
	}

	switch ae.GetKind() {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		op := opName(ae)
		switch op {
		case "=":
			if !negated {
				b.m.EqualityPredicates = append(b.m.EqualityPredicates, EqualityPredicate{
					Column:  *cr,
					Literal: literalShapeOf(ae.GetRexpr()),
				})
			}
		case "<":
			b.m.RangePredicates = append(b.m.RangePredicates, RangePredicate{Column: *cr, Kind: RangeLT})
		case "<=":
			b.m.RangePredicates = append(b.m.RangePredicates, RangePredicate{Column: *cr, Kind: RangeLE})
		case ">":
			b.m.RangePredicates = append(b.m.RangePredicates, RangePredicate{Column: *cr, Kind: RangeGT})
		case ">=":
			b.m.RangePredicates = append(b.m.RangePredicates, RangePredicate{Column: *cr, Kind: RangeGE})
		}
	case pg_query.A_Expr_Kind_AEXPR_IN:
		b.m.RangePredicates = append(b.m.RangePredicates, RangePredicate{Column: *cr, Kind: RangeIn})
	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_BETWEEN_SYM:
		b.m.RangePredicates = append(b.m.RangePredicates, RangePredicate{Column: *cr, Kind: RangeBetween})
	case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
		leading := aConstStartsWithWildcard(ae.GetRexpr())
		b.m.LikePredicates = append(b.m.LikePredicates, LikePredicate{Column: *cr, LeadingWildcard: leading})
	}
}

func opName(ae *pg_query.A_Expr) string {
	for _, n := range ae.GetName() {
		if s := n.GetString_(); s != nil {
			return s.GetSval()
		}
	}
	return ""
}

func literalShapeOf(n *pg_query.Node) LiteralShape {
	if n == nil {
		return LiteralUnknown
	}
	if n.GetParamRef() != nil {
		return LiteralParameter
	}
	ac := n.GetAConst()
	if ac == nil {
		return LiteralUnknown
	}
	switch {
	case ac.GetIsnull():
		return LiteralNull
	case ac.GetIval() != nil:
		return LiteralInteger
	case ac.GetFval() != nil:
		return LiteralDecimal
	case ac.GetBoolval() != nil:
		return LiteralBoolean
	case ac.GetSval() != nil:
		return LiteralText
	}
	return LiteralUnknown
}

func aConstStartsWithWildcard(n *pg_query.Node) bool {
	ac := n.GetAConst()
	if ac == nil {
		return false
	}
	s := ac.GetSval()
	if s == nil {
		return false
	}
	v := s.GetSval()
	return strings.HasPrefix(v, "%") || strings.HasPrefix(v, "_")
}

// walkOrChain counts equality ORs over the same column for the OR-chain ->
// IN rewrite rule (spec.md section 4.5), requiring >=3 to trigger.
func (b *builder) walkOrChain(n *pg_query.Node) {
	be := n.GetBoolExpr()
	if be == nil || be.GetBoolop() != pg_query.BoolExprType_OR_EXPR {
		return
	}
	counts := map[string]OrChain{}
	var collect func(n *pg_query.Node)
	collect = func(n *pg_query.Node) {
		if n == nil {
			return
		}
		if inner := n.GetBoolExpr(); inner != nil && inner.GetBoolop() == pg_query.BoolExprType_OR_EXPR {
			for _, a := range inner.GetArgs() {
				collect(a)
			}
			return
		}
		if ae := n.GetAExpr(); ae != nil && ae.GetKind() == pg_query.A_Expr_Kind_AEXPR_OP && opName(ae) == "=" {
			if cr := b.resolveExprColumn(ae.GetLexpr()); cr != nil {
				key := string(cr.Relation) + "." + cr.Column
				entry := counts[key]
				entry.Column = *cr
				entry.Count++
				counts[key] = entry
			}
		}
	}
	collect(n)
	// CanonicalMapIter walks counts in sorted-key order so OrChains never
	// depends on Go's randomized map iteration (spec.md section 9).
	for _, chain := range util.CanonicalMapIter(counts) {
		if chain.Count >= 3 {
			b.m.OrChains = append(b.m.OrChains, chain)
		}
	}
}

func (b *builder) finalizeOrChains() {} // placeholder for future normalization; chains are already deduped by map above

func (b *builder) walkSubLink(sl *pg_query.SubLink, negated bool) {
	sub := sl.GetSubselect().GetSelectStmt()
	pat := SubqueryPattern{}
	switch sl.GetSubLinkType() {
	case pg_query.SubLinkType_ANY_SUBLINK:
		if negated {
			pat.Kind = SubqueryNotInNullable
		} else if b.isCorrelated(sub) {
			pat.Kind = SubqueryExistsCorrelated
		} else {
			pat.Kind = SubqueryInUncorrelated
		}
		if cr := b.resolveExprColumn(sl.GetTestexpr()); cr != nil {
			pat.OuterColumn = *cr
		}
		if cr := subqueryTargetColumn(sub); cr != nil {
			pat.TargetColumn = *cr
		}
	case pg_query.SubLinkType_EXISTS_SUBLINK:
		if b.isCorrelated(sub) {
			pat.Kind = SubqueryExistsCorrelated
			pat.CorrelationColumns = b.correlationColumns(sub)
		} else {
			pat.Kind = SubqueryExistsUncorrelated
		}
	case pg_query.SubLinkType_EXPR_SUBLINK:
		pat.Kind = SubqueryScalarFromAggregate
	default:
		pat.Kind = SubqueryNone
	}
	b.m.Subqueries = append(b.m.Subqueries, pat)
}

// subqueryTargetColumn resolves a subquery's single SELECT target to a bare
// column reference scoped to the subquery's own FROM list, independent of
// the outer query's relations -- this is the column a NOT IN (subquery)
// compares against, whose nullability decides whether the NOT IN -> NOT
// EXISTS rewrite rule fires (spec.md section 4.5). Returns nil for anything
// that is not exactly one bare column reference (star, expression,
// aggregate, multiple targets).
func subqueryTargetColumn(sub *pg_query.SelectStmt) *ColumnRef {
	if sub == nil {
		return nil
	}
	targets := sub.GetTargetList()
	if len(targets) != 1 {
		return nil
	}
	cref := targets[0].GetResTarget().GetVal().GetColumnRef()
	if cref == nil {
		return nil
	}
	var parts []string
	for _, f := range cref.GetFields() {
		if s := f.GetString_(); s != nil {
			parts = append(parts, s.GetSval())
		}
	}
	if len(parts) == 0 {
		return nil
	}
	col := parts[len(parts)-1]
	if len(parts) >= 2 {
		return &ColumnRef{Relation: RelRef(parts[len(parts)-2]), Column: col}
	}
	var relRefs []RelRef
	for _, f := range sub.GetFromClause() {
		if rv := f.GetRangeVar(); rv != nil {
			ref := RelRef(rv.GetRelname())
			if al := rv.GetAlias(); al != nil {
				ref = RelRef(al.GetAliasname())
			}
			relRefs = append(relRefs, ref)
		}
	}
	if len(relRefs) == 1 {
		return &ColumnRef{Relation: relRefs[0], Column: col}
	}
	return &ColumnRef{Relation: AmbiguousRef, Column: col}
}

// isCorrelated reports whether sub's WHERE clause references a relation
// outside of its own FROM list -- a coarse but deterministic correlation
// check sufficient for the rewrite advisor's fixed pattern set.
func (b *builder) isCorrelated(sub *pg_query.SelectStmt) bool {
	if sub == nil {
		return false
	}
	inner := map[RelRef]bool{}
	for _, f := range sub.GetFromClause() {
		if rv := f.GetRangeVar(); rv != nil {
			ref := RelRef(rv.GetRelname())
			if al := rv.GetAlias(); al != nil {
				ref = RelRef(al.GetAliasname())
			}
			inner[ref] = true
		}
	}
	correlated := false
	var walk func(n *pg_query.Node)
	walk = func(n *pg_query.Node) {
		if n == nil || correlated {
			return
		}
		if cref := n.GetColumnRef(); cref != nil {
			if cr := b.resolveColumnRef(cref); cr != nil && cr.Relation != AmbiguousRef && !inner[cr.Relation] {
				for _, outer := range b.relRefs {
					if cr.Relation == outer {
						correlated = true
						return
					}
				}
			}
			return
		}
		if ae := n.GetAExpr(); ae != nil {
			walk(ae.GetLexpr())
			walk(ae.GetRexpr())
		}
		if be := n.GetBoolExpr(); be != nil {
			for _, a := range be.GetArgs() {
				walk(a)
			}
		}
	}
	walk(sub.GetWhereClause())
	return correlated
}

func (b *builder) correlationColumns(sub *pg_query.SelectStmt) []ColumnRef {
	var out []ColumnRef
	var walk func(n *pg_query.Node)
	walk = func(n *pg_query.Node) {
		if n == nil {
			return
		}
		if ae := n.GetAExpr(); ae != nil && opName(ae) == "=" {
			if cr := b.resolveExprColumn(ae.GetLexpr()); cr != nil {
				out = append(out, *cr)
			}
			if cr := b.resolveExprColumn(ae.GetRexpr()); cr != nil {
				out = append(out, *cr)
			}
		}
		if be := n.GetBoolExpr(); be != nil {
			for _, a := range be.GetArgs() {
				walk(a)
			}
		}
	}
	walk(sub.GetWhereClause())
	return out
}
