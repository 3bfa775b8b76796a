package graph

import (
	"fmt"
	"strings"
)

// Query builds parameterized Cypher node queries. Values never appear in the
// query text; every predicate binds an auto-named parameter, which keeps the
// store contract injection-free and lets backends cache plans.
//
// A query matches a pattern, filters it with AND-joined predicates (each of
// which may itself be an OR group), orders on one property, and limits the
// result:
//
//	q := graph.Match("(m:Methodology)", "m").
//	    WhereContains("m.situation", phase).
//	    OrderByDesc("m.confidence").
//	    Limit(5)
//	text, params := q.Build()
type Query struct {
	pattern string
	ret     string
	conds   []string
	params  map[string]any
	orderBy string
	desc    bool
	limit   int
	nparams int
}

// Match starts a query over the given Cypher pattern, returning ret.
func Match(pattern, ret string) *Query {
	return &Query{
		pattern: pattern,
		ret:     ret,
		params:  make(map[string]any),
	}
}

// MatchNode starts a single-node query over the given label, returning "n".
func MatchNode(label string) *Query {
	return Match(fmt.Sprintf("(n:%s)", label), "n")
}

// bind registers a value under a fresh parameter name.
func (q *Query) bind(value any) string {
	name := fmt.Sprintf("p%d", q.nparams)
	q.nparams++
	q.params[name] = value
	return name
}

// WhereEq adds an equality predicate on a property.
func (q *Query) WhereEq(prop string, value any) *Query {
	q.conds = append(q.conds, fmt.Sprintf("%s = $%s", prop, q.bind(value)))
	return q
}

// WhereContains adds a substring predicate on a property.
func (q *Query) WhereContains(prop, substr string) *Query {
	q.conds = append(q.conds, fmt.Sprintf("%s CONTAINS $%s", prop, q.bind(substr)))
	return q
}

// WhereNotNull requires the property to be present.
func (q *Query) WhereNotNull(prop string) *Query {
	q.conds = append(q.conds, prop+" IS NOT NULL")
	return q
}

// OrGroup groups alternative predicates into one OR-joined condition.
func (q *Query) OrGroup(build func(or *OrBuilder)) *Query {
	or := &OrBuilder{q: q}
	build(or)
	if len(or.conds) > 0 {
		q.conds = append(q.conds, "("+strings.Join(or.conds, " OR ")+")")
	}
	return q
}

// OrBuilder collects the alternatives of one OR group.
type OrBuilder struct {
	q     *Query
	conds []string
}

// Eq adds an equality alternative to the OR group.
func (o *OrBuilder) Eq(prop string, value any) *OrBuilder {
	o.conds = append(o.conds, fmt.Sprintf("%s = $%s", prop, o.q.bind(value)))
	return o
}

// Contains adds a substring alternative to the OR group.
func (o *OrBuilder) Contains(prop, substr string) *OrBuilder {
	o.conds = append(o.conds, fmt.Sprintf("%s CONTAINS $%s", prop, o.q.bind(substr)))
	return o
}

// OrderBy orders ascending on the property.
func (q *Query) OrderBy(prop string) *Query {
	q.orderBy = prop
	q.desc = false
	return q
}

// OrderByDesc orders descending on the property.
func (q *Query) OrderByDesc(prop string) *Query {
	q.orderBy = prop
	q.desc = true
	return q
}

// Limit caps the result size.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Build renders the query text and its parameter map.
func (q *Query) Build() (string, map[string]any) {
	var b strings.Builder
	b.WriteString("MATCH ")
	b.WriteString(q.pattern)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	b.WriteString(" RETURN ")
	b.WriteString(q.ret)
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
		if q.desc {
			b.WriteString(" DESC")
		}
	}
	if q.limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", q.limit))
	}
	return b.String(), q.params
}
