package alias

import (
	"strings"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
)

type entry struct {
	group  int
	groups []int
}

// Resolver answers alias lookups against a Table. It is immutable and safe
// for concurrent use.
type Resolver struct {
	table *Table
	index map[string]*entry
}

// NewResolver indexes the person groups of t. A nil table resolves every
// name to itself.
func NewResolver(t *Table) *Resolver {
	r := &Resolver{table: t, index: make(map[string]*entry)}
	if t == nil {
		return r
	}
	for gi, g := range t.Groups {
		if g.Category != CategoryPerson {
			continue
		}
		keys := append([]string{strings.ToLower(g.Canonical)}, g.Aliases...)
		for _, k := range keys {
			e, ok := r.index[k]
			if !ok {
				r.index[k] = &entry{group: gi, groups: []int{gi}}
				continue
			}
			if e.groups[len(e.groups)-1] != gi {
				e.groups = append(e.groups, gi)
			}
		}
	}
	return r
}

// Resolve maps raw to its canonical name. Only person-category entity types
// are resolved; everything else, and every name without a matching alias,
// is returned unchanged.
//
// Matching is case-insensitive against the aliases and the canonical name
// of each group. If several groups match, the one declared first wins and
// the ambiguity is logged.
func (r *Resolver) Resolve(raw string, entityType string) string {
	canonical, _ := r.Lookup(raw, entityType)
	return canonical
}

// Lookup is Resolve that also reports whether a group matched.
func (r *Resolver) Lookup(raw string, entityType string) (string, bool) {
	if r == nil || !common.IsPersonType(entityType) {
		return raw, false
	}
	key := strings.ToLower(strings.TrimSpace(raw))
	e, ok := r.index[key]
	if !ok {
		return raw, false
	}
	if len(e.groups) > 1 {
		names := make([]string, 0, len(e.groups))
		for _, gi := range e.groups {
			names = append(names, r.table.Groups[gi].Canonical)
		}
		logger.Warn("[Alias] Ambiguous alias, using first group",
			"alias", key,
			"chosen", r.table.Groups[e.group].Canonical,
			"groups", strings.Join(names, ", "),
		)
	}
	return r.table.Groups[e.group].Canonical, true
}

// Ambiguous lists aliases that belong to more than one person group, with
// the canonical names involved in declaration order.
func (r *Resolver) Ambiguous() map[string][]string {
	out := make(map[string][]string)
	for k, e := range r.index {
		if len(e.groups) < 2 {
			continue
		}
		for _, gi := range e.groups {
			out[k] = append(out[k], r.table.Groups[gi].Canonical)
		}
	}
	return out
}
