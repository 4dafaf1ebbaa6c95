package graph

import (
	"github.com/OFFIS-RIT/bookgraph/pkg/alias"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
)

// MergeStats describes what MergeEntities did with its input.
type MergeStats struct {
	Input         int
	Nodes         int
	Duplicates    int
	TypeConflicts int
	// Unnamed counts entities whose name has no letter or digit.
	Unnamed int
	// UnknownTypes counts entities whose type label is not recognised.
	// They are stored as items.
	UnknownTypes int
}

// Canonicalize replaces each person name with its canonical name and
// records the resulting identifier of every entity in rc, so that edge
// normalization can reuse it. Input order is kept.
func Canonicalize(rc *alias.Context, entities []common.Entity) []common.Entity {
	out := make([]common.Entity, 0, len(entities))
	for _, e := range entities {
		canonical := rc.Resolver.Resolve(e.Name, e.Type)
		if id := SanitizeName(canonical); id != "" {
			rc.Remember(e.Name, id)
		}
		e.Name = canonical
		out = append(out, e)
	}
	return out
}

// MergeEntities collapses canonicalized entities into one node per
// sanitized name. The first record seen for a name supplies the node's
// description, type and singular flag; later duplicates contribute
// nothing. A later duplicate with a different type is logged and counted,
// never treated as an error.
func MergeEntities(entities []common.Entity) ([]common.Node, MergeStats) {
	stats := MergeStats{Input: len(entities)}
	nodes := make([]common.Node, 0, len(entities))
	seen := make(map[string]int, len(entities))

	for _, e := range entities {
		name := SanitizeName(e.Name)
		if name == "" {
			stats.Unnamed++
			logger.Debug("[Graph] Dropping entity without a usable name", "name", e.Name)
			continue
		}
		label, ok := common.NormalizeEntityType(e.Type)
		if !ok {
			stats.UnknownTypes++
			label = common.EntityTypeItem
		}

		if idx, dup := seen[name]; dup {
			stats.Duplicates++
			if nodes[idx].Label != label {
				stats.TypeConflicts++
				logger.Warn("[Graph] Entity type conflict, keeping first type",
					"name", name,
					"kept", nodes[idx].Label,
					"ignored", label,
				)
			}
			continue
		}

		seen[name] = len(nodes)
		nodes = append(nodes, common.Node{
			Label:       label,
			Name:        name,
			Description: e.Description,
			Singular:    e.Singular,
		})
	}

	stats.Nodes = len(nodes)
	return nodes, stats
}
