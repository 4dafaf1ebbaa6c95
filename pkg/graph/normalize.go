package graph

import (
	"github.com/OFFIS-RIT/bookgraph/pkg/alias"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
)

// endpoint maps a raw relationship endpoint onto the identifier its node
// was written under, or onto the sanitized raw name if no entity with that
// name was seen during the run.
func endpoint(rc *alias.Context, raw string) string {
	if id, ok := rc.Identifier(raw); ok {
		return id
	}
	return SanitizeName(raw)
}

// NormalizeRelationships rewrites relationship endpoints through rc,
// normalizes relation types and drops every relationship with an endpoint
// that is not among nodes. It returns the kept edges in input order and
// the number dropped; the two always add up to len(rels).
func NormalizeRelationships(
	rc *alias.Context,
	rels []common.Relationship,
	nodes []common.Node,
) ([]common.Edge, int) {
	names := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		names[n.Name] = struct{}{}
	}

	kept := make([]common.Edge, 0, len(rels))
	dropped := 0
	for _, r := range rels {
		src := endpoint(rc, r.Source)
		tgt := endpoint(rc, r.Target)
		_, okS := names[src]
		_, okT := names[tgt]
		if !okS || !okT {
			dropped++
			logger.Debug("[Graph] Dropping dangling relationship",
				"source", r.Source,
				"target", r.Target,
				"type", r.Type,
			)
			continue
		}
		kept = append(kept, common.Edge{
			Source:      src,
			Target:      tgt,
			Type:        RelationType(r.Type),
			Description: r.Description,
			Chapter:     r.Chapter,
		})
	}

	if dropped > 0 {
		logger.Warn("[Graph] Dropped dangling relationships", "dropped", dropped, "kept", len(kept))
	}
	return kept, dropped
}
