package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
)

// ErrUnavailable marks failures to reach the graph store at all, as
// opposed to a statement that failed.
var ErrUnavailable = errors.New("graph store unavailable")

// GraphStore is the property-graph collaborator. Writes are only used by a
// full rebuild; reads are used by retrieval.
type GraphStore interface {
	// Wipe deletes every node and relationship.
	Wipe(ctx context.Context) error
	// CreateNodes creates one node per entry, labelled with its type, and
	// returns how many were created.
	CreateNodes(ctx context.Context, nodes []common.Node) (int, error)
	// CreateEdges creates one typed relation per entry between the nodes
	// whose name matches Source and Target, and returns how many were
	// created.
	CreateEdges(ctx context.Context, edges []common.Edge) (int, error)

	// CountNodes counts nodes that carry any of labels.
	CountNodes(ctx context.Context, labels []common.EntityType) (int, error)
	// Neighbors returns up to limit relations touching a node whose name is
	// in names. Each relation is reported once, oriented as stored.
	Neighbors(ctx context.Context, names []string, limit int) ([]common.GraphHit, error)

	Close(ctx context.Context) error
}

// GroupNodes splits nodes by label, keeping input order inside each group
// and returning labels in first-seen order.
func GroupNodes(nodes []common.Node) ([]common.EntityType, map[common.EntityType][]common.Node) {
	var order []common.EntityType
	groups := make(map[common.EntityType][]common.Node)
	for _, n := range nodes {
		if _, ok := groups[n.Label]; !ok {
			order = append(order, n.Label)
		}
		groups[n.Label] = append(groups[n.Label], n)
	}
	return order, groups
}

// GroupEdges splits edges by relation token, keeping input order inside
// each group and returning tokens in first-seen order.
func GroupEdges(edges []common.Edge) ([]string, map[string][]common.Edge) {
	var order []string
	groups := make(map[string][]common.Edge)
	for _, e := range edges {
		if _, ok := groups[e.Type]; !ok {
			order = append(order, e.Type)
		}
		groups[e.Type] = append(groups[e.Type], e)
	}
	return order, groups
}
