// Package memory is an in-process GraphStore. It follows the same matching
// rules as the Neo4j store and is used for tests, dry runs and offline
// answering over a graph exported to JSON.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
	"github.com/OFFIS-RIT/bookgraph/pkg/store/cypher"
)

type Store struct {
	mu    sync.RWMutex
	nodes []common.Node
	edges []common.Edge
	// index of first node per name
	byName map[string]int
}

func New() *Store {
	return &Store{byName: make(map[string]int)}
}

var _ store.GraphStore = (*Store)(nil)

func (s *Store) Wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nil
	s.edges = nil
	s.byName = make(map[string]int)
	return ctx.Err()
}

func (s *Store) CreateNodes(ctx context.Context, nodes []common.Node) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		if _, ok := s.byName[n.Name]; !ok {
			s.byName[n.Name] = len(s.nodes)
		}
		s.nodes = append(s.nodes, n)
	}
	return len(nodes), nil
}

// CreateEdges stores one relation per edge whose endpoints both exist.
// Like MATCH ... CREATE, unmatched rows are skipped silently.
func (s *Store) CreateEdges(ctx context.Context, edges []common.Edge) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, e := range edges {
		_, okS := s.byName[e.Source]
		_, okT := s.byName[e.Target]
		if !okS || !okT {
			continue
		}
		s.edges = append(s.edges, e)
		created++
	}
	return created, nil
}

func (s *Store) CountNodes(ctx context.Context, labels []common.EntityType) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, node := range s.nodes {
		if slices.Contains(labels, node.Label) {
			n++
		}
	}
	return n, nil
}

// Neighbors scans relations in insertion order. Relation types are
// reported unquoted, as type(r) does.
func (s *Store) Neighbors(ctx context.Context, names []string, limit int) ([]common.GraphHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []common.GraphHit
	for _, e := range s.edges {
		if limit > 0 && len(hits) >= limit {
			break
		}
		_, okS := want[e.Source]
		_, okT := want[e.Target]
		if !okS && !okT {
			continue
		}
		hits = append(hits, common.GraphHit{
			Source:            e.Source,
			RelationType:      cypher.UnquoteIdentifier(e.Type),
			RelationDesc:      e.Description,
			Target:            e.Target,
			TargetDescription: s.nodes[s.byName[e.Target]].Description,
		})
	}
	return hits, nil
}

func (s *Store) Close(context.Context) error { return nil }

type snapshot struct {
	Nodes []common.Node `json:"nodes"`
	Edges []common.Edge `json:"edges"`
}

// Export writes the current graph as JSON.
func (s *Store) Export(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Nodes: s.nodes, Edges: s.edges}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Open loads a graph written by Export.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode graph snapshot: %w", err)
	}
	s := New()
	ctx := context.Background()
	if _, err := s.CreateNodes(ctx, snap.Nodes); err != nil {
		return nil, err
	}
	if _, err := s.CreateEdges(ctx, snap.Edges); err != nil {
		return nil, err
	}
	return s, nil
}
