package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
)

// ErrLoadInterrupted marks a rebuild that stopped after the old graph was
// (possibly) deleted. The persisted graph is partial until the load is run
// again.
var ErrLoadInterrupted = errors.New("graph load interrupted")

// LoadStep names the stage of a rebuild.
type LoadStep string

const (
	LoadStepWipe  LoadStep = "wipe"
	LoadStepNodes LoadStep = "nodes"
	LoadStepEdges LoadStep = "edges"
)

// LoadError reports the step at which a rebuild failed. It matches both
// ErrLoadInterrupted and the underlying cause with errors.Is.
type LoadError struct {
	Step LoadStep
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("graph load interrupted at %s step, graph may be partial: %v", e.Step, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadInterrupted, e.Err}
}

// LoadResult counts what a rebuild wrote.
type LoadResult struct {
	NodesCreated int `json:"nodes_created"`
	EdgesCreated int `json:"edges_created"`
	// EdgesSkipped counts edges whose endpoints were not in the node batch.
	EdgesSkipped int `json:"edges_skipped"`
}

// Load replaces the whole persisted graph with nodes and edges: it deletes
// everything, creates the nodes, then creates the edges. The sequence is
// not transactional. Readers may see an empty or partial graph while it
// runs, and a failure leaves the graph partial; both are reported as a
// *LoadError.
func Load(ctx context.Context, s store.GraphStore, nodes []common.Node, edges []common.Edge) (LoadResult, error) {
	var res LoadResult
	start := time.Now()

	names := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		names[n.Name] = struct{}{}
	}
	batch := make([]common.Edge, 0, len(edges))
	for _, e := range edges {
		_, okS := names[e.Source]
		_, okT := names[e.Target]
		if !okS || !okT {
			res.EdgesSkipped++
			continue
		}
		batch = append(batch, e)
	}

	logger.Warn("[Graph] Rebuilding graph, existing content will be deleted",
		"nodes", len(nodes),
		"edges", len(batch),
	)

	if err := s.Wipe(ctx); err != nil {
		return res, &LoadError{Step: LoadStepWipe, Err: err}
	}

	n, err := s.CreateNodes(ctx, nodes)
	res.NodesCreated = n
	if err != nil {
		return res, &LoadError{Step: LoadStepNodes, Err: err}
	}

	n, err = s.CreateEdges(ctx, batch)
	res.EdgesCreated = n
	if err != nil {
		return res, &LoadError{Step: LoadStepEdges, Err: err}
	}

	logger.Info("[Graph] Graph rebuilt",
		"nodes_created", res.NodesCreated,
		"edges_created", res.EdgesCreated,
		"edges_skipped", res.EdgesSkipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}
