package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bookgraph/pkg/graph"
	"github.com/OFFIS-RIT/bookgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/bookgraph/pkg/loader"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
)

// RebuildMsg asks the worker to extract missing chapters and rebuild the
// graph.
type RebuildMsg struct {
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id"`
	Force         bool      `json:"force"`
	Summarize     bool      `json:"summarize"`
	RequestedAt   time.Time `json:"requested_at"`
}

// RebuiltMsg is published on TopicGraphRebuilt after a successful rebuild.
type RebuiltMsg struct {
	CorrelationID  string                 `json:"correlation_id"`
	Build          graph.BuildResult      `json:"build"`
	Extraction     graph.ExtractionReport `json:"extraction"`
	FailedChapters []string               `json:"failed_chapters,omitempty"`
}

// BookProcessor is implemented by *graph.GraphClient.
type BookProcessor interface {
	ProcessBook(ctx context.Context, source loader.Source, extractor *graph.Extractor) (graph.BuildResult, graph.ExtractionReport, error)
}

// Rebuilder handles rebuild jobs. Only one rebuild runs at a time across
// all workers sharing the Locker.
type Rebuilder struct {
	Graph  BookProcessor
	Source loader.Source
	Locker leaselock.Locker
	Lease  leaselock.Options
	// NewExtractor builds the extractor for one job.
	NewExtractor func(msg RebuildMsg) *graph.Extractor
}

// ProcessRebuildMessage decodes a RebuildMsg and runs it under the rebuild
// lease. A lease held by another worker is returned as an error so the job
// goes through the retry queue.
func (r *Rebuilder) ProcessRebuildMessage(ctx context.Context, body []byte) (RebuiltMsg, error) {
	var msg RebuildMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return RebuiltMsg{}, fmt.Errorf("failed to decode rebuild message: %w", err)
	}

	logger.Info("[Queue] Rebuild started", "correlation_id", msg.CorrelationID, "force", msg.Force)

	out := RebuiltMsg{CorrelationID: msg.CorrelationID}
	err := r.Locker.WithLease(ctx, leaselock.RebuildKey, r.Lease, func(ctx context.Context) error {
		res, report, err := r.Graph.ProcessBook(ctx, r.Source, r.NewExtractor(msg))
		out.Build = res
		out.Extraction = report
		out.FailedChapters = report.FailedChapters()
		return err
	})
	if errors.Is(err, leaselock.ErrNotAcquired) {
		logger.Warn("[Queue] Another rebuild is running", "correlation_id", msg.CorrelationID)
		return out, err
	}
	if err != nil {
		return out, fmt.Errorf("rebuild %s: %w", msg.CorrelationID, err)
	}

	logger.Info("[Queue] Rebuild finished",
		"correlation_id", msg.CorrelationID,
		"nodes", out.Build.Load.NodesCreated,
		"edges", out.Build.Load.EdgesCreated,
		"failed_chapters", len(out.FailedChapters),
	)
	return out, nil
}
