package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bookgraph/pkg/alias"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/corpus"
	"github.com/OFFIS-RIT/bookgraph/pkg/loader"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
)

// ErrIncompleteExtraction is returned by BuildGraph when some chapters of
// the book have no stored extraction and partial builds are not allowed.
var ErrIncompleteExtraction = errors.New("extraction incomplete")

// GraphClient is the main client for building the book graph. It reads
// chapter extractions, canonicalizes and merges them and replaces the
// persisted graph with the result.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	store        store.GraphStore
	extractions  corpus.ExtractionStore
	resolver     *alias.Resolver
	allowPartial bool
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Resolver may be nil, in which case no alias is applied. AllowPartial
// builds the graph even when chapters are missing from the extraction
// store.
type NewGraphClientParams struct {
	Store        store.GraphStore
	Extractions  corpus.ExtractionStore
	Resolver     *alias.Resolver
	AllowPartial bool
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Store:       neo4jStore,
//		Extractions: dirStore,
//		Resolver:    alias.NewResolver(table),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Store == nil {
		return nil, errors.New("graph store is required")
	}
	if params.Extractions == nil {
		return nil, errors.New("extraction store is required")
	}
	return &GraphClient{
		store:        params.Store,
		extractions:  params.Extractions,
		resolver:     params.Resolver,
		allowPartial: params.AllowPartial,
	}, nil
}

// BuildResult describes one graph build.
type BuildResult struct {
	Chapters        int           `json:"chapters"`
	MissingChapters []string      `json:"missing_chapters,omitempty"`
	Merge           MergeStats    `json:"merge"`
	EdgesDropped    int           `json:"edges_dropped"`
	Load            LoadResult    `json:"load"`
	Duration        time.Duration `json:"duration"`
}

// BuildGraph rebuilds the persisted graph from the stored extractions.
//
// chapters lists every chapter the book has. If one of them has no stored
// extraction, the build fails with ErrIncompleteExtraction before the
// graph is touched, unless the client allows partial builds. A nil list
// builds from whatever is stored.
//
// Extractions are processed in chapter order and the stages run strictly
// in sequence: canonicalize, merge, normalize edges, load.
func (g *GraphClient) BuildGraph(ctx context.Context, chapters []string) (BuildResult, error) {
	start := time.Now()
	var res BuildResult

	extractions, err := corpus.LoadAll(ctx, g.extractions)
	if err != nil {
		return res, fmt.Errorf("failed to load extractions: %w", err)
	}
	res.Chapters = len(extractions)

	stored := make(map[string]struct{}, len(extractions))
	for _, e := range extractions {
		stored[e.Chapter] = struct{}{}
	}
	for _, c := range chapters {
		if _, ok := stored[c]; !ok {
			res.MissingChapters = append(res.MissingChapters, c)
		}
	}
	if len(res.MissingChapters) > 0 {
		if !g.allowPartial {
			return res, fmt.Errorf("%w: %d of %d chapters missing", ErrIncompleteExtraction, len(res.MissingChapters), len(chapters))
		}
		logger.Warn("[Graph] Building from partial extraction", "missing", len(res.MissingChapters))
	}

	var (
		entities []common.Entity
		rels     []common.Relationship
	)
	for _, e := range extractions {
		entities = append(entities, e.Entities...)
		rels = append(rels, e.Relationships...)
	}

	rc := alias.NewContext(g.resolver)
	nodes, stats := MergeEntities(Canonicalize(rc, entities))
	res.Merge = stats
	logger.Info("[Graph] Entities merged",
		"input", stats.Input,
		"nodes", stats.Nodes,
		"duplicates", stats.Duplicates,
		"type_conflicts", stats.TypeConflicts,
	)

	edges, dropped := NormalizeRelationships(rc, rels, nodes)
	res.EdgesDropped = dropped

	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Load, err = Load(ctx, g.store, nodes, edges)
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}

	logger.Info("[Graph] Graph build completed",
		"chapters", res.Chapters,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

// ProcessBook lists the chapters of source, extracts the ones without a
// stored extraction and rebuilds the graph. The report is returned even
// when the build is refused.
func (g *GraphClient) ProcessBook(
	ctx context.Context,
	source loader.Source,
	extractor *Extractor,
) (BuildResult, ExtractionReport, error) {
	files, err := source.List(ctx)
	if err != nil {
		return BuildResult{}, ExtractionReport{}, fmt.Errorf("failed to list chapters: %w", err)
	}
	if len(files) == 0 {
		return BuildResult{}, ExtractionReport{}, errors.New("no chapters found")
	}

	report, err := extractor.Extract(ctx, files)
	if err != nil {
		return BuildResult{}, report, err
	}
	if len(report.Failed) > 0 {
		logger.Warn("[Graph] Some chapters failed to extract", "chapters", report.FailedChapters())
	}

	chapters := make([]string, len(files))
	for i, f := range files {
		chapters[i] = f.Chapter
	}
	res, err := g.BuildGraph(ctx, chapters)
	if err != nil && len(report.Failed) > 0 && errors.Is(err, ErrIncompleteExtraction) {
		err = fmt.Errorf("%w\n%w", err, report.Err())
	}
	return res, report, err
}
