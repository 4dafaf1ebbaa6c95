// Package app wires the configured collaborators for the bookgraph
// binaries. Every strategy choice (AI adapter, graph store, similarity
// index, extraction store, book source, rebuild lock) is made here once
// and injected into the packages that use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/OFFIS-RIT/bookgraph/internal/db"
	"github.com/OFFIS-RIT/bookgraph/internal/storage"
	"github.com/OFFIS-RIT/bookgraph/internal/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	aifactory "github.com/OFFIS-RIT/bookgraph/pkg/ai/factory"
	"github.com/OFFIS-RIT/bookgraph/pkg/alias"
	"github.com/OFFIS-RIT/bookgraph/pkg/corpus"
	"github.com/OFFIS-RIT/bookgraph/pkg/graph"
	"github.com/OFFIS-RIT/bookgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/bookgraph/pkg/loader"
	ioloader "github.com/OFFIS-RIT/bookgraph/pkg/loader/io"
	s3loader "github.com/OFFIS-RIT/bookgraph/pkg/loader/s3"
	"github.com/OFFIS-RIT/bookgraph/pkg/loader/web"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
	"github.com/OFFIS-RIT/bookgraph/pkg/query"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
	"github.com/OFFIS-RIT/bookgraph/pkg/store/memory"
	"github.com/OFFIS-RIT/bookgraph/pkg/store/neo4j"
	vfactory "github.com/OFFIS-RIT/bookgraph/pkg/vector/factory"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds everything that is not owned by a package's own
// ConfigFromEnv.
type Config struct {
	BookDir      string
	BookS3Prefix string
	BookURLs     []string

	ExtractionDir      string
	ExtractionS3Prefix string
	AliasFile          string
	GraphFile          string

	ExtractParallel   int
	ExtractRetries    int
	ExtractTimeout    time.Duration
	AllowPartialBuild bool

	RetrieveLimit int
	TopK          int
	HistoryTurns  int
	QueryTimeout  time.Duration

	VectorIndex string
}

func ConfigFromEnv() Config {
	var urls []string
	for _, u := range strings.Split(util.GetEnv("BOOK_URLS"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return Config{
		BookDir:      util.GetEnvString("BOOK_DIR", "chapters"),
		BookS3Prefix: util.GetEnv("BOOK_S3_PREFIX"),
		BookURLs:     urls,

		ExtractionDir:      util.GetEnvString("EXTRACTION_DIR", "extractions"),
		ExtractionS3Prefix: util.GetEnv("EXTRACTION_S3_PREFIX"),
		AliasFile:          util.GetEnv("ALIAS_FILE"),
		GraphFile:          util.GetEnv("GRAPH_FILE"),

		ExtractParallel:   util.GetEnvInt("EXTRACT_PARALLEL", 4),
		ExtractRetries:    util.GetEnvInt("EXTRACT_RETRIES", 3),
		ExtractTimeout:    util.GetEnvSeconds("EXTRACT_TIMEOUT_SECONDS", 5*time.Minute),
		AllowPartialBuild: util.GetEnvBool("GRAPH_ALLOW_PARTIAL", false),

		RetrieveLimit: util.GetEnvInt("GRAPH_RETRIEVE_LIMIT", 5),
		TopK:          util.GetEnvInt("GRAPH_TOP_K", 3),
		HistoryTurns:  util.GetEnvInt("GRAPH_HISTORY_TURNS", 10),
		QueryTimeout:  util.GetEnvSeconds("QUERY_TIMEOUT_SECONDS", 60*time.Second),

		VectorIndex: vfactory.Kind(),
	}
}

// App holds the wired collaborators. Pool and S3 are nil when the
// corresponding service is not configured.
type App struct {
	Config      Config
	AI          ai.GraphAIClient
	Graph       store.GraphStore
	Extractions corpus.ExtractionStore
	Resolver    *alias.Resolver
	Pool        *pgxpool.Pool
	S3          *s3.Client
	Bucket      string
}

// New connects every configured service. DATABASE_URL is optional: without
// it the memory similarity index and the in-process rebuild lock are used.
// Without NEO4J_URI the graph lives in memory and is persisted to
// GraphFile.
func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{Config: cfg}

	client, err := aifactory.New(aifactory.ConfigFromEnv())
	if err != nil {
		return nil, err
	}
	a.AI = client

	if url := db.URL(); url != "" {
		if err := db.Migrate(url); err != nil {
			return nil, err
		}
		pool, err := db.NewPool(ctx, url)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
	}

	if s3cfg, ok := storage.ConfigFromEnv(); ok {
		c, err := storage.NewS3Client(ctx, s3cfg)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.S3 = c
		a.Bucket = s3cfg.Bucket
	}

	if a.Graph, err = openGraph(ctx, cfg.GraphFile); err != nil {
		a.Close(ctx)
		return nil, err
	}

	if cfg.ExtractionS3Prefix != "" && a.S3 != nil {
		a.Extractions = corpus.NewS3Store(a.S3, a.Bucket, cfg.ExtractionS3Prefix)
	} else if a.Extractions, err = corpus.NewDirStore(cfg.ExtractionDir); err != nil {
		a.Close(ctx)
		return nil, err
	}

	if a.Resolver, err = LoadResolver(cfg.AliasFile); err != nil {
		a.Close(ctx)
		return nil, err
	}

	return a, nil
}

func openGraph(ctx context.Context, graphFile string) (store.GraphStore, error) {
	if util.GetEnv("NEO4J_URI") != "" {
		s, err := neo4j.NewGraphStoreFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if graphFile == "" {
		logger.Warn("[App] NEO4J_URI and GRAPH_FILE are unset, the graph is not persisted")
		return memory.New(), nil
	}
	if _, err := os.Stat(graphFile); errors.Is(err, os.ErrNotExist) {
		return memory.New(), nil
	}
	s, err := memory.Open(graphFile)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LoadResolver reads the alias table at path. An empty path yields a nil
// resolver, which applies no alias.
func LoadResolver(path string) (*alias.Resolver, error) {
	if path == "" {
		logger.Warn("[App] ALIAS_FILE is unset, names are not canonicalized")
		return nil, nil
	}
	table, err := alias.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load alias table: %w", err)
	}
	r := alias.NewResolver(table)
	for name, groups := range r.Ambiguous() {
		logger.Warn("[App] Ambiguous alias", "alias", name, "groups", groups)
	}
	return r, nil
}

// Source returns the book's chapters: BOOK_URLS, then BOOK_S3_PREFIX,
// then BOOK_DIR.
func (a *App) Source() loader.Source {
	switch {
	case len(a.Config.BookURLs) > 0:
		return web.NewWebChapterLoader(&http.Client{Timeout: 30 * time.Second}, a.Config.BookURLs)
	case a.Config.BookS3Prefix != "" && a.S3 != nil:
		return s3loader.NewS3ChapterLoader(a.S3, a.Bucket, a.Config.BookS3Prefix)
	default:
		return ioloader.NewDirSource(a.Config.BookDir)
	}
}

func (a *App) GraphClient() (*graph.GraphClient, error) {
	return graph.NewGraphClient(graph.NewGraphClientParams{
		Store:        a.Graph,
		Extractions:  a.Extractions,
		Resolver:     a.Resolver,
		AllowPartial: a.Config.AllowPartialBuild,
	})
}

func (a *App) Extractor(force, summarize bool) *graph.Extractor {
	return graph.NewExtractor(graph.NewExtractorParams{
		Client:     a.AI,
		Store:      a.Extractions,
		Parallel:   a.Config.ExtractParallel,
		MaxRetries: a.Config.ExtractRetries,
		Timeout:    a.Config.ExtractTimeout,
		Backoff:    util.Exponential(time.Second, 30*time.Second),
		Summarize:  summarize,
		Force:      force,
	})
}

func (a *App) Pipeline(opts ...query.QueryOption) (*query.Pipeline, error) {
	index, err := vfactory.New(a.Config.VectorIndex, a.AI, a.Pool, 4)
	if err != nil {
		return nil, err
	}
	base := []query.QueryOption{
		query.WithRetrieveLimit(a.Config.RetrieveLimit),
		query.WithTopK(a.Config.TopK),
		query.WithHistoryTurns(a.Config.HistoryTurns),
		query.WithTimeout(a.Config.QueryTimeout),
	}
	return query.NewPipeline(
		a.AI,
		a.Graph,
		query.NewEntityResolver(a.AI, a.Resolver),
		index,
		append(base, opts...)...,
	), nil
}

// Locker is the Postgres lease when a database is configured and an
// in-process lock otherwise.
func (a *App) Locker() leaselock.Locker {
	if a.Pool != nil {
		return leaselock.New(a.Pool)
	}
	return leaselock.NewLocal()
}

// SaveGraph persists an in-memory graph to GraphFile. It is a no-op for
// Neo4j.
func (a *App) SaveGraph() error {
	m, ok := a.Graph.(*memory.Store)
	if !ok || a.Config.GraphFile == "" {
		return nil
	}
	return m.Export(a.Config.GraphFile)
}

func (a *App) Close(ctx context.Context) {
	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			logger.Error("[App] Failed to close graph store", "err", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
