package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/bookgraph/internal/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/corpus"
	"github.com/OFFIS-RIT/bookgraph/pkg/loader"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type extractEntity struct {
	Name        string `json:"name" jsonschema_description:"Name of the entity as written in the text, lowercase"`
	EntityType  string `json:"entity_type" jsonschema:"enum=персонаж,enum=место,enum=предмет,enum=организация" jsonschema_description:"One of the provided entity types"`
	Singular    bool   `json:"singular" jsonschema_description:"True for a single individual or object, false for groups"`
	Description string `json:"description" jsonschema_description:"What the chapter tells about the entity"`
}

type extractRelationship struct {
	Entity1          string `json:"entity_1" jsonschema_description:"Name of the first entity, as identified in the entity list"`
	Entity2          string `json:"entity_2" jsonschema_description:"Name of the second entity, as identified in the entity list"`
	RelationshipType string `json:"relationship_type" jsonschema_description:"Short verb or predicate in Russian describing the relation"`
	Description      string `json:"description" jsonschema_description:"What happened between the two entities, based strictly on the text"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities identified in the chapter"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships identified in the chapter"`
}

// ErrEmptyChapter is returned for chapters without any text.
var ErrEmptyChapter = errors.New("chapter has no text")

// ExtractionError is the failure of a single chapter. Other chapters are
// not affected by it.
type ExtractionError struct {
	Chapter  string
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract chapter %s: %v", e.Chapter, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ExtractionReport summarizes one extraction run.
type ExtractionReport struct {
	Total     int                `json:"total"`
	Extracted int                `json:"extracted"`
	Skipped   int                `json:"skipped"`
	Failed    []*ExtractionError `json:"-"`
	Duration  time.Duration      `json:"duration"`
}

// FailedChapters lists the chapters that could not be extracted, in
// chapter order.
func (r ExtractionReport) FailedChapters() []string {
	out := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Chapter
	}
	return out
}

// Err joins every chapter failure, or returns nil.
func (r ExtractionReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Extractor runs the chapter extraction stage. Each chapter is one task;
// tasks run in parallel up to the configured limit and write to disjoint
// keys of the extraction store.
//
// An Extractor should be created using NewExtractor.
type Extractor struct {
	client     ai.GraphAIClient
	store      corpus.ExtractionStore
	parallel   int
	maxRetries int
	timeout    time.Duration
	backoff    util.Backoff
	summarize  bool
	force      bool

	total atomic.Int64
	done  atomic.Int64
}

// NewExtractorParams defines the configuration of an Extractor.
//
// Parallel bounds the chapters processed at once. MaxRetries is the number
// of attempts per chapter and Timeout the deadline of each attempt. A nil
// Backoff retries immediately. Summarize adds a chapter summary to every
// extraction. Force re-extracts chapters that already have a stored
// extraction.
type NewExtractorParams struct {
	Client     ai.GraphAIClient
	Store      corpus.ExtractionStore
	Parallel   int
	MaxRetries int
	Timeout    time.Duration
	Backoff    util.Backoff
	Summarize  bool
	Force      bool
}

func NewExtractor(params NewExtractorParams) *Extractor {
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Extractor{
		client:     params.Client,
		store:      params.Store,
		parallel:   parallel,
		maxRetries: maxRetries,
		timeout:    timeout,
		backoff:    params.Backoff,
		summarize:  params.Summarize,
		force:      params.Force,
	}
}

// Progress reports how many chapters of the current run are finished,
// including skipped and failed ones.
func (x *Extractor) Progress() (done, total int64) {
	return x.done.Load(), x.total.Load()
}

// Extract extracts every file that has no stored extraction yet. Chapter
// failures are collected in the report and never stop the other chapters.
// The returned error is only set when ctx ends before all chapters ran.
func (x *Extractor) Extract(ctx context.Context, files []loader.ChapterFile) (ExtractionReport, error) {
	start := time.Now()
	report := ExtractionReport{Total: len(files)}
	x.total.Store(int64(len(files)))
	x.done.Store(0)

	logger.Info("[Extract] Processing", "total_chapters", len(files), "parallel", x.parallel)

	var (
		mu     sync.Mutex
		failed = make(map[string]*ExtractionError)
		g      errgroup.Group
	)
	g.SetLimit(x.parallel)

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		f := file
		g.Go(func() error {
			defer x.progress(f.Chapter)

			if !x.force {
				exists, err := x.store.Exists(ctx, f.Chapter)
				if err == nil && exists {
					mu.Lock()
					report.Skipped++
					mu.Unlock()
					return nil
				}
			}

			attempts := 0
			ext, err := util.RetryWithBackoff(ctx, x.maxRetries, x.backoff, func(ctx context.Context) (common.ChapterExtraction, error) {
				attempts++
				return x.extractChapter(ctx, f)
			})
			if err == nil {
				err = x.store.Put(ctx, ext)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("[Extract] Chapter failed", "chapter", f.Chapter, "attempts", attempts, "err", err)
				failed[f.Chapter] = &ExtractionError{Chapter: f.Chapter, Attempts: attempts, Err: err}
				return nil
			}
			report.Extracted++
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range files {
		if e, ok := failed[f.Chapter]; ok {
			report.Failed = append(report.Failed, e)
		}
	}
	report.Duration = time.Since(start)

	logger.Info("[Extract] Finished",
		"extracted", report.Extracted,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
		"duration", report.Duration.Round(time.Millisecond),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("extraction stopped: %w", err)
	}
	return report, nil
}

func (x *Extractor) progress(chapter string) {
	done := x.done.Add(1)
	logger.Debug("[Extract] Progress", "chapter", chapter, "done", done, "total", x.total.Load())
}

func (x *Extractor) extractChapter(ctx context.Context, file loader.ChapterFile) (common.ChapterExtraction, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	raw, err := file.GetText(ctx)
	if err != nil {
		return common.ChapterExtraction{}, fmt.Errorf("read chapter: %w", err)
	}
	text, err := corpus.DecodeText(raw)
	if err != nil {
		return common.ChapterExtraction{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return common.ChapterExtraction{}, ErrEmptyChapter
	}

	var res extractResponse
	err = x.client.GenerateCompletionWithFormat(
		ctx,
		"extract_entities_and_relationships",
		"Extract entities and relationships from one chapter of a novel.",
		fmt.Sprintf(ai.ExtractPrompt, file.Chapter, text),
		&res,
	)
	if err != nil {
		return common.ChapterExtraction{}, err
	}

	out := common.ChapterExtraction{
		Chapter:       file.Chapter,
		Entities:      make([]common.Entity, 0, len(res.Entities)),
		Relationships: make([]common.Relationship, 0, len(res.Relationships)),
	}
	for _, e := range res.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		out.Entities = append(out.Entities, common.Entity{
			Name:        strings.TrimSpace(e.Name),
			Type:        strings.TrimSpace(e.EntityType),
			Singular:    e.Singular,
			Description: util.SanitizeText(e.Description),
			Chapter:     file.Chapter,
		})
	}
	for _, r := range res.Relationships {
		if strings.TrimSpace(r.Entity1) == "" || strings.TrimSpace(r.Entity2) == "" {
			continue
		}
		out.Relationships = append(out.Relationships, common.Relationship{
			Source:      strings.TrimSpace(r.Entity1),
			Target:      strings.TrimSpace(r.Entity2),
			Type:        r.RelationshipType,
			Description: util.SanitizeText(r.Description),
			Chapter:     file.Chapter,
		})
	}

	if x.summarize {
		summary, err := x.client.GenerateCompletion(ctx, fmt.Sprintf(ai.SummaryPrompt, text))
		if err != nil {
			logger.Warn("[Extract] Chapter summary failed", "chapter", file.Chapter, "err", err)
		} else {
			out.Summary = util.SanitizeText(summary)
		}
	}

	logger.Debug("[Extract] Chapter extracted",
		"chapter", file.Chapter,
		"entities", len(out.Entities),
		"relationships", len(out.Relationships),
	)
	return out, nil
}
