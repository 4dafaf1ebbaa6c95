package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
	"github.com/OFFIS-RIT/bookgraph/pkg/vector"
)

// Pipeline answers questions about the book from the persisted graph.
//
// Each Run goes through one of three branches:
//
//   - no graph data: the graph has no node of the expected labels or
//     cannot be reached; the model answers from the conversation alone.
//   - no entities matched: the graph exists but nothing was retrieved for
//     the question; the model is told that nothing was found.
//   - entities matched: retrieved documents are ranked against the
//     question in a fresh similarity index and the top ones become the
//     context of the answer.
//
// Every collaborator call runs under its own deadline, and a failing call
// degrades to the next weaker branch. Run never returns an error and never
// returns an empty answer.
type Pipeline struct {
	client    ai.GraphAIClient
	store     store.GraphStore
	entities  *EntityResolver
	retriever *Retriever
	index     vector.Builder
	options   queryOptions
}

var _ Asker = (*Pipeline)(nil)

// NewPipeline wires the collaborators of a query. index may be nil, in
// which case the first documents in traversal order are used.
func NewPipeline(
	client ai.GraphAIClient,
	s store.GraphStore,
	entities *EntityResolver,
	index vector.Builder,
	opts ...QueryOption,
) *Pipeline {
	options := defaultOptions()
	for _, o := range opts {
		o(&options)
	}
	return &Pipeline{
		client:    client,
		store:     s,
		entities:  entities,
		retriever: NewRetriever(s, options.RetrieveLimit),
		index:     index,
		options:   options,
	}
}

func (p *Pipeline) Run(ctx context.Context, query string, history []ai.ChatMessage) (res Result) {
	start := time.Now()
	res = newResult()
	history = ai.LastTurns(history, p.options.HistoryTurns)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Query] Pipeline panicked, returning fallback answer", "panic", r)
			res = newResult()
			res.State = StateNoGraphData
			res.Answer = ai.FallbackAnswer
		}
		record(p.options.Tracer, TraceEvent{Kind: TraceEventState, State: res.State, DurationMs: time.Since(start).Milliseconds()})
		logger.Info("[Query] Answered",
			"state", res.State,
			"entities", len(res.EntitiesFound),
			"documents", len(res.ContextUsed),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}()

	if !p.hasGraph(ctx) {
		res.State = StateNoGraphData
		res.Answer = p.converse(ctx, query, history)
		return res
	}

	ids := p.resolve(ctx, query)
	res.EntitiesFound = append(res.EntitiesFound, ids...)

	docs := p.retrieve(ctx, ids)
	if len(docs) == 0 {
		res.State = StateNoEntitiesMatched
		res.Answer = p.answer(ctx, query, joinContext(formatHistory(history), ai.NotFoundContext))
		return res
	}

	selected := p.selectDocuments(ctx, query, docs)
	blocks := make([]string, 0, len(selected))
	for _, d := range selected {
		res.GraphMetadata = append(res.GraphMetadata, d.Metadata())
		res.ContextUsed = append(res.ContextUsed, d.Text)
		blocks = append(blocks, fmt.Sprintf("Действующее лицо: %s\n Содержание: %s", d.Source, d.Text))
	}

	res.State = StateEntitiesMatched
	res.Answer = p.answer(ctx, query, joinContext(formatHistory(history), strings.Join(blocks, "\n")))
	return res
}

func (p *Pipeline) degrade(step string, start time.Time, err error, msg string) {
	logger.Warn(msg, "step", step, "err", err)
	record(p.options.Tracer, TraceEvent{
		Kind:       TraceEventDegraded,
		Step:       step,
		DurationMs: time.Since(start).Milliseconds(),
		Error:      err.Error(),
	})
}

func (p *Pipeline) hasGraph(ctx context.Context) bool {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, p.options.Timeout)
	defer cancel()

	n, err := p.store.CountNodes(cctx, p.options.Labels)
	if err != nil {
		p.degrade("count_nodes", start, err, "[Query] Graph unavailable, answering without graph")
		return false
	}
	if n == 0 {
		logger.Warn("[Query] Graph is empty, answering without graph")
		return false
	}
	return true
}

func (p *Pipeline) resolve(ctx context.Context, query string) []string {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, p.options.Timeout)
	defer cancel()

	ids, err := p.entities.ResolveQuery(cctx, query)
	if err != nil {
		p.degrade("resolve_entities", start, err, "[Query] Entity resolution failed")
		return nil
	}
	record(p.options.Tracer, TraceEvent{Kind: TraceEventResolvedEntities, Entities: ids})
	logger.Debug("[Query] Resolved entities", "query", query, "entities", ids)
	return ids
}

func (p *Pipeline) retrieve(ctx context.Context, ids []string) []common.ContextDocument {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, p.options.Timeout)
	defer cancel()

	docs, err := p.retriever.Retrieve(cctx, ids)
	if err != nil {
		p.degrade("retrieve", start, err, "[Query] Graph retrieval failed")
		return nil
	}
	record(p.options.Tracer, TraceEvent{Kind: TraceEventRetrievedDocuments, Documents: len(docs)})
	return docs
}

func (p *Pipeline) selectDocuments(ctx context.Context, query string, docs []common.ContextDocument) []common.ContextDocument {
	k := min(p.options.TopK, len(docs))
	selected := docs[:k]

	if p.index != nil {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, p.options.Timeout)
		ranked, err := vector.TopK(cctx, p.index, query, docs, p.options.TopK)
		cancel()
		if err != nil {
			p.degrade("similarity_index", start, err, "[Query] Similarity index failed, using traversal order")
		} else if len(ranked) > 0 {
			selected = ranked
		}
	}

	sources := make([]string, len(selected))
	for i, d := range selected {
		sources[i] = d.Source
	}
	record(p.options.Tracer, TraceEvent{Kind: TraceEventSelectedDocuments, Documents: len(selected), Sources: sources})
	return selected
}

func (p *Pipeline) generateOptions(system string) []ai.GenerateOption {
	opts := []ai.GenerateOption{ai.WithSystemPrompts(append([]string{system}, p.options.SystemPrompts...)...)}
	if p.options.Model != "" {
		opts = append(opts, ai.WithModel(p.options.Model))
	}
	if p.options.Thinking != "" {
		opts = append(opts, ai.WithThinking(p.options.Thinking))
	}
	return opts
}

// answer generates the grounded answer. The history is already part of
// contextText, so only the question is sent as a message.
func (p *Pipeline) answer(ctx context.Context, query, contextText string) string {
	return p.chat(ctx, "answer", []ai.ChatMessage{{Role: "user", Message: query}},
		fmt.Sprintf(ai.AnswerPrompt, contextText))
}

func (p *Pipeline) converse(ctx context.Context, query string, history []ai.ChatMessage) string {
	msgs := make([]ai.ChatMessage, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.ChatMessage{Role: "user", Message: query})
	return p.chat(ctx, "converse", msgs, ai.ConversationPrompt)
}

func (p *Pipeline) chat(ctx context.Context, step string, msgs []ai.ChatMessage, system string) string {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, p.options.Timeout)
	defer cancel()

	answer, err := p.client.GenerateChat(cctx, msgs, p.generateOptions(system)...)
	if err != nil {
		p.degrade(step, start, err, "[Query] Answer generation failed")
		return ai.FallbackAnswer
	}
	if strings.TrimSpace(answer) == "" {
		logger.Warn("[Query] Model returned an empty answer", "step", step)
		return ai.FallbackAnswer
	}
	return answer
}

func formatHistory(history []ai.ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("История диалога:\n")
	for _, m := range history {
		switch m.Role {
		case "assistant":
			b.WriteString("Ассистент: ")
		default:
			b.WriteString("Пользователь: ")
		}
		b.WriteString(m.Message)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func joinContext(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
