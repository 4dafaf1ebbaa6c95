package query

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
)

// Asker answers one question about the book. *Pipeline implements it.
type Asker interface {
	Run(ctx context.Context, query string, history []ai.ChatMessage) Result
}

// State is the branch a Run ended in.
type State string

const (
	StateNoGraphData       State = "no_graph_data"
	StateNoEntitiesMatched State = "no_entities_matched"
	StateEntitiesMatched   State = "entities_matched"
)

// Result is what a Run returns. The slices are never nil, so they encode
// as empty JSON arrays.
type Result struct {
	Answer        string              `json:"answer"`
	GraphMetadata []map[string]string `json:"graph_metadata"`
	EntitiesFound []string            `json:"entities_found"`
	ContextUsed   []string            `json:"context_used"`

	State State `json:"-"`
}

func newResult() Result {
	return Result{
		GraphMetadata: []map[string]string{},
		EntitiesFound: []string{},
		ContextUsed:   []string{},
	}
}

type queryOptions struct {
	RetrieveLimit int
	TopK          int
	HistoryTurns  int
	Timeout       time.Duration
	Labels        []common.EntityType
	SystemPrompts []string
	Model         string
	Thinking      string
	Tracer        Tracer
}

func defaultOptions() queryOptions {
	return queryOptions{
		RetrieveLimit: 5,
		TopK:          3,
		HistoryTurns:  10,
		Timeout:       30 * time.Second,
		Labels:        common.EntityTypes,
	}
}

// QueryOption is a functional option for configuring query behavior.
type QueryOption func(*queryOptions)

// WithRetrieveLimit caps the relations returned by graph traversal.
func WithRetrieveLimit(n int) QueryOption {
	return func(o *queryOptions) {
		if n > 0 {
			o.RetrieveLimit = n
		}
	}
}

// WithTopK sets how many documents the similarity index selects.
func WithTopK(k int) QueryOption {
	return func(o *queryOptions) {
		if k > 0 {
			o.TopK = k
		}
	}
}

// WithHistoryTurns sets how many of the latest chat messages are used.
func WithHistoryTurns(n int) QueryOption {
	return func(o *queryOptions) {
		if n >= 0 {
			o.HistoryTurns = n
		}
	}
}

// WithTimeout sets the deadline applied to every collaborator call.
func WithTimeout(d time.Duration) QueryOption {
	return func(o *queryOptions) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithLabels sets the node labels whose presence means the graph is built.
func WithLabels(labels ...common.EntityType) QueryOption {
	return func(o *queryOptions) {
		if len(labels) > 0 {
			o.Labels = labels
		}
	}
}

// WithSystemPrompts returns a QueryOption that appends additional system
// prompts to guide the AI's response generation.
func WithSystemPrompts(prompts ...string) QueryOption {
	return func(o *queryOptions) {
		o.SystemPrompts = append(o.SystemPrompts, prompts...)
	}
}

// WithModel returns a QueryOption that specifies which AI model to use
// for generating answers.
func WithModel(model string) QueryOption {
	return func(o *queryOptions) {
		o.Model = model
	}
}

// WithThinking returns a QueryOption that enables extended thinking mode
// for answer generation.
func WithThinking(thinking string) QueryOption {
	return func(o *queryOptions) {
		o.Thinking = thinking
	}
}

// WithTracer records the steps of every Run.
func WithTracer(t Tracer) QueryOption {
	return func(o *queryOptions) {
		o.Tracer = t
	}
}
