// Package vector defines the per-query similarity index used to pick the
// context documents closest to a question.
//
// An index is built from scratch for every query and discarded afterwards.
// Nothing is cached between queries.
package vector

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
)

var ErrDimensionMismatch = errors.New("embedding dimensions differ")

// Builder creates a fresh Index over docs.
type Builder interface {
	Build(ctx context.Context, docs []common.ContextDocument) (Index, error)
}

// Index ranks its documents by similarity to a query text.
type Index interface {
	// Search returns at most k documents, most similar first. Equal scores
	// keep insertion order.
	Search(ctx context.Context, query string, k int) ([]common.ContextDocument, error)
	// Close releases whatever the index holds. It is safe to call twice.
	Close(ctx context.Context) error
}

// TopK builds an index with b, searches it once and closes it.
func TopK(ctx context.Context, b Builder, query string, docs []common.ContextDocument, k int) ([]common.ContextDocument, error) {
	if len(docs) == 0 || k <= 0 {
		return nil, nil
	}
	idx, err := b.Build(ctx, docs)
	if err != nil {
		return nil, err
	}
	defer idx.Close(context.WithoutCancel(ctx))
	return idx.Search(ctx, query, k)
}

// Texts returns the embedding inputs of docs.
func Texts(docs []common.ContextDocument) [][]byte {
	out := make([][]byte, len(docs))
	for i, d := range docs {
		out[i] = []byte(d.Text)
	}
	return out
}
