package query

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
)

// Retriever turns graph neighbours of resolved identifiers into context
// documents. Rows keep the store's order; nothing is ranked here.
type Retriever struct {
	store store.GraphStore
	limit int
}

func NewRetriever(s store.GraphStore, limit int) *Retriever {
	if limit <= 0 {
		limit = 5
	}
	return &Retriever{store: s, limit: limit}
}

func (r *Retriever) Retrieve(ctx context.Context, names []string) ([]common.ContextDocument, error) {
	if len(names) == 0 {
		return nil, nil
	}
	hits, err := r.store.Neighbors(ctx, names, r.limit)
	if err != nil {
		return nil, fmt.Errorf("retrieve relations: %w", err)
	}
	docs := make([]common.ContextDocument, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, common.NewContextDocument(h))
	}
	return docs, nil
}
