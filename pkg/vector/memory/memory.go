package memory

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
	"github.com/OFFIS-RIT/bookgraph/pkg/vector"
)

// Builder embeds documents into an in-process cosine index.
type Builder struct {
	embedder store.Embedder
	parallel int
}

var _ vector.Builder = (*Builder)(nil)

// NewBuilder returns a Builder that embeds with at most parallel concurrent
// requests when the embedder has no batch call.
func NewBuilder(embedder store.Embedder, parallel int) *Builder {
	return &Builder{embedder: embedder, parallel: parallel}
}

type index struct {
	embedder store.Embedder
	docs     []common.ContextDocument
	vecs     [][]float32
}

func (b *Builder) Build(ctx context.Context, docs []common.ContextDocument) (vector.Index, error) {
	vecs, err := store.GenerateEmbeddings(ctx, b.embedder, vector.Texts(docs), b.parallel)
	if err != nil {
		return nil, fmt.Errorf("embed context documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(docs))
	}
	return &index{embedder: b.embedder, docs: docs, vecs: vecs}, nil
}

func (i *index) Search(ctx context.Context, query string, k int) ([]common.ContextDocument, error) {
	if k <= 0 || len(i.docs) == 0 {
		return nil, nil
	}
	q, err := i.embedder.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		pos   int
		score float64
	}
	ranked := make([]scored, len(i.docs))
	for pos, v := range i.vecs {
		s, err := Cosine(q, v)
		if err != nil {
			return nil, err
		}
		ranked[pos] = scored{pos: pos, score: s}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	k = min(k, len(ranked))
	out := make([]common.ContextDocument, k)
	for n := range k {
		out[n] = i.docs[ranked[n].pos]
	}
	return out, nil
}

func (i *index) Close(context.Context) error { return nil }

// Cosine returns the cosine similarity of a and b. A zero vector has
// similarity 0 to everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d and %d", vector.ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for n := range a {
		x, y := float64(a[n]), float64(b[n])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
