package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
	"github.com/OFFIS-RIT/bookgraph/pkg/vector"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const createSQL = `CREATE TEMPORARY TABLE context_documents (
	pos integer PRIMARY KEY,
	embedding vector NOT NULL
) ON COMMIT DROP`

const searchSQL = `SELECT pos FROM context_documents
ORDER BY embedding <=> $1, pos
LIMIT $2`

// Builder ranks documents inside Postgres with pgvector. Each index lives
// in a temporary table of its own transaction, which is rolled back on
// Close, so concurrent queries never see each other's documents.
type Builder struct {
	pool     *pgxpool.Pool
	embedder store.Embedder
	parallel int
}

var _ vector.Builder = (*Builder)(nil)

// NewBuilder expects a pool whose connections have the pgvector types
// registered (see db.NewPool).
func NewBuilder(pool *pgxpool.Pool, embedder store.Embedder, parallel int) *Builder {
	return &Builder{pool: pool, embedder: embedder, parallel: parallel}
}

type index struct {
	tx       pgx.Tx
	embedder store.Embedder
	docs     []common.ContextDocument
}

func (b *Builder) Build(ctx context.Context, docs []common.ContextDocument) (vector.Index, error) {
	vecs, err := store.GenerateEmbeddings(ctx, b.embedder, vector.Texts(docs), b.parallel)
	if err != nil {
		return nil, fmt.Errorf("embed context documents: %w", err)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin index transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("create context table: %w", err)
	}

	rows := make([][]any, len(vecs))
	for i, v := range vecs {
		rows[i] = []any{int32(i), pgvector.NewVector(v)}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"context_documents"},
		[]string{"pos", "embedding"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("insert context embeddings: %w", err)
	}

	return &index{tx: tx, embedder: b.embedder, docs: docs}, nil
}

func (i *index) Search(ctx context.Context, query string, k int) ([]common.ContextDocument, error) {
	q, err := i.embedder.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := i.tx.Query(ctx, searchSQL, pgvector.NewVector(q), k)
	if err != nil {
		return nil, fmt.Errorf("search context documents: %w", err)
	}
	positions, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, fmt.Errorf("search context documents: %w", err)
	}

	out := make([]common.ContextDocument, 0, len(positions))
	for _, p := range positions {
		if int(p) < len(i.docs) {
			out = append(out, i.docs[p])
		}
	}
	return out, nil
}

func (i *index) Close(ctx context.Context) error {
	if i.tx == nil {
		return nil
	}
	err := i.tx.Rollback(ctx)
	i.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Warn("[Vector] Rolling back context index failed", "err", err)
		return err
	}
	return nil
}
