// Package factory selects the similarity index implementation.
package factory

import (
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/bookgraph/internal/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
	"github.com/OFFIS-RIT/bookgraph/pkg/vector"
	"github.com/OFFIS-RIT/bookgraph/pkg/vector/memory"
	"github.com/OFFIS-RIT/bookgraph/pkg/vector/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	KindMemory   = "memory"
	KindPgvector = "pgvector"
)

var ErrPoolRequired = errors.New("pgvector index needs a database pool")

// Kind returns VECTOR_INDEX, memory by default.
func Kind() string {
	return util.GetEnvString("VECTOR_INDEX", KindMemory)
}

// New returns the Builder for kind. pool is only used, and then required,
// for pgvector.
func New(kind string, embedder store.Embedder, pool *pgxpool.Pool, parallel int) (vector.Builder, error) {
	switch kind {
	case KindMemory, "":
		return memory.NewBuilder(embedder, parallel), nil
	case KindPgvector:
		if pool == nil {
			return nil, ErrPoolRequired
		}
		return postgres.NewBuilder(pool, embedder, parallel), nil
	default:
		return nil, fmt.Errorf("unknown VECTOR_INDEX %q (want %s or %s)", kind, KindMemory, KindPgvector)
	}
}
