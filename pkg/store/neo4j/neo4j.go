package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bookgraph/internal/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
	"github.com/OFFIS-RIT/bookgraph/pkg/store/cypher"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphStore runs the cypher package's statements against a Neo4j
// database.
type GraphStore struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
}

var _ store.GraphStore = (*GraphStore)(nil)

// NewGraphStoreParams configures NewGraphStore.
//
// Database may be empty to use the server default. BatchSize bounds the
// rows sent in one UNWIND statement.
type NewGraphStoreParams struct {
	URI            string
	User           string
	Password       string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    int
	BatchSize      int
}

// NewGraphStore opens a driver and verifies connectivity, retrying with
// exponential backoff while the server comes up.
func NewGraphStore(ctx context.Context, params NewGraphStoreParams) (*GraphStore, error) {
	if params.URI == "" {
		return nil, fmt.Errorf("%w: no uri configured", store.ErrUnavailable)
	}
	if params.User == "" {
		params.User = "neo4j"
	}
	if params.ConnectTimeout <= 0 {
		params.ConnectTimeout = 10 * time.Second
	}
	if params.MaxPoolSize <= 0 {
		params.MaxPoolSize = 50
	}
	if params.BatchSize <= 0 {
		params.BatchSize = 1000
	}

	auth := neo4j.BasicAuth(params.User, params.Password, "")
	driver, err := neo4j.NewDriverWithContext(params.URI, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = params.MaxPoolSize
		cfg.SocketConnectTimeout = params.ConnectTimeout
		cfg.ConnectionAcquisitionTimeout = params.ConnectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init driver: %v", store.ErrUnavailable, err)
	}

	err = util.RetryErrWithContext(ctx, 5, func(ctx context.Context) error {
		vctx, cancel := context.WithTimeout(ctx, params.ConnectTimeout)
		defer cancel()
		if err := driver.VerifyConnectivity(vctx); err != nil {
			logger.Debug("[Neo4j] Connectivity check failed", "uri", params.URI, "err", err)
			return err
		}
		return nil
	})
	if err != nil {
		_ = driver.Close(context.Background())
		return nil, fmt.Errorf("%w: verify connectivity: %v", store.ErrUnavailable, err)
	}

	logger.Info("[Neo4j] Connected", "uri", params.URI, "database", params.Database)
	return &GraphStore{
		driver:    driver,
		database:  params.Database,
		batchSize: params.BatchSize,
	}, nil
}

// NewGraphStoreFromEnv reads NEO4J_* variables.
func NewGraphStoreFromEnv(ctx context.Context) (*GraphStore, error) {
	return NewGraphStore(ctx, NewGraphStoreParams{
		URI:            util.GetEnv("NEO4J_URI"),
		User:           util.GetEnvString("NEO4J_USER", "neo4j"),
		Password:       util.GetEnv("NEO4J_PASSWORD"),
		Database:       util.GetEnv("NEO4J_DATABASE"),
		ConnectTimeout: util.GetEnvSeconds("NEO4J_TIMEOUT_SECONDS", 10*time.Second),
		MaxPoolSize:    util.GetEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		BatchSize:      util.GetEnvInt("NEO4J_BATCH_SIZE", 1000),
	})
}

func (s *GraphStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *GraphStore) write(ctx context.Context, st cypher.Statement) (int, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, st.Query, st.Params)
		if err != nil {
			return 0, err
		}
		if !result.Next(ctx) {
			_, err := result.Consume(ctx)
			return 0, err
		}
		n := intValue(result.Record(), "created")
		_, err = result.Consume(ctx)
		return n, err
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

func (s *GraphStore) Wipe(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	st := cypher.DeleteAll()
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, st.Query, st.Params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("wipe graph: %w", err)
	}
	return nil
}

// CreateNodes creates name indexes best-effort and then writes nodes in
// batches, one label per statement.
func (s *GraphStore) CreateNodes(ctx context.Context, nodes []common.Node) (int, error) {
	s.ensureIndexes(ctx)

	labels, groups := store.GroupNodes(nodes)
	created := 0
	for _, label := range labels {
		group := groups[label]
		err := store.ChunkRange(len(group), s.batchSize, func(start, end int) error {
			n, err := s.write(ctx, cypher.CreateNodes(label, group[start:end]))
			created += n
			return err
		})
		if err != nil {
			return created, fmt.Errorf("create %s nodes: %w", label, err)
		}
	}
	return created, nil
}

func (s *GraphStore) CreateEdges(ctx context.Context, edges []common.Edge) (int, error) {
	types, groups := store.GroupEdges(edges)
	created := 0
	for _, t := range types {
		group := groups[t]
		err := store.ChunkRange(len(group), s.batchSize, func(start, end int) error {
			n, err := s.write(ctx, cypher.CreateEdges(t, group[start:end]))
			created += n
			return err
		})
		if err != nil {
			return created, fmt.Errorf("create %s edges: %w", t, err)
		}
	}
	return created, nil
}

func (s *GraphStore) ensureIndexes(ctx context.Context) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, st := range cypher.NameIndexes(common.EntityTypes) {
		res, err := session.Run(ctx, st.Query, st.Params)
		if err != nil {
			logger.Warn("[Neo4j] Index creation failed (continuing)", "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *GraphStore) read(ctx context.Context, st cypher.Statement) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, st.Query, st.Params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		if neo4j.IsConnectivityError(err) {
			return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return nil, err
	}
	return res.([]*neo4j.Record), nil
}

func (s *GraphStore) CountNodes(ctx context.Context, labels []common.EntityType) (int, error) {
	records, err := s.read(ctx, cypher.CountNodes(labels))
	if err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return intValue(records[0], "count"), nil
}

func (s *GraphStore) Neighbors(ctx context.Context, names []string, limit int) ([]common.GraphHit, error) {
	if len(names) == 0 {
		return nil, nil
	}
	records, err := s.read(ctx, cypher.Neighbors(names, limit))
	if err != nil {
		return nil, fmt.Errorf("traverse neighbors: %w", err)
	}
	hits := make([]common.GraphHit, 0, len(records))
	for _, r := range records {
		hits = append(hits, common.GraphHit{
			Source:            stringValue(r, "source"),
			RelationType:      stringValue(r, "rel_type"),
			RelationDesc:      stringValue(r, "rel_desc"),
			Target:            stringValue(r, "target"),
			TargetDescription: stringValue(r, "tgt_desc"),
		})
	}
	return hits, nil
}

func (s *GraphStore) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

// Null properties come back as nil and map to "".
func stringValue(r *neo4j.Record, key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func intValue(r *neo4j.Record, key string) int {
	v, ok := r.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
