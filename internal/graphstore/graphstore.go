// Package graphstore exports discovered causal graphs to Neo4j.
package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fractal-lba/quantcore/internal/causal"
)

// Store persists discovered graphs.
type Store interface {
	SaveGraph(ctx context.Context, runID string, g *causal.Graph) error
	Close(ctx context.Context) error
}

// Config locates the Neo4j database. An empty URI disables export.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// New returns a Neo4j store, or a no-op store when no URI is set.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.URI == "" {
		return NopStore{}, nil
	}
	return NewNeo4jStore(ctx, cfg)
}

const (
	constraintQuery = `CREATE CONSTRAINT causal_variable_name IF NOT EXISTS
FOR (v:CausalVariable) REQUIRE (v.run_id, v.name) IS UNIQUE`

	variablesQuery = `UNWIND $variables AS v
MERGE (n:CausalVariable {run_id: $run_id, name: v.name})
SET n.type = v.type, n.mean = v.mean, n.root = v.root, n.terminal = v.terminal`

	relationshipsQuery = `UNWIND $relationships AS r
MATCH (a:CausalVariable {run_id: $run_id, name: r.from})
MATCH (b:CausalVariable {run_id: $run_id, name: r.to})
MERGE (a)-[e:CAUSES {run_id: $run_id}]->(b)
SET e.strength = r.strength, e.confidence = r.confidence, e.p_value = r.p_value,
    e.lag = r.lag, e.mechanism = r.mechanism, e.confounded = r.confounded,
    e.confounders = r.confounders`
)

type execFunc func(ctx context.Context, query string, params map[string]any) error

// Neo4jStore writes each graph as CausalVariable nodes joined by CAUSES
// edges, all tagged with the discovery run ID.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	exec   execFunc
}

// NewNeo4jStore connects, verifies connectivity and ensures the node
// constraint.
func NewNeo4jStore(ctx context.Context, cfg Config) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}

	db := cfg.Database
	s := &Neo4jStore{driver: driver}
	s.exec = func(ctx context.Context, query string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, query, params, neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(db))
		return err
	}

	if err := s.exec(ctx, constraintQuery, nil); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("ensure constraint: %w", err)
	}
	return s, nil
}

// SaveGraph writes g under runID. Saving the same run twice is idempotent.
func (s *Neo4jStore) SaveGraph(ctx context.Context, runID string, g *causal.Graph) error {
	vars, rels := graphParams(g)
	if err := s.exec(ctx, variablesQuery, map[string]any{"run_id": runID, "variables": vars}); err != nil {
		return fmt.Errorf("save variables: %w", err)
	}
	if len(rels) == 0 {
		return nil
	}
	if err := s.exec(ctx, relationshipsQuery, map[string]any{"run_id": runID, "relationships": rels}); err != nil {
		return fmt.Errorf("save relationships: %w", err)
	}
	return nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// graphParams flattens g into driver-friendly maps.
func graphParams(g *causal.Graph) (vars, rels []map[string]any) {
	roots := set(g.RootCauses)
	terminals := set(g.TerminalEffects)

	vars = make([]map[string]any, 0, len(g.Variables))
	for _, v := range g.Variables {
		vars = append(vars, map[string]any{
			"name":     v.Name,
			"type":     string(v.Type),
			"mean":     v.Mean,
			"root":     roots[v.Name],
			"terminal": terminals[v.Name],
		})
	}

	rels = make([]map[string]any, 0, len(g.Relationships))
	for _, r := range g.Relationships {
		confounders := r.Confounders
		if confounders == nil {
			confounders = []string{}
		}
		rels = append(rels, map[string]any{
			"from":        r.From,
			"to":          r.To,
			"strength":    r.Strength,
			"confidence":  r.Confidence,
			"p_value":     r.PValue,
			"lag":         int64(r.Lag),
			"mechanism":   r.Mechanism,
			"confounded":  r.Confounded,
			"confounders": confounders,
		})
	}
	return vars, rels
}

func set(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// NopStore discards graphs.
type NopStore struct{}

func (NopStore) SaveGraph(context.Context, string, *causal.Graph) error { return nil }
func (NopStore) Close(context.Context) error                           { return nil }
