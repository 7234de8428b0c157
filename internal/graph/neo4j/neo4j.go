package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/graph"
	"github.com/efebarandurmaz/callsight/internal/ir"
	"github.com/efebarandurmaz/callsight/internal/observability"
)

// batchSize bounds the rows sent per UNWIND statement.
const batchSize = 500

// Neo4jRepository implements graph.Repository using Neo4j.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
	uri      string
}

// NewNeo4j creates a Neo4j-backed repository. An empty database selects the
// server default.
func NewNeo4j(ctx context.Context, uri, username, password, database string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver, database: database, uri: uri}, nil
}

// Ping verifies the server is reachable.
func (r *Neo4jRepository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Neo4jRepository) session(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})
}

// StoreGraph replaces all :Function nodes and :CALLS edges with g.
func (r *Neo4jRepository) StoreGraph(ctx context.Context, g *callgraph.Graph) error {
	nodes := graph.NodeRows(g)
	edges := graph.EdgeRows(g)
	ctx, span := observability.StartPersistSpan(ctx, "neo4j", len(nodes)+len(edges))
	defer span.End()

	session := r.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, "MATCH (f:Function) DETACH DELETE f", nil); err != nil {
			return nil, err
		}
		for _, batch := range graph.Batches(nodes, batchSize) {
			_, err := tx.Run(ctx,
				"UNWIND $rows AS row "+
					"CREATE (f:Function {id: row.id}) SET f += row",
				map[string]any{"rows": toAny(batch)})
			if err != nil {
				return nil, fmt.Errorf("store functions: %w", err)
			}
		}
		for _, batch := range graph.Batches(edges, batchSize) {
			_, err := tx.Run(ctx,
				"UNWIND $rows AS row "+
					"MATCH (a:Function {id: row.caller}) "+
					"MATCH (b:Function {id: row.callee}) "+
					"MERGE (a)-[:CALLS]->(b)",
				map[string]any{"rows": toAny(batch)})
			if err != nil {
				return nil, fmt.Errorf("store calls: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("store call graph: %w", err)
	}
	return nil
}

// LoadRecords returns the persisted records ordered by file and line.
func (r *Neo4jRepository) LoadRecords(ctx context.Context) ([]ir.FunctionRecord, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (f:Function) RETURN properties(f) AS props ORDER BY f.file, f.start_line, f.id",
			nil)
		if err != nil {
			return nil, err
		}
		var records []ir.FunctionRecord
		for res.Next(ctx) {
			props, _ := res.Record().Get("props")
			if m, ok := props.(map[string]any); ok {
				records = append(records, graph.RecordFromRow(m))
			}
		}
		return records, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load functions: %w", err)
	}
	return result.([]ir.FunctionRecord), nil
}

func (r *Neo4jRepository) QueryCallees(ctx context.Context, id string) ([]string, error) {
	return r.queryIDs(ctx,
		"MATCH (:Function {id: $id})-[:CALLS]->(n:Function) RETURN n.id AS id ORDER BY id", id)
}

func (r *Neo4jRepository) QueryCallers(ctx context.Context, id string) ([]string, error) {
	return r.queryIDs(ctx,
		"MATCH (n:Function)-[:CALLS]->(:Function {id: $id}) RETURN n.id AS id ORDER BY id", id)
}

func (r *Neo4jRepository) queryIDs(ctx context.Context, cypher, id string) ([]string, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		ids := []string{}
		for res.Next(ctx) {
			v, _ := res.Record().Get("id")
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Loader exposes the persisted graph as a record source.
func (r *Neo4jRepository) Loader() ir.Loader {
	return &recordLoader{repo: r}
}

type recordLoader struct {
	repo *Neo4jRepository
}

func (l *recordLoader) Name() string { return "neo4j:" + l.repo.uri }

func (l *recordLoader) Load(ctx context.Context) ([]ir.FunctionRecord, error) {
	return l.repo.LoadRecords(ctx)
}

func toAny[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

var _ graph.Repository = (*Neo4jRepository)(nil)
