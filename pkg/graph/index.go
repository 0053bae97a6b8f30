// Package graph maintains the derived Neo4j index of Titles↔Entities and
// action edges. Everything here is reproducible from the title store: node
// sync is best-effort and the relational side never depends on a graph
// write having succeeded.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tessera-intel/tessera/pkg/config"
	"github.com/tessera-intel/tessera/pkg/models"
)

// Index is the graph-side view of the pipeline.
type Index struct {
	driver neo4j.DriverWithContext
}

// NewIndex connects to Neo4j and verifies connectivity.
func NewIndex(ctx context.Context, cfg config.GraphConfig) (*Index, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach neo4j: %w", err)
	}
	return &Index{driver: driver}, nil
}

// NewIndexFromDriver wraps an existing driver (useful for testing).
func NewIndexFromDriver(driver neo4j.DriverWithContext) *Index {
	return &Index{driver: driver}
}

// Close releases the driver.
func (ix *Index) Close(ctx context.Context) error {
	return ix.driver.Close(ctx)
}

// SyncTitle upserts the Title node, its Entity nodes, and the HAS_ENTITY
// edges. Entity identity is name|type.
func (ix *Index) SyncTitle(ctx context.Context, t *models.Title) error {
	session := ix.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (t:Title {id: $id})
			SET t.text = $text,
			    t.publisher = $publisher,
			    t.published_at = datetime($published_at),
			    t.verdict = $verdict,
			    t.assigned = $assigned,
			    t.entity_count = $entity_count`,
			map[string]any{
				"id":           t.ID,
				"text":         t.Text,
				"publisher":    t.Publisher,
				"published_at": t.PublishedAt.UTC().Format("2006-01-02T15:04:05Z"),
				"verdict":      string(t.Verdict),
				"assigned":     t.EventFamilyID != "",
				"entity_count": len(t.Entities),
			})
		if err != nil {
			return nil, err
		}

		for _, e := range t.Entities {
			_, err := tx.Run(ctx, `
				MATCH (t:Title {id: $id})
				MERGE (e:Entity {key: $key})
				SET e.name = $name, e.type = $type
				MERGE (t)-[:HAS_ENTITY]->(e)`,
				map[string]any{
					"id":   t.ID,
					"key":  e.Text + "|" + e.Type,
					"name": e.Text,
					"type": e.Type,
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to sync title %s: %w", t.ID, err)
	}
	return nil
}

// SyncActionTriple projects the title's action triple as directed
// HAS_ACTION edges with role and action tag. Incomplete triples (no action
// or no endpoint) are a no-op.
func (ix *Index) SyncActionTriple(ctx context.Context, titleID string, triple *models.ActionTriple) error {
	if !triple.Complete() {
		return nil
	}

	session := ix.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for role, name := range map[string]string{"actor": triple.Actor, "target": triple.Target} {
			if name == "" {
				continue
			}
			_, err := tx.Run(ctx, `
				MATCH (t:Title {id: $id})
				MATCH (e:Entity) WHERE e.name = $name
				MERGE (t)-[r:HAS_ACTION {actor_role: $role}]->(e)
				SET r.action = $action`,
				map[string]any{
					"id":     titleID,
					"name":   name,
					"role":   role,
					"action": triple.Action,
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to sync action triple for title %s: %w", titleID, err)
	}
	return nil
}

// Neighbor is a strategic title sharing entities with the queried one.
type Neighbor struct {
	ID          string
	SharedCount int
}

// StrategicNeighbors returns up to limit strategic titles sharing at least
// minShared entities with the given title inside the time window, most
// shared first.
func (ix *Index) StrategicNeighbors(ctx context.Context, titleID string, minShared, days, limit int) ([]Neighbor, error) {
	records, err := ix.readQuery(ctx, `
		MATCH (t:Title {id: $id})-[:HAS_ENTITY]->(e:Entity)<-[:HAS_ENTITY]-(n:Title)
		WHERE n.id <> $id
		  AND n.verdict = 'strategic'
		  AND n.published_at >= datetime() - duration({days: $days})
		WITH n, count(DISTINCT e) AS shared
		WHERE shared >= $min_shared
		RETURN n.id AS id, shared
		ORDER BY shared DESC
		LIMIT $limit`,
		map[string]any{"id": titleID, "days": days, "min_shared": minShared, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to query strategic neighbors: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(records))
	for _, rec := range records {
		id, _ := rec.Get("id")
		shared, _ := rec.Get("shared")
		neighbors = append(neighbors, Neighbor{
			ID:          id.(string),
			SharedCount: int(shared.(int64)),
		})
	}
	return neighbors, nil
}

// EntityCentrality returns the names of entities on this title whose
// strategic-mention count inside the window meets the threshold.
func (ix *Index) EntityCentrality(ctx context.Context, titleID string, minStrategicMentions, days int) ([]string, error) {
	records, err := ix.readQuery(ctx, `
		MATCH (t:Title {id: $id})-[:HAS_ENTITY]->(e:Entity)<-[:HAS_ENTITY]-(m:Title)
		WHERE m.verdict = 'strategic'
		  AND m.published_at >= datetime() - duration({days: $days})
		WITH e, count(DISTINCT m) AS mentions
		WHERE mentions >= $min_mentions
		RETURN e.name AS name
		ORDER BY mentions DESC`,
		map[string]any{"id": titleID, "days": days, "min_mentions": minStrategicMentions})
	if err != nil {
		return nil, fmt.Errorf("failed to query entity centrality: %w", err)
	}

	names := make([]string, 0, len(records))
	for _, rec := range records {
		name, _ := rec.Get("name")
		names = append(names, name.(string))
	}
	return names, nil
}

// NeighborhoodStats summarizes the strategic neighborhood of a title.
type NeighborhoodStats struct {
	NeighborCount int
	Density       float64 // neighbors / entity count of the queried title
}

// StrategicNeighborhood counts strategic titles sharing at least one entity
// with the given title inside the window.
func (ix *Index) StrategicNeighborhood(ctx context.Context, titleID string, days int) (NeighborhoodStats, error) {
	records, err := ix.readQuery(ctx, `
		MATCH (t:Title {id: $id})
		OPTIONAL MATCH (t)-[:HAS_ENTITY]->(:Entity)<-[:HAS_ENTITY]-(n:Title)
		WHERE n.verdict = 'strategic'
		  AND n.published_at >= datetime() - duration({days: $days})
		RETURN count(DISTINCT n) AS neighbors, t.entity_count AS entity_count`,
		map[string]any{"id": titleID, "days": days})
	if err != nil {
		return NeighborhoodStats{}, fmt.Errorf("failed to query neighborhood: %w", err)
	}
	if len(records) == 0 {
		return NeighborhoodStats{}, nil
	}

	neighbors, _ := records[0].Get("neighbors")
	entityCount, _ := records[0].Get("entity_count")
	stats := NeighborhoodStats{NeighborCount: int(neighbors.(int64))}
	if ec, ok := entityCount.(int64); ok && ec > 0 {
		stats.Density = float64(stats.NeighborCount) / float64(ec)
	}
	return stats, nil
}

// OngoingEvent reports whether any entity on this title participates in a
// temporal sequence of at least minSequence strategic mentions (distinct
// days) inside the window.
func (ix *Index) OngoingEvent(ctx context.Context, titleID string, minSequence, days int) (bool, error) {
	records, err := ix.readQuery(ctx, `
		MATCH (t:Title {id: $id})-[:HAS_ENTITY]->(e:Entity)<-[:HAS_ENTITY]-(m:Title)
		WHERE m.verdict = 'strategic'
		  AND m.published_at >= datetime() - duration({days: $days})
		WITH e, count(DISTINCT date(m.published_at)) AS seq
		WHERE seq >= $min_seq
		RETURN count(e) > 0 AS ongoing`,
		map[string]any{"id": titleID, "days": days, "min_seq": minSequence})
	if err != nil {
		return false, fmt.Errorf("failed to query ongoing event: %w", err)
	}
	if len(records) == 0 {
		return false, nil
	}
	ongoing, _ := records[0].Get("ongoing")
	return ongoing.(bool), nil
}

// SharedPair is a raw co-occurrence count between two unassigned strategic
// titles. The graph contributes only counts; scoring happens in the
// connectivity driver.
type SharedPair struct {
	TitleA      string // lexicographically smaller id
	TitleB      string
	SharedCount int
}

// UnassignedSharedEntityPairs returns ordered pairs of unassigned strategic
// titles sharing at least minShared entities, capped at max.
func (ix *Index) UnassignedSharedEntityPairs(ctx context.Context, minShared, max int) ([]SharedPair, error) {
	records, err := ix.readQuery(ctx, `
		MATCH (a:Title)-[:HAS_ENTITY]->(e:Entity)<-[:HAS_ENTITY]-(b:Title)
		WHERE a.verdict = 'strategic' AND b.verdict = 'strategic'
		  AND a.assigned = false AND b.assigned = false
		  AND a.id < b.id
		WITH a, b, count(DISTINCT e) AS shared
		WHERE shared >= $min_shared
		RETURN a.id AS a, b.id AS b, shared
		ORDER BY shared DESC
		LIMIT $max`,
		map[string]any{"min_shared": minShared, "max": max})
	if err != nil {
		return nil, fmt.Errorf("failed to query shared entity pairs: %w", err)
	}

	pairs := make([]SharedPair, 0, len(records))
	for _, rec := range records {
		a, _ := rec.Get("a")
		b, _ := rec.Get("b")
		shared, _ := rec.Get("shared")
		pairs = append(pairs, SharedPair{
			TitleA:      a.(string),
			TitleB:      b.(string),
			SharedCount: int(shared.(int64)),
		})
	}
	return pairs, nil
}

// RebuildDerivedEdges refreshes the CO_OCCURS and SAME_ACTOR relationship
// layers from the current HAS_ENTITY/HAS_ACTION edges. Runs as part of
// graph prep before a connectivity refresh.
func (ix *Index) RebuildDerivedEdges(ctx context.Context) error {
	session := ix.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (a:Title)-[:HAS_ENTITY]->(e:Entity)<-[:HAS_ENTITY]-(b:Title)
			WHERE a.id < b.id
			WITH a, b, count(DISTINCT e) AS shared
			WHERE shared >= 2
			MERGE (a)-[r:CO_OCCURS]->(b)
			SET r.shared_count = shared,
			    r.jaccard_similarity = toFloat(shared) /
			        toFloat(a.entity_count + b.entity_count - shared)`, nil)
		if err != nil {
			return nil, err
		}
		_, err = tx.Run(ctx, `
			MATCH (a:Title)-[ra:HAS_ACTION {actor_role: 'actor'}]->(e:Entity)
			MATCH (b:Title)-[rb:HAS_ACTION {actor_role: 'actor'}]->(e)
			WHERE a.id < b.id
			MERGE (a)-[s:SAME_ACTOR]->(b)
			SET s.actor = e.name`, nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild derived edges: %w", err)
	}
	return nil
}

func (ix *Index) readQuery(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := ix.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*neo4j.Record), nil
}
