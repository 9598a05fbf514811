package retrieval

import (
	"context"
	"fmt"
	"time"
)

// EntityProfile aggregates one entity's mentions: how often it appears
// and the three most recent snippets of surrounding content.
type EntityProfile struct {
	Text           string    `json:"text"`
	Kind           string    `json:"kind"`
	MentionCount   int       `json:"mention_count"`
	LastSeen       time.Time `json:"last_seen"`
	RecentContexts []string  `json:"recent_contexts"`
}

// People aggregates person mentions by entity text.
func (e *Engine) People(ctx context.Context, limit int) ([]EntityProfile, error) {
	return e.aggregateEntities(ctx, "person", limit)
}

// Organizations aggregates org mentions by entity text.
func (e *Engine) Organizations(ctx context.Context, limit int) ([]EntityProfile, error) {
	return e.aggregateEntities(ctx, "org", limit)
}

// aggregateEntities groups mentions by text, counting occurrences and
// keeping the three most recent containing records as context.
func (e *Engine) aggregateEntities(ctx context.Context, kind string, limit int) ([]EntityProfile, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT em.text, em.kind, COUNT(*) AS mention_count, MAX(c.captured_at) AS last_seen
		FROM entity_mentions em
		JOIN content_records c ON c.id = em.content_id
		WHERE em.kind = ?
		GROUP BY em.text, em.kind
		ORDER BY mention_count DESC, last_seen DESC, em.text ASC
		LIMIT ?`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: aggregate %s: %w", kind, err)
	}
	defer rows.Close()

	var profiles []EntityProfile
	for rows.Next() {
		var p EntityProfile
		var lastSeen string
		if err := rows.Scan(&p.Text, &p.Kind, &p.MentionCount, &lastSeen); err != nil {
			return nil, err
		}
		p.LastSeen, _ = time.Parse(time.RFC3339Nano, lastSeen)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range profiles {
		contexts, err := e.recentContexts(ctx, kind, profiles[i].Text, 3)
		if err != nil {
			return nil, err
		}
		profiles[i].RecentContexts = contexts
	}
	return profiles, nil
}

func (e *Engine) recentContexts(ctx context.Context, kind, text string, n int) ([]string, error) {
	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT c.text
		FROM entity_mentions em
		JOIN content_records c ON c.id = em.content_id
		WHERE em.kind = ? AND em.text = ?
		ORDER BY c.captured_at DESC, c.id DESC
		LIMIT ?`, kind, text, n)
	if err != nil {
		return nil, fmt.Errorf("retrieval: contexts for %q: %w", text, err)
	}
	defer rows.Close()

	var contexts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		contexts = append(contexts, preview(content))
	}
	return contexts, rows.Err()
}

// GraphNode is one entity in the relationship graph.
type GraphNode struct {
	Text         string `json:"text"`
	Kind         string `json:"kind"`
	MentionCount int    `json:"mention_count"`
}

// GraphEdge is a co-mention relationship: both entities appeared in the
// same content record Weight times.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// maxEdges bounds edge count for presentation; the densest graphs are
// unreadable anyway.
const maxEdges = 200

// Relationships builds the co-mention graph: nodes are the top entities
// by mention count, edges count records in which both entities appear.
// Edges referencing a node outside the top set are dropped.
func (e *Engine) Relationships(ctx context.Context, limit int) ([]GraphNode, []GraphEdge, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT text, kind, COUNT(*) AS mention_count
		FROM entity_mentions
		GROUP BY text, kind
		ORDER BY mention_count DESC, text ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval: graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []GraphNode
	kept := make(map[string]struct{})
	for rows.Next() {
		var n GraphNode
		if err := rows.Scan(&n.Text, &n.Kind, &n.MentionCount); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
		kept[n.Text] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(nodes) == 0 {
		return nil, nil, nil
	}

	// Count distinct co-mentions per entity pair. DISTINCT text pairs
	// per record so a doubly-tagged entity does not double an edge.
	edgeRows, err := e.store.DB().QueryContext(ctx, `
		SELECT a.text, b.text, COUNT(DISTINCT a.content_id) AS weight
		FROM entity_mentions a
		JOIN entity_mentions b
		  ON a.content_id = b.content_id AND a.text < b.text
		GROUP BY a.text, b.text
		HAVING weight >= 1
		ORDER BY weight DESC, a.text ASC, b.text ASC
		LIMIT ?`, maxEdges)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval: graph edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []GraphEdge
	for edgeRows.Next() {
		var edge GraphEdge
		if err := edgeRows.Scan(&edge.Source, &edge.Target, &edge.Weight); err != nil {
			return nil, nil, err
		}
		if _, ok := kept[edge.Source]; !ok {
			continue
		}
		if _, ok := kept[edge.Target]; !ok {
			continue
		}
		edges = append(edges, edge)
	}
	return nodes, edges, edgeRows.Err()
}
