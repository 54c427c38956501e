// Package memgraph implements the graph store contract on top of Memgraph,
// reached through the Bolt protocol. Vector similarity runs inside the
// database via the vector_search module; structural scoping runs as plain
// Cypher in the same query.
package memgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/logging"
	"github.com/obsmesh/obsmesh/retrieval"
)

// Node labels and edge types are interpolated into Cypher (Bolt parameters
// cannot carry them), so only values from this allow-list are accepted.
var (
	allowedLabels = map[string]bool{
		"Flow":      true,
		"Log":       true,
		"Telemetry": true,
	}
	allowedRelationships = map[string]bool{
		"SENDS_FLOW":   true,
		"SENDS_LOG":    true,
		"SENDS_METRIC": true,
	}
)

// Options configures a Client.
type Options struct {
	Username string
	Password string
	Database string
	Logger   logging.Logger
}

// Client talks to one Memgraph instance. It implements retrieval.GraphStore
// for search and core.Archiver for conversation persistence.
type Client struct {
	driver neo4j.DriverWithContext
	opts   Options
}

var (
	_ retrieval.GraphStore = (*Client)(nil)
	_ core.Archiver        = (*Client)(nil)
)

// New connects to Memgraph at the given Bolt URI (for example
// "bolt://localhost:7687").
func New(uri string, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create bolt driver: %w", err)
	}
	return &Client{driver: driver, opts: opts}, nil
}

// WithAuth sets Bolt credentials.
func WithAuth(username, password string) func(o *Options) {
	return func(o *Options) {
		o.Username = username
		o.Password = password
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Ping verifies connectivity to the database.
func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Close releases the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// vectorSearchQuery builds the similarity query. The org filter sits on the
// hit itself; a device focus additionally requires the hit to hang off that
// device over the kind's edge (Device nodes key on dev_id, as ingested).
func vectorSearchQuery(q retrieval.VectorQuery) (string, map[string]any, error) {
	if q.Index == "" {
		return "", nil, core.NewError(core.KindInvalidArguments, "vector query needs an index name")
	}

	params := map[string]any{
		"index":     q.Index,
		"limit":     q.Limit,
		"embedding": toFloat64s(q.Embedding),
		"org_id":    q.OrgID,
	}

	if q.DeviceID == "" {
		cypher := `CALL vector_search.search($index, $limit, $embedding) YIELD node, similarity
WITH node, similarity
WHERE node.org_id = $org_id
RETURN node, similarity`
		return cypher, params, nil
	}

	if !allowedRelationships[q.Relationship] {
		return "", nil, core.NewError(core.KindInvalidArguments, "relationship %q not allowed in traversal", q.Relationship)
	}
	cypher := fmt.Sprintf(`CALL vector_search.search($index, $limit, $embedding) YIELD node, similarity
WITH node, similarity
MATCH (:Device {dev_id: $device_id})-[:%s]->(node)
WHERE node.org_id = $org_id
RETURN node, similarity`, q.Relationship)
	params["device_id"] = q.DeviceID
	return cypher, params, nil
}

// VectorSearch runs an in-database similarity search over the index named in
// the query, scoped to the query's org. When a device id is present the match
// additionally requires the hit to be reachable from that device over the
// query's relationship type.
func (c *Client) VectorSearch(ctx context.Context, q retrieval.VectorQuery) ([]core.ScoredNode, error) {
	cypher, params, err := vectorSearchQuery(q)
	if err != nil {
		return nil, err
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: c.opts.Database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	var nodes []core.ScoredNode
	for result.Next(ctx) {
		record := result.Record()
		rawNode, ok := record.Get("node")
		if !ok {
			continue
		}
		n, ok := rawNode.(neo4j.Node)
		if !ok {
			continue
		}
		rawScore, _ := record.Get("similarity")
		score, _ := rawScore.(float64)
		nodes = append(nodes, scoredNode(n, score))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return nodes, nil
}

// adjacencyQuery builds the structural listing query. Access is keyed through
// the caller's role: Org -HAS_ROLE-> Role -CONTROLS_ACCESS-> Collector
// -COLLECTS_FROM-> Device, matching the ingested schema exactly (Org and Role
// key on id, Device on dev_id).
func adjacencyQuery(q retrieval.AdjacencyQuery) (string, map[string]any, error) {
	if !allowedLabels[q.Label] {
		return "", nil, core.NewError(core.KindInvalidArguments, "label %q not allowed in traversal", q.Label)
	}
	if !allowedRelationships[q.Relationship] {
		return "", nil, core.NewError(core.KindInvalidArguments, "relationship %q not allowed in traversal", q.Relationship)
	}

	deviceFilter := ""
	params := map[string]any{
		"org_id":  q.OrgID,
		"role_id": q.RoleID,
		"limit":   q.Limit,
	}
	if q.DeviceID != "" {
		deviceFilter = " {dev_id: $device_id}"
		params["device_id"] = q.DeviceID
	}

	cypher := fmt.Sprintf(`MATCH (o:Org {id: $org_id})-[:HAS_ROLE]->(r:Role {id: $role_id})
MATCH (r)-[:CONTROLS_ACCESS]->(:Collector)-[:COLLECTS_FROM]->(d:Device%s)-[:%s]->(n:%s)
RETURN n
ORDER BY n.updated_at DESC
LIMIT $limit`, deviceFilter, q.Relationship, q.Label)
	return cypher, params, nil
}

// Adjacent lists the most recent nodes of a label reachable from the
// caller's role through the collector chain, ordered by recency.
func (c *Client) Adjacent(ctx context.Context, q retrieval.AdjacencyQuery) ([]map[string]any, error) {
	cypher, params, err := adjacencyQuery(q)
	if err != nil {
		return nil, err
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: c.opts.Database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("adjacency lookup: %w", err)
	}

	var rows []map[string]any
	for result.Next(ctx) {
		rawNode, ok := result.Record().Get("n")
		if !ok {
			continue
		}
		n, ok := rawNode.(neo4j.Node)
		if !ok {
			continue
		}
		rows = append(rows, n.Props)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("adjacency lookup: %w", err)
	}
	return rows, nil
}

// ArchiveTurn persists one conversation turn under the owning user and
// conversation nodes. User and Conversation are merged so replays are
// idempotent at the container level; each turn is a fresh Message node.
func (c *Client) ArchiveTurn(ctx context.Context, guard core.GuardRailContext, t core.Turn) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: c.opts.Database})
	defer session.Close(ctx)

	cypher := `MERGE (u:User {id: $user_id})
MERGE (conv:Conversation {conv_id: $conversation_id})
SET conv.org_id = $org_id
MERGE (u)-[:HAS_CONVERSATION]->(conv)
CREATE (m:Message {
  message_id: $message_id,
  role: $role,
  agent: $agent,
  text: $text,
  timestamp: $timestamp
})
MERGE (conv)-[:HAS_MESSAGE]->(m)`
	params := map[string]any{
		"user_id":         guard.UserID,
		"org_id":          guard.OrgID,
		"conversation_id": guard.ConversationID,
		"message_id":      t.ID,
		"role":            string(t.Role),
		"agent":           t.Agent,
		"text":            t.Content,
		"timestamp":       t.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	if _, err := session.Run(ctx, cypher, params); err != nil {
		return fmt.Errorf("archive turn: %w", err)
	}
	return nil
}

func scoredNode(n neo4j.Node, score float64) core.ScoredNode {
	return core.ScoredNode{
		NodeID:    n.ElementId,
		Score:     score,
		UpdatedAt: nodeUpdatedAt(n.Props),
		Payload:   n.Props,
	}
}

// nodeUpdatedAt tolerates the timestamp encodings collectors actually write:
// native temporal values, epoch seconds and RFC 3339 strings.
func nodeUpdatedAt(props map[string]any) time.Time {
	raw, ok := props["updated_at"]
	if !ok {
		return time.Time{}
	}
	switch v := raw.(type) {
	case time.Time:
		return v
	case int64:
		return time.Unix(v, 0).UTC()
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
