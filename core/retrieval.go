package core

import (
	"context"
	"time"
)

// TraversalFilter restricts a semantic search structurally before similarity
// ranking is applied: only nodes of Label reachable from the focus device via
// Relationship qualify as candidates. Label and Index identify the node class
// and its vector index in the graph store.
type TraversalFilter struct {
	Label        string `json:"label"`
	Index        string `json:"index"`
	Relationship string `json:"relationship,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
}

// RetrievalQuery describes one semantic search against the graph store.
// TopK bounds the result length; Filter is optional.
type RetrievalQuery struct {
	Text   string           `json:"text"`
	TopK   int              `json:"top_k"`
	Filter *TraversalFilter `json:"filter,omitempty"`
}

// ScoredNode is one retrieval hit: a graph node with its similarity score and
// last update time (used to break score ties in favour of recency).
type ScoredNode struct {
	NodeID    string         `json:"node_id"`
	Score     float64        `json:"score"`
	UpdatedAt time.Time      `json:"updated_at"`
	Payload   map[string]any `json:"payload"`
}

// RetrievalResult is the ordered hit list: descending score, ties broken by
// more recent UpdatedAt, length ≤ the query's TopK.
type RetrievalResult struct {
	Nodes []ScoredNode `json:"nodes"`
}

// Retriever is the semantic-retrieval contract agents consume. Every search
// is scoped to the tenant implied by the guard-rail context's org id; results
// never contain nodes owned by a different org.
type Retriever interface {
	Search(ctx context.Context, q RetrievalQuery, guard GuardRailContext) (RetrievalResult, error)
}
