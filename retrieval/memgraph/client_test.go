package memgraph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/retrieval"
)

func TestAdjacencyQueryMatchesIngestedSchema(t *testing.T) {
	cypher, params, err := adjacencyQuery(retrieval.AdjacencyQuery{
		OrgID:        "acme",
		RoleID:       "analyst",
		Label:        "Flow",
		Relationship: "SENDS_FLOW",
		DeviceID:     "dev-7",
		Limit:        10,
	})
	require.NoError(t, err)

	// The access chain is keyed exactly as ingested: Org and Role key on id,
	// Device on dev_id, joined by CONTROLS_ACCESS and COLLECTS_FROM.
	assert.Contains(t, cypher, "(o:Org {id: $org_id})-[:HAS_ROLE]->(r:Role {id: $role_id})")
	assert.Contains(t, cypher, "[:CONTROLS_ACCESS]->(:Collector)-[:COLLECTS_FROM]->")
	assert.Contains(t, cypher, "(d:Device {dev_id: $device_id})-[:SENDS_FLOW]->(n:Flow)")
	assert.NotContains(t, cypher, "HAS_COLLECTOR")
	assert.NotContains(t, cypher, "HAS_DEVICE")
	assert.NotContains(t, cypher, "device_id:")
	assert.Equal(t, "acme", params["org_id"])
	assert.Equal(t, "analyst", params["role_id"])
	assert.Equal(t, "dev-7", params["device_id"])
}

func TestAdjacencyQueryWithoutDevice(t *testing.T) {
	cypher, params, err := adjacencyQuery(retrieval.AdjacencyQuery{
		OrgID:        "acme",
		RoleID:       "analyst",
		Label:        "Log",
		Relationship: "SENDS_LOG",
		Limit:        5,
	})
	require.NoError(t, err)

	assert.Contains(t, cypher, "(d:Device)-[:SENDS_LOG]->(n:Log)")
	assert.NotContains(t, cypher, "dev_id")
	_, hasDevice := params["device_id"]
	assert.False(t, hasDevice)
}

func TestAdjacencyQueryRejectsUnknownSchema(t *testing.T) {
	_, _, err := adjacencyQuery(retrieval.AdjacencyQuery{Label: "User", Relationship: "SENDS_FLOW"})
	assert.True(t, core.IsKind(err, core.KindInvalidArguments))

	_, _, err = adjacencyQuery(retrieval.AdjacencyQuery{Label: "Flow", Relationship: "OWNS"})
	assert.True(t, core.IsKind(err, core.KindInvalidArguments))
}

func TestVectorSearchQueryDeviceFilter(t *testing.T) {
	cypher, params, err := vectorSearchQuery(retrieval.VectorQuery{
		Index:        "flow_embeddings",
		Embedding:    []float32{0.1},
		Limit:        100,
		OrgID:        "acme",
		Relationship: "SENDS_FLOW",
		DeviceID:     "dev-7",
	})
	require.NoError(t, err)

	assert.Contains(t, cypher, "CALL vector_search.search($index, $limit, $embedding)")
	assert.Contains(t, cypher, "(:Device {dev_id: $device_id})-[:SENDS_FLOW]->(node)")
	assert.Contains(t, cypher, "node.org_id = $org_id")
	assert.Equal(t, "dev-7", params["device_id"])
}

func TestVectorSearchQueryClassifiesBadInput(t *testing.T) {
	_, _, err := vectorSearchQuery(retrieval.VectorQuery{})
	assert.True(t, core.IsKind(err, core.KindInvalidArguments), "a missing index is a caller bug, not a store outage")

	_, _, err = vectorSearchQuery(retrieval.VectorQuery{Index: "flow_embeddings", DeviceID: "dev-7", Relationship: "OWNS"})
	assert.True(t, core.IsKind(err, core.KindInvalidArguments))
}

func TestNodeUpdatedAtEncodings(t *testing.T) {
	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		props map[string]any
		want  time.Time
	}{
		{"native", map[string]any{"updated_at": want}, want},
		{"epoch int", map[string]any{"updated_at": want.Unix()}, want},
		{"epoch float", map[string]any{"updated_at": float64(want.Unix())}, want},
		{"rfc3339", map[string]any{"updated_at": want.Format(time.RFC3339)}, want},
		{"missing", map[string]any{}, time.Time{}},
		{"garbage", map[string]any{"updated_at": "yesterday"}, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, nodeUpdatedAt(tt.props).Equal(tt.want))
		})
	}
}

func TestTraversalAllowList(t *testing.T) {
	assert.True(t, allowedLabels["Flow"])
	assert.True(t, allowedRelationships["SENDS_METRIC"])
	assert.False(t, allowedLabels["User"], "identity nodes are never traversal targets")
	assert.False(t, allowedRelationships["OWNS"])
}

func TestToFloat64s(t *testing.T) {
	out := toFloat64s([]float32{1.5, -2})
	assert.Equal(t, []float64{1.5, -2}, out)
}
