package tool

import (
	"context"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/retrieval"
)

// Lookuper is the adjacency listing side of the retrieval gateway.
type Lookuper interface {
	Lookup(ctx context.Context, q retrieval.AdjacencyQuery, guard core.GuardRailContext) ([]map[string]any, error)
}

// telemetryKind binds one observability node class to its vector index and
// the edge that connects devices to it.
type telemetryKind struct {
	noun         string
	label        string
	index        string
	relationship string
}

var (
	flowKind      = telemetryKind{noun: "flow", label: "Flow", index: "flow_embeddings", relationship: "SENDS_FLOW"}
	logKind       = telemetryKind{noun: "log", label: "Log", index: "log_embeddings", relationship: "SENDS_LOG"}
	telemetryKnd  = telemetryKind{noun: "telemetry", label: "Telemetry", index: "telemetry_embeddings", relationship: "SENDS_METRIC"}
	allKinds      = []telemetryKind{flowKind, logKind, telemetryKnd}
	searchVerbDoc = map[string]string{
		"flow":      "Semantic search over network flow records. Use for questions about traffic, connections, transfers or suspicious communication.",
		"log":       "Semantic search over device log lines. Use for questions about errors, restarts, configuration changes or operator actions.",
		"telemetry": "Semantic search over device telemetry samples. Use for questions about CPU, memory, interface counters or resource trends.",
	}
	lookupVerbDoc = map[string]string{
		"flow":      "List the most recent network flow records for the caller's devices, newest first.",
		"log":       "List the most recent log lines for the caller's devices, newest first.",
		"telemetry": "List the most recent telemetry samples for the caller's devices, newest first.",
	}
)

// NewFlowSearchTool returns semantic search over flow records.
func NewFlowSearchTool(r core.Retriever) Tool { return newSearchTool(r, flowKind) }

// NewLogSearchTool returns semantic search over log lines.
func NewLogSearchTool(r core.Retriever) Tool { return newSearchTool(r, logKind) }

// NewTelemetrySearchTool returns semantic search over telemetry samples.
func NewTelemetrySearchTool(r core.Retriever) Tool { return newSearchTool(r, telemetryKnd) }

// NewFlowLookupTool returns recency-ordered flow listing.
func NewFlowLookupTool(l Lookuper) Tool { return newLookupTool(l, flowKind) }

// NewLogLookupTool returns recency-ordered log listing.
func NewLogLookupTool(l Lookuper) Tool { return newLookupTool(l, logKind) }

// NewTelemetryLookupTool returns recency-ordered telemetry listing.
func NewTelemetryLookupTool(l Lookuper) Tool { return newLookupTool(l, telemetryKnd) }

// GraphTools returns the full observability tool set over one gateway.
func GraphTools(g *retrieval.Gateway) []Tool {
	tools := make([]Tool, 0, len(allKinds)*2)
	for _, k := range allKinds {
		tools = append(tools, newSearchTool(g, k), newLookupTool(g, k))
	}
	return tools
}

func newSearchTool(r core.Retriever, kind telemetryKind) Tool {
	desc := Descriptor{
		Name:        kind.noun + "_search",
		Description: searchVerbDoc[kind.noun],
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":      map[string]any{"type": "string", "description": "Natural language query"},
				"top_k":     map[string]any{"type": "integer", "description": "Maximum results to return"},
				"device_id": map[string]any{"type": "string", "description": "Restrict to one device"},
			},
			"required": []string{"text"},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"nodes": map[string]any{"type": "array"},
			},
			"required": []string{"nodes"},
		},
		RequiredGuardRails: []string{core.AttrOrgID},
	}

	return NewFunctionTool(desc, func(ctx context.Context, guard core.GuardRailContext, args map[string]any) (any, error) {
		text, _ := args["text"].(string)
		topK := intArg(args, "top_k")
		deviceID, _ := args["device_id"].(string)

		q := core.RetrievalQuery{
			Text: text,
			TopK: topK,
			Filter: &core.TraversalFilter{
				Label:        kind.label,
				Index:        kind.index,
				Relationship: kind.relationship,
				DeviceID:     deviceID,
			},
		}
		res, err := r.Search(ctx, q, guard)
		if err != nil {
			return nil, err
		}

		nodes := make([]map[string]any, 0, len(res.Nodes))
		for _, n := range res.Nodes {
			nodes = append(nodes, map[string]any{
				"node_id": n.NodeID,
				"score":   n.Score,
				"payload": n.Payload,
			})
		}
		return map[string]any{"nodes": nodes}, nil
	})
}

func newLookupTool(l Lookuper, kind telemetryKind) Tool {
	desc := Descriptor{
		Name:        kind.noun + "_lookup",
		Description: lookupVerbDoc[kind.noun],
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"device_id": map[string]any{"type": "string", "description": "Restrict to one device"},
				"limit":     map[string]any{"type": "integer", "description": "Maximum rows to return"},
			},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rows": map[string]any{"type": "array"},
			},
			"required": []string{"rows"},
		},
		RequiredGuardRails: []string{core.AttrOrgID, core.AttrRoleID},
	}

	return NewFunctionTool(desc, func(ctx context.Context, guard core.GuardRailContext, args map[string]any) (any, error) {
		deviceID, _ := args["device_id"].(string)
		q := retrieval.AdjacencyQuery{
			Label:        kind.label,
			Relationship: kind.relationship,
			DeviceID:     deviceID,
			Limit:        intArg(args, "limit"),
		}
		rows, err := l.Lookup(ctx, q, guard)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		return map[string]any{"rows": rows}, nil
	})
}

// intArg reads an integer argument; JSON decoding yields float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
