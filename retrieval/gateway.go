// Package retrieval implements the semantic retrieval gateway: the single
// entry point through which agents and tools reach the graph-backed knowledge
// store. The gateway owns tenant scoping, structural filtering, result
// ordering and retry behaviour so that no caller can bypass them.
package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/internal/util"
	"github.com/obsmesh/obsmesh/logging"
)

// Candidate widening bounds. The vector index is asked for more hits than the
// caller wants so that post-filtering still leaves enough results.
const (
	minCandidates = 100
	maxCandidates = 1000
	defaultTopK   = 5
)

// VectorQuery is the widened, tenant-scoped query handed to the graph store.
type VectorQuery struct {
	Index        string
	Embedding    []float32
	Limit        int
	OrgID        string
	Label        string
	Relationship string
	DeviceID     string
}

// AdjacencyQuery lists nodes structurally reachable from the caller's tenant,
// without similarity ranking.
type AdjacencyQuery struct {
	OrgID        string
	RoleID       string
	Label        string
	Relationship string
	DeviceID     string
	Limit        int
}

// GraphStore is the persistence contract the gateway drives. Implementations
// must apply the OrgID scoping of every query they receive; the gateway
// re-checks it on the way out regardless.
type GraphStore interface {
	VectorSearch(ctx context.Context, q VectorQuery) ([]core.ScoredNode, error)
	Adjacent(ctx context.Context, q AdjacencyQuery) ([]map[string]any, error)
}

// Embedder turns query text into the vector the graph store's indexes expect.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Options configures a Gateway.
type Options struct {
	Logger logging.Logger
	Retry  util.RetryConfig
}

// Gateway fronts the graph store for all semantic retrieval. It embeds the
// query text, widens the candidate set, applies structural and tenant
// filters, orders results and truncates to the requested size.
type Gateway struct {
	store    GraphStore
	embedder Embedder
	opts     Options
}

// New creates a retrieval Gateway over the given store and embedder.
func New(store GraphStore, embedder Embedder, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Retry:  util.DefaultRetryConfig(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{store: store, embedder: embedder, opts: opts}
}

// WithLogger sets the gateway logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithRetry overrides the backoff configuration for store calls.
func WithRetry(cfg util.RetryConfig) func(o *Options) {
	return func(o *Options) { o.Retry = cfg }
}

var _ core.Retriever = (*Gateway)(nil)

// Search runs one semantic query scoped to the caller's org. Structural
// filtering happens before similarity ranking: when the query carries a
// traversal filter, only nodes reachable under it are candidates. Results
// are ordered by descending score, ties broken by node recency, and
// truncated to TopK.
func (g *Gateway) Search(ctx context.Context, q core.RetrievalQuery, guard core.GuardRailContext) (core.RetrievalResult, error) {
	if err := guard.Validate(); err != nil {
		return core.RetrievalResult{}, err
	}

	topK := q.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	candidates := topK * 20
	if candidates < minCandidates {
		candidates = minCandidates
	}
	if candidates > maxCandidates {
		candidates = maxCandidates
	}

	embedding, err := g.embed(ctx, q.Text)
	if err != nil {
		return core.RetrievalResult{}, err
	}

	vq := VectorQuery{
		Embedding: embedding,
		Limit:     candidates,
		OrgID:     guard.OrgID,
	}
	if q.Filter != nil {
		vq.Index = q.Filter.Index
		vq.Label = q.Filter.Label
		vq.Relationship = q.Filter.Relationship
		vq.DeviceID = q.Filter.DeviceID
	}
	if vq.DeviceID == "" {
		vq.DeviceID = guard.DeviceID
	}

	start := time.Now()
	var hits []core.ScoredNode
	err = util.Retry(ctx, g.opts.Retry, retryableStoreErr, func(ctx context.Context) error {
		var searchErr error
		hits, searchErr = g.store.VectorSearch(ctx, vq)
		return searchErr
	})
	if err != nil {
		g.opts.Logger.Error("retrieval search failed", "index", vq.Index, "error", err)
		if core.KindOf(err) != "" {
			return core.RetrievalResult{}, err
		}
		return core.RetrievalResult{}, core.WrapError(core.KindRetrievalUnavailable, err, "graph store unreachable")
	}

	nodes := g.scope(hits, guard.OrgID)
	sortNodes(nodes)
	if len(nodes) > topK {
		nodes = nodes[:topK]
	}

	g.opts.Logger.Debug("retrieval search completed",
		"index", vq.Index, "candidates", len(hits), "returned", len(nodes), "duration", time.Since(start))

	return core.RetrievalResult{Nodes: nodes}, nil
}

// Lookup lists nodes adjacent to the caller's tenant chain without semantic
// ranking, for tools that enumerate recent flows, logs or metrics directly.
func (g *Gateway) Lookup(ctx context.Context, q AdjacencyQuery, guard core.GuardRailContext) ([]map[string]any, error) {
	if err := guard.Validate(); err != nil {
		return nil, err
	}

	q.OrgID = guard.OrgID
	q.RoleID = guard.RoleID
	if q.DeviceID == "" {
		q.DeviceID = guard.DeviceID
	}
	if q.Limit <= 0 {
		q.Limit = defaultTopK
	}

	var rows []map[string]any
	err := util.Retry(ctx, g.opts.Retry, retryableStoreErr, func(ctx context.Context) error {
		var lookupErr error
		rows, lookupErr = g.store.Adjacent(ctx, q)
		return lookupErr
	})
	if err != nil {
		g.opts.Logger.Error("adjacency lookup failed", "label", q.Label, "error", err)
		if core.KindOf(err) != "" {
			return nil, err
		}
		return nil, core.WrapError(core.KindRetrievalUnavailable, err, "graph store unreachable")
	}
	return rows, nil
}

func (g *Gateway) embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	err := util.Retry(ctx, g.opts.Retry, retryableStoreErr, func(ctx context.Context) error {
		var embedErr error
		embedding, embedErr = g.embedder.Embed(ctx, text)
		return embedErr
	})
	if err != nil {
		if core.KindOf(err) != "" {
			return nil, err
		}
		return nil, core.WrapError(core.KindRetrievalUnavailable, err, "embedding provider unreachable")
	}
	return embedding, nil
}

// scope drops any hit not owned by the caller's org. The store query already
// filters by org; this guards against store implementations that do not.
func (g *Gateway) scope(hits []core.ScoredNode, orgID string) []core.ScoredNode {
	nodes := make([]core.ScoredNode, 0, len(hits))
	for _, n := range hits {
		if owner, ok := n.Payload["org_id"].(string); ok && owner != orgID {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func sortNodes(nodes []core.ScoredNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Score != nodes[j].Score {
			return nodes[i].Score > nodes[j].Score
		}
		return nodes[i].UpdatedAt.After(nodes[j].UpdatedAt)
	})
}

// retryableStoreErr treats everything except non-transient classified errors
// and context cancellation as retryable. Plain driver errors stay retryable.
func retryableStoreErr(err error) bool {
	if err == nil {
		return false
	}
	if kind := core.KindOf(err); kind != "" {
		return kind.Retryable()
	}
	return true
}
