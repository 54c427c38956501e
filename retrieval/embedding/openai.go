// Package embedding provides query embedders for the retrieval gateway.
package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Known output dimensions for the supported embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

const defaultModel = "text-embedding-3-small"

// OpenAIOptions configures an OpenAIEmbedder.
type OpenAIOptions struct {
	Model   string
	APIKey  string
	BaseURL string
}

// OpenAIEmbedder embeds query text through the OpenAI embeddings endpoint.
// A BaseURL override points it at any compatible local server.
type OpenAIEmbedder struct {
	client openai.Client
	opts   OpenAIOptions
}

// NewOpenAIEmbedder creates an embedder with the given options.
func NewOpenAIEmbedder(optFns ...func(o *OpenAIOptions)) *OpenAIEmbedder {
	opts := OpenAIOptions{Model: defaultModel}
	for _, fn := range optFns {
		fn(&opts)
	}

	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIEmbedder{client: openai.NewClient(reqOpts...), opts: opts}
}

// WithModel selects the embedding model.
func WithModel(model string) func(o *OpenAIOptions) {
	return func(o *OpenAIOptions) { o.Model = model }
}

// WithAPIKey sets the API key explicitly instead of the environment.
func WithAPIKey(key string) func(o *OpenAIOptions) {
	return func(o *OpenAIOptions) { o.APIKey = key }
}

// WithBaseURL points the embedder at a compatible local endpoint.
func WithBaseURL(url string) func(o *OpenAIOptions) {
	return func(o *OpenAIOptions) { o.BaseURL = url }
}

// Embed returns the vector for one piece of query text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.opts.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, f := range raw {
		vec[i] = float32(f)
	}
	return vec, nil
}

// Dimension returns the output width of the configured model (0 if unknown).
func (e *OpenAIEmbedder) Dimension() int {
	return modelDimensions[e.opts.Model]
}
