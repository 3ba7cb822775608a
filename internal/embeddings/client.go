// Package embeddings turns dependency descriptions into vectors through an
// OpenAI-compatible embeddings endpoint.
package embeddings

import (
	"context"
	"depscan/internal/config"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrMissingAPIKey is returned by NewClient when no key is configured.
var ErrMissingAPIKey = errors.New("embeddings api key is not set (DEPSCAN_EMBEDDINGS_API_KEY or OPENAI_API_KEY)")

// maxBatchInputs caps the inputs sent in one request.
const maxBatchInputs = 512

type Client struct {
	client *openai.Client
	model  openai.EmbeddingModel
	logger *zap.Logger
}

func NewClient(cfg config.EmbeddingsConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	ocfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		ocfg.BaseURL = cfg.BaseURL
		logger.Info("using custom embeddings endpoint", zap.String("base_url", cfg.BaseURL))
	}

	model := openai.SmallEmbedding3
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}
	logger.Debug("embeddings client created", zap.String("model", string(model)))

	return &Client{
		client: openai.NewClientWithConfig(ocfg),
		model:  model,
		logger: logger,
	}, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: c.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// EmbedBatch embeds texts, splitting large inputs across requests. The
// result is index-aligned with texts.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxBatchInputs {
		end := min(start+maxBatchInputs, len(texts))
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: c.model,
			Input: texts[start:end],
		})
		if err != nil {
			return nil, err
		}
		for _, data := range resp.Data {
			if data.Index < 0 || start+data.Index >= end {
				return nil, fmt.Errorf("embedding index %d out of range", data.Index)
			}
			results[start+data.Index] = data.Embedding
		}
	}

	for i, v := range results {
		if len(v) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return results, nil
}
