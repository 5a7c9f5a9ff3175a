package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/applier/internal/types"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the Gemini embedding model used when none is configured
	DefaultModel = "gemini-embedding-001"

	// defaultMaxInputRunes keeps requests under the model's input token limit
	defaultMaxInputRunes = 8000

	taskSemanticSimilarity = "SEMANTIC_SIMILARITY"
)

// GeminiProvider embeds text with the Gemini API
type GeminiProvider struct {
	client        *genai.Client
	model         string
	dimension     int32
	maxInputRunes int
}

// NewGeminiProvider creates a Gemini embedding provider
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}

	return &GeminiProvider{
		client:        client,
		model:         model,
		dimension:     types.EmbeddingDimension,
		maxInputRunes: defaultMaxInputRunes,
	}, nil
}

// Embed returns the embedding of text, truncated to the model's input limit
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	text = truncateRunes(text, p.maxInputRunes)

	dim := p.dimension
	resp, err := p.client.Models.EmbedContent(ctx, p.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             taskSemanticSimilarity,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini api returned no embeddings")
	}

	values := resp.Embeddings[0].Values
	if err := types.CheckEmbedding(values); err != nil {
		return nil, err
	}
	return values, nil
}
