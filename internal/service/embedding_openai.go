package service

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/quernlabs/quern/internal/apperrors"
)

// OpenAIProvider generates embeddings through any OpenAI-compatible API,
// including self-hosted inference servers.
type OpenAIProvider struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
}

// NewOpenAIProvider creates a new OpenAI-compatible embedding provider.
func NewOpenAIProvider(cfg *EmbeddingProviderConfig) (*OpenAIProvider, error) {
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}

	// Local OpenAI-compatible services may not require authentication
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts = append(opts, openai.WithToken(token))

	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "failed to create OpenAI client", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "failed to create embedder", err)
	}

	return &OpenAIProvider{
		embedder:   embedder,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (p *OpenAIProvider) Name() string    { return ProviderOpenAICompatible }
func (p *OpenAIProvider) Model() string   { return p.model }
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// EmbedBatch generates embeddings for multiple texts in a batch.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindExternalService, "failed to call embedding API", err)
	}

	if len(vectors) != len(texts) {
		return nil, apperrors.Newf(apperrors.KindExternalService, "unexpected number of embeddings: got %d, expected %d", len(vectors), len(texts))
	}

	return vectors, nil
}
