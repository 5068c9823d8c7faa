package service

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/quernlabs/quern/internal/apperrors"
)

const (
	jinaEndpoint = "https://api.jina.ai/v1/embeddings"
)

// Provider kind identifiers as they appear in embedding configuration.
const (
	ProviderJina             = "jina"
	ProviderVertex           = "vertex"
	ProviderOpenAICompatible = "openai-compatible"
)

// EmbeddingProvider generates vector embeddings for document text.
type EmbeddingProvider interface {
	// Name returns the provider kind, e.g. "jina" or "vertex".
	Name() string
	// Model returns the embedding model identifier.
	Model() string
	// Dimensions returns the width of the vectors this provider produces.
	Dimensions() int
	// EmbedBatch generates one embedding per input text, in input order.
	// The call carries no state; the same text yields an equivalent vector,
	// so callers may retry safely.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingProviderConfig holds configuration for creating an embedding provider.
type EmbeddingProviderConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// NewEmbeddingProvider creates a provider for the configured backend.
// Parameters:
//   - cfg: provider kind, model, credentials, and vector dimensions.
// Returns:
//   - EmbeddingProvider: ready-to-use provider.
//   - error: non-nil if the provider kind is unknown or misconfigured.
func NewEmbeddingProvider(cfg *EmbeddingProviderConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case ProviderJina:
		return NewJinaProvider(cfg), nil
	case ProviderVertex:
		return NewVertexProvider(cfg)
	case ProviderOpenAICompatible:
		return NewOpenAIProvider(cfg)
	default:
		return nil, apperrors.Newf(apperrors.KindValidation, "unknown embedding provider %q", cfg.Provider)
	}
}

// classifyEmbeddingStatus maps a non-200 status from an embedding API into
// the error taxonomy. Credential and input errors are terminal; rate limits
// and server errors are transient and may be retried by the caller.
func classifyEmbeddingStatus(provider string, status int, detail string) error {
	if detail == "" {
		detail = http.StatusText(status)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.Newf(apperrors.KindPermission, "%s embedding API rejected credentials: %s", provider, detail)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return apperrors.Newf(apperrors.KindValidation, "%s embedding API rejected input: %s", provider, detail)
	default:
		return apperrors.Newf(apperrors.KindExternalService, "%s embedding API error (status %d): %s", provider, status, detail)
	}
}

// JinaProvider generates embeddings through the Jina embeddings API.
type JinaProvider struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
}

// NewJinaProvider creates a new Jina embedding provider.
func NewJinaProvider(cfg *EmbeddingProviderConfig) *JinaProvider {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	endpoint := jinaEndpoint
	if cfg.BaseURL != "" {
		endpoint = cfg.BaseURL
	}

	return &JinaProvider{
		client:     client,
		endpoint:   endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (p *JinaProvider) Name() string    { return ProviderJina }
func (p *JinaProvider) Model() string   { return p.model }
func (p *JinaProvider) Dimensions() int { return p.dimensions }

// Jina API request/response structures
type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
}

// EmbedBatch generates embeddings for multiple texts
func (p *JinaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := jinaRequest{
		Model:         p.model,
		Task:          "retrieval.passage", // Optimized for retrieval
		Dimensions:    p.dimensions,
		Input:         texts,
		EmbeddingType: "float",
	}

	var resp jinaResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(p.endpoint)

	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindExternalService, "failed to call Jina API", err)
	}

	if httpResp.StatusCode() != http.StatusOK {
		return nil, classifyEmbeddingStatus(ProviderJina, httpResp.StatusCode(), resp.Detail)
	}

	if len(resp.Data) != len(texts) {
		return nil, apperrors.Newf(apperrors.KindExternalService, "unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(texts))
	}

	// Sort by index to ensure correct order
	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}

	return embeddings, nil
}
