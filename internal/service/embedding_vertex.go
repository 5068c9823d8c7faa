package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/quernlabs/quern/internal/apperrors"
)

// VertexProvider generates embeddings through the Vertex AI prediction API.
// BaseURL must point at the publisher model resource, e.g.
// https://us-central1-aiplatform.googleapis.com/v1/projects/acme/locations/us-central1/publishers/google/models/textembedding-gecko
type VertexProvider struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
}

// NewVertexProvider creates a new Vertex AI embedding provider.
func NewVertexProvider(cfg *EmbeddingProviderConfig) (*VertexProvider, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.New(apperrors.KindValidation, "vertex provider requires a base URL (model resource path)")
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	return &VertexProvider{
		client:     client,
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + ":predict",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (p *VertexProvider) Name() string    { return ProviderVertex }
func (p *VertexProvider) Model() string   { return p.model }
func (p *VertexProvider) Dimensions() int { return p.dimensions }

// Vertex AI predict request/response structures
type vertexInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type,omitempty"`
}

type vertexRequest struct {
	Instances []vertexInstance `json:"instances"`
}

type vertexResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values     []float32 `json:"values"`
			Statistics struct {
				TokenCount int  `json:"token_count"`
				Truncated  bool `json:"truncated"`
			} `json:"statistics"`
		} `json:"embeddings"`
	} `json:"predictions"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// EmbedBatch generates embeddings for multiple texts via a single predict call.
func (p *VertexProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := vertexRequest{
		Instances: make([]vertexInstance, 0, len(texts)),
	}
	for _, text := range texts {
		req.Instances = append(req.Instances, vertexInstance{
			Content:  text,
			TaskType: "RETRIEVAL_DOCUMENT",
		})
	}

	var resp vertexResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(p.endpoint)

	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindExternalService, "failed to call Vertex AI", err)
	}

	if httpResp.StatusCode() != http.StatusOK {
		return nil, classifyEmbeddingStatus(ProviderVertex, httpResp.StatusCode(), resp.Error.Message)
	}

	if len(resp.Predictions) != len(texts) {
		return nil, apperrors.Newf(apperrors.KindExternalService, "unexpected number of embeddings: got %d, expected %d", len(resp.Predictions), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for i, pred := range resp.Predictions {
		embeddings[i] = pred.Embeddings.Values
	}

	return embeddings, nil
}
