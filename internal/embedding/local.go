package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/pipeline"
)

// LocalProvider implements Provider against an Ollama-compatible endpoint,
// one request per text.
type LocalProvider struct {
	endpoint  string
	model     string
	dimension int
	retries   int
	client    *http.Client

	once    sync.Once
	dimOnce int
}

// NewLocalProvider creates a local provider with a bounded request timeout.
func NewLocalProvider(cfg config.EmbeddingConfig) *LocalProvider {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	return &LocalProvider{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		retries:   retries,
		client:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

type localRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed sends each text to the endpoint and returns the vectors in order.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.embedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, vec)
	}

	// Cache dimension from first successful result.
	if len(embeddings) > 0 && len(embeddings[0]) > 0 {
		p.once.Do(func() {
			p.dimOnce = len(embeddings[0])
		})
	}

	return embeddings, nil
}

func (p *LocalProvider) embedSingle(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(localRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	var result localResponse
	err = pipeline.Retry(ctx, p.retries, 500*time.Millisecond, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("embedding: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return pipeline.Transient("embedding: send request", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			statusErr := fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, string(respBody))
			if resp.StatusCode >= http.StatusInternalServerError {
				return pipeline.Transient("embedding: request", statusErr)
			}
			return statusErr
		}

		result = localResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("embedding: decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// Dimension returns the cached dimension from the first result, or the
// configured default before any call succeeds.
func (p *LocalProvider) Dimension() int {
	if p.dimOnce > 0 {
		return p.dimOnce
	}
	return p.dimension
}
