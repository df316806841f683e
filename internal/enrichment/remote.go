package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nidhogg/hippo/internal/pipeline"
)

// RemoteProvider implements Provider against an HTTP enrichment service.
// Network failures and 5xx responses retry with backoff before surfacing to
// the circuit breaker.
type RemoteProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	retries  int
}

// NewRemoteProvider creates a remote provider with a bounded request timeout
// and up to retries attempts per call.
func NewRemoteProvider(endpoint, apiKey string, timeout time.Duration, retries int) *RemoteProvider {
	if retries <= 0 {
		retries = 1
	}
	return &RemoteProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		retries:  retries,
	}
}

type enrichRequest struct {
	ContentRef string `json:"content_ref"`
}

type similarityRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type similarityResponse struct {
	Score float64 `json:"score"`
}

// Enrich posts the content reference and decodes the feature set.
func (p *RemoteProvider) Enrich(ctx context.Context, contentRef string) (Features, error) {
	var out Features
	if err := p.post(ctx, "/features", enrichRequest{ContentRef: contentRef}, &out); err != nil {
		return Features{}, err
	}
	return out, nil
}

// Similarity returns the service's pairwise similarity score in [0,1].
func (p *RemoteProvider) Similarity(ctx context.Context, aRef, bRef string) (float64, error) {
	var out similarityResponse
	if err := p.post(ctx, "/similarity", similarityRequest{A: aRef, B: bRef}, &out); err != nil {
		return 0, err
	}
	return out.Score, nil
}

func (p *RemoteProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("enrichment: marshal request: %w", err)
	}
	return pipeline.Retry(ctx, p.retries, 500*time.Millisecond, func(ctx context.Context) error {
		return p.postOnce(ctx, path, body, out)
	})
}

func (p *RemoteProvider) postOnce(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("enrichment: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pipeline.Transient("enrichment: send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		statusErr := fmt.Errorf("enrichment: API returned status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= http.StatusInternalServerError {
			return pipeline.Transient("enrichment: request", statusErr)
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("enrichment: decode response: %w", err)
	}
	return nil
}
