package embedding

import (
	"context"
	"fmt"

	"github.com/nidhogg/hippo/internal/config"
)

// Provider generates vector embeddings from text. The semantic network uses
// embeddings as the clustering feature when a provider is configured.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// New builds a Provider from configuration. An empty provider name disables
// embeddings; clustering then falls back to the category hash.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "api":
		return NewAPIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
