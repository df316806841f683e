package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nidhogg/hippo/internal/config"
)

func TestAPIProviderEmbed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		resp := apiResponse{
			Data: []apiEmbeddingData{
				{Embedding: []float32{0.1, 0.2, 0.3}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(config.EmbeddingConfig{
		Endpoint:       srv.URL,
		Model:          "test-model",
		TimeoutSeconds: 5,
	})

	vectors, err := p.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
	if len(vectors[0]) != 3 {
		t.Fatalf("got dimension %d, want 3", len(vectors[0]))
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want 3", p.Dimension())
	}
}

func TestAPIProviderRetriesServerErrors(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(apiResponse{
			Data: []apiEmbeddingData{{Embedding: []float32{0.1, 0.2}}},
		})
	}))
	defer srv.Close()

	p := NewAPIProvider(config.EmbeddingConfig{
		Endpoint:       srv.URL,
		Model:          "test-model",
		TimeoutSeconds: 5,
		MaxRetries:     3,
	})

	vectors, err := p.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 2 {
		t.Fatalf("got %d vectors, want the retried request to succeed", len(vectors))
	}
	if hits != 3 {
		t.Fatalf("got %d requests, want 3 (two 500s then success)", hits)
	}
}

func TestAPIProviderEmbed_Empty(t *testing.T) {
	p := NewAPIProvider(config.EmbeddingConfig{
		Endpoint:  "http://unused",
		Model:     "test-model",
		Dimension: 128,
	})

	vectors, err := p.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
}

func TestAPIProviderDimension_Fallback(t *testing.T) {
	p := NewAPIProvider(config.EmbeddingConfig{
		Endpoint:  "http://unused",
		Model:     "test-model",
		Dimension: 256,
	})

	if d := p.Dimension(); d != 256 {
		t.Errorf("got dimension %d, want configured default 256", d)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	p, err := New(config.EmbeddingConfig{})
	if err != nil || p != nil {
		t.Fatalf("got (%v, %v) for disabled provider, want (nil, nil)", p, err)
	}

	p, err = New(config.EmbeddingConfig{Provider: "api"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*APIProvider); !ok {
		t.Fatalf("got %T, want *APIProvider", p)
	}

	if _, err := New(config.EmbeddingConfig{Provider: "bogus"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
