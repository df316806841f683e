package model

import "time"

// ConsolidatedMemory is the durable record derived from exactly one episode
// that crossed the promotion threshold.
type ConsolidatedMemory struct {
	ID               string    `json:"id"`
	EpisodeID        string    `json:"episode_id"`
	SemanticCategory string    `json:"semantic_category"`
	Strength         float64   `json:"consolidated_strength"` // [0,1]
	Embedding        []float32 `json:"embedding,omitempty"`   // optional clustering feature
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Association is a directed weighted edge between two consolidated memories.
// Edges are owned by the association collection, never by either endpoint.
type Association struct {
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Kind      string    `json:"kind"` // "replay", "creative"
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}
