package model

import "time"

// Stage identifies one step of the consolidation pipeline. Stage names key
// watermarks and run-locks in the durable store.
type Stage string

const (
	StageAttention     Stage = "attention_gate"
	StageEpisode       Stage = "episode_builder"
	StageConsolidation Stage = "consolidation"
	StageSemantic      Stage = "semantic_network"
)

// Stages lists all pipeline stages in processing order.
func Stages() []Stage {
	return []Stage{StageAttention, StageEpisode, StageConsolidation, StageSemantic}
}

// ItemStatus tracks where a memory item sits relative to the attention gate.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending" // awaiting (re-)admission
	ItemActive  ItemStatus = "active"  // in the bounded active set
	ItemGrouped ItemStatus = "grouped" // absorbed into an episode
	ItemDropped ItemStatus = "dropped" // decayed out without promotion
)

// MemoryItem is a short-lived record from the upstream memory source.
// ID, ContentRef, and CreatedAt are immutable after creation.
type MemoryItem struct {
	ID          string     `json:"id"`
	ContentRef  string     `json:"content_ref"`
	Category    string     `json:"category"`
	Salience    float64    `json:"salience"` // externally supplied, [0,1]
	Sentiment   float64    `json:"sentiment"`
	Importance  float64    `json:"importance"`
	Strength    float64    `json:"strength"` // [0,1]
	Status      ItemStatus `json:"status"`
	Coactivated int        `json:"coactivated"` // co-activation counter
	ArrivalSeq  int64      `json:"arrival_seq"` // monotonic arrival order, breaks score ties
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clamp01 bounds a strength-like value to [0,1]. Every strength mutation in
// the pipeline passes through here.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
