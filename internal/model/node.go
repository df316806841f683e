package model

import "time"

// AgeCategory buckets a semantic node by elapsed time since creation.
type AgeCategory string

const (
	AgeRecent   AgeCategory = "recent"
	AgeWeekOld  AgeCategory = "week_old"
	AgeMonthOld AgeCategory = "month_old"
	AgeRemote   AgeCategory = "remote"
)

// AgeCategoryFor derives the bucket from elapsed time.
func AgeCategoryFor(age time.Duration) AgeCategory {
	switch {
	case age < 24*time.Hour:
		return AgeRecent
	case age < 7*24*time.Hour:
		return AgeWeekOld
	case age < 30*24*time.Hour:
		return AgeMonthOld
	default:
		return AgeRemote
	}
}

// NodeState tracks how far a long-term record has schematized.
type NodeState string

const (
	NodeEpisodic      NodeState = "episodic"
	NodeConsolidating NodeState = "consolidating"
	NodeSchematized   NodeState = "schematized"
)

// NodeStateFor derives the state from the rolling access frequency.
func NodeStateFor(accessFrequency int) NodeState {
	switch {
	case accessFrequency >= 10:
		return NodeSchematized
	case accessFrequency >= 3:
		return NodeConsolidating
	default:
		return NodeEpisodic
	}
}

// SemanticNode is the final long-term entity in the semantic network.
// RetrievalStrength is a pure function of the persisted fields; it carries no
// hidden mutable state and can always be re-derived.
type SemanticNode struct {
	ID                string      `json:"id"`
	MemoryID          string      `json:"memory_id"` // source consolidated memory
	Category          string      `json:"category"`
	ClusterID         int         `json:"cluster_id"` // sticky until explicit re-cluster
	CompetitionRank   int         `json:"competition_rank"`
	AccessFrequency   int         `json:"access_frequency"` // rolling 7-day window
	Strength          float64     `json:"consolidated_strength"`
	RetrievalStrength float64     `json:"retrieval_strength"` // [0,1]
	AgeCategory       AgeCategory `json:"age_category"`
	State             NodeState   `json:"consolidation_state"`
	CreatedAt         time.Time   `json:"created_at"`
	LastAccessedAt    time.Time   `json:"last_accessed_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
