package model

import "time"

// EpisodeState is the consolidation state machine position of an episode.
type EpisodeState string

const (
	EpisodePending           EpisodeState = "pending"
	EpisodeReplaying         EpisodeState = "replaying"
	EpisodeStrengthened      EpisodeState = "strengthened"
	EpisodeWeakened          EpisodeState = "weakened"
	EpisodeConsolidatedToLTM EpisodeState = "consolidated_to_ltm"
	EpisodeDiscarded         EpisodeState = "discarded"
)

// Terminal reports whether the state permits no further transitions.
// Promotion is monotonic: a consolidated episode never re-enters the machine.
func (s EpisodeState) Terminal() bool {
	return s == EpisodeConsolidatedToLTM || s == EpisodeDiscarded
}

// CanTransition reports whether moving from s to next is a legal step of
// Pending -> Replaying -> {Strengthened, Weakened} -> {ConsolidatedToLTM, Discarded}.
func (s EpisodeState) CanTransition(next EpisodeState) bool {
	switch s {
	case EpisodePending:
		return next == EpisodeReplaying
	case EpisodeReplaying:
		return next == EpisodeStrengthened || next == EpisodeWeakened
	case EpisodeStrengthened:
		return next == EpisodeConsolidatedToLTM || next == EpisodeDiscarded
	case EpisodeWeakened:
		return next == EpisodeConsolidatedToLTM || next == EpisodeDiscarded
	default:
		return false
	}
}

// Episode groups items that share a category within a co-activation window.
type Episode struct {
	ID                    string       `json:"id"`
	Category              string       `json:"category"`
	ItemIDs               []string     `json:"item_ids"`
	WindowStart           time.Time    `json:"window_start"`
	WindowEnd             time.Time    `json:"window_end"`
	DecayFactor           float64      `json:"decay_factor"`       // exp(-age/tau) at build time
	EmotionalSalience     float64      `json:"emotional_salience"` // [0,1]
	Strength              float64      `json:"strength"`           // stm strength, [0,1]
	HebbianPotential      int          `json:"hebbian_potential"`  // capped co-activation count
	ReadyForConsolidation bool         `json:"ready_for_consolidation"`
	State                 EpisodeState `json:"state"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}
