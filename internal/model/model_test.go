package model

import (
	"testing"
	"time"
)

func TestEpisodeStateMachine(t *testing.T) {
	allowed := map[EpisodeState][]EpisodeState{
		EpisodePending:      {EpisodeReplaying},
		EpisodeReplaying:    {EpisodeStrengthened, EpisodeWeakened},
		EpisodeStrengthened: {EpisodeConsolidatedToLTM, EpisodeDiscarded},
		EpisodeWeakened:     {EpisodeConsolidatedToLTM, EpisodeDiscarded},
	}
	all := []EpisodeState{
		EpisodePending, EpisodeReplaying, EpisodeStrengthened,
		EpisodeWeakened, EpisodeConsolidatedToLTM, EpisodeDiscarded,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, legal := range allowed[from] {
				if to == legal {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatesPermitNothing(t *testing.T) {
	for _, s := range []EpisodeState{EpisodeConsolidatedToLTM, EpisodeDiscarded} {
		if !s.Terminal() {
			t.Errorf("%s not reported terminal", s)
		}
	}
	for _, s := range []EpisodeState{EpisodePending, EpisodeReplaying, EpisodeStrengthened, EpisodeWeakened} {
		if s.Terminal() {
			t.Errorf("%s reported terminal", s)
		}
	}
}

func TestAgeCategoryBuckets(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want AgeCategory
	}{
		{time.Hour, AgeRecent},
		{23 * time.Hour, AgeRecent},
		{25 * time.Hour, AgeWeekOld},
		{6 * 24 * time.Hour, AgeWeekOld},
		{8 * 24 * time.Hour, AgeMonthOld},
		{29 * 24 * time.Hour, AgeMonthOld},
		{31 * 24 * time.Hour, AgeRemote},
		{365 * 24 * time.Hour, AgeRemote},
	}
	for _, tt := range tests {
		if got := AgeCategoryFor(tt.age); got != tt.want {
			t.Errorf("age %v: got %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestNodeStateThresholds(t *testing.T) {
	tests := []struct {
		freq int
		want NodeState
	}{
		{0, NodeEpisodic},
		{2, NodeEpisodic},
		{3, NodeConsolidating},
		{9, NodeConsolidating},
		{10, NodeSchematized},
		{100, NodeSchematized},
	}
	for _, tt := range tests {
		if got := NodeStateFor(tt.freq); got != tt.want {
			t.Errorf("freq %d: got %s, want %s", tt.freq, got, tt.want)
		}
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want {
			t.Errorf("Clamp01(%g): got %g, want %g", tt.in, got, tt.want)
		}
	}
}
