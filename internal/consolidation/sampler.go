package consolidation

import (
	"math/rand"
	"sync"
)

// PairSampler selects index pairs for creative association edges. Implemented
// as a strategy so alternative samplers (similarity-biased, category-crossing)
// can be swapped in without touching the engine.
type PairSampler interface {
	SamplePairs(count, n int) [][2]int
}

// RandomPairSampler draws uniform random pairs without replacement.
type RandomPairSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPairSampler creates a seeded uniform sampler.
func NewRandomPairSampler(seed int64) *RandomPairSampler {
	return &RandomPairSampler{rng: rand.New(rand.NewSource(seed))}
}

// SamplePairs returns up to n distinct index pairs drawn from [0,count).
// Fewer than two candidates yields nothing.
func (s *RandomPairSampler) SamplePairs(count, n int) [][2]int {
	if count < 2 || n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	maxPairs := count * (count - 1) / 2
	if n > maxPairs {
		n = maxPairs
	}

	seen := make(map[[2]int]bool, n)
	pairs := make([][2]int, 0, n)
	for len(pairs) < n {
		i := s.rng.Intn(count)
		j := s.rng.Intn(count)
		if i == j {
			continue
		}
		if i > j {
			i, j = j, i
		}
		key := [2]int{i, j}
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, key)
	}
	return pairs
}
