package enrichment

import (
	"context"
	"math"
	"strings"
)

// FallbackProvider is the rule-based stand-in used when the remote service is
// unavailable. Scores are crude but deterministic, which keeps the pipeline
// moving during outages.
type FallbackProvider struct{}

// NewFallbackProvider creates the rule-based provider.
func NewFallbackProvider() *FallbackProvider {
	return &FallbackProvider{}
}

var positiveWords = map[string]bool{
	"success": true, "win": true, "good": true, "great": true, "complete": true,
	"resolved": true, "fixed": true, "achieved": true, "happy": true,
}

var urgentWords = map[string]bool{
	"error": true, "fail": true, "failed": true, "critical": true, "urgent": true,
	"deadline": true, "alert": true, "outage": true, "important": true,
}

// Enrich derives features from the content reference text alone.
func (p *FallbackProvider) Enrich(_ context.Context, contentRef string) (Features, error) {
	words := tokenize(contentRef)

	var positive, urgent int
	for _, w := range words {
		if positiveWords[w] {
			positive++
		}
		if urgentWords[w] {
			urgent++
		}
	}

	sentiment := 0.5
	importance := 0.3
	if len(words) > 0 {
		sentiment = clamp01(0.5 + 0.5*float64(positive-urgent)/float64(len(words)))
		importance = clamp01(0.3 + float64(urgent)/float64(len(words)))
	}

	topics := words
	if len(topics) > 5 {
		topics = topics[:5]
	}
	return Features{
		Topics:     topics,
		Sentiment:  sentiment,
		Importance: importance,
	}, nil
}

// Similarity computes token overlap between the two references. Blends a
// Jaccard term with coverage of the shorter side.
func (p *FallbackProvider) Similarity(_ context.Context, aRef, bRef string) (float64, error) {
	aWords := tokenize(aRef)
	bWords := tokenize(bRef)
	if len(aWords) == 0 || len(bWords) == 0 {
		return 0, nil
	}

	aSet := make(map[string]bool, len(aWords))
	for _, w := range aWords {
		aSet[w] = true
	}
	var matched int
	bSet := make(map[string]bool, len(bWords))
	for _, w := range bWords {
		if !bSet[w] {
			bSet[w] = true
			if aSet[w] {
				matched++
			}
		}
	}

	overlap := float64(matched)
	union := float64(len(aSet) + len(bSet) - matched)
	jaccard := overlap / math.Max(union, 1)

	shorter := math.Min(float64(len(aSet)), float64(len(bSet)))
	coverage := overlap / math.Max(shorter, 1)

	return clamp01(0.4*jaccard + 0.6*coverage), nil
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127)
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
