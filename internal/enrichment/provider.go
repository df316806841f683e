package enrichment

import "context"

// Features is the structured output of cognitive enrichment for one item.
type Features struct {
	Entities   []string `json:"entities,omitempty"`
	Topics     []string `json:"topics,omitempty"`
	Sentiment  float64  `json:"sentiment"`  // [0,1]
	Importance float64  `json:"importance"` // [0,1]
	Hierarchy  []string `json:"hierarchy,omitempty"`
	Spatial    string   `json:"spatial,omitempty"`
}

// Provider supplies content features and, during replay, pairwise similarity
// scores. Both calls carry a timeout; failures trigger the documented
// fallback rather than aborting the pipeline.
type Provider interface {
	Enrich(ctx context.Context, contentRef string) (Features, error)
	Similarity(ctx context.Context, aRef, bRef string) (float64, error)
}
