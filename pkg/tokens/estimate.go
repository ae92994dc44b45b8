package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator provides an offline token count for text that has not yet
// been sent to a provider, backing the OpenAI provider's CountTokens so
// that no provider round-trip is needed. It prefers a real BPE tokenizer
// when one is available,
// falling back to a flat chars/4 heuristic only if the encoding tables
// fail to load.
type Estimator struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewEstimator builds an Estimator using the cl100k_base encoding, the
// closest openly available approximation for most modern chat models.
// If the encoding cannot be loaded (e.g. no network access to fetch the
// BPE ranks on first use), Count falls back to the chars/4 heuristic.
func NewEstimator() *Estimator {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Estimator{enc: enc}
}

// Count estimates the number of tokens in text.
func (e *Estimator) Count(text string) int {
	if e == nil || e.enc == nil {
		return heuristicCount(text)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.enc.Encode(text, nil, nil))
}

// heuristicCount is a cheap chars/4 fallback used when no tokenizer is available.
func heuristicCount(text string) int {
	return len(text) / 4
}
