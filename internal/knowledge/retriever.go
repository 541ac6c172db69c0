package knowledge

import (
	"context"

	"go.uber.org/zap"
)

// Retriever answers free-text queries from the index. It is a pure read
// path: no mutation, safe to call concurrently with index refreshes.
type Retriever struct {
	index    *Index
	defaultK int
	logger   *zap.Logger
}

// NewRetriever creates a retriever over the given index. defaultK is used
// when a caller passes k <= 0.
func NewRetriever(index *Index, defaultK int, logger *zap.Logger) *Retriever {
	if defaultK < 1 {
		defaultK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{index: index, defaultK: defaultK, logger: logger}
}

// Search returns the top-k most relevant chunks for the query, highest score
// first. k <= 0 selects the configured default.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = r.defaultK
	}
	results, err := r.index.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("knowledge search",
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)
	return results, nil
}
