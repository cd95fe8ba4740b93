package rag

import (
	"context"
	"strings"

	"docbot/internal/pkg/logging"
)

const DefaultTopK = 3

// Retriever embeds a query and asks the Gateway for the closest chunks.
type Retriever struct {
	embedder Embedder
	gateway  *Gateway
	topK     int
}

func NewRetriever(embedder Embedder, gateway *Gateway, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, gateway: gateway, topK: topK}
}

// Retrieve returns ErrInvalidScope for a bad scope and nothing else: embedding
// and index failures are logged and yield an empty result so generation can
// continue without context. topK <= 0 uses the retriever default.
func (r *Retriever) Retrieve(ctx context.Context, query string, scope TenantScope, topK int) (RetrievalResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = r.topK
	}
	if strings.TrimSpace(query) == "" {
		return RetrievalResult{}, nil
	}

	logger := logging.FromContext(ctx).With("share_id", scope.ShareID())

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("query embedding failed, continuing without context", "error", err)
		return RetrievalResult{}, nil
	}

	result, err := r.gateway.Query(ctx, scope, vector, topK)
	if err != nil {
		logger.Warn("index query failed, continuing without context", "error", err)
		return RetrievalResult{}, nil
	}
	logger.Debug("retrieved references", "count", len(result), "top_k", topK)
	return result, nil
}
