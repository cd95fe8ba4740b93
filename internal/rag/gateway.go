package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultDimension       = 1536
	DefaultUpsertBatchSize = 100
	DefaultFetchAllLimit   = 10000
	DefaultSource          = "chatbot-training"
)

// Gateway is the tenant-scoped facade over a VectorStore. Every read and
// write takes a TenantScope and is validated before the store is touched.
type Gateway struct {
	store         VectorStore
	dimension     int
	batchSize     int
	fetchLimit    int
	now           func() time.Time
	newGeneration func() string
}

type GatewayOption func(*Gateway)

func WithBatchSize(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

func WithFetchAllLimit(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.fetchLimit = n
		}
	}
}

func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithGenerationFunc overrides how the per-upload generation id is minted.
func WithGenerationFunc(fn func() string) GatewayOption {
	return func(g *Gateway) {
		if fn != nil {
			g.newGeneration = fn
		}
	}
}

func NewGateway(store VectorStore, dimension int, opts ...GatewayOption) *Gateway {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	g := &Gateway{
		store:         store,
		dimension:     dimension,
		batchSize:     DefaultUpsertBatchSize,
		fetchLimit:    DefaultFetchAllLimit,
		now:           time.Now,
		newGeneration: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Dimension() int { return g.dimension }

// Upsert writes one record per input in batches and returns how many were
// committed. A failing batch stops the upload with a *PartialUploadError.
// Nothing is written when the scope's share id belongs to another chatbot.
func (g *Gateway) Upsert(ctx context.Context, scope TenantScope, inputs []IndexInput) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	if len(inputs) == 0 {
		return 0, nil
	}
	for _, in := range inputs {
		if len(in.Vector) != g.dimension {
			return 0, fmt.Errorf("%w: chunk %d has %d values, index expects %d",
				ErrDimensionMismatch, in.Ordinal, len(in.Vector), g.dimension)
		}
	}

	if err := g.ClaimShare(ctx, scope); err != nil {
		return 0, err
	}

	records := g.buildRecords(scope, inputs)
	committed := 0
	for i := 0; i < len(records); i += g.batchSize {
		end := min(i+g.batchSize, len(records))
		if err := g.store.Upsert(ctx, records[i:end]); err != nil {
			return committed, &PartialUploadError{
				Committed: committed,
				Attempted: len(records),
				Err:       fmt.Errorf("%w: %w", ErrIndexUnavailable, err),
			}
		}
		committed += end - i
	}
	return committed, nil
}

// ClaimShare checks that the scope's share id is free or already held by the
// same owner and chatbot name. Share ids are global, so two owners with the
// same display name cannot both publish a chatbot called "Docs".
func (g *Gateway) ClaimShare(ctx context.Context, scope TenantScope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	shareID := scope.ShareID()
	rec, ok, err := g.store.LookupShare(ctx, shareID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	if ok && (rec.Metadata.UserEmail != scope.OwnerEmail() || rec.Metadata.ChatbotName != scope.ChatbotName()) {
		return fmt.Errorf("%w: %q", ErrShareIDTaken, shareID)
	}
	return nil
}

func (g *Gateway) buildRecords(scope TenantScope, inputs []IndexInput) []VectorRecord {
	ts := g.now()
	generation := g.newGeneration()
	tag := generation
	if len(tag) > 8 {
		tag = tag[:8]
	}
	shareID := scope.ShareID()

	records := make([]VectorRecord, len(inputs))
	for i, in := range inputs {
		records[i] = VectorRecord{
			ID:     fmt.Sprintf("chunk_%d_%d_%s", ts.UnixMilli(), i, tag),
			Vector: in.Vector,
			Metadata: Metadata{
				Text:        in.Text,
				ChunkIndex:  in.Ordinal,
				Timestamp:   ts,
				Source:      DefaultSource,
				UserName:    scope.OwnerName(),
				UserEmail:   scope.OwnerEmail(),
				ChatbotName: scope.ChatbotName(),
				ShareID:     shareID,
				Generation:  generation,
			},
		}
	}
	return records
}

// Query returns at most topK references of the scope's tenant, best first.
func (g *Gateway) Query(ctx context.Context, scope TenantScope, vector []float32, topK int) (RetrievalResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return RetrievalResult{}, nil
	}
	if len(vector) != g.dimension {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", ErrDimensionMismatch, len(vector), g.dimension)
	}

	filter := scope.Filter()
	matches, err := g.store.Query(ctx, filter, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	// never trust the backend with isolation
	kept := matches[:0]
	for _, m := range matches {
		if MatchesFilter(m.Record.Metadata, filter) {
			kept = append(kept, m)
		}
	}
	kept = RankMatches(kept, topK)

	result := make(RetrievalResult, len(kept))
	for i, m := range kept {
		result[i] = Reference{
			Text:       m.Record.Metadata.Text,
			Score:      m.Score,
			ChunkIndex: m.Record.Metadata.ChunkIndex,
		}
	}
	return result, nil
}

// FetchAll lists an owner's records, optionally for one chatbot, by querying
// with a zero vector and a large topK. Chatbot listings are ordered by chunk index.
func (g *Gateway) FetchAll(ctx context.Context, ownerEmail, chatbotName string) ([]VectorRecord, error) {
	filter := Filter{
		UserEmail:   strings.TrimSpace(ownerEmail),
		ChatbotName: strings.TrimSpace(chatbotName),
	}
	if filter.UserEmail == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidScope)
	}

	matches, err := g.store.Query(ctx, filter, make([]float32, g.dimension), g.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	records := make([]VectorRecord, 0, len(matches))
	for _, m := range matches {
		if MatchesFilter(m.Record.Metadata, filter) {
			records = append(records, m.Record)
		}
	}
	if filter.ChatbotName != "" {
		sort.SliceStable(records, func(i, j int) bool {
			a, b := records[i].Metadata, records[j].Metadata
			if a.ChunkIndex != b.ChunkIndex {
				return a.ChunkIndex < b.ChunkIndex
			}
			return a.Timestamp.Before(b.Timestamp)
		})
	}
	return records, nil
}

// ListChatbots summarizes every chatbot the owner has uploaded.
func (g *Gateway) ListChatbots(ctx context.Context, ownerEmail string) ([]ChatbotSummary, error) {
	records, err := g.FetchAll(ctx, ownerEmail, "")
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// ResolveShare maps a public share id back to the tenant that owns it.
func (g *Gateway) ResolveShare(ctx context.Context, shareID string) (TenantScope, error) {
	shareID = strings.ToLower(strings.Trim(strings.TrimSpace(shareID), "/"))
	if shareID == "" || !strings.Contains(shareID, "/") {
		return TenantScope{}, fmt.Errorf("%w: malformed share id %q", ErrInvalidScope, shareID)
	}
	rec, ok, err := g.store.LookupShare(ctx, shareID)
	if err != nil {
		return TenantScope{}, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	if !ok {
		return TenantScope{}, ErrChatbotNotFound
	}
	return scopeFromMetadata(rec.Metadata)
}
