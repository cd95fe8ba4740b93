package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededGateway(t *testing.T, scope TenantScope) (*Gateway, *recordingStore) {
	t.Helper()
	store := newRecordingStore()
	gw := NewGateway(store, testDim)
	_, err := gw.Upsert(context.Background(), scope, []IndexInput{
		{Ordinal: 0, Vector: []float32{1, 0, 0}, Text: "Cats are mammals."},
		{Ordinal: 1, Vector: []float32{0, 1, 0}, Text: "Fish are not."},
	})
	require.NoError(t, err)
	return gw, store
}

func TestRetriever_ReturnsAtMostAvailable(t *testing.T) {
	scope := mustScope(t, "a@example.com", "alice", "zoo")
	gw, _ := seededGateway(t, scope)
	emb := newFakeEmbedder()
	emb.vectors["are cats mammals?"] = []float32{1, 0.2, 0}

	got, err := NewRetriever(emb, gw, 3).Retrieve(context.Background(), "are cats mammals?", scope, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Cats are mammals.", got[0].Text)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

func TestRetriever_EmbedderFailureDegrades(t *testing.T) {
	scope := mustScope(t, "a@example.com", "alice", "zoo")
	gw, store := seededGateway(t, scope)
	emb := newFakeEmbedder()
	emb.err = &EmbeddingError{Ordinal: NoOrdinal, Err: ErrUpstreamTimeout}

	got, err := NewRetriever(emb, gw, 3).Retrieve(context.Background(), "anything", scope, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.queryCalls)
}

func TestRetriever_IndexFailureDegrades(t *testing.T) {
	scope := mustScope(t, "a@example.com", "alice", "zoo")
	gw, store := seededGateway(t, scope)
	store.failQuery = true

	got, err := NewRetriever(newFakeEmbedder(), gw, 3).Retrieve(context.Background(), "anything", scope, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetriever_InvalidScope(t *testing.T) {
	scope := mustScope(t, "a@example.com", "alice", "zoo")
	gw, _ := seededGateway(t, scope)
	emb := newFakeEmbedder()

	_, err := NewRetriever(emb, gw, 3).Retrieve(context.Background(), "anything", TenantScope{}, 3)
	assert.ErrorIs(t, err, ErrInvalidScope)
	assert.Zero(t, emb.callCount("anything"))
}

func TestRetriever_ThenAssembler_WithoutContext(t *testing.T) {
	scope := mustScope(t, "a@example.com", "alice", "zoo")
	gw, _ := seededGateway(t, scope)
	emb := newFakeEmbedder()
	emb.err = ErrUpstreamError
	gen := &fakeGenerator{reply: "Cats are generally mammals."}

	retrieval, err := NewRetriever(emb, gw, 3).Retrieve(context.Background(), "are cats mammals?", scope, 3)
	require.NoError(t, err)

	ans, err := NewAssembler(gen, 0).Answer(context.Background(), "are cats mammals?", nil, retrieval)
	require.NoError(t, err)
	assert.Equal(t, "Cats are generally mammals.", ans.Response)
	assert.Empty(t, ans.References)
	assert.True(t, IsGenericPrompt(gen.messages))
	assert.Zero(t, gen.opts.Temperature)
}
