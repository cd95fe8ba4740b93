package rag

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDim = 3

func mustScope(t *testing.T, email, name, bot string) TenantScope {
	t.Helper()
	scope, err := NewTenantScope(email, name, bot)
	require.NoError(t, err)
	return scope
}

// fakeEmbedder returns fixed vectors, derived ones for unknown texts, and can
// be told to fail a text a number of times.
type fakeEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	failures map[string]int
	failWith error
	err      error
	calls    map[string]int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors:  make(map[string][]float32),
		failures: make(map[string]int),
		failWith: ErrUpstreamError,
		calls:    make(map[string]int),
	}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	if f.err != nil {
		return nil, f.err
	}
	if n := f.failures[text]; n > 0 {
		f.failures[text] = n - 1
		return nil, f.failWith
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	if text == "" {
		return nil, ErrInputRejected
	}
	return []float32{float32(len(text)), float32(text[0]%7) + 1, 1}, nil
}

func (f *fakeEmbedder) callCount(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

type fakeGenerator struct {
	reply    string
	err      error
	calls    int
	messages []Message
	opts     CompletionOptions
}

func (f *fakeGenerator) Complete(_ context.Context, messages []Message, opts CompletionOptions) (string, error) {
	f.calls++
	f.messages = append([]Message(nil), messages...)
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

var errStoreDown = errors.New("store down")

// recordingStore wraps a MemoryStore, remembers batch sizes and can fail a
// given batch (1-based) or every query.
type recordingStore struct {
	*MemoryStore
	batches     []int
	failBatch   int
	failQuery   bool
	failLookup  bool
	queryCalls  int
	ignoreScope bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: NewMemoryStore()}
}

func (s *recordingStore) Upsert(ctx context.Context, records []VectorRecord) error {
	s.batches = append(s.batches, len(records))
	if s.failBatch == len(s.batches) {
		return errStoreDown
	}
	return s.MemoryStore.Upsert(ctx, records)
}

func (s *recordingStore) Query(ctx context.Context, filter Filter, vector []float32, topK int) ([]Match, error) {
	s.queryCalls++
	if s.failQuery {
		return nil, errStoreDown
	}
	if s.ignoreScope {
		var all []Match
		for _, rec := range s.MemoryStore.records {
			all = append(all, Match{Record: rec, Score: CosineSimilarity(vector, rec.Vector)})
		}
		return all, nil
	}
	return s.MemoryStore.Query(ctx, filter, vector, topK)
}

func (s *recordingStore) LookupShare(ctx context.Context, shareID string) (VectorRecord, bool, error) {
	if s.failLookup {
		return VectorRecord{}, false, errStoreDown
	}
	return s.MemoryStore.LookupShare(ctx, shareID)
}

func inputs(n int) []IndexInput {
	out := make([]IndexInput, n)
	for i := range out {
		out[i] = IndexInput{Ordinal: i, Vector: []float32{1, float32(i), 0}, Text: "chunk"}
	}
	return out
}
