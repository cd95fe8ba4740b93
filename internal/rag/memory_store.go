package rag

import (
	"context"
	"sync"
)

// MemoryStore is an in-process VectorStore with exact cosine search.
// It backs the CLI, tests and the "memory" index backend.
type MemoryStore struct {
	mu      sync.RWMutex
	records []VectorRecord
	byID    map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

func (s *MemoryStore) Upsert(_ context.Context, records []VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		rec.Vector = append([]float32(nil), rec.Vector...)
		if i, ok := s.byID[rec.ID]; ok {
			s.records[i] = rec
			continue
		}
		s.byID[rec.ID] = len(s.records)
		s.records = append(s.records, rec)
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, filter Filter, vector []float32, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, rec := range s.records {
		if !MatchesFilter(rec.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{
			Record: rec,
			Score:  CosineSimilarity(vector, rec.Vector),
		})
	}
	return RankMatches(matches, topK), nil
}

func (s *MemoryStore) LookupShare(_ context.Context, shareID string) (VectorRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Metadata.ShareID == shareID {
			return rec, true, nil
		}
	}
	return VectorRecord{}, false, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
