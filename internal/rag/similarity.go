package rag

import (
	"math"
	"sort"
)

// CosineSimilarity returns 0 for empty, mismatched or zero-norm vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// RankMatches sorts by descending score and keeps at most topK.
func RankMatches(matches []Match, topK int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// MatchesFilter reports whether md belongs to the filter's tenant.
// An empty ChatbotName matches every chatbot of the owner.
func MatchesFilter(md Metadata, f Filter) bool {
	if md.UserEmail != f.UserEmail {
		return false
	}
	return f.ChatbotName == "" || md.ChatbotName == f.ChatbotName
}
