package rag

import (
	"context"
	"time"
)

// Roles understood by the generation provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chunk is a contiguous span of a document. Start and End are rune offsets, End exclusive.
type Chunk struct {
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// Metadata is the routing and display data stored next to every vector.
type Metadata struct {
	Text        string    `json:"text"`
	ChunkIndex  int       `json:"chunkIndex"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	UserName    string    `json:"userName"`
	UserEmail   string    `json:"userEmail"`
	ChatbotName string    `json:"chatbotName"`
	ShareID     string    `json:"shareId"`
	Generation  string    `json:"generation"`
}

// VectorRecord is one chunk embedding plus its metadata.
type VectorRecord struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"-"`
	Metadata Metadata  `json:"metadata"`
}

// IndexInput is what the ingestion side hands to the gateway for one chunk.
type IndexInput struct {
	Ordinal int
	Vector  []float32
	Text    string
}

// Filter restricts a store query to one owner and, optionally, one chatbot.
type Filter struct {
	UserEmail   string
	ChatbotName string
}

// Match is a scored record returned by a VectorStore.
type Match struct {
	Record VectorRecord
	Score  float32
}

// Reference is a retrieved chunk surfaced to the end user.
type Reference struct {
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	ChunkIndex int     `json:"chunkIndex"`
}

// RetrievalResult is ordered by descending score.
type RetrievalResult []Reference

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tune a single generation call. Zero Temperature means provider default.
type CompletionOptions struct {
	Temperature float32
}

// Embedder turns one text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator completes a conversation.
type Generator interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// VectorStore is the backing store behind the Gateway.
type VectorStore interface {
	Upsert(ctx context.Context, records []VectorRecord) error
	Query(ctx context.Context, filter Filter, vector []float32, topK int) ([]Match, error)
	LookupShare(ctx context.Context, shareID string) (VectorRecord, bool, error)
}
