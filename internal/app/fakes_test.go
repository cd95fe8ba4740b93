package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"docbot/internal/model"
	"docbot/internal/rag"
)

const testDim = 3

// wordEmbedder maps text onto three keyword axes so related texts score higher.
type wordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	lower := strings.ToLower(text)
	v := []float32{0.01, 0.01, 0.01}
	for i, word := range []string{"cat", "dog", "fish"} {
		v[i] += float32(strings.Count(lower, word))
	}
	return v, nil
}

type stubGenerator struct {
	reply    string
	err      error
	messages []rag.Message
	opts     rag.CompletionOptions
}

func (g *stubGenerator) Complete(_ context.Context, messages []rag.Message, opts rag.CompletionOptions) (string, error) {
	g.messages = messages
	g.opts = opts
	return g.reply, g.err
}

type memoryProgress struct {
	mu      sync.Mutex
	states  map[string]model.IngestProgress
	history []model.IngestProgress
	err     error
}

func newMemoryProgress() *memoryProgress {
	return &memoryProgress{states: map[string]model.IngestProgress{}}
}

func (p *memoryProgress) Set(_ context.Context, progress model.IngestProgress) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[progress.JobID] = progress
	p.history = append(p.history, progress)
	return nil
}

func (p *memoryProgress) Get(_ context.Context, jobID string) (*model.IngestProgress, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	progress, ok := p.states[jobID]
	if !ok {
		return nil, false, nil
	}
	return &progress, true, nil
}

type memoryHistory struct {
	sessions map[string][]rag.Message
	loadErr  error
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{sessions: map[string][]rag.Message{}}
}

func (h *memoryHistory) History(_ context.Context, shareID, sessionID string) ([]rag.Message, error) {
	if h.loadErr != nil {
		return nil, h.loadErr
	}
	return h.sessions[shareID+"|"+sessionID], nil
}

func (h *memoryHistory) Append(_ context.Context, shareID, sessionID string, messages ...rag.Message) error {
	key := shareID + "|" + sessionID
	h.sessions[key] = append(h.sessions[key], messages...)
	return nil
}

type capturePublisher struct {
	jobs []model.IngestJob
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, job model.IngestJob) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

var errBoom = errors.New("boom")

type serviceFixture struct {
	svc       *RAGService
	store     *rag.MemoryStore
	embedder  *wordEmbedder
	generator *stubGenerator
}

func newServiceFixture(t *testing.T, opts ...RAGOption) *serviceFixture {
	t.Helper()
	store := rag.NewMemoryStore()
	embedder := &wordEmbedder{}
	generator := &stubGenerator{reply: "an answer"}
	gateway := rag.NewGateway(store, testDim)
	pipeline := rag.NewPipeline(embedder, rag.WithRetryDelay(0))
	svc := NewRAGService(embedder, pipeline, gateway, rag.NewAssembler(generator, 0), RAGConfig{
		ChunkSize:          40,
		ChunkOverlap:       5,
		TopK:               2,
		MaxContextMessages: 4,
	}, opts...)
	return &serviceFixture{svc: svc, store: store, embedder: embedder, generator: generator}
}

func mustScope(t *testing.T, email, name, bot string) rag.TenantScope {
	t.Helper()
	scope, err := rag.NewTenantScope(email, name, bot)
	require.NoError(t, err)
	return scope
}
