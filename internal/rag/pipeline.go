package rag

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docbot/internal/pkg/retry"
)

const (
	DefaultChunkMaxRetries = 2
	defaultRetryDelay      = 200 * time.Millisecond
)

// ProcessedChunk is a chunk with its embedding.
type ProcessedChunk struct {
	Chunk
	Vector   []float32
	Attempts int
}

// ProgressFunc observes ingestion progress. done counts finished chunks.
type ProgressFunc func(done, total int)

// TransientRetrier is implemented by embedders that already retry timeouts
// and upstream failures themselves.
type TransientRetrier interface {
	RetriesTransient() bool
}

// Pipeline embeds chunks for ingestion, retrying each chunk on its own.
// Timeouts and upstream failures are not retried again when the embedder
// retries them itself.
type Pipeline struct {
	embedder      Embedder
	maxRetries    int
	retryDelay    time.Duration
	skipTransient bool
}

type PipelineOption func(*Pipeline)

// WithChunkRetries sets how many extra attempts a failing chunk gets.
func WithChunkRetries(n int) PipelineOption {
	return func(p *Pipeline) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

func WithRetryDelay(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d >= 0 {
			p.retryDelay = d
		}
	}
}

func NewPipeline(embedder Embedder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		embedder:   embedder,
		maxRetries: DefaultChunkMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	if tr, ok := embedder.(TransientRetrier); ok {
		p.skipTransient = tr.RetriesTransient()
	}
	return p
}

// Process yields chunks one at a time in ordinal order, embedding each before
// moving on. The sequence stops after the first chunk that still fails once
// its retries are spent; that chunk is yielded with an *EmbeddingError.
// Ranging over the sequence again starts over from the first chunk.
func (p *Pipeline) Process(ctx context.Context, chunks []Chunk) iter.Seq2[ProcessedChunk, error] {
	return func(yield func(ProcessedChunk, error) bool) {
		for _, c := range chunks {
			pc, err := p.embedChunk(ctx, c)
			if err != nil {
				yield(pc, err)
				return
			}
			if !yield(pc, nil) {
				return
			}
		}
	}
}

// EmbedAll embeds every chunk and returns them in ordinal order. With
// concurrency <= 1 it drains Process; otherwise chunks are embedded in
// parallel, at most concurrency at a time.
func (p *Pipeline) EmbedAll(ctx context.Context, chunks []Chunk, concurrency int, progress ProgressFunc) ([]ProcessedChunk, error) {
	total := len(chunks)
	if progress == nil {
		progress = func(int, int) {}
	}

	if concurrency <= 1 {
		out := make([]ProcessedChunk, 0, total)
		for pc, err := range p.Process(ctx, chunks) {
			if err != nil {
				return nil, err
			}
			out = append(out, pc)
			progress(len(out), total)
		}
		return out, nil
	}

	out := make([]ProcessedChunk, total)
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			pc, err := p.embedChunk(gctx, c)
			if err != nil {
				return err
			}
			out[i] = pc
			mu.Lock()
			done++
			progress(done, total)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) embedChunk(ctx context.Context, c Chunk) (ProcessedChunk, error) {
	var vector []float32
	attempts, err := retry.Do(ctx, p.maxRetries+1, p.retryDelay, p.retryable, func(ctx context.Context) error {
		v, err := p.embedder.Embed(ctx, c.Text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	})
	if err != nil {
		var ee *EmbeddingError
		if errors.As(err, &ee) {
			err = ee.Err
		}
		return ProcessedChunk{Chunk: c, Attempts: attempts}, &EmbeddingError{Ordinal: c.Ordinal, Attempts: attempts, Err: err}
	}
	return ProcessedChunk{Chunk: c, Vector: vector, Attempts: attempts}, nil
}

func (p *Pipeline) retryable(err error) bool {
	if errors.Is(err, ErrInputRejected) {
		return false
	}
	if p.skipTransient && (errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamError)) {
		return false
	}
	return true
}

// IndexInputs converts processed chunks for Gateway.Upsert.
func IndexInputs(chunks []ProcessedChunk) []IndexInput {
	inputs := make([]IndexInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = IndexInput{Ordinal: c.Ordinal, Vector: c.Vector, Text: c.Text}
	}
	return inputs
}
