package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbot/internal/model"
	"docbot/internal/rag"
)

const petsDoc = "Cats purr and cats nap. Dogs bark at dogs. Fish swim in water."

func TestRAGServiceIngest(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	scope := mustScope(t, "alice@example.com", "Alice", "Pet Facts")

	var seen [][2]int
	result, err := f.svc.Ingest(ctx, IngestInput{Scope: scope, Name: "pets.txt", Content: petsDoc}, func(done, total int) {
		seen = append(seen, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, "alice/pet-facts", result.ShareID)
	assert.Greater(t, result.ChunkCount, 1)
	assert.Equal(t, result.ChunkCount, result.Written)
	assert.Equal(t, result.ChunkCount, f.store.Len())

	require.Len(t, seen, result.ChunkCount)
	for i, p := range seen {
		assert.Equal(t, [2]int{i + 1, result.ChunkCount}, p)
	}

	records, err := f.svc.ListChunks(ctx, scope)
	require.NoError(t, err)
	require.Len(t, records, result.ChunkCount)
	for i, rec := range records {
		assert.Equal(t, i, rec.Metadata.ChunkIndex)
	}

	bots, err := f.svc.ListChatbots(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "alice/pet-facts", bots[0].ShareID)
	assert.Equal(t, result.ChunkCount, bots[0].ChunkCount)
	assert.Equal(t, records[0].Metadata.Text, bots[0].PreviewText)
}

func TestRAGServiceIngestRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	scope := mustScope(t, "alice@example.com", "Alice", "zoo")

	_, err := f.svc.Ingest(ctx, IngestInput{Scope: scope, Content: "   "}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Ingest(ctx, IngestInput{Scope: rag.TenantScope{}, Content: petsDoc}, nil)
	assert.ErrorIs(t, err, rag.ErrInvalidScope)

	_, err = f.svc.Ingest(ctx, IngestInput{Scope: scope, Content: petsDoc, Strategy: "paragraph"}, nil)
	assert.ErrorIs(t, err, rag.ErrInvalidChunking)

	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.embedder.calls)
}

func TestRAGServiceIngestEmbeddingFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.embedder.err = fmt.Errorf("%w: too long", rag.ErrInputRejected)

	_, err := f.svc.Ingest(context.Background(), IngestInput{
		Scope:   mustScope(t, "alice@example.com", "Alice", "zoo"),
		Content: petsDoc,
	}, nil)

	var embedErr *rag.EmbeddingError
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, 0, embedErr.Ordinal)
	assert.Equal(t, 1, f.embedder.calls)
	assert.Zero(t, f.store.Len())
}

func TestRAGServiceChat(t *testing.T) {
	ctx := context.Background()

	t.Run("grounded answer", func(t *testing.T) {
		f := newServiceFixture(t)
		scope := mustScope(t, "alice@example.com", "Alice", "zoo")
		_, err := f.svc.Ingest(ctx, IngestInput{Scope: scope, Content: petsDoc}, nil)
		require.NoError(t, err)

		result, err := f.svc.Chat(ctx, ChatInput{Scope: scope, Message: "tell me about dogs"})
		require.NoError(t, err)

		assert.Equal(t, "an answer", result.Response)
		assert.Equal(t, "alice/zoo", result.ShareID)
		require.NotEmpty(t, result.References)
		assert.LessOrEqual(t, len(result.References), 2)
		assert.Contains(t, result.References[0].Text, "Dogs")
		assert.InDelta(t, rag.GroundedTemperature, f.generator.opts.Temperature, 1e-6)
		assert.False(t, rag.IsGenericPrompt(f.generator.messages))
		assert.Contains(t, f.generator.messages[0].Content, "[1]")
	})

	t.Run("embedding outage falls back to generic prompt", func(t *testing.T) {
		f := newServiceFixture(t)
		scope := mustScope(t, "alice@example.com", "Alice", "zoo")
		_, err := f.svc.Ingest(ctx, IngestInput{Scope: scope, Content: petsDoc}, nil)
		require.NoError(t, err)

		f.embedder.err = errBoom
		result, err := f.svc.Chat(ctx, ChatInput{Scope: scope, Message: "tell me about dogs"})
		require.NoError(t, err)

		assert.Equal(t, "an answer", result.Response)
		assert.Empty(t, result.References)
		assert.True(t, rag.IsGenericPrompt(f.generator.messages))
		assert.Zero(t, f.generator.opts.Temperature)
	})

	t.Run("generation failure", func(t *testing.T) {
		f := newServiceFixture(t)
		f.generator.err = errBoom

		_, err := f.svc.Chat(ctx, ChatInput{Scope: mustScope(t, "alice@example.com", "", "zoo"), Message: "hi"})
		var genErr *rag.GenerationError
		require.ErrorAs(t, err, &genErr)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("empty message", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Chat(ctx, ChatInput{Scope: mustScope(t, "alice@example.com", "", "zoo"), Message: "  "})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("request history is resent", func(t *testing.T) {
		f := newServiceFixture(t)
		history := []rag.Message{
			{Role: rag.RoleUser, Content: "first"},
			{Role: rag.RoleAssistant, Content: "reply"},
		}
		_, err := f.svc.Chat(ctx, ChatInput{Scope: mustScope(t, "alice@example.com", "", "zoo"), Message: "second", History: history})
		require.NoError(t, err)

		msgs := f.generator.messages
		require.Len(t, msgs, 4)
		assert.Equal(t, "first", msgs[1].Content)
		assert.Equal(t, "reply", msgs[2].Content)
		assert.Equal(t, rag.Message{Role: rag.RoleUser, Content: "second"}, msgs[3])
	})
}

func TestRAGServiceChatSessionHistory(t *testing.T) {
	ctx := context.Background()
	history := newMemoryHistory()
	f := newServiceFixture(t, WithHistoryStore(history))
	scope := mustScope(t, "alice@example.com", "Alice", "zoo")

	for i := range 3 {
		_, err := f.svc.Chat(ctx, ChatInput{
			Scope:     scope,
			Message:   fmt.Sprintf("question %d", i),
			SessionID: "s1",
			History:   []rag.Message{{Role: rag.RoleUser, Content: "ignored"}},
		})
		require.NoError(t, err)
	}

	stored := history.sessions["alice/zoo|owner:s1"]
	require.Len(t, stored, 6)
	assert.Equal(t, rag.Message{Role: rag.RoleUser, Content: "question 2"}, stored[4])
	assert.Equal(t, rag.Message{Role: rag.RoleAssistant, Content: "an answer"}, stored[5])

	// third call saw the last 4 stored turns, not the request history
	msgs := f.generator.messages
	require.Len(t, msgs, 6)
	assert.Equal(t, "question 0", msgs[1].Content)
	assert.Equal(t, "question 2", msgs[5].Content)
}

func TestRAGServiceChatSeparatesOwnerAndPublicSessions(t *testing.T) {
	ctx := context.Background()
	history := newMemoryHistory()
	f := newServiceFixture(t, WithHistoryStore(history))
	scope := mustScope(t, "alice@example.com", "Alice", "zoo")

	_, err := f.svc.Chat(ctx, ChatInput{Scope: scope, Message: "my salary is private", SessionID: "default"})
	require.NoError(t, err)

	_, err = f.svc.Chat(ctx, ChatInput{Scope: scope, Message: "what did the owner say?", SessionID: "default", Public: true})
	require.NoError(t, err)

	msgs := f.generator.messages
	require.Len(t, msgs, 2, "public visitor must not see the owner's turns")
	assert.Equal(t, "what did the owner say?", msgs[1].Content)

	assert.Len(t, history.sessions["alice/zoo|owner:default"], 2)
	assert.Len(t, history.sessions["alice/zoo|public:default"], 2)
}

func TestRAGServiceChatHistoryOutage(t *testing.T) {
	history := newMemoryHistory()
	history.loadErr = errBoom
	f := newServiceFixture(t, WithHistoryStore(history))

	_, err := f.svc.Chat(context.Background(), ChatInput{
		Scope:     mustScope(t, "alice@example.com", "", "zoo"),
		Message:   "hello",
		SessionID: "s1",
		History:   []rag.Message{{Role: rag.RoleUser, Content: "from request"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from request", f.generator.messages[1].Content)
}

func TestRAGServiceTenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	alice := mustScope(t, "alice@example.com", "Alice", "zoo")
	bob := mustScope(t, "bob@example.com", "Bob", "zoo")

	_, err := f.svc.Ingest(ctx, IngestInput{Scope: alice, Content: petsDoc}, nil)
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, IngestInput{Scope: bob, Content: "Dogs dig holes."}, nil)
	require.NoError(t, err)

	refs, err := f.svc.Search(ctx, bob, "dogs", 10)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Dogs dig holes.", refs[0].Text)

	resolved, err := f.svc.ResolveShare(ctx, "Alice/Zoo")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", resolved.OwnerEmail())

	_, err = f.svc.ResolveShare(ctx, "carol/zoo")
	assert.ErrorIs(t, err, rag.ErrChatbotNotFound)

	_, err = f.svc.ListChunks(ctx, mustScope(t, "bob@example.com", "Bob", "aquarium"))
	assert.ErrorIs(t, err, rag.ErrChatbotNotFound)
}

func TestRAGServiceIngestShareIDTaken(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	alice := mustScope(t, "alice@a.com", "John Smith", "Docs")
	bob := mustScope(t, "bob@b.com", "John Smith", "Docs")

	_, err := f.svc.Ingest(ctx, IngestInput{Scope: alice, Content: petsDoc}, nil)
	require.NoError(t, err)
	stored, calls := f.store.Len(), f.embedder.calls

	_, err = f.svc.Ingest(ctx, IngestInput{Scope: bob, Content: "Dogs dig holes."}, nil)
	assert.ErrorIs(t, err, rag.ErrShareIDTaken)
	assert.Equal(t, stored, f.store.Len())
	assert.Equal(t, calls, f.embedder.calls, "nothing is embedded for a taken share id")

	resolved, err := f.svc.ResolveShare(ctx, "johnsmith/docs")
	require.NoError(t, err)
	assert.Equal(t, "alice@a.com", resolved.OwnerEmail())
}

func TestRAGServiceSearchSurfacesErrors(t *testing.T) {
	f := newServiceFixture(t)
	f.embedder.err = errBoom

	_, err := f.svc.Search(context.Background(), mustScope(t, "alice@example.com", "", "zoo"), "dogs", 0)
	assert.ErrorIs(t, err, errBoom)
}

func TestRAGServicePreview(t *testing.T) {
	f := newServiceFixture(t)

	chunks, err := f.svc.Preview(PreviewInput{Content: petsDoc, Strategy: "sentence"})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Fish swim in water.", chunks[2].Text)

	chunks, err = f.svc.Preview(PreviewInput{Content: petsDoc, Size: 1000})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	_, err = f.svc.Preview(PreviewInput{Content: petsDoc, Size: 10, Overlap: ptr(10)})
	assert.ErrorIs(t, err, rag.ErrInvalidChunking)

	// default size: configured overlap unless zero is asked for explicitly
	chunks, err = f.svc.Preview(PreviewInput{Content: petsDoc})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Less(t, chunks[1].Start, chunks[0].End)

	chunks, err = f.svc.Preview(PreviewInput{Content: petsDoc, Overlap: ptr(0)})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].End, chunks[i].Start)
	}
	assert.Zero(t, f.embedder.calls)
}

func TestRAGServiceAsyncIngest(t *testing.T) {
	ctx := context.Background()
	scope := mustScope(t, "alice@example.com", "Alice", "zoo")

	t.Run("disabled without queue", func(t *testing.T) {
		f := newServiceFixture(t)
		assert.False(t, f.svc.AsyncEnabled())
		_, err := f.svc.EnqueueIngest(ctx, IngestInput{Scope: scope, Content: petsDoc})
		assert.ErrorIs(t, err, ErrAsyncIngestDisabled)
		_, err = f.svc.JobProgress(ctx, "x")
		assert.ErrorIs(t, err, ErrAsyncIngestDisabled)
	})

	t.Run("enqueue then run", func(t *testing.T) {
		progress := newMemoryProgress()
		publisher := &capturePublisher{}
		f := newServiceFixture(t, WithProgressStore(progress), WithJobPublisher(publisher))

		queued, err := f.svc.EnqueueIngest(ctx, IngestInput{Scope: scope, Content: petsDoc})
		require.NoError(t, err)
		assert.Equal(t, model.IngestQueued, queued.Status)
		assert.Equal(t, "alice/zoo", queued.ShareID)
		require.Len(t, publisher.jobs, 1)
		job := publisher.jobs[0]
		assert.Equal(t, queued.JobID, job.JobID)
		assert.Zero(t, f.store.Len())

		require.NoError(t, f.svc.RunIngestJob(ctx, job))

		final, err := f.svc.JobProgress(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, model.IngestDone, final.Status)
		assert.True(t, final.Finished())
		assert.Equal(t, final.Total, final.Committed)
		assert.Equal(t, final.Total, final.Done)
		assert.Equal(t, f.store.Len(), final.Committed)

		var running int
		for _, p := range progress.history {
			if p.Status == model.IngestRunning {
				running++
			}
		}
		assert.Greater(t, running, 1)

		_, err = f.svc.JobProgress(ctx, "missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("failed job is recorded", func(t *testing.T) {
		progress := newMemoryProgress()
		f := newServiceFixture(t, WithProgressStore(progress), WithJobPublisher(&capturePublisher{}))
		f.embedder.err = fmt.Errorf("%w: bad text", rag.ErrInputRejected)

		err := f.svc.RunIngestJob(ctx, model.IngestJob{
			JobID:       "j1",
			OwnerEmail:  "alice@example.com",
			ChatbotName: "zoo",
			Content:     petsDoc,
		})
		require.Error(t, err)

		final, err := f.svc.JobProgress(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, model.IngestFailed, final.Status)
		assert.Equal(t, "chunk 0 was rejected by the embedding provider", final.Error)
	})

	t.Run("publish failure marks job failed", func(t *testing.T) {
		progress := newMemoryProgress()
		f := newServiceFixture(t, WithProgressStore(progress), WithJobPublisher(&capturePublisher{err: errBoom}))

		_, err := f.svc.EnqueueIngest(ctx, IngestInput{Scope: scope, Content: petsDoc})
		assert.ErrorIs(t, err, errBoom)
		require.Len(t, progress.history, 2)
		assert.Equal(t, model.IngestFailed, progress.history[1].Status)
	})
}

func TestDescribeIngestError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&rag.PartialUploadError{Committed: 100, Attempted: 250, Err: rag.ErrIndexUnavailable}, "index upload stopped after 100 of 250 chunks"},
		{&rag.EmbeddingError{Ordinal: 4, Err: rag.ErrUpstreamTimeout}, "embedding chunk 4 failed"},
		{fmt.Errorf("wrap: %w", rag.ErrInvalidScope), "invalid chatbot owner or name"},
		{fmt.Errorf("%w: %q", rag.ErrShareIDTaken, "johnsmith/docs"), "share id is already used by another chatbot"},
		{context.Canceled, "ingestion was interrupted"},
		{errors.New("secret upstream payload"), "ingestion failed"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DescribeIngestError(tc.err))
	}
}

func ptr[T any](v T) *T { return &v }
