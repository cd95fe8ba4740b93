package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docbot/internal/model"
	"docbot/internal/pkg/logging"
	"docbot/internal/rag"
)

var (
	ErrAsyncIngestDisabled = errors.New("async ingestion is not configured")
	ErrJobNotFound         = errors.New("ingest job not found")
)

// ProgressStore keeps the observable state of async ingestion jobs.
type ProgressStore interface {
	Set(ctx context.Context, progress model.IngestProgress) error
	Get(ctx context.Context, jobID string) (*model.IngestProgress, bool, error)
}

// HistoryStore keeps conversation turns per chatbot session.
type HistoryStore interface {
	History(ctx context.Context, shareID, sessionID string) ([]rag.Message, error)
	Append(ctx context.Context, shareID, sessionID string, messages ...rag.Message) error
}

type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

type RAGConfig struct {
	ChunkSize          int
	ChunkOverlap       int
	Strategy           rag.Strategy
	TopK               int
	EmbedConcurrency   int
	MaxContextMessages int
}

type RAGService struct {
	embedder  rag.Embedder
	gateway   *rag.Gateway
	pipeline  *rag.Pipeline
	retriever *rag.Retriever
	assembler *rag.Assembler
	cfg       RAGConfig

	progress ProgressStore
	history  HistoryStore
	jobs     JobPublisher
	now      func() time.Time
}

type RAGOption func(*RAGService)

func WithProgressStore(store ProgressStore) RAGOption {
	return func(s *RAGService) { s.progress = store }
}

func WithHistoryStore(store HistoryStore) RAGOption {
	return func(s *RAGService) { s.history = store }
}

func WithJobPublisher(publisher JobPublisher) RAGOption {
	return func(s *RAGService) { s.jobs = publisher }
}

func NewRAGService(
	embedder rag.Embedder,
	pipeline *rag.Pipeline,
	gateway *rag.Gateway,
	assembler *rag.Assembler,
	cfg RAGConfig,
	opts ...RAGOption,
) *RAGService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = rag.DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = rag.DefaultChunkOverlap
	}
	if cfg.Strategy == "" {
		cfg.Strategy = rag.StrategyWindowed
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	s := &RAGService{
		embedder:  embedder,
		gateway:   gateway,
		pipeline:  pipeline,
		retriever: rag.NewRetriever(embedder, gateway, cfg.TopK),
		assembler: assembler,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AsyncEnabled reports whether EnqueueIngest can be used.
func (s *RAGService) AsyncEnabled() bool {
	return s.jobs != nil && s.progress != nil
}

type IngestInput struct {
	Scope    rag.TenantScope
	Name     string
	Content  string
	Strategy string
}

type IngestResult struct {
	ShareID    string `json:"shareId"`
	ChunkCount int    `json:"chunkCount"`
	Written    int    `json:"written"`
}

// Ingest chunks, embeds and indexes a document. On a partial upload the
// result is returned together with the *rag.PartialUploadError.
func (s *RAGService) Ingest(ctx context.Context, input IngestInput, progress rag.ProgressFunc) (*IngestResult, error) {
	if err := input.Scope.Validate(); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrInvalidInput
	}
	chunker, err := s.chunker(input.Strategy, 0, nil)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.ClaimShare(ctx, input.Scope); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).With("share_id", input.Scope.ShareID(), "document", input.Name)
	chunks := chunker.Chunk(content)
	logger.Info("ingesting document", "chunks", len(chunks), "bytes", len(content))

	processed, err := s.pipeline.EmbedAll(ctx, chunks, s.cfg.EmbedConcurrency, progress)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{ShareID: input.Scope.ShareID(), ChunkCount: len(chunks)}
	written, err := s.gateway.Upsert(ctx, input.Scope, rag.IndexInputs(processed))
	result.Written = written
	if err != nil {
		return result, err
	}
	logger.Info("document indexed", "written", written)
	return result, nil
}

// EnqueueIngest validates the input, records a queued job and publishes it.
func (s *RAGService) EnqueueIngest(ctx context.Context, input IngestInput) (*model.IngestProgress, error) {
	if !s.AsyncEnabled() {
		return nil, ErrAsyncIngestDisabled
	}
	if err := input.Scope.Validate(); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.chunker(input.Strategy, 0, nil); err != nil {
		return nil, err
	}
	if err := s.gateway.ClaimShare(ctx, input.Scope); err != nil {
		return nil, err
	}

	now := s.now()
	job := model.IngestJob{
		JobID:       uuid.NewString(),
		OwnerEmail:  input.Scope.OwnerEmail(),
		OwnerName:   input.Scope.OwnerName(),
		ChatbotName: input.Scope.ChatbotName(),
		Strategy:    input.Strategy,
		Content:     content,
		EnqueuedAt:  now,
	}
	progress := model.IngestProgress{
		JobID:     job.JobID,
		ShareID:   input.Scope.ShareID(),
		Status:    model.IngestQueued,
		UpdatedAt: now,
	}
	if err := s.progress.Set(ctx, progress); err != nil {
		return nil, err
	}
	if err := s.jobs.Publish(ctx, job); err != nil {
		progress.Status = model.IngestFailed
		progress.Error = "could not queue job"
		progress.UpdatedAt = s.now()
		if setErr := s.progress.Set(ctx, progress); setErr != nil {
			logging.FromContext(ctx).Warn("record failed job state failed", "job_id", job.JobID, "error", setErr)
		}
		return nil, err
	}
	return &progress, nil
}

// RunIngestJob runs a queued job and records progress after each chunk.
func (s *RAGService) RunIngestJob(ctx context.Context, job model.IngestJob) error {
	logger := logging.FromContext(ctx)
	scope, err := rag.NewTenantScope(job.OwnerEmail, job.OwnerName, job.ChatbotName)

	state := model.IngestProgress{JobID: job.JobID, Status: model.IngestRunning}
	if err == nil {
		state.ShareID = scope.ShareID()
	}
	record := func() {
		if s.progress == nil {
			return
		}
		state.UpdatedAt = s.now()
		if setErr := s.progress.Set(ctx, state); setErr != nil {
			logger.Warn("record job progress failed", "job_id", job.JobID, "error", setErr)
		}
	}

	if err != nil {
		state.Status = model.IngestFailed
		state.Error = DescribeIngestError(err)
		record()
		return err
	}
	record()

	result, err := s.Ingest(ctx, IngestInput{
		Scope:    scope,
		Name:     job.JobID,
		Content:  job.Content,
		Strategy: job.Strategy,
	}, func(done, total int) {
		state.Done, state.Total = done, total
		record()
	})
	if result != nil {
		state.Committed = result.Written
		state.Total = result.ChunkCount
	}
	if err != nil {
		state.Status = model.IngestFailed
		state.Error = DescribeIngestError(err)
		record()
		return err
	}
	state.Status = model.IngestDone
	state.Done = state.Total
	record()
	return nil
}

func (s *RAGService) JobProgress(ctx context.Context, jobID string) (*model.IngestProgress, error) {
	if s.progress == nil {
		return nil, ErrAsyncIngestDisabled
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, ErrInvalidInput
	}
	progress, ok, err := s.progress.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrJobNotFound
	}
	return progress, nil
}

// ChatInput is one chat turn. Public marks a visitor that reached the chatbot
// through its share id rather than its owner.
type ChatInput struct {
	Scope     rag.TenantScope
	Message   string
	History   []rag.Message
	SessionID string
	TopK      int
	Public    bool
}

type ChatResult struct {
	ShareID    string          `json:"shareId"`
	Response   string          `json:"response"`
	References []rag.Reference `json:"references"`
}

// Chat answers one message against a chatbot. When SessionID is set and a
// history store is configured, stored turns replace the request history.
// Owner and public sessions are stored apart even when their ids match.
func (s *RAGService) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	if err := input.Scope.Validate(); err != nil {
		return nil, err
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, ErrInvalidInput
	}
	shareID := input.Scope.ShareID()
	logger := logging.FromContext(ctx).With("share_id", shareID)

	history := input.History
	useSession := input.SessionID != "" && s.history != nil
	session := historySession(input)
	if useSession {
		stored, err := s.history.History(ctx, shareID, session)
		if err != nil {
			logger.Warn("load conversation history failed", "error", err)
		} else {
			history = stored
		}
	}
	history = lastMessages(history, s.cfg.MaxContextMessages)

	retrieval, err := s.retriever.Retrieve(ctx, message, input.Scope, input.TopK)
	if err != nil {
		return nil, err
	}
	answer, err := s.assembler.Answer(ctx, message, history, retrieval)
	if err != nil {
		return nil, err
	}

	if useSession {
		if err := s.history.Append(ctx, shareID, session,
			rag.Message{Role: rag.RoleUser, Content: message},
			rag.Message{Role: rag.RoleAssistant, Content: answer.Response},
		); err != nil {
			logger.Warn("save conversation history failed", "error", err)
		}
	}
	return &ChatResult{ShareID: shareID, Response: answer.Response, References: answer.References}, nil
}

// Search returns the closest chunks without generating an answer. Unlike
// Chat, embedding and index failures are returned to the caller.
func (s *RAGService) Search(ctx context.Context, scope rag.TenantScope, query string, topK int) (rag.RetrievalResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.gateway.Query(ctx, scope, vector, topK)
}

func (s *RAGService) ListChatbots(ctx context.Context, ownerEmail string) ([]rag.ChatbotSummary, error) {
	return s.gateway.ListChatbots(ctx, ownerEmail)
}

// ListChunks returns a chatbot's records ordered by chunk index.
func (s *RAGService) ListChunks(ctx context.Context, scope rag.TenantScope) ([]rag.VectorRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	records, err := s.gateway.FetchAll(ctx, scope.OwnerEmail(), scope.ChatbotName())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, rag.ErrChatbotNotFound
	}
	return records, nil
}

func (s *RAGService) ResolveShare(ctx context.Context, shareID string) (rag.TenantScope, error) {
	return s.gateway.ResolveShare(ctx, shareID)
}

// PreviewInput overrides the configured chunking. A zero Size uses the
// configured size; a nil Overlap uses the configured overlap with the
// configured size and no overlap with an explicit one.
type PreviewInput struct {
	Content  string
	Strategy string
	Size     int
	Overlap  *int
}

// Preview chunks content with the given or configured parameters. Nothing is embedded.
func (s *RAGService) Preview(input PreviewInput) ([]rag.Chunk, error) {
	chunker, err := s.chunker(input.Strategy, input.Size, input.Overlap)
	if err != nil {
		return nil, err
	}
	return chunker.Chunk(input.Content), nil
}

func (s *RAGService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}
	return s.embedder.Embed(ctx, text)
}

func (s *RAGService) chunker(strategy string, size int, overlap *int) (rag.Chunker, error) {
	st := s.cfg.Strategy
	if strings.TrimSpace(strategy) != "" {
		parsed, err := rag.ParseStrategy(strategy)
		if err != nil {
			return nil, err
		}
		st = parsed
	}
	ov := 0
	if size <= 0 {
		size = s.cfg.ChunkSize
		ov = s.cfg.ChunkOverlap
	}
	if overlap != nil {
		ov = *overlap
	}
	return rag.NewChunker(st, size, ov)
}

// DescribeIngestError renders an ingestion failure without upstream payloads.
func DescribeIngestError(err error) string {
	var (
		partial  *rag.PartialUploadError
		embedErr *rag.EmbeddingError
	)
	switch {
	case errors.As(err, &partial):
		return fmt.Sprintf("index upload stopped after %d of %d chunks", partial.Committed, partial.Attempted)
	case errors.As(err, &embedErr) && errors.Is(err, rag.ErrInputRejected):
		return fmt.Sprintf("chunk %d was rejected by the embedding provider", embedErr.Ordinal)
	case errors.As(err, &embedErr):
		return fmt.Sprintf("embedding chunk %d failed", embedErr.Ordinal)
	case errors.Is(err, rag.ErrInvalidScope):
		return "invalid chatbot owner or name"
	case errors.Is(err, rag.ErrShareIDTaken):
		return "share id is already used by another chatbot"
	case errors.Is(err, rag.ErrInvalidChunking):
		return "invalid chunking parameters"
	case errors.Is(err, rag.ErrDimensionMismatch):
		return "embedding dimension does not match the index"
	case errors.Is(err, ErrInvalidInput):
		return "document is empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "ingestion was interrupted"
	default:
		return "ingestion failed"
	}
}

func historySession(input ChatInput) string {
	if input.Public {
		return "public:" + input.SessionID
	}
	return "owner:" + input.SessionID
}

func lastMessages(history []rag.Message, n int) []rag.Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
