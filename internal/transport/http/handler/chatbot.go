package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docbot/internal/app"
	"docbot/internal/pkg/logging"
	"docbot/internal/pkg/pdfextract"
	"docbot/internal/rag"
	"docbot/internal/transport/http/middleware"
	"docbot/internal/transport/http/response"
)

type ChatbotHandler struct {
	ragService     *app.RAGService
	maxUploadBytes int64
}

type CreateChatbotRequest struct {
	Name     string `json:"name" binding:"required,max=128,excludes=/"`
	Content  string `json:"content" binding:"required"`
	Strategy string `json:"strategy"`
	Async    bool   `json:"async"`
}

type ChatRequest struct {
	Message   string        `json:"message" binding:"required"`
	History   []rag.Message `json:"history"`
	SessionID string        `json:"session_id" binding:"max=64"`
	TopK      int           `json:"top_k" binding:"min=0,max=50"`
}

type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k" binding:"min=0,max=50"`
}

type chunkView struct {
	ID         string    `json:"id"`
	ChunkIndex int       `json:"chunkIndex"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Generation string    `json:"generation,omitempty"`
}

func NewChatbotHandler(ragService *app.RAGService, maxUploadBytes int64) *ChatbotHandler {
	return &ChatbotHandler{ragService: ragService, maxUploadBytes: maxUploadBytes}
}

// Create indexes a JSON text upload, or queues it when async is set.
func (h *ChatbotHandler) Create(c *gin.Context) {
	var req CreateChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if h.maxUploadBytes > 0 && int64(len(req.Content)) > h.maxUploadBytes {
		writeError(c, pdfextract.ErrTooLarge, "create chatbot failed")
		return
	}
	h.ingest(c, req.Name, req.Name, req.Content, req.Strategy, req.Async)
}

// Upload accepts a multipart form with "file" (.txt, .md or .pdf), "name",
// and optional "strategy" and "async" fields.
func (h *ChatbotHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		writeError(c, pdfextract.ErrTooLarge, "upload failed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	text, err := pdfextract.ExtractDocument(file.Filename, f, h.maxUploadBytes)
	if err != nil {
		writeError(c, err, "failed to extract text from file")
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}
	async, _ := strconv.ParseBool(c.PostForm("async"))
	h.ingest(c, name, file.Filename, text, c.PostForm("strategy"), async)
}

func (h *ChatbotHandler) ingest(c *gin.Context, chatbotName, documentName, content, strategy string, async bool) {
	scope, ok := ownerScope(c, chatbotName)
	if !ok {
		return
	}
	input := app.IngestInput{Scope: scope, Name: documentName, Content: content, Strategy: strategy}

	if async {
		progress, err := h.ragService.EnqueueIngest(c.Request.Context(), input)
		if err != nil {
			writeError(c, err, "queue ingestion failed")
			return
		}
		response.Accepted(c, progress)
		return
	}

	result, err := h.ragService.Ingest(c.Request.Context(), input, nil)
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	response.OK(c, result)
}

func (h *ChatbotHandler) List(c *gin.Context) {
	email, _, ok := middleware.Owner(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	bots, err := h.ragService.ListChatbots(c.Request.Context(), email)
	if err != nil {
		writeError(c, err, "list chatbots failed")
		return
	}
	response.OK(c, bots)
}

func (h *ChatbotHandler) Chunks(c *gin.Context) {
	scope, ok := ownerScope(c, c.Param("name"))
	if !ok {
		return
	}
	records, err := h.ragService.ListChunks(c.Request.Context(), scope)
	if err != nil {
		writeError(c, err, "list chunks failed")
		return
	}
	views := make([]chunkView, len(records))
	for i, rec := range records {
		views[i] = chunkView{
			ID:         rec.ID,
			ChunkIndex: rec.Metadata.ChunkIndex,
			Text:       rec.Metadata.Text,
			Timestamp:  rec.Metadata.Timestamp,
			Generation: rec.Metadata.Generation,
		}
	}
	response.OK(c, gin.H{"shareId": scope.ShareID(), "chunks": views})
}

func (h *ChatbotHandler) Search(c *gin.Context) {
	scope, ok := ownerScope(c, c.Param("name"))
	if !ok {
		return
	}
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	refs, err := h.ragService.Search(c.Request.Context(), scope, req.Query, req.TopK)
	if err != nil {
		writeError(c, err, "search failed")
		return
	}
	response.OK(c, gin.H{"references": refs})
}

func (h *ChatbotHandler) Chat(c *gin.Context) {
	scope, ok := ownerScope(c, c.Param("name"))
	if !ok {
		return
	}
	chat(c, h.ragService, scope, false)
}

// chat is shared by the owner and the public share endpoints. A failed
// generation is answered with a fixed apology instead of an error.
func chat(c *gin.Context, svc *app.RAGService, scope rag.TenantScope, public bool) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := svc.Chat(c.Request.Context(), app.ChatInput{
		Scope:     scope,
		Message:   req.Message,
		History:   req.History,
		SessionID: req.SessionID,
		TopK:      req.TopK,
		Public:    public,
	})
	var genErr *rag.GenerationError
	if errors.As(err, &genErr) {
		logging.FromContext(c.Request.Context()).Error("generation failed", "share_id", scope.ShareID(), "error", err)
		response.OK(c, app.ChatResult{ShareID: scope.ShareID(), Response: ApologyText, References: []rag.Reference{}})
		return
	}
	if err != nil {
		writeError(c, err, "chat failed")
		return
	}
	response.OK(c, result)
}

// ownerScope builds the tenant scope of the authenticated owner. It writes
// the error response itself when it returns false.
func ownerScope(c *gin.Context, chatbotName string) (rag.TenantScope, bool) {
	email, name, ok := middleware.Owner(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return rag.TenantScope{}, false
	}
	scope, err := rag.NewTenantScope(email, name, chatbotName)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "chatbot name is required and must not contain '/'")
		return rag.TenantScope{}, false
	}
	return scope, true
}
