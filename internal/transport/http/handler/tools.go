package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docbot/internal/app"
	"docbot/internal/transport/http/response"
)

type ToolsHandler struct {
	ragService *app.RAGService
}

type PreviewRequest struct {
	Content  string `json:"content" binding:"required"`
	Strategy string `json:"strategy"`
	Size     int    `json:"chunk_size" binding:"min=0"`
	Overlap  *int   `json:"chunk_overlap" binding:"omitempty,min=0"`
}

type EmbedRequest struct {
	Text string `json:"text" binding:"required"`
}

func NewToolsHandler(ragService *app.RAGService) *ToolsHandler {
	return &ToolsHandler{ragService: ragService}
}

// PreviewChunks shows how a document would be chunked without embedding it.
func (h *ToolsHandler) PreviewChunks(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	chunks, err := h.ragService.Preview(app.PreviewInput{
		Content:  req.Content,
		Strategy: req.Strategy,
		Size:     req.Size,
		Overlap:  req.Overlap,
	})
	if err != nil {
		writeError(c, err, "preview failed")
		return
	}
	response.OK(c, gin.H{"count": len(chunks), "chunks": chunks})
}

func (h *ToolsHandler) Embed(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	vector, err := h.ragService.Embed(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err, "embedding failed")
		return
	}
	response.OK(c, gin.H{"dimension": len(vector), "embedding": vector})
}

func (h *ToolsHandler) JobStatus(c *gin.Context) {
	progress, err := h.ragService.JobProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "fetch job failed")
		return
	}
	response.OK(c, progress)
}
