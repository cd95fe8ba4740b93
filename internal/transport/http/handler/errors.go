package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docbot/internal/app"
	"docbot/internal/pkg/logging"
	"docbot/internal/pkg/pdfextract"
	"docbot/internal/rag"
	"docbot/internal/transport/http/response"
)

// ApologyText is shown instead of a failed generation.
const ApologyText = "I apologize, but I encountered an error. Please try again."

// writeError maps service errors to fixed client messages. Upstream payloads
// only reach the log.
func writeError(c *gin.Context, err error, fallback string) {
	var (
		partial  *rag.PartialUploadError
		embedErr *rag.EmbeddingError
		genErr   *rag.GenerationError
	)
	switch {
	case errors.As(err, &partial):
		response.ErrorWithData(c, http.StatusServiceUnavailable, response.CodePartialUpload,
			"upload was only partially indexed", gin.H{
				"committed": partial.Committed,
				"attempted": partial.Attempted,
			})
	case errors.Is(err, rag.ErrInvalidScope), errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request")
	case errors.Is(err, rag.ErrInvalidChunking):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidChunking, "invalid chunking parameters")
	case errors.Is(err, pdfextract.ErrUnsupportedFormat), errors.Is(err, pdfextract.ErrTooLarge),
		errors.Is(err, pdfextract.ErrNoText):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile, err.Error())
	case errors.Is(err, rag.ErrChatbotNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatbotNotFound, "chatbot not found")
	case errors.Is(err, rag.ErrShareIDTaken):
		response.Error(c, http.StatusConflict, response.CodeShareIDTaken, "this chatbot's share link is already used by another chatbot, pick a different name")
	case errors.Is(err, app.ErrJobNotFound):
		response.Error(c, http.StatusNotFound, response.CodeJobNotFound, "ingest job not found")
	case errors.Is(err, app.ErrAsyncIngestDisabled):
		response.Error(c, http.StatusNotImplemented, response.CodeAsyncDisabled, "async ingestion is not available")
	case errors.As(err, &genErr):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamError, ApologyText)
	case errors.Is(err, rag.ErrInputRejected):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeInputRejected, "the embedding provider rejected the input")
	case errors.Is(err, rag.ErrUpstreamTimeout):
		response.Error(c, http.StatusGatewayTimeout, response.CodeUpstreamTimeout, "the model provider timed out")
	case errors.Is(err, rag.ErrUpstreamError), errors.As(err, &embedErr):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamError, "the model provider failed")
	case errors.Is(err, rag.ErrIndexUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.CodeIndexUnavailable, "the vector index is unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
	logging.FromContext(c.Request.Context()).Warn(fallback, "error", err, "path", c.FullPath())
}
