package handler

import (
	"github.com/gin-gonic/gin"

	"docbot/internal/app"
)

// ShareHandler serves public chatbots addressed by "<user>/<bot>".
type ShareHandler struct {
	ragService *app.RAGService
}

func NewShareHandler(ragService *app.RAGService) *ShareHandler {
	return &ShareHandler{ragService: ragService}
}

func (h *ShareHandler) Chat(c *gin.Context) {
	scope, err := h.ragService.ResolveShare(c.Request.Context(), c.Param("user")+"/"+c.Param("bot"))
	if err != nil {
		writeError(c, err, "resolve chatbot failed")
		return
	}
	chat(c, h.ragService, scope, true)
}
