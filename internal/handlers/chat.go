package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dermalens/dermalens-backend/internal/services"
)

type ChatHandler struct {
	chatService services.ChatService
}

func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (ch *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		SessionID        string   `json:"session_id"`
		Content          string   `json:"content"`
		ReportedConcerns []string `json:"reported_concerns"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	msg, err := ch.chatService.SendMessage(c.Request.Context(), req.SessionID, req.Content, req.ReportedConcerns)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, msg)
}

func (ch *ChatHandler) History(c *gin.Context) {
	sessionID := c.Param("session_id")
	messages, err := ch.chatService.GetSessionHistory(c.Request.Context(), sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": messages})
}

func (ch *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	deleted, err := ch.chatService.DeleteSession(c.Request.Context(), sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": deleted})
}
