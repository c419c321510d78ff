package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/internal/middleware"
	"github.com/nestmatch/nestmatch-backend/internal/service"
	"github.com/nestmatch/nestmatch-backend/pkg/ginutil"
)

// MessageHandler handles message HTTP requests
type MessageHandler struct {
	service service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(service service.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// SendMessage handles POST /conversations/:id/messages
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.service.Send(c.Param("id"), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	middleware.CountMessageSent()
	c.JSON(http.StatusCreated, common.APIResponse{Data: result})
}

// ListMessages handles GET /conversations/:id/messages
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	page, limit := ginutil.Page(c, 50, 100)

	messages, meta, err := h.service.ListMessages(c.Param("id"), userID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, common.APIResponse{Data: messages, Meta: meta})
}

// MarkRead handles POST /conversations/:id/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	updated, err := h.service.MarkRead(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, common.APIResponse{Data: gin.H{"marked_read": updated}})
}
