package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/internal/middleware"
	"github.com/nestmatch/nestmatch-backend/internal/service"
)

// ConversationHandler handles conversation HTTP requests
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// StartConversation handles POST /conversations
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req domain.StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.service.StartConversation(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Created {
		middleware.CountConversationCreated()
		c.JSON(http.StatusCreated, common.APIResponse{Data: result})
		return
	}
	c.JSON(http.StatusOK, common.APIResponse{Data: result})
}

// ListConversations handles GET /conversations
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	conversations, err := h.service.ListConversations(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, common.APIResponse{Data: conversations})
}

// UpdateStatus handles PATCH /conversations/:id/status
func (h *ConversationHandler) UpdateStatus(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req domain.UpdateConversationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.service.UpdateStatus(c.Param("id"), userID, req.Status); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
