package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/internal/middleware"
	"github.com/nestmatch/nestmatch-backend/internal/service"
)

// MemberHandler handles member profile sync and lookup
type MemberHandler struct {
	service service.MemberService
}

// NewMemberHandler creates a new MemberHandler
func NewMemberHandler(service service.MemberService) *MemberHandler {
	return &MemberHandler{service: service}
}

// Sync handles POST /members/sync, the account-system push. API-key
// guarded, service-to-service only.
func (h *MemberHandler) Sync(c *gin.Context) {
	var req domain.SyncMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member, err := h.service.Sync(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, common.APIResponse{Data: member.ToSummary()})
}

// Get handles GET /members/:id
func (h *MemberHandler) Get(c *gin.Context) {
	if middleware.GetUserID(c) == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	member, err := h.service.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, common.APIResponse{Data: member.ToSummary()})
}
