package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"github.com/nestmatch/nestmatch-backend/internal/middleware"
	"github.com/nestmatch/nestmatch-backend/internal/service"
)

// QuotaHandler handles quota status and purchase intake
type QuotaHandler struct {
	service service.QuotaService
}

// NewQuotaHandler creates a new QuotaHandler
func NewQuotaHandler(service service.QuotaService) *QuotaHandler {
	return &QuotaHandler{service: service}
}

// GetStatus handles GET /quota
func (h *QuotaHandler) GetStatus(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		common.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	status, err := h.service.Status(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, common.APIResponse{Data: status})
}

// GrantCredit handles POST /quota/credits/grant for purchase intake,
// API-key guarded. Called by the payment flow after a completed
// purchase; this only records ledger rows.
func (h *QuotaHandler) GrantCredit(c *gin.Context) {
	var req domain.GrantCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Allowance extensions raise the message cap; every other kind
	// creates a consumable credit row
	if req.Kind == domain.GrantAllowanceExtension {
		allowance, err := h.service.ExtendAllowance(req.UserID, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, common.APIResponse{Data: allowance})
		return
	}

	credit, err := h.service.GrantCredit(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, common.APIResponse{Data: credit})
}
