package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/middleware"
)

// respondError maps service errors onto the response envelope. The
// admission errors keep distinct codes so the UI can show upgrade
// prompts instead of generic failures.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrQuotaExceeded):
		middleware.CountQuotaRejection("start_credit")
		common.ErrorResponseWithCode(c, http.StatusPaymentRequired, "QUOTA_EXCEEDED", err.Error())
	case errors.Is(err, common.ErrMonthlyCapExceeded):
		middleware.CountQuotaRejection("message_cap")
		common.ErrorResponseWithCode(c, http.StatusPaymentRequired, "MONTHLY_CAP_EXCEEDED", err.Error())
	case errors.Is(err, common.ErrMemberNotFound),
		errors.Is(err, common.ErrConversationNotFound),
		errors.Is(err, common.ErrNotFound):
		common.ErrorResponse(c, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, common.ErrForbidden):
		common.ErrorResponse(c, http.StatusForbidden, err.Error(), err)
	case errors.Is(err, common.ErrSelfConversation),
		errors.Is(err, common.ErrSameRole),
		errors.Is(err, common.ErrInvalidInput):
		common.ErrorResponse(c, http.StatusBadRequest, err.Error(), err)
	default:
		common.ErrorResponse(c, http.StatusInternalServerError, "Internal error", err)
	}
}
