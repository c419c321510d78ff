package ginutil

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// QueryInt extracts an integer from query parameters with default value
func QueryInt(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// Page extracts page/limit query parameters with bounds applied
func Page(c *gin.Context, defaultLimit, maxLimit int) (page, limit int) {
	page = QueryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit = QueryInt(c, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	return page, limit
}
