package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vizflow-backend/internal/domain"
)

const maxListLimit = 100

func userIDParam(c *gin.Context) (string, error) {
	uid := strings.TrimSpace(c.Query("userId"))
	if err := domain.CheckUserID(uid); err != nil {
		return "", err
	}
	return uid, nil
}

// limitParam falls back to def for a missing or unparsable limit and clamps
// to [1, maxListLimit].
func limitParam(c *gin.Context, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	if err != nil || n <= 0 {
		return def
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
