package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainErrors "github.com/niceassistant/assistant/pkg/errors"
)

const userIDKey = "assistant.user_id"

// SetUserID 记录已认证用户, 由认证中间件调用
func SetUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
}

// UserID 返回当前请求的用户
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// StatusFor maps an application error to its HTTP status.
func StatusFor(err error) int {
	switch domainErrors.CodeOf(err) {
	case domainErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case domainErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case domainErrors.CodeForbidden:
		return http.StatusForbidden
	case domainErrors.CodeNotFound:
		return http.StatusNotFound
	case domainErrors.CodeAlreadyExists, domainErrors.CodeConfiguration:
		return http.StatusConflict
	case domainErrors.CodeServiceUnavail:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", UserID(c)),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": domainErrors.MessageOf(err)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
