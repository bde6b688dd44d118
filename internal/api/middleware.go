package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"devotional-server/internal/models"
)

const userIDKey = "userID"

// GinZapLogger логирует HTTP-запросы через zap с уровнем по статусу ответа.
func GinZapLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		fields := []zapcore.Field{
			zap.Int("status", statusCode),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
			zap.String("user-agent", c.Request.UserAgent()),
		}
		if errorMessage != "" {
			fields = append(fields, zap.String("error", errorMessage))
		}

		if statusCode >= http.StatusInternalServerError {
			logger.Error("Request handled", fields...)
		} else if statusCode >= http.StatusBadRequest {
			logger.Warn("Request handled", fields...)
		} else {
			logger.Info("Request handled", fields...)
		}
	}
}

// UserIDMiddleware извлекает идентификатор пользователя из заголовка,
// который проставляет gateway после аутентификации.
func UserIDMiddleware(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(header)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user id"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUserID возвращает идентификатор пользователя из контекста запроса.
func currentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// statusFromError транслирует доменные ошибки в HTTP-статусы.
func statusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isErr(err, models.ErrNotFound), isErr(err, models.ErrDevotionalNotFound), isErr(err, models.ErrDayNotFound):
		return http.StatusNotFound
	case isErr(err, models.ErrGenerationInProgress):
		return http.StatusConflict
	case isErr(err, models.ErrBadRequest), isErr(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case isErr(err, models.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func isErr(err, target error) bool { return errors.Is(err, target) }
