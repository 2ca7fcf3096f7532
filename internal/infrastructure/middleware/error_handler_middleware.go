package middleware

import (
	goerrors "errors"
	"net/http"

	"github.com/Relicjamin-jv/wolf/internal/core/domain"
	"github.com/Relicjamin-jv/wolf/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware handles application errors and returns appropriate HTTP responses
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Check if there are any errors
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			// Try to extract AppError
			appErr := errors.GetAppError(err)
			if appErr == nil {
				appErr = fromDomainError(err)
			}
			if appErr != nil {
				// Log error with context
				logger.Errorw("application error",
					"code", appErr.Code,
					"message", appErr.Message,
					"status", appErr.HTTPStatus,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"context", appErr.Context,
				)

				// Return structured error response
				c.JSON(appErr.HTTPStatus, gin.H{
					"error":   string(appErr.Code),
					"message": appErr.Message,
					"details": appErr.Context,
				})
				return
			}

			// Handle non-AppError errors
			logger.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   string(errors.ErrCodeInternal),
				"message": "Internal server error",
			})
		}
	}
}

// fromDomainError maps core sentinel errors onto HTTP responses so
// handlers can surface them with c.Error without translating each one.
func fromDomainError(err error) *errors.AppError {
	switch {
	case goerrors.Is(err, domain.ErrAppNotFound):
		return errors.NewNotFoundError("app")
	case goerrors.Is(err, domain.ErrSessionNotFound):
		return errors.NewNotFoundError("session")
	case goerrors.Is(err, domain.ErrClientNotFound):
		return errors.NewNotFoundError("client")
	case goerrors.Is(err, domain.ErrDuplicateClient):
		return errors.NewConflictError("client already paired")
	case goerrors.Is(err, domain.ErrDuplicateSession):
		return errors.NewConflictError("session id already in use")
	case goerrors.Is(err, domain.ErrPairingAborted):
		return errors.NewPairingFailedError("pairing aborted")
	default:
		return nil
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
