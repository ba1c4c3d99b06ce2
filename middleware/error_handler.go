// Package middleware contains the request-scoped plumbing shared by every
// route: request ids, CORS and the error-to-response translation.
package middleware

import (
	"runtime/debug"
	"strconv"

	"github.com/CampusLink/notify-sync-backend/errors"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON error envelope returned by every route.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandler translates errors attached to the gin context into the
// shared error envelope. AppErrors keep their type and status; anything
// else is reported as an internal error without leaking internals.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stackTrace := debug.Stack()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		log := logger.GetLogger()

		if appError, ok := err.(*errors.AppError); ok {
			statusCode := appError.GetHTTPStatus()

			log.Warnw("Request failed",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"errorType", string(appError.Type),
				"error", appError.Message,
				"status", statusCode)

			response := map[string]interface{}{
				"type":    string(appError.Type),
				"message": appError.Message,
				"code":    strconv.Itoa(statusCode),
			}
			if appError.Detail != "" && (gin.IsDebugging() ||
				appError.Type == errors.ValidationError ||
				appError.Type == errors.NotFoundError) {
				response["details"] = appError.Detail
			}

			c.JSON(statusCode, response)
			return
		}

		if c.Errors.Last().Type == gin.ErrorTypeBind {
			log.Warnw("Request binding failed",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err)

			response := map[string]interface{}{
				"type":    string(errors.ValidationError),
				"message": "Failed to bind request",
				"code":    "400",
			}
			if gin.IsDebugging() {
				response["details"] = err.Error()
			}

			c.JSON(400, response)
			return
		}

		if c.Errors.Last().Type == gin.ErrorTypePublic {
			c.JSON(400, map[string]interface{}{
				"type":    string(errors.ValidationError),
				"message": err.Error(),
				"code":    "400",
			})
			return
		}

		log.Errorw("Unexpected server error",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err,
			"stack", string(stackTrace))

		c.JSON(500, map[string]interface{}{
			"type":    string(errors.ServerError),
			"message": "An unexpected error occurred",
			"code":    "500",
		})
	}
}
