package apierrors

import (
	"net/http"

	"message-bridge/internal/observability"

	"github.com/gin-gonic/gin"
)

var logger = observability.NewLogger()

// Error codes returned by the bridge
const (
	CodeMalformedEnvelope = "MALFORMED_ENVELOPE"
	CodeEncodingFailed    = "ENCODING_FAILED"
	CodePublishFailed     = "PUBLISH_FAILED"
	CodePublishTimeout    = "PUBLISH_TIMEOUT"
	CodePublishCancelled  = "PUBLISH_CANCELLED"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeNotFound          = "NOT_FOUND"
)

// ErrorResponse is the JSON structure returned to API clients
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respond writes the error response and logs correlation info
func respond(c *gin.Context, statusCode int, code, message string) {
	ctx := c.Request.Context()
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "status_code", Value: statusCode},
		observability.Field{Key: "error_code", Value: code},
		observability.Field{Key: "error_message", Value: message},
	)
	logger.Info(ctx, "API error response")

	c.JSON(statusCode, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, CodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, code, message string) {
	respond(c, http.StatusBadRequest, code, message)
}

// PayloadTooLarge sends a 413 response
func PayloadTooLarge(c *gin.Context, message string) {
	respond(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message)
}

// ServerError sends a 500 response with a specific code and logs the internal error
func ServerError(c *gin.Context, code, message string, internalErr error) {
	logger.Error(c.Request.Context(), "server error", internalErr)
	respond(c, http.StatusInternalServerError, code, message)
}

// ServiceUnavailable sends a 503 response and logs the internal error
func ServiceUnavailable(c *gin.Context, code, message string, internalErr error) {
	ctx := c.Request.Context()
	logger.Error(ctx, "service unavailable", internalErr)
	respond(c, http.StatusServiceUnavailable, code, message)
}

// GatewayTimeout sends a 504 response and logs the internal error
func GatewayTimeout(c *gin.Context, code, message string, internalErr error) {
	logger.Error(c.Request.Context(), "upstream timeout", internalErr)
	respond(c, http.StatusGatewayTimeout, code, message)
}

// InternalError sends a sanitized 500 response - never exposes internal details
func InternalError(c *gin.Context, internalErr error) {
	ctx := c.Request.Context()
	logger.Error(ctx, "internal error", internalErr)
	respond(c, http.StatusInternalServerError, CodeInternalError, "An internal error occurred. Please try again later.")
}
