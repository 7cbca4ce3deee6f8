package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/compiler"
	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/session"
)

// Error codes returned in ErrorResponse.Code
const (
	CodeInvalidState      = "INVALID_STATE"
	CodeInvalidFragment   = "INVALID_FRAGMENT"
	CodeInvalidBody       = "INVALID_BODY"
	CodeCompilerMissing   = "COMPILER_UNAVAILABLE"
	CodeCompilerResult    = "INVALID_COMPILER_RESULT"
	CodePipelineStopped   = "PIPELINE_STOPPED"
	CodeTimeout           = "TIMEOUT"
	CodeNotTranspiled     = "NOT_TRANSPILED"
	CodeCompileFailed     = "COMPILE_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
	CodeRealtimeDisabled  = "REALTIME_DISABLED"
	CodeAnalysisFailed    = "ANALYSIS_FAILED"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
)

// getRequestID extracts the request ID from the Fiber context.
// It first checks the requestid middleware local, then falls back to the X-Request-ID header.
func getRequestID(c *fiber.Ctx) string {
	if requestID := c.Locals("requestid"); requestID != nil {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}
	return c.Get("X-Request-ID", "")
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string      `json:"error"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Hint      string      `json:"hint,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// SendError sends a standardized error response with request ID
func SendError(c *fiber.Ctx, statusCode int, errMsg string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithCode sends a standardized error response with error code and request ID
func SendErrorWithCode(c *fiber.Ctx, statusCode int, errMsg string, code string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		RequestID: getRequestID(c),
	})
}

// SendErrorWithDetails sends a detailed error response with request ID
func SendErrorWithDetails(c *fiber.Ctx, statusCode int, errMsg, code, message, hint string, details interface{}) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		Message:   message,
		Hint:      hint,
		Details:   details,
		RequestID: getRequestID(c),
	})
}

// classifyError maps pipeline and session errors onto a status and code
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidToken):
		return fiber.StatusBadRequest, CodeInvalidFragment
	case errors.Is(err, session.ErrInvalidState):
		return fiber.StatusBadRequest, CodeInvalidState
	case errors.Is(err, compiler.ErrNoCompiler):
		return fiber.StatusServiceUnavailable, CodeCompilerMissing
	case errors.Is(err, pipeline.ErrNotStarted), errors.Is(err, pipeline.ErrStopped):
		return fiber.StatusServiceUnavailable, CodePipelineStopped
	case errors.Is(err, compiler.ErrInvalidResult):
		return fiber.StatusBadGateway, CodeCompilerResult
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, CodeTimeout
	default:
		return fiber.StatusInternalServerError, CodeInternal
	}
}

// handlePipelineError returns an error response for err. All responses
// include the request ID for correlation with logs.
func handlePipelineError(c *fiber.Ctx, err error, operation string) error {
	status, code := classifyError(err)

	if status >= 500 {
		log.Error().
			Err(err).
			Str("request_id", getRequestID(c)).
			Str("operation", operation).
			Msg("Pipeline request failed")
	}

	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "Failed to " + operation
	}
	return SendErrorWithCode(c, status, msg, code)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	// Default to 500 status code
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
