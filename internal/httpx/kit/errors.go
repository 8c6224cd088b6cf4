package kit

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"visitor-beacon-api/internal/logx"
)

var kitLogger = logx.GetScope("httpx")

// APIError is a structured application error with code and message.
type APIError struct {
	HTTPStatus int         `json:"-"`
	Code       string      `json:"code"`
	Message    string      `json:"error"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(httpStatus int, code, msg string, details interface{}) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Message: msg, Details: details}
}

// Common helpers
func BadRequest(msg string, details interface{}) error {
	return NewAPIError(http.StatusBadRequest, "E_INVALID_PARAM", msg, details)
}
func NotFound(msg string) error { return NewAPIError(http.StatusNotFound, "E_NOT_FOUND", msg, nil) }
func InternalError(msg string, details interface{}) error {
	return NewAPIError(http.StatusInternalServerError, "E_INTERNAL", msg, details)
}

// ErrorHandler renders every error as {code, error, details?, request_id}.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"code":       httpStatusToCode(fe.Code),
				"error":      fe.Message,
				"request_id": RequestID(c),
			})
		}

		var ae *APIError
		if errors.As(err, &ae) {
			body := fiber.Map{
				"code":       ae.Code,
				"error":      ae.Message,
				"request_id": RequestID(c),
			}
			if ae.Details != nil {
				body["details"] = ae.Details
			}
			return c.Status(ae.HTTPStatus).JSON(body)
		}

		kitLogger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"code":       "E_INTERNAL",
			"error":      "Internal Server Error",
			"request_id": RequestID(c),
		})
	}
}

func httpStatusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "E_INVALID_PARAM"
	case http.StatusNotFound:
		return "E_NOT_FOUND"
	case http.StatusUnauthorized:
		return "E_UNAUTHORIZED"
	case http.StatusForbidden:
		return "E_FORBIDDEN"
	case http.StatusTooManyRequests:
		return "E_TOO_MANY_REQUESTS"
	default:
		if status >= 500 {
			return "E_INTERNAL"
		}
		return "E_UNKNOWN"
	}
}
