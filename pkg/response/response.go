package response

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apperrors "bookmarket/pkg/errors"
	"bookmarket/pkg/logger"
)

type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Success(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: now(),
	})
}

func Created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Response{
		Success:   true,
		Data:      data,
		Timestamp: now(),
	})
}

// Error converts any error into the JSON envelope. Store failures keep their generic user-facing
// message; the wrapped cause is only logged.
func Error(c echo.Context, err error) error {
	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		return handleValidationError(c, validationErr)
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, _ := httpErr.Message.(string)
		return fail(c, httpErr.Code, codeForStatus(httpErr.Code), msg)
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			logger.Warn("%s %s: %v", c.Request().Method, c.Path(), appErr)
		}
		return fail(c, appErr.Status, appErr.Code, appErr.Message)
	}

	logger.Error("%s %s: unexpected error: %v", c.Request().Method, c.Path(), err)
	return fail(c, http.StatusInternalServerError, apperrors.CodeInternal, "An unexpected error occurred")
}

// ErrorHandler is an echo.HTTPErrorHandler that renders errors through Error.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if err := Error(c, err); err != nil {
		logger.Error("failed to write error response: %v", err)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return apperrors.CodeNotFound
	case http.StatusUnauthorized:
		return apperrors.CodeUnauthorized
	case http.StatusForbidden:
		return apperrors.CodeForbidden
	case http.StatusTooManyRequests:
		return apperrors.CodeTooManyRequests
	}
	if status >= http.StatusInternalServerError {
		return apperrors.CodeInternal
	}
	return apperrors.CodeBadRequest
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Response{
		Success:   false,
		Timestamp: now(),
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}

func handleValidationError(c echo.Context, validationErr validator.ValidationErrors) error {
	message := "Invalid input data"
	if len(validationErr) > 0 {
		err := validationErr[0]
		field := strings.ToLower(err.Field())
		switch err.Tag() {
		case "required":
			message = field + " is required"
		case "max":
			message = field + " must be at most " + err.Param() + " characters"
		case "nefield":
			message = field + " must differ from " + strings.ToLower(err.Param())
		default:
			message = field + " is invalid"
		}
	}
	return fail(c, http.StatusBadRequest, apperrors.CodeValidation, message)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
