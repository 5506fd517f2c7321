package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/resilience"
	"option-analyzer/internal/security"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// FieldError is one field failure in a 400 response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// DataResponse writes data in the envelope with the given status.
func DataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

// SuccessResponse writes a 200 response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// CreatedResponse writes a 201 response.
func CreatedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusCreated, data)
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case apperrors.Is(err, apperrors.ErrMalformedChain), apperrors.Is(err, apperrors.ErrInvalidContract):
		return http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrNotConfigured), apperrors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case apperrors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case apperrors.Is(err, apperrors.ErrTimeout):
		return http.StatusGatewayTimeout
	}

	var agentErr *apperrors.AgentError
	if errors.As(err, &agentErr) || apperrors.Is(err, apperrors.ErrEmptyResponse) {
		return http.StatusBadGateway
	}
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errorHandler renders errors returned by handlers in the envelope.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := statusFor(err)
		var data interface{}

		var verrs apperrors.ValidationErrors
		var verr *apperrors.ValidationError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &verrs):
			fields := make([]FieldError, 0, len(verrs))
			for _, v := range verrs {
				fields = append(fields, FieldError{Field: v.Field, Message: v.Message})
			}
			data = fields
		case errors.As(err, &verr):
			data = []FieldError{{Field: verr.Field, Message: verr.Message}}
		case errors.As(err, &he):
			data = he.Message
		case status == http.StatusInternalServerError:
			logger.Error().Err(security.RedactedError(err)).Str("route", c.Path()).Msg("request failed")
			data = "Something went wrong"
		default:
			data = security.Redact(err.Error())
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = DataResponse(c, status, data)
	}
}
