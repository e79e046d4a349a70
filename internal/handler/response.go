package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradehook/internal/engine"
	"tradehook/internal/ledger"
	"tradehook/internal/service"
	"tradehook/internal/strategy"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// statusFor maps domain errors onto HTTP status codes. Anything unrecognized
// is treated as a storage or upstream failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, strategy.ErrInvalidName),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, engine.ErrUnknownSignal),
		errors.Is(err, service.ErrInvalidBrokerURL):
		return http.StatusBadRequest
	case errors.Is(err, strategy.ErrNotFound),
		errors.Is(err, service.ErrOwnerNotFound):
		return http.StatusNotFound
	case errors.Is(err, strategy.ErrExists),
		errors.Is(err, strategy.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func fail(c *gin.Context, err error) {
	Error(c, statusFor(err), err.Error(), nil)
}
