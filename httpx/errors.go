package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/adeilh/rakh-cache/auth"
	"github.com/adeilh/rakh-cache/cache"
)

const (
	StatusOK                 = http.StatusOK
	StatusCreated            = http.StatusCreated
	StatusNoContent          = http.StatusNoContent
	StatusBadRequest         = http.StatusBadRequest          // invalid key, ttl or body
	StatusUnauthorized       = http.StatusUnauthorized        // missing or wrong API key
	StatusNotFound           = http.StatusNotFound            // absent or expired entry
	StatusInternalError      = http.StatusInternalServerError // backend failure
	StatusServiceUnavailable = http.StatusServiceUnavailable
	StatusGatewayTimeout     = http.StatusGatewayTimeout // request deadline hit
)

// StatusFromError maps domain errors to HTTP status codes.
func StatusFromError(err error) int {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, cache.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, cache.ErrInvalidKey):
		return StatusBadRequest
	case errors.Is(err, auth.ErrKeyNotFound), errors.Is(err, auth.ErrKeyInvalid):
		return StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return StatusGatewayTimeout
	default:
		return StatusInternalError
	}
}
