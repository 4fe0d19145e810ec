package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

const headerAPIKey = "X-Api-Key"

// apiKeyAuth guards routes with the configured API key, accepted either as
// an X-Api-Key header or an apikey query parameter (for WebSocket clients
// and direct download links). An empty configured key disables the check.
func apiKeyAuth(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return next(c)
			}
			provided := c.Request().Header.Get(headerAPIKey)
			if provided == "" {
				provided = c.QueryParam("apikey")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
			}
			return next(c)
		}
	}
}
