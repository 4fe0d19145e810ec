package settings

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for runtime configuration.
type Handlers struct {
	service *Service
	onSet   func(key string)
}

// NewHandlers creates settings handlers. onSet is called after each
// successful write so the caller can emit config_updated.
func NewHandlers(service *Service, onSet func(key string)) *Handlers {
	return &Handlers{service: service, onSet: onSet}
}

// RegisterRoutes registers config routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetAll)
	g.PUT("", h.SetMany)
	g.GET("/export", h.Export)
	g.POST("/import", h.Import)
}

// GetAll returns the merged effective settings with secrets masked.
// GET /api/v1/config
func (h *Handlers) GetAll(c echo.Context) error {
	merged, err := h.service.All(c.Request().Context(), true)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, merged)
}

// SetMany applies a batch of overrides.
// PUT /api/v1/config
func (h *Handlers) SetMany(c echo.Context) error {
	var body map[string]string
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid settings payload")
	}

	ctx := c.Request().Context()
	for k, v := range body {
		if v == "********" {
			continue
		}
		if err := h.service.Set(ctx, k, v); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if h.onSet != nil {
			h.onSet(k)
		}
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": len(body)})
}

// Export returns the stored overrides as a JSON document.
// GET /api/v1/config/export
func (h *Handlers) Export(c echo.Context) error {
	data, err := h.service.Export(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, "application/json", data)
}

// Import applies a previously exported JSON document.
// POST /api/v1/config/import
func (h *Handlers) Import(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	applied, err := h.service.Import(c.Request().Context(), data)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"applied": applied})
}
