package translator

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for translation resources.
type Handlers struct {
	manager *Manager
	presets *Presets
}

// NewHandlers creates translator handlers.
func NewHandlers(manager *Manager, presets *Presets) *Handlers {
	return &Handlers{manager: manager, presets: presets}
}

// RegisterBackendRoutes registers backend inspection routes.
func (h *Handlers) RegisterBackendRoutes(g *echo.Group) {
	g.GET("", h.ListBackends)
	g.POST("/:name/test", h.TestBackend)
}

// RegisterGlossaryRoutes registers glossary CRUD and YAML transfer routes.
func (h *Handlers) RegisterGlossaryRoutes(g *echo.Group) {
	g.GET("", h.ListGlossary)
	g.POST("", h.AddGlossaryTerm)
	g.DELETE("/:id", h.RemoveGlossaryTerm)
	g.GET("/export", h.ExportGlossary)
	g.POST("/import", h.ImportGlossary)
}

// RegisterPresetRoutes registers prompt preset CRUD routes.
func (h *Handlers) RegisterPresetRoutes(g *echo.Group) {
	g.GET("", h.ListPresets)
	g.POST("", h.SavePreset)
	g.DELETE("/:id", h.DeletePreset)
}

// RegisterMemoryRoutes registers translation memory routes.
func (h *Handlers) RegisterMemoryRoutes(g *echo.Group) {
	g.GET("/count", h.MemoryCount)
	g.DELETE("", h.ClearMemory)
}

type backendInfo struct {
	Name              string        `json:"name"`
	Breaker           string        `json:"breaker"`
	SupportsGlossary  bool          `json:"supportsGlossary"`
	SupportsReference bool          `json:"supportsSrtReference"`
	SupportsEval      bool          `json:"supportsEvaluation"`
	Fields            []ConfigField `json:"configFields,omitempty"`
}

// ListBackends returns every configured backend with its capabilities.
// GET /api/v1/backends
func (h *Handlers) ListBackends(c echo.Context) error {
	states := h.manager.Chain().BreakerStates()

	var out []backendInfo
	for _, b := range h.manager.Chain().Registry().All() {
		state := "closed"
		if s, ok := states["backend:"+b.Name()]; ok {
			state = string(s)
		}
		out = append(out, backendInfo{
			Name:              b.Name(),
			Breaker:           state,
			SupportsGlossary:  b.SupportsGlossary(),
			SupportsReference: b.SupportsSRTReference(),
			SupportsEval:      b.SupportsEvaluation(),
			Fields:            b.ConfigFields(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// TestBackend runs a backend health check.
// POST /api/v1/backends/:name/test
func (h *Handlers) TestBackend(c echo.Context) error {
	backend, err := h.manager.Chain().Registry().Get(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err := backend.HealthCheck(c.Request().Context()); err != nil {
		return c.JSON(http.StatusOK, map[string]any{"healthy": false, "message": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"healthy": true, "message": "ok"})
}

// ListGlossary returns glossary terms, optionally filtered by ?scope=.
// GET /api/v1/glossary
func (h *Handlers) ListGlossary(c echo.Context) error {
	terms, err := h.manager.Glossary().List(c.Request().Context(), c.QueryParam("scope"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if terms == nil {
		terms = []GlossaryTerm{}
	}
	return c.JSON(http.StatusOK, terms)
}

// AddGlossaryTerm creates or updates a term.
// POST /api/v1/glossary
func (h *Handlers) AddGlossaryTerm(c echo.Context) error {
	var term GlossaryTerm
	if err := c.Bind(&term); err != nil || term.SourceTerm == "" || term.TargetTerm == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sourceTerm and targetTerm are required")
	}
	if err := h.manager.Glossary().Add(c.Request().Context(), term); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

// RemoveGlossaryTerm deletes a term by id.
// DELETE /api/v1/glossary/:id
func (h *Handlers) RemoveGlossaryTerm(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.manager.Glossary().Remove(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ExportGlossary streams the glossary as YAML.
// GET /api/v1/glossary/export
func (h *Handlers) ExportGlossary(c echo.Context) error {
	data, err := h.manager.Glossary().ExportYAML(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="glossary.yaml"`)
	return c.Blob(http.StatusOK, "application/yaml", data)
}

// ImportGlossary loads terms from a YAML body.
// POST /api/v1/glossary/import
func (h *Handlers) ImportGlossary(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}
	imported, err := h.manager.Glossary().ImportYAML(c.Request().Context(), data)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": imported})
}

// ListPresets returns all prompt presets.
// GET /api/v1/prompt-presets
func (h *Handlers) ListPresets(c echo.Context) error {
	presets, err := h.presets.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if presets == nil {
		presets = []PromptPreset{}
	}
	return c.JSON(http.StatusOK, presets)
}

// SavePreset creates or updates a preset by name.
// POST /api/v1/prompt-presets
func (h *Handlers) SavePreset(c echo.Context) error {
	var preset PromptPreset
	if err := c.Bind(&preset); err != nil || preset.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	id, err := h.presets.Save(c.Request().Context(), preset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	preset.ID = id
	return c.JSON(http.StatusOK, preset)
}

// DeletePreset removes a preset by id.
// DELETE /api/v1/prompt-presets/:id
func (h *Handlers) DeletePreset(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.presets.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// MemoryCount returns the stored pair count for ?source=&target=.
// GET /api/v1/translation-memory/count
func (h *Handlers) MemoryCount(c echo.Context) error {
	count, err := h.manager.Memory().Count(c.Request().Context(),
		c.QueryParam("source"), c.QueryParam("target"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int64{"count": count})
}

// ClearMemory drops memory entries for ?source=&target= (all when empty).
// DELETE /api/v1/translation-memory
func (h *Handlers) ClearMemory(c echo.Context) error {
	if err := h.manager.Memory().Clear(c.Request().Context(),
		c.QueryParam("source"), c.QueryParam("target")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
