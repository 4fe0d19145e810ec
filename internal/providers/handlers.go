package providers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for provider operations.
type Handlers struct {
	manager *Manager
}

// NewHandlers creates provider handlers.
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes registers provider routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/:name/test", h.Test)
	g.PUT("/:name/enabled", h.SetEnabled)
	g.GET("/stats", h.GetStats)
	g.POST("/cache/clear", h.ClearCache)
}

// RegisterBlacklistRoutes registers blacklist routes.
func (h *Handlers) RegisterBlacklistRoutes(g *echo.Group) {
	g.GET("", h.ListBlacklist)
	g.POST("", h.AddBlacklist)
	g.DELETE("/:id", h.RemoveBlacklist)
}

// RegisterScoringRoutes registers scoring configuration routes.
func (h *Handlers) RegisterScoringRoutes(g *echo.Group) {
	g.GET("/weights", h.GetWeights)
	g.PUT("/weights", h.SetWeights)
	g.PUT("/modifiers", h.SetModifiers)
}

type providerInfo struct {
	Name      string        `json:"name"`
	Enabled   bool          `json:"enabled"`
	Breaker   BreakerState  `json:"breaker"`
	Languages []string      `json:"languages,omitempty"`
	Fields    []ConfigField `json:"configFields,omitempty"`
}

// List returns every registered provider with its state.
// GET /api/v1/providers
func (h *Handlers) List(c echo.Context) error {
	states := h.manager.BreakerStates()
	registry := h.manager.Registry()

	var out []providerInfo
	for _, p := range registry.All() {
		state, ok := states[p.Name()]
		if !ok {
			state = BreakerClosed
		}
		out = append(out, providerInfo{
			Name:      p.Name(),
			Enabled:   registry.IsEnabled(p.Name()),
			Breaker:   state,
			Languages: p.Languages(),
			Fields:    p.ConfigFields(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Test runs a provider health check.
// POST /api/v1/providers/:name/test
func (h *Handlers) Test(c echo.Context) error {
	healthy, msg, err := h.manager.TestProvider(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"healthy": healthy, "message": msg})
}

// SetEnabled flips a provider's enabled state.
// PUT /api/v1/providers/:name/enabled
func (h *Handlers) SetEnabled(c echo.Context) error {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	name := c.Param("name")
	if _, err := h.manager.Registry().Get(name); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	h.manager.Registry().SetEnabled(name, body.Enabled)
	return c.JSON(http.StatusOK, map[string]any{"name": name, "enabled": body.Enabled})
}

// GetStats returns per-provider search counters.
// GET /api/v1/providers/stats
func (h *Handlers) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats().Snapshot())
}

// ClearCache drops the provider result cache.
// POST /api/v1/providers/cache/clear
func (h *Handlers) ClearCache(c echo.Context) error {
	if err := h.manager.Cache().Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ListBlacklist returns all blacklist entries.
// GET /api/v1/blacklist
func (h *Handlers) ListBlacklist(c echo.Context) error {
	entries, err := h.manager.Blacklist().List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []BlacklistEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// AddBlacklist records a rejected subtitle.
// POST /api/v1/blacklist
func (h *Handlers) AddBlacklist(c echo.Context) error {
	var body struct {
		Provider    string `json:"provider"`
		ContentHash string `json:"contentHash"`
		Reason      string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil || body.Provider == "" || body.ContentHash == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider and contentHash are required")
	}
	if err := h.manager.Blacklist().Add(c.Request().Context(), body.Provider, body.ContentHash, body.Reason); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

// RemoveBlacklist deletes a blacklist entry.
// DELETE /api/v1/blacklist/:id
func (h *Handlers) RemoveBlacklist(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.manager.Blacklist().Remove(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// GetWeights returns the active scoring snapshot.
// GET /api/v1/scoring/weights
func (h *Handlers) GetWeights(c echo.Context) error {
	snap, err := h.manager.Scoring().Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"episode":     snap.Episode,
		"movie":       snap.Movie,
		"modifiers":   snap.Modifiers,
		"formatBonus": snap.FormatBonus,
	})
}

// SetWeights updates scoring weights.
// PUT /api/v1/scoring/weights
func (h *Handlers) SetWeights(c echo.Context) error {
	var body struct {
		Episode map[string]int `json:"episode"`
		Movie   map[string]int `json:"movie"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	ctx := c.Request().Context()
	for key, value := range body.Episode {
		if err := h.manager.Scoring().SetWeight(ctx, "episode", key, value); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	for key, value := range body.Movie {
		if err := h.manager.Scoring().SetWeight(ctx, "movie", key, value); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// SetModifiers updates per-provider score modifiers.
// PUT /api/v1/scoring/modifiers
func (h *Handlers) SetModifiers(c echo.Context) error {
	var body map[string]int
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	ctx := c.Request().Context()
	for provider, modifier := range body {
		if err := h.manager.Scoring().SetModifier(ctx, provider, modifier); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}
