package history

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers exposes history over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates the history handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes wires history endpoints onto the given group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/media/:mediaType/:mediaId", h.forMedia)
	g.DELETE("", h.clear)
}

func (h *Handlers) list(c echo.Context) error {
	opts := ListOptions{
		EventType: c.QueryParam("eventType"),
		MediaType: c.QueryParam("mediaType"),
		Language:  c.QueryParam("language"),
	}
	opts.Page, _ = strconv.Atoi(c.QueryParam("page"))
	opts.PageSize, _ = strconv.Atoi(c.QueryParam("pageSize"))
	if raw := c.QueryParam("mediaId"); raw != "" {
		opts.MediaID, _ = strconv.ParseInt(raw, 10, 64)
	}

	resp, err := h.service.List(c.Request().Context(), opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) forMedia(c echo.Context) error {
	mediaID, err := strconv.ParseInt(c.Param("mediaId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid media id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	items, err := h.service.ForMedia(c.Request().Context(), c.Param("mediaType"), mediaID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) clear(c echo.Context) error {
	if err := h.service.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
