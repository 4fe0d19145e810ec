package library

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers exposes the library inventory over HTTP.
type Handlers struct {
	store *Store
}

// NewHandlers creates the library handlers.
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes wires library endpoints onto the given group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/series", h.listSeries)
	g.GET("/series/:id", h.getSeries)
	g.GET("/movies", h.listMovies)
	g.GET("/movies/:id", h.getMovie)
}

func (h *Handlers) listSeries(c echo.Context) error {
	out, err := h.store.ListSeries(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out == nil {
		out = []Series{}
	}
	return c.JSON(http.StatusOK, out)
}

type seriesDetail struct {
	Series
	Episodes []Episode `json:"episodes"`
}

func (h *Handlers) getSeries(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid series id")
	}
	ctx := c.Request().Context()

	sr, err := h.store.GetSeries(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	episodes, err := h.store.EpisodesForSeries(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if episodes == nil {
		episodes = []Episode{}
	}
	return c.JSON(http.StatusOK, seriesDetail{Series: *sr, Episodes: episodes})
}

func (h *Handlers) listMovies(c echo.Context) error {
	out, err := h.store.ListMovies(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out == nil {
		out = []Movie{}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) getMovie(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid movie id")
	}
	m, err := h.store.GetMovie(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}
