package wanted

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Processor runs the acquisition pipeline for wanted items. Implemented by
// the pipeline engine; batch variants return the id of the job driving them.
type Processor interface {
	ProcessItem(ctx context.Context, id int64) error
	ExtractItem(ctx context.Context, id int64) (string, error)
	ProcessBatch(ids []int64) (string, error)
	ExtractBatch(ids []int64) (string, error)
}

// Handlers exposes the wanted list over HTTP.
type Handlers struct {
	store     *Store
	scanner   *Scanner
	processor Processor
	logger    zerolog.Logger
}

// NewHandlers creates the wanted handlers.
func NewHandlers(store *Store, scanner *Scanner, processor Processor, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:     store,
		scanner:   scanner,
		processor: processor,
		logger:    logger.With().Str("component", "wanted-api").Logger(),
	}
}

// RegisterRoutes wires wanted endpoints onto the given group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/summary", h.summary)
	g.POST("/scan", h.scan)
	g.POST("/:id/search", h.search)
	g.POST("/:id/extract", h.extract)
	g.POST("/:id/retry", h.retry)
	g.DELETE("/:id", h.delete)
	g.POST("/batch/search", h.batchSearch)
	g.POST("/batch/extract", h.batchExtract)
}

func (h *Handlers) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	items, err := h.store.List(c.Request().Context(), Filter{
		Status:       c.QueryParam("status"),
		MediaType:    c.QueryParam("mediaType"),
		SubtitleType: c.QueryParam("subtitleType"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []Item{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

func (h *Handlers) summary(c echo.Context) error {
	counts, err := h.store.Summary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, map[string]any{"total": total, "byStatus": counts})
}

func (h *Handlers) scan(c echo.Context) error {
	full := c.QueryParam("full") == "true"
	go func() {
		if _, err := h.scanner.Scan(context.Background(), full); err != nil {
			h.logger.Error().Err(err).Msg("API-triggered scan failed")
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "scanning"})
}

func (h *Handlers) search(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	if err := h.processor.ProcessItem(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	item, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handlers) extract(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	path, err := h.processor.ExtractItem(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"path": path})
}

func (h *Handlers) retry(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	if err := h.store.Retry(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type batchRequest struct {
	ItemIDs   []int64 `json:"itemIds"`
	SeriesIDs []int64 `json:"seriesIds"`
}

func (h *Handlers) resolveBatch(c echo.Context) ([]int64, error) {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ids := req.ItemIDs
	if len(req.SeriesIDs) > 0 {
		items, err := h.store.BySeries(c.Request().Context(), req.SeriesIDs)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		for _, it := range items {
			ids = append(ids, it.ID)
		}
	}
	if len(ids) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "no items matched the request")
	}
	return ids, nil
}

func (h *Handlers) batchSearch(c echo.Context) error {
	ids, err := h.resolveBatch(c)
	if err != nil {
		return err
	}
	jobID, err := h.processor.ProcessBatch(ids)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{"jobId": jobID, "items": len(ids)})
}

func (h *Handlers) batchExtract(c echo.Context) error {
	ids, err := h.resolveBatch(c)
	if err != nil {
		return err
	}
	jobID, err := h.processor.ExtractBatch(ids)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{"jobId": jobID, "items": len(ids)})
}
