package jobs

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/translator"
)

// Handlers exposes job listings and the manual translation endpoints.
type Handlers struct {
	store      *Store
	runner     *Runner
	translator *translator.Manager
	bus        *events.Bus
	logger     zerolog.Logger
}

// NewHandlers creates the job handlers.
func NewHandlers(store *Store, runner *Runner, tr *translator.Manager, bus *events.Bus, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:      store,
		runner:     runner,
		translator: tr,
		bus:        bus,
		logger:     logger.With().Str("component", "jobs-api").Logger(),
	}
}

// RegisterRoutes wires job endpoints onto the given group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/cancel", h.cancel)
}

// RegisterTranslateRoutes wires the manual translation endpoints.
func (h *Handlers) RegisterTranslateRoutes(g *echo.Group) {
	g.POST("", h.translate)
	g.POST("/batch", h.translateBatch)
}

func (h *Handlers) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	jobList, err := h.store.List(c.Request().Context(), Filter{
		Kind:   c.QueryParam("kind"),
		Status: c.QueryParam("status"),
		Limit:  limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if jobList == nil {
		jobList = []Job{}
	}
	return c.JSON(http.StatusOK, map[string]any{"jobs": jobList})
}

func (h *Handlers) get(c echo.Context) error {
	job, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handlers) cancel(c echo.Context) error {
	if err := h.runner.Cancel(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
}

type translateRequest struct {
	InputPath  string `json:"inputPath"`
	OutputPath string `json:"outputPath"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
	Scope      string `json:"scope"`
	Async      bool   `json:"async"`
}

func (r *translateRequest) validate() error {
	if r.InputPath == "" || r.TargetLang == "" {
		return fmt.Errorf("inputPath and targetLang are required")
	}
	if r.OutputPath == "" {
		r.OutputPath = subtitles.OutputPath(r.InputPath, r.TargetLang, subtitles.TypeFull,
			subtitles.FormatFromPath(r.InputPath))
	}
	return nil
}

func (h *Handlers) translate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if !req.Async {
		result, err := h.translator.TranslateFile(c.Request().Context(), h.buildRequest(req, nil))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return c.JSON(http.StatusOK, result)
	}

	jobID, err := h.runner.Submit(KindTranslate, req.InputPath, req, func(ctx context.Context, job *JobContext) (any, error) {
		progress := func(done, total int) {
			if total > 0 {
				job.Progress("translating", float64(done)/float64(total),
					fmt.Sprintf("%d/%d lines", done, total))
			}
		}
		return h.translator.TranslateFile(ctx, h.buildRequest(req, progress))
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"jobId": jobID})
}

type translateBatchRequest struct {
	Items []translateRequest `json:"items"`
}

func (h *Handlers) translateBatch(c echo.Context) error {
	var req translateBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no items to translate")
	}
	for i := range req.Items {
		if err := req.Items[i].validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	items := req.Items

	jobID, err := h.runner.Submit(KindBatchTranslate, "", req, func(ctx context.Context, job *JobContext) (any, error) {
		stats := batchStats{Total: len(items)}
		for i, item := range items {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if _, err := h.translator.TranslateFile(ctx, h.buildRequest(item, nil)); err != nil {
				stats.Failed++
				h.logger.Warn().Err(err).Str("input", item.InputPath).Msg("Batch translation item failed")
			}
			stats.Processed++

			job.Progress("translating", float64(i+1)/float64(len(items)), item.InputPath)
			h.emit(events.EventBatchProgress, map[string]any{
				"job_id":    job.ID,
				"completed": stats.Processed,
				"total":     stats.Total,
				"current":   item.InputPath,
			})
		}
		return stats, nil
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{"jobId": jobID, "items": len(items)})
}

func (h *Handlers) buildRequest(req translateRequest, progress func(done, total int)) translator.Request {
	return translator.Request{
		InputPath:  req.InputPath,
		OutputPath: req.OutputPath,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Scope:      req.Scope,
		Progress:   progress,
	}
}

func (h *Handlers) emit(name string, payload map[string]any) {
	if h.bus != nil {
		h.bus.Emit(name, payload)
	}
}
