package scheduler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers exposes the task registry over HTTP.
type Handlers struct {
	scheduler *Scheduler
}

// NewHandlers creates the scheduler handlers.
func NewHandlers(s *Scheduler) *Handlers {
	return &Handlers{scheduler: s}
}

// RegisterRoutes wires task endpoints onto the given group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/run", h.run)
}

func (h *Handlers) list(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"tasks": h.scheduler.ListTasks()})
}

func (h *Handlers) get(c echo.Context) error {
	info, err := h.scheduler.GetTask(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handlers) run(c echo.Context) error {
	if err := h.scheduler.RunNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}
