package events

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers exposes the event catalog and hook/webhook subscriptions.
type Handlers struct {
	dispatcher *Dispatcher
}

// NewHandlers creates the event handlers.
func NewHandlers(dispatcher *Dispatcher) *Handlers {
	return &Handlers{dispatcher: dispatcher}
}

// RegisterCatalogRoutes wires the event catalog listing.
func (h *Handlers) RegisterCatalogRoutes(g *echo.Group) {
	g.GET("", h.listCatalog)
}

// RegisterHookRoutes wires shell-hook subscription endpoints.
func (h *Handlers) RegisterHookRoutes(g *echo.Group) {
	g.GET("", h.listHooks)
	g.POST("", h.createHook)
	g.PUT("/:id", h.updateHook)
	g.DELETE("/:id", h.deleteHook)
	g.POST("/:id/test", h.testHook)
	g.GET("/:id/logs", h.hookLogs)
}

// RegisterWebhookRoutes wires outbound webhook subscription endpoints.
func (h *Handlers) RegisterWebhookRoutes(g *echo.Group) {
	g.GET("", h.listWebhooks)
	g.POST("", h.createWebhook)
	g.PUT("/:id", h.updateWebhook)
	g.DELETE("/:id", h.deleteWebhook)
	g.POST("/:id/test", h.testWebhook)
}

func (h *Handlers) listCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"events": Catalog()})
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrHookNotFound) || errors.Is(err, ErrWebhookNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if errors.Is(err, ErrUnknownEvent) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handlers) listHooks(c echo.Context) error {
	hooks, err := h.dispatcher.Store().ListHooks(c.Request().Context())
	if err != nil {
		return mapNotFound(err)
	}
	if hooks == nil {
		hooks = []*Hook{}
	}
	return c.JSON(http.StatusOK, map[string]any{"hooks": hooks})
}

func (h *Handlers) createHook(c echo.Context) error {
	var in CreateHookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, known := Lookup(in.EventName); !known {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown event name: "+in.EventName)
	}
	if in.ScriptPath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "script_path is required")
	}
	hook, err := h.dispatcher.Store().CreateHook(c.Request().Context(), in)
	if err != nil {
		return mapNotFound(err)
	}
	return c.JSON(http.StatusCreated, hook)
}

func (h *Handlers) updateHook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in UpdateHookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.EventName != nil {
		if _, known := Lookup(*in.EventName); !known {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown event name: "+*in.EventName)
		}
	}
	hook, err := h.dispatcher.Store().UpdateHook(c.Request().Context(), id, in)
	if err != nil {
		return mapNotFound(err)
	}
	return c.JSON(http.StatusOK, hook)
}

func (h *Handlers) deleteHook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.dispatcher.Store().DeleteHook(c.Request().Context(), id); err != nil {
		return mapNotFound(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) testHook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	result, err := h.dispatcher.TestHook(c.Request().Context(), id)
	if err != nil {
		return mapNotFound(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handlers) hookLogs(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	logs, err := h.dispatcher.Store().ListHookLogs(c.Request().Context(), id, limit)
	if err != nil {
		return mapNotFound(err)
	}
	if logs == nil {
		logs = []*HookLog{}
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": logs})
}

func (h *Handlers) listWebhooks(c echo.Context) error {
	webhooks, err := h.dispatcher.Store().ListWebhooks(c.Request().Context())
	if err != nil {
		return mapNotFound(err)
	}
	if webhooks == nil {
		webhooks = []*Webhook{}
	}
	return c.JSON(http.StatusOK, map[string]any{"webhooks": webhooks})
}

func (h *Handlers) createWebhook(c echo.Context) error {
	var in CreateWebhookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, known := Lookup(in.EventName); !known {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown event name: "+in.EventName)
	}
	if in.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	webhook, err := h.dispatcher.Store().CreateWebhook(c.Request().Context(), in)
	if err != nil {
		return mapNotFound(err)
	}
	return c.JSON(http.StatusCreated, webhook)
}

func (h *Handlers) updateWebhook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in UpdateWebhookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.EventName != nil {
		if _, known := Lookup(*in.EventName); !known {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown event name: "+*in.EventName)
		}
	}
	webhook, err := h.dispatcher.Store().UpdateWebhook(c.Request().Context(), id, in)
	if err != nil {
		return mapNotFound(err)
	}
	return c.JSON(http.StatusOK, webhook)
}

func (h *Handlers) deleteWebhook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.dispatcher.Store().DeleteWebhook(c.Request().Context(), id); err != nil {
		return mapNotFound(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) testWebhook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	result, err := h.dispatcher.TestWebhook(c.Request().Context(), id)
	if err != nil {
		return mapNotFound(err)
	}
	return c.JSON(http.StatusOK, result)
}
