package integrations

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handlers exposes instance management and inbound arr webhooks.
type Handlers struct {
	store       *InstanceStore
	syncer      *Syncer
	mediaserver *MediaServerManager
	logger      zerolog.Logger

	// OnImport runs after a webhook-triggered sync, typically kicking a
	// wanted scan for the new file.
	OnImport func()
}

// NewHandlers creates the integration handlers.
func NewHandlers(store *InstanceStore, syncer *Syncer, mediaserver *MediaServerManager, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:       store,
		syncer:      syncer,
		mediaserver: mediaserver,
		logger:      logger.With().Str("component", "integrations-api").Logger(),
	}
}

// RegisterRoutes wires instance CRUD and sync endpoints.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/test", h.test)
	g.POST("/:id/sync", h.sync)
	g.POST("/sync", h.syncAll)
}

// RegisterWebhookRoutes wires the inbound arr webhooks. These are exempt
// from API-key auth so the arrs can call them with no extra setup.
func (h *Handlers) RegisterWebhookRoutes(g *echo.Group) {
	g.POST("/sonarr", h.inboundWebhook(KindSonarr))
	g.POST("/radarr", h.inboundWebhook(KindRadarr))
}

func (h *Handlers) list(c echo.Context) error {
	out, err := h.store.List(c.Request().Context(), c.QueryParam("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if out == nil {
		out = []Instance{}
	}
	// API keys stay server-side.
	for i := range out {
		if out[i].APIKey != "" {
			out[i].APIKey = "********"
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) create(c echo.Context) error {
	var in Instance
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	created, err := h.store.Create(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handlers) update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid instance id")
	}
	var in Instance
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.ID = id
	if err := h.store.Update(c.Request().Context(), in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handlers) delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid instance id")
	}
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) test(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid instance id")
	}
	ctx := c.Request().Context()

	inst, err := h.store.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	switch inst.Kind {
	case KindSonarr, KindRadarr:
		client, err := NewArrClient(*inst, h.logger)
		if err == nil {
			err = client.TestConnection(ctx)
		}
		if err != nil {
			return c.JSON(http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		}
	default:
		if err := h.mediaserver.TestInstance(ctx, id); err != nil {
			return c.JSON(http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) sync(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid instance id")
	}
	result, err := h.syncer.SyncInstance(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handlers) syncAll(c echo.Context) error {
	result, err := h.syncer.SyncAll(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// arrWebhookPayload is the common shape of Sonarr/Radarr webhook posts.
// Only the fields Sublarr acts on are decoded.
type arrWebhookPayload struct {
	EventType string `json:"eventType"`
	Series    *struct {
		ID int64 `json:"id"`
	} `json:"series,omitempty"`
	Movie *struct {
		ID int64 `json:"id"`
	} `json:"movie,omitempty"`
}

func (h *Handlers) inboundWebhook(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload arrWebhookPayload
		if err := c.Bind(&payload); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook payload")
		}

		switch payload.EventType {
		case "Download", "Rename", "MovieFileDelete", "EpisodeFileDelete", "SeriesDelete", "MovieDelete":
		case "Test":
			h.logger.Info().Str("kind", kind).Msg("Webhook test received")
			return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
		default:
			// Health, Grab etc. carry no inventory change.
			return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		}

		h.logger.Info().
			Str("kind", kind).
			Str("event", payload.EventType).
			Msg("Inbound webhook accepted")

		// Respond immediately; the arrs time webhook calls out aggressively.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			instances, err := h.store.ListEnabled(ctx, kind)
			if err != nil {
				h.logger.Error().Err(err).Msg("Webhook sync failed to list instances")
				return
			}
			for _, inst := range instances {
				if _, err := h.syncer.SyncInstance(ctx, inst.ID); err != nil {
					h.logger.Error().Err(err).Str("instance", inst.Name).Msg("Webhook-triggered sync failed")
				}
			}
			if h.OnImport != nil {
				h.OnImport()
			}
		}()

		return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}
