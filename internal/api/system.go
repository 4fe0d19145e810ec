package api

import (
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/library"
	"github.com/sublarr/sublarr/internal/logger"
	"github.com/sublarr/sublarr/internal/wanted"
	"github.com/sublarr/sublarr/internal/websocket"
)

// SystemHandlers reports runtime status.
type SystemHandlers struct {
	library *library.Store
	wanted  *wanted.Store
	hub     *websocket.Hub
	version string
	started time.Time
}

// NewSystemHandlers creates the system status handler.
func NewSystemHandlers(lib *library.Store, wantedStore *wanted.Store, hub *websocket.Hub, version string) *SystemHandlers {
	return &SystemHandlers{
		library: lib,
		wanted:  wantedStore,
		hub:     hub,
		version: version,
		started: time.Now(),
	}
}

// Status returns version, uptime and inventory counts.
func (h *SystemHandlers) Status(c echo.Context) error {
	ctx := c.Request().Context()

	out := map[string]any{
		"version":       h.version,
		"startedAt":     h.started.UTC().Format(time.RFC3339),
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
	}
	if h.library != nil {
		if counts, err := h.library.Counts(ctx); err == nil {
			out["library"] = counts
		}
	}
	if h.wanted != nil {
		if counts, err := h.wanted.Summary(ctx); err == nil {
			out["wanted"] = counts
		}
	}
	if h.hub != nil {
		out["wsClients"] = h.hub.ClientCount()
	}
	return c.JSON(http.StatusOK, out)
}

// LogsHandlers serves the in-memory log tail and the current log file.
type LogsHandlers struct {
	broadcaster *logger.LogBroadcaster
	filePath    string
}

// NewLogsHandlers creates the log handlers. filePath may be empty when file
// logging is disabled.
func NewLogsHandlers(broadcaster *logger.LogBroadcaster, filePath string) *LogsHandlers {
	return &LogsHandlers{broadcaster: broadcaster, filePath: filePath}
}

// RegisterRoutes wires log endpoints onto the given group.
func (h *LogsHandlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.recent)
	g.GET("/download", h.download)
}

func (h *LogsHandlers) recent(c echo.Context) error {
	var entries []logger.LogEntry
	if h.broadcaster != nil {
		entries = h.broadcaster.GetRecentLogs()
	}
	if entries == nil {
		entries = []logger.LogEntry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": entries})
}

func (h *LogsHandlers) download(c echo.Context) error {
	if h.filePath == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no log file configured")
	}
	if _, err := os.Stat(h.filePath); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "log file not found")
	}
	return c.Attachment(h.filePath, "sublarr.log")
}
