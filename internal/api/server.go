package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/integrations"
	"github.com/sublarr/sublarr/internal/jobs"
	"github.com/sublarr/sublarr/internal/library"
	"github.com/sublarr/sublarr/internal/profiles"
	"github.com/sublarr/sublarr/internal/providers"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/translator"
	"github.com/sublarr/sublarr/internal/wanted"
	"github.com/sublarr/sublarr/internal/websocket"
)

// Deps carries the handler groups the server mounts. Construction happens
// in main; the server only wires routes and middleware.
type Deps struct {
	Library      *library.Handlers
	Wanted       *wanted.Handlers
	Jobs         *jobs.Handlers
	Providers    *providers.Handlers
	Translator   *translator.Handlers
	History      *history.Handlers
	Settings     *settings.Handlers
	Profiles     *profiles.Handlers
	Integrations *integrations.Handlers
	Events       *events.Handlers
	Scheduler    *scheduler.Handlers
	Logs         *LogsHandlers
	System       *SystemHandlers
}

// Server is the HTTP front of the application.
type Server struct {
	echo   *echo.Echo
	hub    *websocket.Hub
	cfg    *config.Config
	logger zerolog.Logger
}

// NewServer builds the echo server with middleware and all routes mounted.
func NewServer(cfg *config.Config, hub *websocket.Hub, deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		hub:    hub,
		cfg:    cfg,
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes(deps)
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, headerAPIKey},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

func (s *Server) setupRoutes(deps Deps) {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Inbound *arr webhooks authenticate by obscurity of the instance URL
	// plus the sending application's own secret, not by our API key.
	if deps.Integrations != nil {
		deps.Integrations.RegisterWebhookRoutes(s.echo.Group("/api/v1/webhooks/inbound"))
	}

	auth := apiKeyAuth(s.cfg.Auth.APIKey)
	s.echo.GET("/ws", s.hub.HandleWebSocket, auth)

	api := s.echo.Group("/api/v1", auth)

	if deps.System != nil {
		api.GET("/system/status", deps.System.Status)
	}
	if deps.Scheduler != nil {
		deps.Scheduler.RegisterRoutes(api.Group("/system/tasks"))
	}
	if deps.Logs != nil {
		deps.Logs.RegisterRoutes(api.Group("/system/logs"))
	}
	if deps.Library != nil {
		deps.Library.RegisterRoutes(api.Group("/library"))
	}
	if deps.Wanted != nil {
		deps.Wanted.RegisterRoutes(api.Group("/wanted"))
	}
	if deps.Jobs != nil {
		deps.Jobs.RegisterRoutes(api.Group("/jobs"))
		deps.Jobs.RegisterTranslateRoutes(api.Group("/translate"))
	}
	if deps.Providers != nil {
		deps.Providers.RegisterRoutes(api.Group("/providers"))
		deps.Providers.RegisterBlacklistRoutes(api.Group("/blacklist"))
		deps.Providers.RegisterScoringRoutes(api.Group("/scoring"))
	}
	if deps.Translator != nil {
		deps.Translator.RegisterBackendRoutes(api.Group("/backends"))
		deps.Translator.RegisterGlossaryRoutes(api.Group("/glossary"))
		deps.Translator.RegisterPresetRoutes(api.Group("/prompt-presets"))
		deps.Translator.RegisterMemoryRoutes(api.Group("/translation-memory"))
	}
	if deps.History != nil {
		deps.History.RegisterRoutes(api.Group("/history"))
	}
	if deps.Settings != nil {
		deps.Settings.RegisterRoutes(api.Group("/config"))
	}
	if deps.Profiles != nil {
		deps.Profiles.RegisterRoutes(api.Group("/profiles"))
	}
	if deps.Integrations != nil {
		deps.Integrations.RegisterRoutes(api.Group("/integrations"))
	}
	if deps.Events != nil {
		deps.Events.RegisterCatalogRoutes(api.Group("/events"))
		deps.Events.RegisterHookRoutes(api.Group("/hooks"))
		deps.Events.RegisterWebhookRoutes(api.Group("/webhooks"))
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("Starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
