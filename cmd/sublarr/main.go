package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sublarr/sublarr/internal/api"
	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/database"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/integrations"
	"github.com/sublarr/sublarr/internal/jobs"
	"github.com/sublarr/sublarr/internal/library"
	"github.com/sublarr/sublarr/internal/logger"
	"github.com/sublarr/sublarr/internal/media"
	"github.com/sublarr/sublarr/internal/pipeline"
	"github.com/sublarr/sublarr/internal/profiles"
	"github.com/sublarr/sublarr/internal/providers"
	"github.com/sublarr/sublarr/internal/providers/jimaku"
	"github.com/sublarr/sublarr/internal/providers/kitsunekko"
	"github.com/sublarr/sublarr/internal/providers/opensubtitles"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/scheduler/tasks"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/startup"
	"github.com/sublarr/sublarr/internal/translator"
	"github.com/sublarr/sublarr/internal/translator/deepl"
	"github.com/sublarr/sublarr/internal/translator/openai"
	"github.com/sublarr/sublarr/internal/wanted"
	"github.com/sublarr/sublarr/internal/websocket"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		EnableStreaming: true,
		BufferSize:      1000,
	})
	defer log.Close()

	log.Info().
		Str("version", version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting Sublarr")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hub := websocket.NewHub()
	go hub.Run()
	log.SetBroadcastHub(hub)

	bus := events.NewBus(hub, log.Logger, 0)
	defer bus.Close()

	dispatcher := events.NewDispatcher(db.Conn(), log.Logger)
	dispatcher.SetBus(bus)
	bus.Subscribe(dispatcher)

	ctx := context.Background()

	settingsSvc := settings.NewService(db.Conn(), log.Logger)
	if err := settingsSvc.MigrateLegacyInstances(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to migrate legacy integration settings")
	}
	rt := &runtimeSettings{svc: settingsSvc}

	// Subtitle providers. Priority orders tie-breaks; Jimaku wins for anime.
	registry := providers.NewRegistry()
	registry.Register(jimaku.New(jimaku.Config{
		APIKey: settingsSvc.Get(ctx, settings.KeyJimakuAPIKey),
	}, log.Logger), 0)
	registry.Register(kitsunekko.New(kitsunekko.Config{}, log.Logger), 1)
	registry.Register(opensubtitles.New(opensubtitles.Config{
		APIKey: settingsSvc.Get(ctx, settings.KeyOpenSubtitlesAPIKey),
	}, log.Logger), 2)

	breakerCfg := providers.BreakerConfig{
		FailureThreshold: settingsSvc.GetInt(ctx, settings.KeyBreakerThreshold),
		Cooldown:         time.Duration(settingsSvc.GetInt(ctx, settings.KeyBreakerCooldown)) * time.Second,
	}

	scoring := providers.NewScoringStore(db.Conn(), rt, log.Logger)
	settingsSvc.Subscribe("score_", scoring.Invalidate)
	settingsSvc.Subscribe("mt_", scoring.Invalidate)

	provManager := providers.NewManager(
		registry,
		providers.NewCache(db.Conn()),
		providers.NewBlacklist(db.Conn()),
		scoring,
		providers.NewBreakerSet(breakerCfg),
		rt,
		log.Logger,
	)

	// Translation backends. Registration order is the default chain order;
	// the backend_chain setting overrides it.
	backends := translator.NewRegistry()
	if key, base := settingsSvc.Get(ctx, settings.KeyOpenAIAPIKey), settingsSvc.Get(ctx, settings.KeyOpenAIBaseURL); key != "" || base != "" {
		backends.Register(openai.New(openai.Config{
			BaseURL: base,
			APIKey:  key,
			Model:   settingsSvc.Get(ctx, settings.KeyOpenAIModel),
		}, log.Logger))
	}
	if key := settingsSvc.Get(ctx, settings.KeyDeepLAPIKey); key != "" {
		backends.Register(deepl.New(deepl.Config{APIKey: key}, log.Logger))
	}
	if len(backends.Names()) == 0 {
		log.Warn().Msg("no translation backend configured, translation requests will fail")
	}

	chain := translator.NewChain(backends, providers.NewBreakerSet(breakerCfg), log.Logger)
	memory := translator.NewMemory(db.Conn())
	glossary := translator.NewGlossary(db.Conn())
	presets := translator.NewPresets(db.Conn())
	transMgr := translator.NewManager(chain, memory, glossary, rt, log.Logger)

	prober := media.NewProber(nil, "", "", log.Logger)

	libStore := library.NewStore(db.Conn(), log.Logger)
	profilesSvc := profiles.NewService(db.Conn(), log.Logger)
	historySvc := history.NewService(db.Conn(), log.Logger)
	wantedStore := wanted.NewStore(db.Conn())

	scanner := wanted.NewScanner(wantedStore, libStore, profilesSvc, prober, settingsSvc, bus, log.Logger)
	scanner.ProbeConcurrency = int64(cfg.Workers.MaxScanProbes)

	instances := integrations.NewInstanceStore(db.Conn())
	syncer := integrations.NewSyncer(instances, libStore, log.Logger)
	mediaServers := integrations.NewMediaServerManager(instances, log.Logger)

	engine := pipeline.NewEngine(wantedStore, libStore, profilesSvc, provManager, transMgr,
		prober, settingsSvc, historySvc, bus, log.Logger)
	engine.Refresher = mediaServers
	if binary := settingsSvc.Get(ctx, settings.KeyWhisperBinary); binary != "" {
		engine.Transcriber = media.NewCommandTranscriber(nil, binary, nil, 0)
	}

	jobStore := jobs.NewStore(db.Conn())
	runner := jobs.NewRunner(jobStore, bus, log.Logger)
	runner.SetConcurrency(jobs.KindTranslate, int64(cfg.Workers.MaxTranslate))
	runner.SetConcurrency(jobs.KindBatchTranslate, int64(cfg.Workers.MaxTranslate))
	runner.SetConcurrency(jobs.KindWantedSearch, int64(cfg.Workers.MaxSearch))
	runner.SetConcurrency(jobs.KindWantedExtract, int64(cfg.Workers.MaxSearch))
	runner.SetConcurrency(jobs.KindTranscribe, int64(cfg.Workers.MaxWhisper))

	processor := jobs.NewProcessor(engine, runner, wantedStore, settingsSvc, bus, log.Logger)
	scanner.OnItemsCreated = processor.HandleScanCreated

	intHandlers := integrations.NewHandlers(instances, syncer, mediaServers, log.Logger)
	intHandlers.OnImport = func() {
		go func() {
			if _, err := scanner.Scan(context.Background(), false); err != nil {
				log.Warn().Err(err).Msg("post-import scan failed")
			}
		}()
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.RegisterWantedScanTask(sched, scanner, settingsSvc); err != nil {
		log.Fatal().Err(err).Msg("failed to register wanted scan task")
	}
	if err := tasks.RegisterWantedProcessTask(sched, engine, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to register wanted process task")
	}
	if err := tasks.RegisterUpgradeScanTask(sched, wantedStore, engine, settingsSvc, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to register upgrade scan task")
	}
	if err := tasks.RegisterMaintenanceTask(sched, tasks.MaintenanceDeps{
		Providers: provManager,
		History:   historySvc,
		Jobs:      jobStore,
		Hooks:     dispatcher.Store(),
		Settings:  settingsSvc,
	}, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to register maintenance task")
	}

	var logFile string
	if cfg.Logging.Path != "" {
		logFile = filepath.Join(cfg.Logging.Path, "sublarr.log")
	}

	server := api.NewServer(cfg, hub, api.Deps{
		Library:    library.NewHandlers(libStore),
		Wanted:     wanted.NewHandlers(wantedStore, scanner, processor, log.Logger),
		Jobs:       jobs.NewHandlers(jobStore, runner, transMgr, bus, log.Logger),
		Providers:  providers.NewHandlers(provManager),
		Translator: translator.NewHandlers(transMgr, presets),
		History:    history.NewHandlers(historySvc),
		Settings: settings.NewHandlers(settingsSvc, func(key string) {
			bus.Emit(events.EventConfigUpdated, map[string]any{"key": key})
		}),
		Profiles:     profiles.NewHandlers(profilesSvc),
		Integrations: intHandlers,
		Events:       events.NewHandlers(dispatcher),
		Scheduler:    scheduler.NewHandlers(sched),
		Logs:         api.NewLogsHandlers(log.Broadcaster(), logFile),
		System:       api.NewSystemHandlers(libStore, wantedStore, hub, version),
	}, log.Logger)

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	// Initial *arr sync in the background; the scheduler and inbound
	// webhooks keep the library current afterwards.
	go func() {
		err := startup.WithRetry(ctx, "integration sync", startup.DefaultPolicy(), log.Logger, func(ctx context.Context) error {
			_, err := syncer.SyncAll(ctx)
			return err
		})
		if err != nil {
			log.Warn().Err(err).Msg("initial integration sync failed")
		}
	}()

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	runner.Wait()

	log.Info().Msg("stopped")
}
