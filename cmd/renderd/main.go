package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/heimdex/heimdex-render/internal/api"
	"github.com/heimdex/heimdex-render/internal/catalog"
	"github.com/heimdex/heimdex-render/internal/config"
	"github.com/heimdex/heimdex-render/internal/db"
	"github.com/heimdex/heimdex-render/internal/effects"
	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/metrics"
	"github.com/heimdex/heimdex-render/internal/playback"
	"github.com/heimdex/heimdex-render/internal/preview"
	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/timeline"
	"github.com/heimdex/heimdex-render/internal/ui"
	"github.com/heimdex/heimdex-render/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.MediaDir(), cfg.ProcessedDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex render", "version", config.Version, "commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ffmpeg, err := engine.NewFFmpeg(engine.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Logger:      logging.WithComponent(logger, "engine"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	doctor := engine.NewCachedDoctor(ffmpeg, logger)
	go func() {
		probeCtx, probeCancel := context.WithTimeout(ctx, time.Minute)
		defer probeCancel()
		caps, err := doctor.Refresh(probeCtx)
		if err != nil {
			logger.Warn("initial engine probe failed", "error", err)
			return
		}
		if !caps.Ready() {
			logger.Warn("engine is missing filters; some features will fail", "missing", caps.MissingFilters)
		}
	}()

	repo := catalog.NewRepository(database.Conn())
	library := catalog.NewService(repo, cfg.MediaDir(), ffmpeg, logger)

	authToken, err := library.EnsureAuthToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	printBanner(cfg, authToken)

	rescan := func(ctx context.Context) {
		if _, err := library.Scan(ctx); err != nil {
			logger.Warn("media scan failed", "error", err)
		}
	}
	go rescan(ctx)

	fx, err := loadEffects(cfg.PluginsFile(), logger)
	if err != nil {
		return fmt.Errorf("failed to load effect plugins: %w", err)
	}

	compiler := timeline.NewCompiler(library, fx, cfg.FontFile(), logger)
	mt := metrics.New()

	renders := render.NewManager(render.Config{
		OutputDir:     cfg.ProcessedDir(),
		MaxConcurrent: cfg.MaxConcurrentRenders(),
		Retention:     cfg.JobRetention(),
	}, nil, compiler, ffmpeg, logger)
	renders.SetMetrics(mt)

	store, err := preview.NewArtifactStore(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to prepare preview storage: %w", err)
	}
	previews := preview.NewManager(preview.Config{CancelSuperseded: cfg.CancelSuperseded()}, compiler, ffmpeg, store, logger)
	previews.SetMetrics(mt)

	sweeper := preview.NewSweeper(store, renders, preview.SweepConfig{
		Interval:           cfg.SweepInterval(),
		PreviewRetention:   cfg.PreviewRetention(),
		ThumbnailRetention: cfg.ThumbnailRetention(),
	}, logger)
	sweeper.SetMetrics(mt)

	var bg sync.WaitGroup
	bg.Add(1)
	go func() {
		defer bg.Done()
		sweeper.Run(ctx)
	}()
	bg.Add(1)
	go func() {
		defer bg.Done()
		watcher.NewPoller(cfg.MediaDir(), cfg.RescanInterval(), rescan, logger).Run(ctx)
	}()

	pb := playback.NewServer(logger)
	pb.Mount(config.ProcessedDir, cfg.ProcessedDir())
	pb.Mount(preview.PreviewsDir, store.Dir(preview.PreviewsDir))
	pb.Mount(preview.ThumbnailsDir, store.Dir(preview.ThumbnailsDir))

	if cfg.AuthDisabled() {
		logger.Warn("API authentication is disabled")
	}

	apiServer := api.NewServer(api.ServerConfig{
		BindAddr:     cfg.BindAddr(),
		Port:         cfg.Port(),
		Renders:      renders,
		Previews:     previews,
		Media:        library,
		Compiler:     compiler,
		Effects:      fx,
		Tokens:       library,
		AuthDisabled: cfg.AuthDisabled(),
		Playback:     pb,
		Doctor:       doctor,
		Metrics:      mt,
		Logger:       logger,
		StartTime:    startTime,
		Version:      config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case err := <-serverErr:
			if err != nil {
				logger.Error("HTTP server error", "error", err)
			}
			quit()
		case <-quitCh:
		}
	}()

	var tray *ui.Tray
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Renders: renders,
			Logger:  logger,
			OnQuit:  quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	if tray != nil {
		tray.Quit()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := previews.Shutdown(shutdownCtx); err != nil {
		logger.Warn("previews still running at shutdown", "error", err)
	}
	if err := renders.Shutdown(shutdownCtx); err != nil {
		logger.Warn("renders still running at shutdown", "error", err)
	}

	cancel()
	bg.Wait()

	logger.Info("shutdown complete")
	return nil
}

// loadEffects registers the compiled-in plugins and, when configured, the
// YAML plugin table. A missing plugin file is not an error.
func loadEffects(pluginsFile string, logger *slog.Logger) (*effects.Resolver, error) {
	registry := effects.NewRegistry()
	if err := registry.Register(effects.Vignette{}); err != nil {
		return nil, err
	}

	if pluginsFile != "" {
		plugins, err := effects.LoadFile(pluginsFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("effect plugin file not found", "path", logging.SanitizePath(pluginsFile))
		case err != nil:
			return nil, err
		default:
			for _, p := range plugins {
				if err := registry.Register(p); err != nil {
					return nil, err
				}
			}
			logger.Info("effect plugins loaded", "path", filepath.Base(pluginsFile), "count", len(plugins))
		}
	}

	return effects.NewResolver(registry, logger), nil
}

func printBanner(cfg config.Config, authToken string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  %-57s ║\n", "HEIMDEX RENDER v"+config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    %-45s ║\n", fmt.Sprintf("http://%s:%d", cfg.BindAddr(), cfg.Port()))
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Media Dir:  %-45s ║\n", logging.SanitizePath(cfg.MediaDir()))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}
