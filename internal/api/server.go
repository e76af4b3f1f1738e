package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/heimdex/heimdex-render/internal/catalog"
	"github.com/heimdex/heimdex-render/internal/effects"
	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/metrics"
	"github.com/heimdex/heimdex-render/internal/playback"
	"github.com/heimdex/heimdex-render/internal/preview"
	"github.com/heimdex/heimdex-render/internal/project"
	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

// RenderService is the export job surface the API drives.
type RenderService interface {
	Submit(p *project.Project) (render.Job, error)
	Status(id string) (render.Job, error)
	List() []render.Job
	Counts() map[render.Status]int
	IsPaused() bool
}

// PreviewService issues preview, frame and thumbnail requests.
type PreviewService interface {
	Request(ctx context.Context, req preview.Request) (*preview.Pending, error)
	Sessions() int
}

type MediaLibrary interface {
	List(ctx context.Context) ([]*catalog.MediaFile, error)
	Count(ctx context.Context) (int, error)
	Scan(ctx context.Context) (*catalog.ScanResult, error)
}

type Compiler interface {
	Compile(p *project.Project, w timeline.Window, opts timeline.Options) (*timeline.Result, error)
}

type EffectCatalog interface {
	Descriptors() []effects.Descriptor
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	BindAddr     string
	Port         int
	Renders      RenderService
	Previews     PreviewService
	Media        MediaLibrary
	Compiler     Compiler
	Effects      EffectCatalog
	Tokens       TokenSource
	AuthDisabled bool
	Playback     *playback.Server
	Doctor       *engine.CachedDoctor
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	StartTime    time.Time
	Version      string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	bind := cfg.BindAddr
	if bind == "" {
		bind = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:        net.JoinHostPort(bind, strconv.Itoa(cfg.Port)),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Previews hold the response until the engine finishes.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
