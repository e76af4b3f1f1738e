package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/graph"
	"github.com/heimdex/heimdex-render/internal/playback"
	"github.com/heimdex/heimdex-render/internal/preview"
	"github.com/heimdex/heimdex-render/internal/project"
	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

const maxBodyBytes = 32 << 20

var artifactMounts = []string{"processed", preview.PreviewsDir, preview.ThumbnailsDir}

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.With(LoopbackGuard()).Handle("/metrics", cfg.Metrics.Handler())
	}
	if cfg.Playback != nil {
		for _, mount := range artifactMounts {
			h := artifactHandler(cfg, mount)
			r.Get("/"+mount+"/{name}", h)
			r.Head("/"+mount+"/{name}", h)
		}
	}
	if cfg.Previews != nil {
		r.Get("/ws", wsHandler(cfg))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.AuthDisabled, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/render", renderHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Post("/preview", previewHandler(cfg))
		r.Post("/preview/frame", frameHandler(cfg))
		r.Post("/preview/thumbnail", thumbnailHandler(cfg))
		r.Post("/preview/thumbnails", stripHandler(cfg))
		r.Post("/compile", compileHandler(cfg))
		r.Post("/export/edl", exportEDLHandler(cfg))
		r.Get("/effects", effectsHandler(cfg))
		r.Get("/media", listMediaHandler(cfg))
		r.Post("/media/scan", scanMediaHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{
			State: "idle",
			Jobs:  make(map[string]int),
		}
		for _, s := range []render.Status{render.StatusQueued, render.StatusProcessing, render.StatusComplete, render.StatusError} {
			resp.Jobs[string(s)] = 0
		}

		if cfg.Renders != nil {
			for s, n := range cfg.Renders.Counts() {
				resp.Jobs[string(s)] = n
			}
			resp.Paused = cfg.Renders.IsPaused()
		}
		switch {
		case resp.Paused:
			resp.State = "paused"
		case resp.Jobs[string(render.StatusProcessing)] > 0:
			resp.State = "rendering"
		}

		if cfg.Previews != nil {
			resp.PreviewSessions = cfg.Previews.Sessions()
		}
		if cfg.Media != nil {
			resp.MediaCount, _ = cfg.Media.Count(ctx)
		}
		if cfg.Doctor != nil {
			if caps, err := cfg.Doctor.Get(ctx); err == nil && caps != nil {
				resp.Engine = EngineToResponse(caps)
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func renderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := decodeProject(req.Project)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}

		job, err := cfg.Renders.Submit(p)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}
		WriteJSON(w, http.StatusAccepted, RenderResponse{JobID: job.ID, Status: job.Status})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := cfg.Renders.List()
		if jobs == nil {
			jobs = []render.Job{}
		}
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Renders.Status(id)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func compileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompileRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := decodeProject(req.Project)
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}

		window := timeline.Window{Start: req.WindowStart, Duration: req.WindowDuration}
		if window.Duration <= 0 {
			window.Duration = p.Duration() - window.Start
		}
		res, err := cfg.Compiler.Compile(p, window, timeline.Options{UseProxies: req.UseProxies})
		if err != nil {
			writeServiceError(w, err, cfg.Logger)
			return
		}

		desc := graph.Describe(res.Graph)
		warnings := make([]string, 0, len(res.Warnings))
		for _, wn := range res.Warnings {
			warnings = append(warnings, wn.String())
		}
		WriteJSON(w, http.StatusOK, CompileResponse{
			FilterComplex: desc.FilterComplex,
			Inputs:        desc.Inputs,
			Outputs:       desc.Outputs,
			Nodes:         desc.NodeCount,
			WindowStart:   res.Window.Start,
			WindowLength:  res.Window.Duration,
			Warnings:      warnings,
		})
	}
}

func effectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		descriptors := cfg.Effects.Descriptors()
		WriteJSON(w, http.StatusOK, map[string]any{"effects": descriptors})
	}
}

func listMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := cfg.Media.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list media", "INTERNAL_ERROR")
			return
		}

		resp := MediaListResponse{Media: make([]MediaResponse, len(files))}
		for i, f := range files {
			resp.Media[i] = MediaToResponse(f)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func scanMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := cfg.Media.Scan(r.Context())
		if err != nil {
			cfg.Logger.Error("media scan failed", "error", err)
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, ScanToResponse(result))
	}
}

func artifactHandler(cfg ServerConfig, mount string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := cfg.Playback.ServeArtifact(w, r, mount, name); err != nil {
			cfg.Logger.Error("artifact serve error", "error", err, "mount", mount, "name", name)
		}
	}
}

// decodeBody reads a JSON request body into v, answering 400 itself on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func decodeProject(raw json.RawMessage) (*project.Project, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, project.Validate(nil)
	}
	return project.Decode(bytes.NewReader(raw))
}

// writeServiceError maps the service's sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, project.ErrInvalidProject):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, timeline.ErrInvalidWindow):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_WINDOW")
	case errors.Is(err, render.ErrJobNotFound), errors.Is(err, playback.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, engine.ErrEngineFailure):
		WriteError(w, http.StatusInternalServerError, err.Error(), "ENGINE_FAILURE")
	case errors.Is(err, render.ErrShuttingDown), errors.Is(err, preview.ErrShuttingDown):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "SHUTTING_DOWN")
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
