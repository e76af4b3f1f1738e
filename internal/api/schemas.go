package api

import (
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-render/internal/catalog"
	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/graph"
	"github.com/heimdex/heimdex-render/internal/preview"
	"github.com/heimdex/heimdex-render/internal/render"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State           string                `json:"state"`
	Paused          bool                  `json:"paused"`
	Jobs            map[string]int        `json:"jobs"`
	PreviewSessions int                   `json:"preview_sessions"`
	MediaCount      int                   `json:"media_count"`
	Engine          *EngineStatusResponse `json:"engine,omitempty"`
}

type EngineStatusResponse struct {
	Version        string   `json:"version"`
	Ready          bool     `json:"ready"`
	Filters        int      `json:"filters"`
	MissingFilters []string `json:"missing_filters,omitempty"`
	LastProbeAt    string   `json:"last_probe_at,omitempty"`
}

type RenderRequest struct {
	Project json.RawMessage `json:"project"`
}

type RenderResponse struct {
	JobID  string        `json:"job_id"`
	Status render.Status `json:"status"`
}

type JobsResponse struct {
	Jobs []render.Job `json:"jobs"`
}

type PreviewRequest struct {
	Project   json.RawMessage `json:"project"`
	Timestamp *float64        `json:"timestamp"`
	Duration  float64         `json:"duration,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

type PreviewResponse struct {
	PreviewURL string  `json:"preview_url"`
	Timestamp  float64 `json:"timestamp"`
	Duration   float64 `json:"duration"`
	SessionID  string  `json:"session_id,omitempty"`
}

type FrameResponse struct {
	FrameURL  string  `json:"frame_url"`
	Timestamp float64 `json:"timestamp"`
	SessionID string  `json:"session_id,omitempty"`
}

type ThumbnailResponse struct {
	ThumbnailURL string  `json:"thumbnail_url"`
	Timestamp    float64 `json:"timestamp"`
}

type StripRequest struct {
	Project       json.RawMessage `json:"project"`
	Intervals     int             `json:"intervals,omitempty"`
	ThumbDuration float64         `json:"thumb_duration,omitempty"`
}

type StripItem struct {
	Timestamp float64 `json:"timestamp"`
	URL       string  `json:"url"`
	Duration  float64 `json:"duration"`
}

type StripResponse struct {
	Thumbnails []StripItem `json:"thumbnails"`
}

type CompileRequest struct {
	Project        json.RawMessage `json:"project"`
	WindowStart    float64         `json:"window_start"`
	WindowDuration float64         `json:"window_duration"`
	UseProxies     bool            `json:"use_proxies,omitempty"`
}

type CompileResponse struct {
	FilterComplex string         `json:"filter_complex"`
	Inputs        []string       `json:"inputs"`
	Outputs       []graph.Output `json:"outputs"`
	Nodes         int            `json:"nodes"`
	WindowStart   float64        `json:"window_start"`
	WindowLength  float64        `json:"window_duration"`
	Warnings      []string       `json:"warnings"`
}

type EDLRequest struct {
	Project   json.RawMessage `json:"project"`
	FrameRate float64         `json:"frame_rate,omitempty"`
}

type MediaResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      catalog.MediaKind `json:"kind"`
	Size      int64             `json:"size"`
	SizeHuman string            `json:"size_human"`
	Duration  float64           `json:"duration"`
	Width     int               `json:"width,omitempty"`
	Height    int               `json:"height,omitempty"`
	HasAudio  bool              `json:"has_audio"`
	HasProxy  bool              `json:"has_proxy"`
	Present   bool              `json:"present"`
	Mtime     string            `json:"mtime"`
}

type MediaListResponse struct {
	Media []MediaResponse `json:"media"`
}

type ScanResponse struct {
	Found     int    `json:"found"`
	Probed    int    `json:"probed"`
	Missing   int    `json:"missing"`
	Bytes     int64  `json:"bytes"`
	BytesText string `json:"bytes_human"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func MediaToResponse(m *catalog.MediaFile) MediaResponse {
	return MediaResponse{
		ID:        m.ID,
		Name:      m.Name,
		Kind:      m.Kind,
		Size:      m.Size,
		SizeHuman: humanize.Bytes(uint64(m.Size)),
		Duration:  m.Duration,
		Width:     m.Width,
		Height:    m.Height,
		HasAudio:  m.HasAudio,
		HasProxy:  m.HasProxy,
		Present:   m.Present,
		Mtime:     m.Mtime.Format(time.RFC3339),
	}
}

func ScanToResponse(r *catalog.ScanResult) ScanResponse {
	return ScanResponse{
		Found:     r.Found,
		Probed:    r.Probed,
		Missing:   r.Missing,
		Bytes:     r.Bytes,
		BytesText: humanize.Bytes(uint64(r.Bytes)),
	}
}

func EngineToResponse(c *engine.Capabilities) *EngineStatusResponse {
	resp := &EngineStatusResponse{
		Version:        c.Version,
		Ready:          c.Ready(),
		Filters:        c.Filters,
		MissingFilters: c.MissingFilters,
	}
	if !c.ProbedAt.IsZero() {
		resp.LastProbeAt = c.ProbedAt.Format(time.RFC3339)
	}
	return resp
}

func StripToResponse(artifacts []preview.Artifact) StripResponse {
	resp := StripResponse{Thumbnails: make([]StripItem, 0, len(artifacts))}
	for _, a := range artifacts {
		resp.Thumbnails = append(resp.Thumbnails, StripItem{Timestamp: a.Timestamp, URL: a.URL, Duration: a.Duration})
	}
	return resp
}
