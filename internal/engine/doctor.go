package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// RequiredFilters are the filters the timeline compiler and effect catalog
// emit.
var RequiredFilters = []string{
	"color", "format", "trim", "setpts", "reverse", "scale", "pad", "overlay", "split",
	"geq", "chromakey", "lutrgb", "curves", "lut3d", "colorchannelmixer", "fade", "drawtext",
	"boxblur", "unsharp", "hue", "negate", "vignette",
	"atrim", "asetpts", "areverse", "atempo", "aformat", "volume", "pan", "afade", "adelay", "amix",
	"acompressor", "equalizer",
}

// DoctorRunner probes the installed engine.
type DoctorRunner interface {
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// RunDoctor asks ffmpeg for its version and filter list.
func (f *FFmpeg) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	version, err := exec.CommandContext(ctx, f.ffmpeg, "-hide_banner", "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -version: %w", err)
	}
	filters, err := exec.CommandContext(ctx, f.ffmpeg, "-hide_banner", "-filters").Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -filters: %w", err)
	}

	caps := parseCapabilities(version, filters)
	caps.FFmpegPath = f.ffmpeg
	caps.FFprobePath = f.ffprobe
	caps.ProbedAt = time.Now()

	f.cfg.Logger.Info("engine doctor probe complete",
		"version", caps.Version,
		"filters", caps.Filters,
		"missing_filters", caps.MissingFilters,
	)
	return caps, nil
}

func parseCapabilities(version, filters []byte) *Capabilities {
	caps := &Capabilities{}

	firstLine, _, _ := strings.Cut(string(version), "\n")
	// "ffmpeg version 6.1.1-3ubuntu5 Copyright ..."
	if fields := strings.Fields(firstLine); len(fields) >= 3 && fields[1] == "version" {
		caps.Version = fields[2]
	}

	available := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(filters))
	for sc.Scan() {
		// " TSC boxblur           V->V       Blur the input."
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		available[fields[1]] = true
	}
	caps.Filters = len(available)

	for _, name := range RequiredFilters {
		if !available[name] {
			caps.MissingFilters = append(caps.MissingFilters, name)
		}
	}
	return caps
}

// CachedDoctor wraps a DoctorRunner to cache probe results with a
// configurable TTL.
type CachedDoctor struct {
	runner DoctorRunner
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(runner DoctorRunner, logger *slog.Logger) *CachedDoctor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDoctor{
		runner: runner,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.runner.RunDoctor(ctx)
	if err != nil {
		d.logger.Warn("engine doctor probe failed", "error", err)
		// Return stale cache if available
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	if len(caps.MissingFilters) > 0 {
		d.logger.Warn("engine is missing filters", "missing", caps.MissingFilters)
	}
	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
