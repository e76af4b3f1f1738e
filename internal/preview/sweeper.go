package preview

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/metrics"
)

// JobPruner drops expired job records.
type JobPruner interface {
	Prune() int
}

type SweepConfig struct {
	Interval           time.Duration
	PreviewRetention   time.Duration
	ThumbnailRetention time.Duration
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Files int
	Bytes int64
	Jobs  int
}

// Sweeper periodically deletes artifacts older than their retention window,
// whether or not anything still refers to them, and prunes expired jobs.
type Sweeper struct {
	store   *ArtifactStore
	jobs    JobPruner
	cfg     SweepConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewSweeper(store *ArtifactStore, jobs JobPruner, cfg SweepConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.PreviewRetention <= 0 {
		cfg.PreviewRetention = 15 * time.Minute
	}
	if cfg.ThumbnailRetention <= 0 {
		cfg.ThumbnailRetention = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:  store,
		jobs:   jobs,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "sweeper"),
	}
}

func (s *Sweeper) SetMetrics(mt *metrics.Metrics) {
	s.metrics = mt
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("artifact sweeper started", "interval", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("artifact sweeper stopping")
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Sweep performs one pass relative to now.
func (s *Sweeper) Sweep(now time.Time) SweepStats {
	var stats SweepStats
	for _, d := range []struct {
		name   string
		maxAge time.Duration
	}{
		{PreviewsDir, s.cfg.PreviewRetention},
		{ThumbnailsDir, s.cfg.ThumbnailRetention},
	} {
		files, bytes := s.sweepDir(d.name, now.Add(-d.maxAge))
		stats.Files += files
		stats.Bytes += bytes
		if s.metrics != nil && files > 0 {
			s.metrics.RecordSweep(d.name, files, bytes)
		}
	}
	if s.jobs != nil {
		stats.Jobs = s.jobs.Prune()
	}

	if stats.Files > 0 || stats.Jobs > 0 {
		s.logger.Info("sweep complete",
			"files", stats.Files,
			"freed", humanize.Bytes(uint64(stats.Bytes)),
			"jobs", stats.Jobs,
		)
	}
	return stats
}

func (s *Sweeper) sweepDir(name string, cutoff time.Time) (files int, bytes int64) {
	dir := s.store.Dir(name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warn("sweep: cannot read dir", "dir", name, "error", err)
		return 0, 0
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			s.logger.Warn("sweep: remove failed", "file", e.Name(), "error", err)
			continue
		}
		files++
		bytes += info.Size()
	}
	return files, bytes
}
