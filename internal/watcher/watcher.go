// Package watcher notices changes under the media directory by polling a
// cheap fingerprint of the tree and reports them through a callback.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimdex/heimdex-render/internal/logging"
)

// Fingerprint summarizes a directory tree. Two equal fingerprints mean
// nothing was added, removed, resized or touched.
type Fingerprint struct {
	Files    int
	Bytes    int64
	NewestNs int64
}

// Take walks root, skipping dot entries.
func Take(root string) (Fingerprint, error) {
	var fp Fingerprint
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fp.Files++
		fp.Bytes += info.Size()
		if ns := info.ModTime().UnixNano(); ns > fp.NewestNs {
			fp.NewestNs = ns
		}
		return nil
	})
	return fp, err
}

// Poller calls OnChange whenever the fingerprint of Dir differs from the
// previous poll.
type Poller struct {
	dir      string
	interval time.Duration
	onChange func(ctx context.Context)
	logger   *slog.Logger

	last Fingerprint
	seen bool
}

func NewPoller(dir string, interval time.Duration, onChange func(ctx context.Context), logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		dir:      dir,
		interval: interval,
		onChange: onChange,
		logger:   logging.WithComponent(logger, "watcher"),
	}
}

// Run polls until ctx is done. The first poll only records a baseline.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	p.logger.Info("media watcher started", "interval", p.interval)
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("media watcher stopping")
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check takes one fingerprint and reports whether it triggered OnChange.
func (p *Poller) Check(ctx context.Context) bool {
	fp, err := Take(p.dir)
	if err != nil {
		p.logger.Debug("media dir not readable", "error", err)
		return false
	}
	first := !p.seen
	changed := p.seen && fp != p.last
	p.last, p.seen = fp, true

	if first || !changed {
		return false
	}
	p.logger.Info("media directory changed", "files", fp.Files)
	if p.onChange != nil {
		p.onChange(ctx)
	}
	return true
}
