// Package catalog keeps the media library: a SQLite index of the files under
// the media directory that clips may reference, and the key/value table that
// holds the service's auth token.
package catalog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

// AuthTokenKey is the config key holding the API bearer token.
const AuthTokenKey = "auth_token"

// ScanResult summarizes one pass over the media directory.
type ScanResult struct {
	Found   int   `json:"found"`
	Probed  int   `json:"probed"`
	Missing int   `json:"missing"`
	Bytes   int64 `json:"bytes"`
}

type Service struct {
	repo     Repository
	mediaDir string
	prober   engine.Prober
	logger   *slog.Logger

	scanMu sync.Mutex
}

// NewService creates the library over mediaDir. prober may be nil, in which
// case files are indexed without duration or dimensions.
func NewService(repo Repository, mediaDir string, prober engine.Prober, logger *slog.Logger) *Service {
	return &Service{repo: repo, mediaDir: mediaDir, prober: prober, logger: logger}
}

func (s *Service) MediaDir() string {
	return s.mediaDir
}

func (s *Service) List(ctx context.Context) ([]*MediaFile, error) {
	return s.repo.ListMedia(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.CountMedia(ctx)
}

// Scan walks the media directory and brings the library in line with it.
// Concurrent calls are serialized.
func (s *Service) Scan(ctx context.Context) (*ScanResult, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	info, err := os.Stat(s.mediaDir)
	if err != nil {
		return nil, fmt.Errorf("media directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media directory %s is not a directory", s.mediaDir)
	}

	start := time.Now()
	result := &ScanResult{}
	seen := make(map[string]bool)

	err = filepath.WalkDir(s.mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("error accessing path", "path", path, "error", err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if strings.HasPrefix(d.Name(), ".") && path != s.mediaDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsMediaFile(d.Name()) {
			return nil
		}

		m, probed, err := s.processFile(ctx, path)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to index file", "path", path, "error", err)
			}
			return nil
		}
		seen[m.Name] = true
		result.Found++
		result.Bytes += m.Size
		if probed {
			result.Probed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.mediaDir, err)
	}

	rows, err := s.repo.ListMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	for _, row := range rows {
		if !row.Present || seen[row.Name] {
			continue
		}
		if err := s.repo.MarkMissing(ctx, row.Name); err != nil {
			return nil, fmt.Errorf("mark %s missing: %w", row.Name, err)
		}
		result.Missing++
	}

	if s.logger != nil {
		s.logger.Info("media scan completed",
			"dir", s.mediaDir,
			"found", result.Found,
			"probed", result.Probed,
			"missing", result.Missing,
			"duration", time.Since(start))
	}
	return result, nil
}

// processFile upserts the row for path. The engine is asked about a file
// only when it is new or its size or mtime changed.
func (s *Service) processFile(ctx context.Context, path string) (*MediaFile, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	rel, err := filepath.Rel(s.mediaDir, path)
	if err != nil {
		return nil, false, err
	}
	name := filepath.ToSlash(rel)

	existing, err := s.repo.GetMediaByName(ctx, name)
	if err != nil {
		return nil, false, err
	}

	mtime := info.ModTime().UTC().Truncate(time.Second)
	m := &MediaFile{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		Size:      info.Size(),
		Mtime:     mtime,
		Present:   true,
		CreatedAt: time.Now(),
	}
	m.Kind, _ = KindOf(name)

	unchanged := false
	if existing != nil {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
		unchanged = existing.Size == m.Size && existing.Mtime.Equal(mtime)
		if unchanged {
			m.Duration, m.Width, m.Height, m.HasAudio = existing.Duration, existing.Width, existing.Height, existing.HasAudio
		}
	}

	probed := false
	if !unchanged && m.Kind != KindImage && s.prober != nil {
		mi, err := s.prober.Probe(ctx, path)
		switch {
		case err == nil:
			m.Duration, m.Width, m.Height, m.HasAudio = mi.Duration, mi.Width, mi.Height, mi.HasAudio
			probed = true
		case errors.Is(err, engine.ErrProbeUnavailable):
		default:
			if s.logger != nil {
				s.logger.Warn("probe failed", "path", path, "error", err)
			}
		}
	}

	if proxy := timeline.ProxyPath(s.mediaDir, name); proxy != "" && isFile(proxy) {
		m.ProxyPath = proxy
		m.HasProxy = true
	}

	if err := s.repo.UpsertMedia(ctx, m); err != nil {
		return nil, false, err
	}
	return m, probed, nil
}

// Resolve maps a clip source to a file under the media directory, preferring
// the library's record of it. It falls back to the file system for media
// that arrived since the last scan.
func (s *Service) Resolve(src string, proxy bool) (string, error) {
	path, err := timeline.JoinMedia(s.mediaDir, src)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.mediaDir, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", timeline.ErrUnresolvedMedia, src)
	}

	row, err := s.repo.GetMediaByName(context.Background(), filepath.ToSlash(rel))
	if err == nil && row != nil && row.Present && isFile(row.Path) {
		if proxy && row.ProxyPath != "" && isFile(row.ProxyPath) {
			return row.ProxyPath, nil
		}
		return row.Path, nil
	}
	return timeline.DirResolver{Root: s.mediaDir}.Resolve(src, proxy)
}

// EnsureAuthToken returns the stored API token, generating one on first run.
func (s *Service) EnsureAuthToken(ctx context.Context) (string, error) {
	token, err := s.repo.GetConfig(ctx, AuthTokenKey)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	token = hex.EncodeToString(b)
	if err := s.repo.SetConfig(ctx, AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}

// AuthToken returns the stored API token, or "" before one is generated.
func (s *Service) AuthToken(ctx context.Context) (string, error) {
	return s.repo.GetConfig(ctx, AuthTokenKey)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
