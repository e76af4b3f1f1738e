// Package playback serves rendered artifacts (exports, preview segments,
// thumbnails) over HTTP with byte-range support so players can seek.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned for unknown directories, unsafe names and files
// that no longer exist.
var ErrNotFound = errors.New("artifact not found")

type Server struct {
	dirs   map[string]string
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{dirs: make(map[string]string), logger: logger}
}

// Mount exposes the files of dir under the name mount, e.g. "previews".
func (s *Server) Mount(mount, dir string) {
	s.dirs[mount] = dir
}

// Locate maps a mounted name to a file path. Names are single path
// elements; anything that could leave the directory is not found.
func (s *Server) Locate(mount, name string) (string, error) {
	dir, ok := s.dirs[mount]
	if !ok {
		return "", ErrNotFound
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", ErrNotFound
	}
	return filepath.Join(dir, name), nil
}

// ServeArtifact writes the named artifact, honoring Range and HEAD.
// Missing artifacts get a 404 and no error.
func (s *Server) ServeArtifact(w http.ResponseWriter, r *http.Request, mount, name string) error {
	path, err := s.Locate(mount, name)
	if err != nil {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return nil
	}
	return s.ServeFile(w, r, path)
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "artifact not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return nil
	}

	size := stat.Size()
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(filePath))
	w.Header().Set("Cache-Control", "no-cache")

	span, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the whole artifact is sent.
		span = nil
	case err != nil:
		return err
	}

	if span == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			if _, err := io.Copy(w, file); err != nil && s.logger != nil {
				s.logger.Debug("artifact copy interrupted", "path", filePath, "error", err)
			}
		}
		return nil
	}

	w.Header().Set("Content-Length", strconv.FormatInt(span.Length(), 10))
	w.Header().Set("Content-Range", span.Header(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := file.Seek(span.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	if _, err := io.CopyN(w, file, span.Length()); err != nil && s.logger != nil {
		s.logger.Debug("artifact copy interrupted", "path", filePath, "error", err)
	}
	return nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".edl":
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
