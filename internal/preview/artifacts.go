package preview

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	PreviewsDir   = "previews"
	ThumbnailsDir = "thumbnails"
)

// Artifact is one file written for a preview request.
type Artifact struct {
	Kind      Kind    `json:"kind"`
	Name      string  `json:"name"`
	Path      string  `json:"-"`
	URL       string  `json:"url"`
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
}

// ArtifactStore allocates artifact files under <root>/previews and
// <root>/thumbnails. Files are reclaimed by the Sweeper, not by reference.
type ArtifactStore struct {
	root string
}

func NewArtifactStore(root string) (*ArtifactStore, error) {
	for _, dir := range []string{PreviewsDir, ThumbnailsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return &ArtifactStore{root: root}, nil
}

// Dir returns the absolute directory for "previews" or "thumbnails".
func (s *ArtifactStore) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Allocate names a fresh artifact of kind. Nothing is written.
func (s *ArtifactStore) Allocate(kind Kind) Artifact {
	dir, ext := layout(kind)
	name := fmt.Sprintf("%s_%s.%s", kind, uuid.NewString(), ext)
	return Artifact{
		Kind: kind,
		Name: name,
		Path: filepath.Join(s.root, dir, name),
		URL:  "/" + dir + "/" + name,
	}
}

// Remove deletes an artifact file, ignoring files that are already gone.
func (s *ArtifactStore) Remove(a Artifact) error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func layout(kind Kind) (dir, ext string) {
	switch kind {
	case KindFrame, KindThumbnail:
		return ThumbnailsDir, "jpg"
	case KindStrip:
		return ThumbnailsDir, "mp4"
	default:
		return PreviewsDir, "mp4"
	}
}
