package catalog

import (
	"path/filepath"
	"strings"
	"time"
)

// MediaKind groups library files by what the engine can read from them.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	KindImage MediaKind = "image"
)

// MediaFile is one row of the media library. Name is the slash-separated
// path relative to the media directory and is what clips reference.
type MediaFile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	Kind      MediaKind `json:"kind"`
	Size      int64     `json:"size"`
	Mtime     time.Time `json:"mtime"`
	Duration  float64   `json:"duration"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	HasAudio  bool      `json:"has_audio"`
	ProxyPath string    `json:"-"`
	HasProxy  bool      `json:"has_proxy"`
	Present   bool      `json:"present"`
	CreatedAt time.Time `json:"created_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var mediaExtensions = map[string]MediaKind{
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".mkv":  KindVideo,
	".webm": KindVideo,
	".m4v":  KindVideo,
	".avi":  KindVideo,
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".aac":  KindAudio,
	".m4a":  KindAudio,
	".flac": KindAudio,
	".ogg":  KindAudio,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".webp": KindImage,
}

// KindOf reports the media kind of filename by extension, case-insensitively.
func KindOf(filename string) (MediaKind, bool) {
	kind, ok := mediaExtensions[strings.ToLower(filepath.Ext(filename))]
	return kind, ok
}

func IsMediaFile(filename string) bool {
	_, ok := KindOf(filename)
	return ok
}
