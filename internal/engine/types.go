// Package engine runs compiled operation graphs through ffmpeg and reports
// progress and outcome. It also probes media files and the installed engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-render/internal/graph"
)

// ErrEngineFailure marks an engine invocation that exited abnormally.
var ErrEngineFailure = errors.New("engine failure")

// Engine executes an operation graph into an output file.
type Engine interface {
	Execute(ctx context.Context, inv Invocation) (RunResult, error)
}

// Invocation is everything the engine needs for one run.
type Invocation struct {
	Graph      *graph.Graph
	OutputPath string
	Encoding   Encoding
	// Duration bounds the output and is the reference for progress percent.
	Duration float64
	// Progress, when set, receives percentages in [0, 100].
	Progress func(percent float64)
}

// RunResult is the structured outcome of an engine subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// RunError is returned by Execute for a non-zero exit.
type RunError struct {
	ExitCode   int
	StderrTail string
}

func (e *RunError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("ffmpeg exited %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited %d: %s", e.ExitCode, lastLine(e.StderrTail))
}

func (e *RunError) Unwrap() error { return ErrEngineFailure }

// MediaInfo is what ffprobe reports about a media file.
type MediaInfo struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Bitrate    int64   `json:"bitrate,omitempty"`
}

// Capabilities describes the installed engine as reported by the doctor.
type Capabilities struct {
	Version        string    `json:"version"`
	FFmpegPath     string    `json:"ffmpeg_path"`
	FFprobePath    string    `json:"ffprobe_path,omitempty"`
	Filters        int       `json:"filters"`
	MissingFilters []string  `json:"missing_filters,omitempty"`
	ProbedAt       time.Time `json:"probed_at"`
}

// Ready reports whether every filter the compiler emits is available.
func (c Capabilities) Ready() bool { return len(c.MissingFilters) == 0 }
