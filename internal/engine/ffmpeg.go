package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/heimdex-render/internal/graph"
	"github.com/heimdex/heimdex-render/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Config holds the engine's configuration.
type Config struct {
	FFmpegPath  string // empty = look up "ffmpeg" on PATH
	FFprobePath string // empty = look up "ffprobe" on PATH
	Logger      *slog.Logger
	DebugPaths  bool // if true, log full file paths; otherwise sanitise
}

// FFmpeg is the production Engine backed by the ffmpeg binary.
type FFmpeg struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

// NewFFmpeg resolves the engine binaries. A missing ffprobe is tolerated;
// probing is then unavailable.
func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg: %w", err)
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		cfg.Logger.Warn("ffprobe not found, media probing disabled", "error", err)
		ffprobe = ""
	}

	cfg.Logger.Info("media engine initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return &FFmpeg{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

func (f *FFmpeg) Path() string { return f.ffmpeg }

// Execute renders inv.Graph into inv.OutputPath. A non-zero exit yields a
// *RunError alongside the RunResult.
func (f *FFmpeg) Execute(ctx context.Context, inv Invocation) (RunResult, error) {
	args, err := BuildArgs(inv)
	if err != nil {
		return RunResult{ExitCode: -1}, err
	}
	if err := os.MkdirAll(filepath.Dir(inv.OutputPath), 0755); err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("cannot create output dir: %w", err)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, f.ffmpeg, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("stdout pipe: %w", err)
	}

	f.cfg.Logger.Debug("executing ffmpeg",
		"encoding", inv.Encoding.Name,
		"inputs", len(inv.Graph.Inputs),
		"nodes", len(inv.Graph.Nodes),
		"output", f.safePath(inv.OutputPath),
	)

	if err := cmd.Start(); err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("start ffmpeg: %w", err)
	}
	newProgressParser(inv.Duration, inv.Progress).consume(stdout)
	err = cmd.Wait()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	result := RunResult{
		ExitCode:   exitCode,
		OutputPath: inv.OutputPath,
		StderrTail: stderrBuf.String(),
		Duration:   elapsed,
	}

	if ctx.Err() != nil {
		return result, fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
	}
	if !result.IsSuccess() {
		f.cfg.Logger.Warn("ffmpeg failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
		return result, &RunError{ExitCode: exitCode, StderrTail: result.StderrTail}
	}

	f.cfg.Logger.Info("ffmpeg succeeded",
		"encoding", inv.Encoding.Name,
		"duration_ms", elapsed.Milliseconds(),
		"output", f.safePath(inv.OutputPath),
	)
	return result, nil
}

// BuildArgs renders the ffmpeg command line for an invocation.
func BuildArgs(inv Invocation) ([]string, error) {
	if inv.Graph == nil {
		return nil, fmt.Errorf("%w: no graph", graph.ErrInvalidGraph)
	}
	if inv.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}
	video, ok := inv.Graph.Output(graph.OutputVideo)
	if !ok {
		return nil, fmt.Errorf("%w: graph has no video output", graph.ErrInvalidGraph)
	}

	args := []string{"-y", "-hide_banner", "-nostats", "-progress", "pipe:1"}
	for _, in := range inv.Graph.Inputs {
		args = append(args, "-i", in.Path)
	}
	args = append(args, "-filter_complex", graph.Serialize(inv.Graph))

	args = append(args, "-map", "["+video+"]")
	args = append(args, inv.Encoding.Video...)

	if audio, ok := inv.Graph.Output(graph.OutputAudio); ok && !inv.Encoding.NoAudio {
		args = append(args, "-map", "["+audio+"]")
		args = append(args, inv.Encoding.Audio...)
	} else {
		args = append(args, "-an")
	}
	args = append(args, inv.Encoding.Container...)

	if inv.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(inv.Duration, 'f', -1, 64))
	}
	return append(args, inv.OutputPath), nil
}

func (f *FFmpeg) safePath(path string) string {
	if f.cfg.DebugPaths {
		return path
	}
	return logging.SanitizePath(path)
}

// resolveBinary finds an executable, preferring the configured path.
func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", name)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n ")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
