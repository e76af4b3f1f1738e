// Package timeline compiles a project snapshot into an operation graph for an
// arbitrary time window.
//
// All streams inside a compiled graph run on window-local time: t=0 is the
// window start. Clip streams are trimmed to the part of the clip that falls
// inside the window and their timestamps shifted so they line up with the
// canvas; expressions for keyframed properties are rendered against the same
// clock. Tracks composite in array order, first track at the back.
package timeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-render/internal/effects"
	"github.com/heimdex/heimdex-render/internal/graph"
	"github.com/heimdex/heimdex-render/internal/keyframe"
	"github.com/heimdex/heimdex-render/internal/project"
)

var (
	ErrInvalidWindow   = errors.New("invalid time window")
	ErrUnresolvedMedia = errors.New("unresolved media")
)

const (
	DefaultFontFile  = "/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf"
	DefaultFrameRate = 30
)

// Window is a span of timeline time in seconds.
type Window struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func (w Window) End() float64 { return w.Start + w.Duration }

// Options tune a compile for its consumer.
type Options struct {
	// UseProxies lets previews read proxy media. Exports never set it.
	UseProxies bool
	// OutputWidth and OutputHeight rescale the final video when both are set.
	OutputWidth  int
	OutputHeight int
	// FrameRate overrides the project frame rate for the canvas.
	FrameRate float64
}

// Warning is a non-fatal compile problem, usually a skipped clip.
type Warning struct {
	TrackID string `json:"track_id,omitempty"`
	ClipID  string `json:"clip_id,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.ClipID == "" {
		return w.Message
	}
	return fmt.Sprintf("clip %s: %s", w.ClipID, w.Message)
}

type Result struct {
	Graph *graph.Graph
	// Window is the requested window clamped to the project duration.
	Window   Window
	Warnings []Warning
}

// HasAudio reports whether the graph produces an audio output.
func (r *Result) HasAudio() bool {
	_, ok := r.Graph.Output(graph.OutputAudio)
	return ok
}

// Compiler is stateless apart from its collaborators and safe for concurrent
// use.
type Compiler struct {
	Resolver MediaResolver
	Effects  *effects.Resolver
	FontFile string
	Logger   *slog.Logger
}

func NewCompiler(resolver MediaResolver, fx *effects.Resolver, fontFile string, logger *slog.Logger) *Compiler {
	if fontFile == "" {
		fontFile = DefaultFontFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	if fx == nil {
		fx = effects.NewResolver(effects.NewRegistry(), logger)
	}
	return &Compiler{Resolver: resolver, Effects: fx, FontFile: fontFile, Logger: logger}
}

// Compile builds the operation graph for project p over window w.
//
// The window duration is clamped to the project end. A window that is empty
// after clamping fails with ErrInvalidWindow. Clips whose media cannot be
// resolved are skipped and reported in Result.Warnings.
func (c *Compiler) Compile(p *project.Project, w Window, opts Options) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil project", project.ErrInvalidProject)
	}
	if invalidNumber(w.Start) || invalidNumber(w.Duration) || w.Start < 0 {
		return nil, fmt.Errorf("%w: start=%v duration=%v", ErrInvalidWindow, w.Start, w.Duration)
	}

	dur := math.Min(w.Duration, p.Duration()-w.Start)
	if dur <= 0 {
		return nil, fmt.Errorf("%w: [%v, %v) is outside the project (duration %v)",
			ErrInvalidWindow, w.Start, w.End(), p.Duration())
	}

	s := &compilation{
		c:      c,
		p:      p,
		win:    Window{Start: w.Start, Duration: dur},
		opts:   opts,
		b:      graph.NewBuilder(),
		labels: make(map[string]int),
	}

	s.compileVideo()
	s.compileAudio()

	g, err := s.b.Build()
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	return &Result{Graph: g, Window: s.win, Warnings: s.warnings}, nil
}

// compilation carries the state of one Compile call.
type compilation struct {
	c        *Compiler
	p        *project.Project
	win      Window
	opts     Options
	b        *graph.Builder
	labels   map[string]int
	warnings []Warning
}

func (s *compilation) warn(track project.Track, clip project.Clip, msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	s.warnings = append(s.warnings, Warning{TrackID: track.ID, ClipID: clip.ID, Message: msg})
	s.c.Logger.Warn("compile warning", "track_id", track.ID, "clip_id", clip.ID, "reason", msg)
}

// label returns a pad-safe, unique node prefix for a clip.
func (s *compilation) label(prefix, id string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	base := b.String()
	s.labels[base]++
	if n := s.labels[base]; n > 1 {
		return base + "_" + strconv.Itoa(n)
	}
	return base
}

// resolve finds the media file for a clip, preferring proxies when allowed.
func (s *compilation) resolve(clip project.Clip) (string, error) {
	if s.c.Resolver == nil {
		return "", fmt.Errorf("%w: no media resolver", ErrUnresolvedMedia)
	}
	if s.opts.UseProxies {
		if clip.ProxySrc != "" {
			if path, err := s.c.Resolver.Resolve(clip.ProxySrc, false); err == nil {
				return path, nil
			}
		}
		return s.c.Resolver.Resolve(clip.Src, true)
	}
	return s.c.Resolver.Resolve(clip.Src, false)
}

// resolveAsset finds a non-clip file such as a LUT.
func (s *compilation) resolveAsset(name string) (string, error) {
	if s.c.Resolver == nil {
		return "", fmt.Errorf("%w: no media resolver", ErrUnresolvedMedia)
	}
	return s.c.Resolver.Resolve(name, false)
}

func (s *compilation) frameRate() float64 {
	if s.opts.FrameRate > 0 {
		return s.opts.FrameRate
	}
	if s.p.Settings.FrameRate > 0 {
		return s.p.Settings.FrameRate
	}
	return DefaultFrameRate
}

// span is the visible part of a clip inside the window.
type span struct {
	// visStart and visEnd are clip-local bounds of the visible part.
	visStart float64
	visEnd   float64
	// offset is where the visible part begins on the window clock.
	offset float64
	// origin is the clip's timeline start on the window clock; clip-local
	// time is t - origin.
	origin float64
}

func (sp span) duration() float64 { return sp.visEnd - sp.visStart }

func (s *compilation) span(clip project.Clip) span {
	start := math.Max(clip.TimelineStart, s.win.Start)
	end := math.Min(clip.End(), s.win.End())
	return span{
		visStart: start - clip.TimelineStart,
		visEnd:   end - clip.TimelineStart,
		offset:   start - s.win.Start,
		origin:   clip.TimelineStart - s.win.Start,
	}
}

// sourceRange returns the source in-point and the amount of source consumed
// for the visible part of the clip.
func sourceRange(clip project.Clip, sp span) (in, length float64) {
	speed := clip.PlaybackSpeed()
	length = speed * sp.duration()
	if clip.Reverse {
		return clip.Start + speed*(clip.Duration-sp.visEnd), length
	}
	return clip.SourceIn(clip.TimelineStart + sp.visStart), length
}

func (s *compilation) intersects(clip project.Clip) bool {
	return clip.Intersects(s.win.Start, s.win.End())
}

// enable renders a half-open timeline-enable expression on the window clock.
func enable(from, to float64) string {
	return "gte(t," + num(from) + ")*lt(t," + num(to) + ")"
}

// curve renders an animatable property on the window clock.
func curve(prop project.AnimatableProperty, origin float64, timeVar string) (expr string, constant bool) {
	c := keyframe.Synthesize(prop)
	_, constant = c.Constant()
	return c.Expr(origin, timeVar), constant
}

func num(v float64) string {
	return keyframe.Number(v)
}

// plain formats a number for options that do not evaluate expressions.
func plain(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func invalidNumber(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// stream threads a single pad through a sequence of filters.
type stream struct {
	s     *compilation
	label string
	pad   string
}

func (s *compilation) stream(label, pad string) *stream {
	return &stream{s: s, label: label, pad: pad}
}

func (st *stream) apply(stage, filter string, args ...graph.Arg) {
	st.pad = st.s.b.Filter(st.label+"_"+stage, filter, []string{st.pad}, args...)
}

func (st *stream) chain(stage, fragment string) {
	if fragment == "" {
		return
	}
	st.pad = st.s.b.Chain(st.label+"_"+stage, fragment, st.pad)
}
