package timeline

import (
	"math"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-render/internal/effects"
	"github.com/heimdex/heimdex-render/internal/graph"
	"github.com/heimdex/heimdex-render/internal/project"
)

// compileVideo builds the canvas, composites every video track back to front,
// draws text and binds the video output.
func (s *compilation) compileVideo() {
	ps := s.p.Settings
	canvas := s.b.Filter("base", "color", nil,
		graph.KV("c", "black@0"),
		graph.KV("s", strconv.Itoa(ps.Width)+"x"+strconv.Itoa(ps.Height)),
		graph.KV("r", plain(s.frameRate())),
		graph.KV("d", plain(s.win.Duration)),
	)
	canvas = s.b.Filter("base_fmt", "format", []string{canvas}, graph.KV("pix_fmts", "rgba"))

	for _, track := range s.p.Tracks {
		if track.Type != project.TrackVideo {
			continue
		}
		// Adjustments see every video clip of their own track, whatever the
		// clip order.
		for i, clip := range track.Clips {
			if clip.Type == project.ClipVideo && s.intersects(clip) {
				canvas = s.overlayClip(canvas, track, i)
			}
		}
		for _, clip := range track.Clips {
			if clip.Type == project.ClipAdjustment && s.intersects(clip) {
				canvas = s.adjust(canvas, track, clip)
			}
		}
	}

	for _, track := range s.p.Tracks {
		if track.Type != project.TrackText {
			continue
		}
		for _, clip := range track.Clips {
			if clip.Type == project.ClipText && s.intersects(clip) {
				canvas = s.drawText(canvas, clip)
			}
		}
	}

	out := s.stream("out", canvas)
	if s.opts.OutputWidth > 0 && s.opts.OutputHeight > 0 {
		out.apply("scale", "scale",
			graph.KV("w", strconv.Itoa(s.opts.OutputWidth)),
			graph.KV("h", strconv.Itoa(s.opts.OutputHeight)),
		)
	}
	out.apply("v", "format", graph.KV("pix_fmts", "yuv420p"))
	s.b.Output(graph.OutputVideo, out.pad)
}

// overlayClip processes clip i of track and overlays it on canvas during its
// visible span.
func (s *compilation) overlayClip(canvas string, track project.Track, i int) string {
	clip := track.Clips[i]
	path, err := s.resolve(clip)
	if err != nil {
		s.warn(track, clip, "media not found", err)
		return canvas
	}

	sp := s.span(clip)
	scale, scaleConst := curve(clip.Transform.Scale, sp.origin, "t")
	if v, ok := curveConstant(clip.Transform.Scale); ok && v <= 0 {
		return canvas
	}
	in, length := sourceRange(clip, sp)
	idx := s.b.Input(path)

	st := s.stream(s.label("v_", clip.ID), graph.StreamPad(idx, graph.StreamVideo))
	st.apply("trim", "trim", graph.KV("start", plain(in)), graph.KV("duration", plain(length)))
	if clip.Reverse {
		st.apply("rev", "reverse")
	}
	st.apply("pts", "setpts", graph.Arg{Value: retime(clip.PlaybackSpeed(), sp.offset)})
	st.apply("rgba", "format", graph.KV("pix_fmts", "rgba"))

	if clip.Mask.Active() {
		st.apply("mask", "geq", maskArgs(clip.Mask.Path, s.p.Settings)...)
	}
	st.chain("fx", s.c.Effects.Chain(clipEffects(clip), effects.KindVideo))
	if k := clip.Keying; k != nil && k.Enabled {
		st.apply("key", "chromakey",
			graph.KV("color", keyColor(k.Color)),
			graph.KV("similarity", plain(clampUnit(math.Max(k.Similarity, 0.01)))),
			graph.KV("blend", plain(clampUnit(k.Blend))),
		)
	}
	s.colorStages(st, track, clip)
	s.opacity(st, clip.Opacity, sp.origin)
	s.fades(st, track, i, sp)

	ps := s.p.Settings
	if scaleConst {
		st.apply("scale", "scale",
			graph.KV("w", num(float64(ps.Width))+"*"+scale),
			graph.KV("h", num(float64(ps.Height))+"*"+scale),
			graph.KV("force_original_aspect_ratio", "decrease"),
		)
		st.apply("pad", "pad",
			graph.KV("w", "ceil("+num(float64(ps.Width))+"*"+scale+")"),
			graph.KV("h", "ceil("+num(float64(ps.Height))+"*"+scale+")"),
			graph.KV("x", "(ow-iw)/2"),
			graph.KV("y", "(oh-ih)/2"),
			graph.KV("color", "black@0"),
		)
	} else {
		st.apply("scale", "scale",
			graph.KV("w", num(float64(ps.Width))+"*("+scale+")"),
			graph.KV("h", num(float64(ps.Height))+"*("+scale+")"),
			graph.KV("force_original_aspect_ratio", "decrease"),
			graph.KV("eval", "frame"),
		)
	}

	x, _ := curve(clip.Transform.X, sp.origin, "t")
	y, _ := curve(clip.Transform.Y, sp.origin, "t")
	return s.b.Filter(st.label+"_ov", "overlay", []string{canvas, st.pad},
		graph.KV("x", x),
		graph.KV("y", y),
		graph.KV("eof_action", "pass"),
		graph.KV("format", "auto"),
		graph.KV("enable", enable(sp.offset, sp.offset+sp.duration())),
	)
}

// adjust applies an adjustment clip to everything composited so far: the
// canvas is split, one copy is processed and laid back over the other while
// the clip is active.
func (s *compilation) adjust(canvas string, track project.Track, clip project.Clip) string {
	label := s.label("adj_", clip.ID)
	sp := s.span(clip)

	fx := s.c.Effects.Chain(clipEffects(clip), effects.KindVideo)
	if len(adjustmentStages(fx, clip)) == 0 {
		return canvas
	}

	outs := s.b.Split(label+"_split", "split", canvas, label+"_pass", label+"_fx_in")
	st := s.stream(label, outs[1])
	st.chain("fx", fx)
	s.colorStages(st, track, clip)
	s.opacity(st, clip.Opacity, sp.origin)

	return s.b.Filter(label+"_ov", "overlay", []string{outs[0], st.pad},
		graph.KV("x", "0"),
		graph.KV("y", "0"),
		graph.KV("format", "auto"),
		graph.KV("enable", enable(sp.offset, sp.offset+sp.duration())),
	)
}

// adjustmentStages lists what an adjustment clip would change. An adjustment
// with nothing to apply is dropped from the graph.
func adjustmentStages(fx string, clip project.Clip) []string {
	var stages []string
	if fx != "" {
		stages = append(stages, "fx")
	}
	if clip.Color != nil && hasColor(*clip.Color) {
		stages = append(stages, "color")
	}
	if v, constant := curveConstant(clip.Opacity); !constant || v < 1 {
		stages = append(stages, "opacity")
	}
	return stages
}

// clipEffects returns the clip's effect list followed by its legacy toggles.
func clipEffects(clip project.Clip) []project.Effect {
	list := append([]project.Effect(nil), clip.Effects...)
	if clip.Filters.Grayscale {
		list = append(list, project.Effect{Type: "grayscale"})
	}
	if clip.Filters.Sepia {
		list = append(list, project.Effect{Type: "sepia"})
	}
	if clip.Filters.Invert {
		list = append(list, project.Effect{Type: "invert"})
	}
	return list
}

// retime maps trimmed source timestamps onto the window clock.
func retime(speed, offset float64) string {
	expr := "PTS-STARTPTS"
	if speed != 1 {
		expr = "(" + expr + ")/" + num(speed)
	}
	if offset > 0 {
		expr += "+" + num(offset) + "/TB"
	}
	return expr
}

func (s *compilation) opacity(st *stream, prop project.AnimatableProperty, origin float64) {
	c, constant := curveConstant(prop)
	if constant {
		if c < 1 {
			st.apply("alpha", "colorchannelmixer", graph.KV("aa", plain(clampUnit(c))))
		}
		return
	}
	expr, _ := curve(prop, origin, "T")
	st.apply("alpha", "geq",
		graph.KV("r", "r(X,Y)"),
		graph.KV("g", "g(X,Y)"),
		graph.KV("b", "b(X,Y)"),
		graph.KV("a", "alpha(X,Y)*clip("+expr+",0,1)"),
	)
}

// fades applies the alpha ramps of transitions touching clip i of track.
func (s *compilation) fades(st *stream, track project.Track, i int, sp span) {
	clip := track.Clips[i]
	if d := fadeInDuration(track, i); d > 0 {
		if from, length, ok := clipFade(sp, 0, d); ok {
			st.apply("fadein", "fade",
				graph.KV("t", "in"), graph.KV("st", plain(from)), graph.KV("d", plain(length)), graph.KV("alpha", "1"))
		}
	}
	if d := fadeOutDuration(clip); d > 0 {
		if from, length, ok := clipFade(sp, clip.Duration-d, d); ok {
			st.apply("fadeout", "fade",
				graph.KV("t", "out"), graph.KV("st", plain(from)), graph.KV("d", plain(length)), graph.KV("alpha", "1"))
		}
	}
}

// clipFade places a fade that starts at clip-local time at on the window
// clock, trimming the part that lies before the window.
func clipFade(sp span, at, d float64) (from, length float64, ok bool) {
	from = sp.origin + math.Max(at, 0)
	end := sp.origin + at + d
	if end <= 0 || d <= 0 {
		return 0, 0, false
	}
	if from < 0 {
		from = 0
	}
	return from, end - from, true
}

var transitionTypes = map[string]bool{"fade": true, "dissolve": true, "crossfade": true}

func fadeOutDuration(clip project.Clip) float64 {
	t := clip.Transition
	if t == nil || !transitionTypes[t.Type] {
		return 0
	}
	return math.Min(t.Duration, clip.Duration)
}

// fadeInDuration is the transition duration of the clip that precedes clip
// i on the same track, if any.
func fadeInDuration(track project.Track, i int) float64 {
	cur := track.Clips[i]
	prev := -1
	for j, c := range track.Clips {
		if j == i || c.Type != cur.Type || c.TimelineStart >= cur.TimelineStart {
			continue
		}
		if prev < 0 || c.TimelineStart > track.Clips[prev].TimelineStart {
			prev = j
		}
	}
	if prev < 0 {
		return 0
	}
	return math.Min(fadeOutDuration(track.Clips[prev]), cur.Duration)
}

func curveConstant(prop project.AnimatableProperty) (float64, bool) {
	if prop.IsAnimated() {
		return 0, false
	}
	if len(prop.Keyframes) == 1 {
		return prop.Keyframes[0].Value, true
	}
	return prop.Value, true
}

func keyColor(c string) string {
	c = strings.TrimSpace(c)
	if strings.HasPrefix(c, "#") {
		return "0x" + c[1:]
	}
	if c == "" {
		return "0x00FF00"
	}
	return c
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
