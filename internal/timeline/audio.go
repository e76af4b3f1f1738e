package timeline

import (
	"math"
	"strconv"

	"github.com/heimdex/heimdex-render/internal/effects"
	"github.com/heimdex/heimdex-render/internal/graph"
	"github.com/heimdex/heimdex-render/internal/project"
)

// compileAudio prepares every audible clip in the window and mixes them into
// the audio output. Without audible clips the graph has no audio output.
func (s *compilation) compileAudio() {
	var mix []string
	for _, track := range s.p.Tracks {
		if track.Type != project.TrackAudio || track.Muted {
			continue
		}
		for i, clip := range track.Clips {
			if clip.Type != project.ClipAudio || !s.intersects(clip) {
				continue
			}
			if pad, ok := s.audioClip(track, i); ok {
				mix = append(mix, pad)
			}
		}
	}
	if len(mix) == 0 {
		return
	}

	out := s.b.Filter("amix", "amix", mix,
		graph.KV("inputs", strconv.Itoa(len(mix))),
		graph.KV("duration", "longest"),
		graph.KV("normalize", "0"),
	)
	s.b.Output(graph.OutputAudio, out)
}

func (s *compilation) audioClip(track project.Track, i int) (string, bool) {
	clip := track.Clips[i]
	path, err := s.resolve(clip)
	if err != nil {
		s.warn(track, clip, "media not found", err)
		return "", false
	}

	sp := s.span(clip)
	in, length := sourceRange(clip, sp)
	idx := s.b.Input(path)

	st := s.stream(s.label("a_", clip.ID), graph.StreamPad(idx, graph.StreamAudio))
	st.apply("trim", "atrim", graph.KV("start", plain(in)), graph.KV("duration", plain(length)))
	st.apply("pts", "asetpts", graph.Arg{Value: "PTS-STARTPTS"})
	if clip.Reverse {
		st.apply("rev", "areverse")
	}
	for n, f := range tempoChain(clip.PlaybackSpeed()) {
		st.apply("tempo"+strconv.Itoa(n), "atempo", graph.Arg{Value: plain(f)})
	}
	st.apply("fmt", "aformat", graph.KV("channel_layouts", "stereo"))
	st.chain("fx", s.c.Effects.Chain(clip.Effects, effects.KindAudio))

	st.apply("vol", "volume", graph.KV("volume", plain(clip.Gain()*track.Gain())))
	left, right := panGains(track.Pan)
	st.apply("pan", "pan", graph.Arg{Value: "stereo|c0=" + plain(left) + "*c0|c1=" + plain(right) + "*c1"})

	s.audioFades(st, track, i, sp)

	if ms := int(math.Round(sp.offset * 1000)); ms > 0 {
		st.apply("delay", "adelay", graph.KV("delays", strconv.Itoa(ms)), graph.KV("all", "1"))
	}
	return st.pad, true
}

// audioFades ramps clip audio for transitions. The stream clock starts at
// the visible start here, before the onset delay.
func (s *compilation) audioFades(st *stream, track project.Track, i int, sp span) {
	clip := track.Clips[i]
	local := span{visStart: sp.visStart, visEnd: sp.visEnd, origin: -sp.visStart}
	if d := fadeInDuration(track, i); d > 0 {
		if from, length, ok := clipFade(local, 0, d); ok {
			st.apply("fadein", "afade",
				graph.KV("t", "in"), graph.KV("st", plain(from)), graph.KV("d", plain(length)))
		}
	}
	if d := fadeOutDuration(clip); d > 0 {
		if from, length, ok := clipFade(local, clip.Duration-d, d); ok {
			st.apply("fadeout", "afade",
				graph.KV("t", "out"), graph.KV("st", plain(from)), graph.KV("d", plain(length)))
		}
	}
}

// panGains is the constant-power pan law: pan -1 is hard left, 1 hard right.
func panGains(pan float64) (left, right float64) {
	pan = clampRange(pan, -1, 1)
	angle := (pan + 1) * math.Pi / 4
	return round4(math.Cos(angle)), round4(math.Sin(angle))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// tempoChain splits a speed factor into atempo stages within [0.5, 2].
// Speed 1 needs no stage.
func tempoChain(speed float64) []float64 {
	if speed == 1 || speed <= 0 {
		return nil
	}
	var out []float64
	for speed > 2 {
		out = append(out, 2)
		speed /= 2
	}
	for speed < 0.5 {
		out = append(out, 0.5)
		speed /= 0.5
	}
	if speed != 1 {
		out = append(out, speed)
	}
	return out
}
