package timeline

import (
	"math"
	"strings"

	"github.com/heimdex/heimdex-render/internal/graph"
	"github.com/heimdex/heimdex-render/internal/project"
)

// wheelRange is how far a fully pushed color wheel moves its tone point.
const wheelRange = 0.25

func hasColor(cc project.ColorCorrection) bool {
	return cc.Brightness != 0 || cc.Contrast != nil || cc.Saturation != nil ||
		!cc.Wheels.Shadows.IsZero() || !cc.Wheels.Midtones.IsZero() || !cc.Wheels.Highlights.IsZero() ||
		cc.LUT != "" || len(cc.Curve) >= 2
}

// colorStages appends the color-correction filters of a clip: levels and
// saturation for the basic controls, a per-channel tone curve from the
// wheels, the LUT and the custom master curve, in that order. Every stage
// works on RGB(A) so keyed and masked alpha survives.
func (s *compilation) colorStages(st *stream, track project.Track, clip project.Clip) {
	cc := clip.Color
	if cc == nil {
		return
	}

	contrast := 1.0
	if cc.Contrast != nil {
		contrast = clampRange(*cc.Contrast, -1000, 1000)
	}
	if cc.Brightness != 0 || contrast != 1 {
		expr := levelsExpr(clampRange(cc.Brightness, -1, 1), contrast)
		st.apply("levels", "lutrgb", graph.KV("r", expr), graph.KV("g", expr), graph.KV("b", expr))
	}
	if cc.Saturation != nil {
		if sat := clampRange(*cc.Saturation, 0, 3); sat != 1 {
			st.apply("sat", "colorchannelmixer", saturationMatrix(sat)...)
		}
	}

	w := cc.Wheels
	if !w.Shadows.IsZero() || !w.Midtones.IsZero() || !w.Highlights.IsZero() {
		st.apply("wheels", "curves",
			graph.KV("r", wheelCurve(w.Shadows.R, w.Midtones.R, w.Highlights.R)),
			graph.KV("g", wheelCurve(w.Shadows.G, w.Midtones.G, w.Highlights.G)),
			graph.KV("b", wheelCurve(w.Shadows.B, w.Midtones.B, w.Highlights.B)),
		)
	}

	if cc.LUT != "" {
		path, err := s.resolveAsset(cc.LUT)
		if err != nil {
			s.warn(track, clip, "lut ignored", err)
		} else {
			st.apply("lut", "lut3d", graph.KV("file", path))
		}
	}

	if len(cc.Curve) >= 2 {
		st.apply("curve", "curves", graph.KV("master", curvePoints(cc.Curve)))
	}
}

// levelsExpr maps a channel value around mid grey by contrast and then
// shifts it by brightness, both in normalized units.
func levelsExpr(brightness, contrast float64) string {
	return "clip((val/maxval-0.5)*" + num(contrast) + "+0.5+" + num(brightness) + ",0,1)*maxval"
}

// Rec. 601 luma weights.
var lumaWeights = [3]float64{0.299, 0.587, 0.114}

// saturationMatrix blends each channel between the pixel's luma (sat 0) and
// itself (sat 1); values above 1 push away from grey.
func saturationMatrix(sat float64) []graph.Arg {
	names := [3]string{"r", "g", "b"}
	args := make([]graph.Arg, 0, 9)
	for i, out := range names {
		for j, in := range names {
			v := lumaWeights[j] * (1 - sat)
			if i == j {
				v += sat
			}
			args = append(args, graph.KV(out+in, plain(math.Round(v*1e6)/1e6)))
		}
	}
	return args
}

// wheelCurve derives a tone curve for one channel from the shadow, midtone
// and highlight wheel offsets. The end points stay pinned.
func wheelCurve(shadow, mid, high float64) string {
	return curvePoints([]project.Point{
		{X: 0, Y: 0},
		{X: 0.25, Y: 0.25 + shadow*wheelRange},
		{X: 0.5, Y: 0.5 + mid*wheelRange},
		{X: 0.75, Y: 0.75 + high*wheelRange},
		{X: 1, Y: 1},
	})
}

func curvePoints(pts []project.Point) string {
	parts := make([]string, 0, len(pts))
	for _, p := range pts {
		parts = append(parts, plain(clampUnit(p.X))+"/"+plain(clampUnit(p.Y)))
	}
	return strings.Join(parts, " ")
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// maskArgs builds a geq that keeps pixels inside the polygon and clears the
// alpha of everything else. The polygon is in project pixel space and is
// mapped onto the frame; inside is decided by the even-odd crossing rule.
func maskArgs(path []project.Point, ps project.Settings) []graph.Arg {
	px := "(X*" + num(float64(ps.Width)) + "/W)"
	py := "(Y*" + num(float64(ps.Height)) + "/H)"

	var terms []string
	for i := range path {
		a, b := path[i], path[(i+1)%len(path)]
		if a.Y == b.Y {
			continue
		}
		k := (b.X - a.X) / (b.Y - a.Y)
		// The edge crosses the scanline and the crossing lies right of the pixel.
		terms = append(terms,
			"abs(gt("+num(a.Y)+","+py+")-gt("+num(b.Y)+","+py+"))*lt("+px+","+num(k)+"*("+py+"-"+num(a.Y)+")+"+num(a.X)+")")
	}

	inside := "0"
	if len(terms) > 0 {
		inside = "mod(" + strings.Join(terms, "+") + ",2)"
	}
	return []graph.Arg{
		graph.KV("r", "r(X,Y)"),
		graph.KV("g", "g(X,Y)"),
		graph.KV("b", "b(X,Y)"),
		graph.KV("a", "alpha(X,Y)*"+inside),
	}
}
