package timeline

import (
	"math"
	"strconv"

	"github.com/heimdex/heimdex-render/internal/graph"
	"github.com/heimdex/heimdex-render/internal/project"
)

// drawText renders a text clip straight onto the canvas.
func (s *compilation) drawText(canvas string, clip project.Clip) string {
	sp := s.span(clip)
	label := s.label("txt_", clip.ID)

	size := clip.FontSize
	if size <= 0 {
		size = project.DefaultFontSize
	}
	if v, ok := curveConstant(clip.Transform.Scale); ok && v > 0 {
		size = int(math.Round(float64(size) * v))
	}
	color := clip.FontColor
	if color == "" {
		color = project.DefaultFontColor
	}

	x, _ := curve(clip.Transform.X, sp.origin, "t")
	y, _ := curve(clip.Transform.Y, sp.origin, "t")
	args := []graph.Arg{
		graph.KV("fontfile", s.c.FontFile),
		graph.KV("text", clip.Text),
		graph.KV("expansion", "none"),
		graph.KV("fontsize", strconv.Itoa(size)),
		graph.KV("fontcolor", color),
		graph.KV("x", x),
		graph.KV("y", y),
	}
	if v, constant := curveConstant(clip.Opacity); !constant || v < 1 {
		expr, _ := curve(clip.Opacity, sp.origin, "t")
		args = append(args, graph.KV("alpha", "clip("+expr+",0,1)"))
	}
	args = append(args, graph.KV("enable", enable(sp.offset, sp.offset+sp.duration())))

	return s.b.Filter(label, "drawtext", []string{canvas}, args...)
}
