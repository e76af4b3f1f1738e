// Package keyframe turns animatable properties into piecewise-linear curves
// and renders them as ffmpeg expressions.
package keyframe

import (
	"math"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-render/internal/project"
)

// Curve is a piecewise-linear function of clip-local time, clamped to the
// first and last keyframe values outside the keyframed range.
type Curve struct {
	points []project.Keyframe
	value  float64
}

// Synthesize builds the curve for a property. Keyframes are assumed sorted
// with strictly increasing times (project.Validate enforces this).
func Synthesize(prop project.AnimatableProperty) Curve {
	switch len(prop.Keyframes) {
	case 0:
		return Curve{value: prop.Value}
	case 1:
		return Curve{value: prop.Keyframes[0].Value}
	}
	pts := make([]project.Keyframe, len(prop.Keyframes))
	copy(pts, prop.Keyframes)
	return Curve{points: pts, value: prop.Value}
}

// Constant returns the curve value when it does not vary with time.
func (c Curve) Constant() (float64, bool) {
	if len(c.points) < 2 {
		return c.value, true
	}
	return 0, false
}

// Eval evaluates the curve at clip-local time t.
func (c Curve) Eval(t float64) float64 {
	if v, ok := c.Constant(); ok {
		return v
	}
	first, last := c.points[0], c.points[len(c.points)-1]
	if t < first.Time {
		return first.Value
	}
	if t >= last.Time {
		return last.Value
	}
	for i := 0; i < len(c.points)-1; i++ {
		a, b := c.points[i], c.points[i+1]
		if t < b.Time {
			return a.Value + (b.Value-a.Value)/(b.Time-a.Time)*(t-a.Time)
		}
	}
	return last.Value
}

// Expr renders the curve as an ffmpeg expression in timeVar, where clip-local
// time is timeVar minus origin.
func (c Curve) Expr(origin float64, timeVar string) string {
	if v, ok := c.Constant(); ok {
		return Number(v)
	}

	local := timeVar
	if origin != 0 {
		local = "(" + timeVar + "-" + Number(origin) + ")"
	}

	// if(lt(T,t0),v0,if(lt(T,t1),seg0,...,vN))
	var b strings.Builder
	first := c.points[0]
	b.WriteString("if(lt(" + local + "," + Number(first.Time) + ")," + Number(first.Value) + ",")
	depth := 1
	for i := 0; i < len(c.points)-1; i++ {
		a, n := c.points[i], c.points[i+1]
		slope := (n.Value - a.Value) / (n.Time - a.Time)
		seg := Number(a.Value) + "+" + Number(slope) + "*(" + local + "-" + Number(a.Time) + ")"
		b.WriteString("if(lt(" + local + "," + Number(n.Time) + ")," + seg + ",")
		depth++
	}
	b.WriteString(Number(c.points[len(c.points)-1].Value))
	b.WriteString(strings.Repeat(")", depth))
	return b.String()
}

// Number formats v in the shortest exact decimal form. Negative values are
// parenthesized so they compose safely inside arithmetic.
func Number(v float64) string {
	if v == 0 || math.IsNaN(v) {
		return "0"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v < 0 {
		return "(" + s + ")"
	}
	return s
}
