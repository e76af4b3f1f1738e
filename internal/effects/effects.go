// Package effects resolves effect descriptors on clips into engine filter
// fragments. Fragments come from registered plugins first, then from the
// built-in catalog; anything else resolves to nothing.
package effects

import (
	"fmt"
	"strconv"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// ParamSpec describes one tunable parameter for editor controls.
type ParamSpec struct {
	Key     string  `json:"key" yaml:"key"`
	Name    string  `json:"name" yaml:"name"`
	Type    string  `json:"type" yaml:"type"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Step    float64 `json:"step" yaml:"step"`
	Default float64 `json:"defaultValue" yaml:"default"`
}

type Descriptor struct {
	Type       string      `json:"type"`
	Name       string      `json:"name"`
	EffectType Kind        `json:"effectType"`
	Params     []ParamSpec `json:"params"`
	Builtin    bool        `json:"builtin,omitempty"`
}

// EffectPlugin is the capability every effect source implements.
type EffectPlugin interface {
	Describe() Descriptor
	// Build returns a comma-separated filter chain for the given parameters.
	Build(params Params) (string, error)
}

// Params are the user-supplied values of an effect instance.
type Params map[string]any

// Float returns a numeric parameter or def when absent or not numeric.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Floats returns a numeric list parameter.
func (p Params) Floats(key string) []float64 {
	raw, ok := p[key].([]any)
	if !ok {
		if fs, ok := p[key].([]float64); ok {
			return fs
		}
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, _ := toFloat(v)
		out = append(out, f)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// WithDefaults returns a copy of params with every declared parameter filled,
// clamped to its declared range when one is given.
func WithDefaults(d Descriptor, params Params) Params {
	out := make(Params, len(params)+len(d.Params))
	for k, v := range params {
		out[k] = v
	}
	for _, spec := range d.Params {
		v := out.Float(spec.Key, spec.Default)
		if spec.Max > spec.Min {
			v = clamp(v, spec.Min, spec.Max)
		}
		out[spec.Key] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FragmentError reports a fragment that cannot be embedded in a graph.
type FragmentError struct {
	Type     string
	Fragment string
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("effect %q produced an unsafe fragment %q", e.Type, e.Fragment)
}
