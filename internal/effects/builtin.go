package effects

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// EqualizerBands are the centre frequencies of the built-in equalizer.
var EqualizerBands = []float64{60, 230, 910, 3600, 14000}

type builtin struct {
	desc  Descriptor
	build func(p Params) string
}

func (b builtin) Describe() Descriptor { return b.desc }

func (b builtin) Build(p Params) (string, error) {
	return b.build(WithDefaults(b.desc, p)), nil
}

var builtins = map[string]builtin{
	"blur": {
		desc: Descriptor{Type: "blur", Name: "Blur", EffectType: KindVideo, Params: []ParamSpec{
			{Key: "radius", Name: "Radius", Type: "slider", Min: 0, Max: 20, Step: 0.5, Default: 5},
		}},
		build: func(p Params) string {
			return "boxblur=luma_radius=" + num(p.Float("radius", 5)) + ":luma_power=1"
		},
	},
	"sharpen": {
		desc: Descriptor{Type: "sharpen", Name: "Sharpen", EffectType: KindVideo, Params: []ParamSpec{
			{Key: "amount", Name: "Amount", Type: "slider", Min: 0, Max: 5, Step: 0.1, Default: 1},
		}},
		build: func(p Params) string {
			return "unsharp=5:5:" + num(p.Float("amount", 1))
		},
	},
	"grayscale": {
		desc:  Descriptor{Type: "grayscale", Name: "Grayscale", EffectType: KindVideo},
		build: func(Params) string { return "hue=s=0" },
	},
	"sepia": {
		desc: Descriptor{Type: "sepia", Name: "Sepia", EffectType: KindVideo},
		build: func(Params) string {
			return "colorchannelmixer=.393:.769:.189:0:.349:.686:.168:0:.272:.534:.131"
		},
	},
	"invert": {
		desc:  Descriptor{Type: "invert", Name: "Invert", EffectType: KindVideo},
		build: func(Params) string { return "negate" },
	},
	"compressor": {
		desc: Descriptor{Type: "compressor", Name: "Compressor", EffectType: KindAudio, Params: []ParamSpec{
			{Key: "threshold", Name: "Threshold (dB)", Type: "slider", Min: -60, Max: 0, Step: 1, Default: -20},
			{Key: "ratio", Name: "Ratio", Type: "slider", Min: 1, Max: 20, Step: 0.5, Default: 4},
			{Key: "attack", Name: "Attack (ms)", Type: "slider", Min: 0.01, Max: 2000, Step: 1, Default: 20},
			{Key: "release", Name: "Release (ms)", Type: "slider", Min: 0.01, Max: 9000, Step: 10, Default: 250},
			{Key: "makeup", Name: "Makeup", Type: "slider", Min: 1, Max: 64, Step: 0.5, Default: 1},
		}},
		build: func(p Params) string {
			return fmt.Sprintf("acompressor=threshold=%s:ratio=%s:attack=%s:release=%s:makeup=%s",
				num(DBToLinear(p.Float("threshold", -20))),
				num(p.Float("ratio", 4)),
				num(p.Float("attack", 20)),
				num(p.Float("release", 250)),
				num(p.Float("makeup", 1)),
			)
		},
	},
	"equalizer": {
		desc: Descriptor{Type: "equalizer", Name: "Equalizer", EffectType: KindAudio, Params: equalizerParams()},
		build: func(p Params) string {
			gains := p.Floats("gains")
			parts := make([]string, len(EqualizerBands))
			for i, f := range EqualizerBands {
				g := p.Float(fmt.Sprintf("band%d", i), 0)
				if i < len(gains) {
					g = clamp(gains[i], -24, 24)
				}
				parts[i] = "equalizer=f=" + num(f) + ":t=q:w=1:g=" + num(g)
			}
			return strings.Join(parts, ",")
		},
	},
}

func equalizerParams() []ParamSpec {
	specs := make([]ParamSpec, len(EqualizerBands))
	for i, f := range EqualizerBands {
		specs[i] = ParamSpec{
			Key:  fmt.Sprintf("band%d", i),
			Name: fmt.Sprintf("%s Hz", num(f)),
			Type: "slider", Min: -24, Max: 24, Step: 0.5,
		}
	}
	return specs
}

// DBToLinear converts a level in decibels to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// Builtin returns the built-in effect of the given type.
func Builtin(effectType string) (EffectPlugin, bool) {
	b, ok := builtins[effectType]
	if !ok {
		return nil, false
	}
	return b, true
}

// BuiltinDescriptors lists the built-in catalog sorted by type.
func BuiltinDescriptors() []Descriptor {
	out := make([]Descriptor, 0, len(builtins))
	for _, b := range builtins {
		d := b.desc
		d.Builtin = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
