package effects

import "math"

// Vignette darkens the frame edges. A higher strength narrows the lens angle,
// which focuses the darkening.
type Vignette struct{}

func (Vignette) Describe() Descriptor {
	return Descriptor{
		Type:       "vignette",
		Name:       "Vignette",
		EffectType: KindVideo,
		Params: []ParamSpec{
			{Key: "strength", Name: "Strength", Type: "slider", Min: 0, Max: 1, Step: 0.05, Default: 0.5},
		},
	}
}

func (v Vignette) Build(p Params) (string, error) {
	p = WithDefaults(v.Describe(), p)
	strength := p.Float("strength", 0.5)
	angle := math.Pi / 2.5 * (1 - strength)
	return "vignette=angle=" + num(angle), nil
}
