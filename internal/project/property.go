package project

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Keyframe struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

// AnimatableProperty is a scalar that may vary over clip-local time.
// Keyframe times are relative to the clip's timeline start.
type AnimatableProperty struct {
	Value     float64    `json:"value"`
	Keyframes []Keyframe `json:"keyframes,omitempty"`

	// Set is true when the property was present in the decoded document.
	Set bool `json:"-"`
}

// Static returns a property with a constant value.
func Static(v float64) AnimatableProperty {
	return AnimatableProperty{Value: v, Set: true}
}

// Animated returns a property driven by keyframes.
func Animated(fallback float64, kfs ...Keyframe) AnimatableProperty {
	return AnimatableProperty{Value: fallback, Keyframes: kfs, Set: true}
}

// UnmarshalJSON accepts either a bare number or {"value":..,"keyframes":[..]}.
func (a *AnimatableProperty) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] != '{' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("animatable property: %w", err)
		}
		*a = Static(v)
		return nil
	}

	type plain AnimatableProperty
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("animatable property: %w", err)
	}
	*a = AnimatableProperty(p)
	a.Set = true
	return nil
}

// IsAnimated reports whether the property changes over time.
func (a AnimatableProperty) IsAnimated() bool {
	return len(a.Keyframes) >= 2
}

func (a AnimatableProperty) withDefault(v float64) AnimatableProperty {
	if a.Set {
		return a
	}
	return Static(v)
}
