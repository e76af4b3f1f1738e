package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrInvalidProject marks input errors: the project shape violates an
// invariant and no work is started for it.
var ErrInvalidProject = errors.New("invalid project")

func invalid(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidProject, path, fmt.Sprintf(format, args...))
}

// Decode reads a project document, applies defaults and validates it.
func Decode(r io.Reader) (*Project, error) {
	var p Project
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	p.Normalize()
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Normalize fills in defaults for fields the editor may omit.
func (p *Project) Normalize() {
	for ti := range p.Tracks {
		t := &p.Tracks[ti]
		for ci := range t.Clips {
			c := &t.Clips[ci]
			if c.Type == "" {
				c.Type = defaultClipType(t.Type)
			}
			if c.Speed == 0 {
				c.Speed = 1
			}
			c.Transform.X = c.Transform.X.withDefault(0)
			c.Transform.Y = c.Transform.Y.withDefault(0)
			c.Transform.Scale = c.Transform.Scale.withDefault(1)
			c.Opacity = c.Opacity.withDefault(1)
			if c.Type == ClipText {
				if c.FontSize <= 0 {
					c.FontSize = DefaultFontSize
				}
				if c.FontColor == "" {
					c.FontColor = DefaultFontColor
				}
			}
		}
	}
}

func defaultClipType(trackType string) string {
	switch trackType {
	case TrackAudio:
		return ClipAudio
	case TrackText:
		return ClipText
	default:
		return ClipVideo
	}
}

// Validate checks every structural invariant of the project and returns the
// first violation found, wrapped in ErrInvalidProject.
func Validate(p *Project) error {
	if p == nil {
		return fmt.Errorf("%w: project is required", ErrInvalidProject)
	}
	if p.Settings.Width <= 0 || p.Settings.Height <= 0 {
		return invalid("settings", "width and height must be positive, got %dx%d", p.Settings.Width, p.Settings.Height)
	}
	if p.Settings.FrameRate < 0 {
		return invalid("settings.frameRate", "must not be negative")
	}

	trackIDs := make(map[string]bool)
	clipIDs := make(map[string]bool)

	for ti, t := range p.Tracks {
		tp := fmt.Sprintf("tracks[%d]", ti)
		if t.ID == "" {
			return invalid(tp+".id", "is required")
		}
		if trackIDs[t.ID] {
			return invalid(tp+".id", "duplicate track id %q", t.ID)
		}
		trackIDs[t.ID] = true

		switch t.Type {
		case TrackVideo, TrackAudio, TrackText:
		default:
			return invalid(tp+".type", "unknown track type %q", t.Type)
		}
		if t.Volume != nil && *t.Volume < 0 {
			return invalid(tp+".volume", "must be >= 0")
		}
		if t.Pan < -1 || t.Pan > 1 {
			return invalid(tp+".pan", "must be within [-1, 1]")
		}

		for ci, c := range t.Clips {
			cp := fmt.Sprintf("%s.clips[%d]", tp, ci)
			if c.ID == "" {
				return invalid(cp+".id", "is required")
			}
			if clipIDs[c.ID] {
				return invalid(cp+".id", "duplicate clip id %q", c.ID)
			}
			clipIDs[c.ID] = true

			if err := validateClip(cp, t.Type, c, p.Settings); err != nil {
				return err
			}
		}
	}

	for mi, m := range p.Markers {
		if m.Time < 0 || math.IsNaN(m.Time) {
			return invalid(fmt.Sprintf("markers[%d].time", mi), "must be >= 0")
		}
	}
	return nil
}

func validateClip(path, trackType string, c Clip, s Settings) error {
	if !clipAllowedOn(trackType, c.Type) {
		return invalid(path+".type", "%s clip not allowed on %s track", c.Type, trackType)
	}
	if c.TimelineStart < 0 || math.IsNaN(c.TimelineStart) {
		return invalid(path+".timelineStart", "must be >= 0")
	}
	if !(c.Duration > 0) {
		return invalid(path+".duration", "must be > 0")
	}
	if c.Start < 0 {
		return invalid(path+".start", "must be >= 0")
	}
	if !(c.Speed > 0) {
		return invalid(path+".speed", "must be > 0")
	}
	if c.HasMedia() && c.Src == "" {
		return invalid(path+".src", "is required for %s clips", c.Type)
	}
	if c.Type == ClipText && c.Text == "" {
		return invalid(path+".text", "is required for text clips")
	}
	if c.Volume != nil && *c.Volume < 0 {
		return invalid(path+".volume", "must be >= 0")
	}

	props := []struct {
		name string
		prop AnimatableProperty
	}{
		{"transform.x", c.Transform.X},
		{"transform.y", c.Transform.Y},
		{"transform.scale", c.Transform.Scale},
		{"opacity", c.Opacity},
	}
	for _, pr := range props {
		if err := validateKeyframes(path+"."+pr.name, pr.prop); err != nil {
			return err
		}
	}

	if k := c.Keying; k != nil && k.Enabled {
		if k.Similarity < 0 || k.Similarity > 1 {
			return invalid(path+".keying.similarity", "must be within [0, 1]")
		}
		if k.Blend < 0 || k.Blend > 1 {
			return invalid(path+".keying.blend", "must be within [0, 1]")
		}
	}
	if tr := c.Transition; tr != nil && tr.Duration < 0 {
		return invalid(path+".transitionOut.duration", "must be >= 0")
	}
	for ei, e := range c.Effects {
		if e.Type == "" {
			return invalid(fmt.Sprintf("%s.effects[%d].type", path, ei), "is required")
		}
	}
	return nil
}

func validateKeyframes(path string, a AnimatableProperty) error {
	for i := 1; i < len(a.Keyframes); i++ {
		if !(a.Keyframes[i].Time > a.Keyframes[i-1].Time) {
			return invalid(path+".keyframes", "times must be strictly increasing (index %d)", i)
		}
	}
	return nil
}

func clipAllowedOn(trackType, clipType string) bool {
	switch trackType {
	case TrackVideo:
		return clipType == ClipVideo || clipType == ClipAdjustment
	case TrackAudio:
		return clipType == ClipAudio
	case TrackText:
		return clipType == ClipText
	}
	return false
}
