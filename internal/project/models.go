// Package project defines the timeline document submitted by the editor:
// tracks, clips, animatable properties and project settings.
//
// A Project is an immutable snapshot from the point of view of this service.
// Every compile request receives a complete Project and nothing here mutates it
// after Normalize.
package project

import "math"

const (
	TrackVideo = "video"
	TrackAudio = "audio"
	TrackText  = "text"

	ClipVideo      = "video"
	ClipAudio      = "audio"
	ClipText       = "text"
	ClipAdjustment = "adjustment"

	DefaultFontSize  = 48
	DefaultFontColor = "white"
)

type Project struct {
	Name     string   `json:"name,omitempty"`
	Settings Settings `json:"settings"`
	Tracks   []Track  `json:"tracks"`
	Markers  []Marker `json:"markers,omitempty"`
}

type Settings struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frameRate,omitempty"`
}

type Marker struct {
	Time float64 `json:"time"`
	Name string  `json:"name"`
}

// Track is one compositing lane. Volume and Pan only apply to audio tracks.
type Track struct {
	ID     string   `json:"id"`
	Type   string   `json:"type"`
	Clips  []Clip   `json:"clips"`
	Muted  bool     `json:"muted,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
	Pan    float64  `json:"pan,omitempty"`
}

// Gain returns the track volume, defaulting to unity.
func (t Track) Gain() float64 {
	if t.Volume == nil {
		return 1
	}
	return *t.Volume
}

type Clip struct {
	ID               string  `json:"id"`
	Type             string  `json:"type"`
	TimelineStart    float64 `json:"timelineStart"`
	Duration         float64 `json:"duration"`
	Src              string  `json:"src,omitempty"`
	ProxySrc         string  `json:"proxySrc,omitempty"`
	Start            float64 `json:"start"`
	OriginalDuration float64 `json:"originalDuration,omitempty"`
	Speed            float64 `json:"speed,omitempty"`
	Reverse          bool    `json:"reverse,omitempty"`

	Transform  Transform          `json:"transform"`
	Opacity    AnimatableProperty `json:"opacity"`
	Volume     *float64           `json:"volume,omitempty"`
	Effects    []Effect           `json:"effects,omitempty"`
	Filters    LegacyFilters      `json:"filters,omitempty"`
	Mask       *Mask              `json:"mask,omitempty"`
	Keying     *Keying            `json:"keying,omitempty"`
	Color      *ColorCorrection   `json:"color,omitempty"`
	Transition *TransitionOut     `json:"transitionOut,omitempty"`

	Text      string `json:"text,omitempty"`
	FontSize  int    `json:"fontSize,omitempty"`
	FontColor string `json:"fontColor,omitempty"`
}

type Transform struct {
	X     AnimatableProperty `json:"x"`
	Y     AnimatableProperty `json:"y"`
	Scale AnimatableProperty `json:"scale"`
}

// LegacyFilters are the on/off toggles older editor builds send instead of
// effect descriptors.
type LegacyFilters struct {
	Grayscale bool `json:"grayscale,omitempty"`
	Sepia     bool `json:"sepia,omitempty"`
	Invert    bool `json:"invert,omitempty"`
}

type Effect struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Mask struct {
	Enabled bool    `json:"enabled"`
	Path    []Point `json:"path"`
}

// Active reports whether the mask describes a usable polygon.
func (m *Mask) Active() bool {
	return m != nil && m.Enabled && len(m.Path) >= 3
}

type Keying struct {
	Enabled    bool    `json:"enabled"`
	Color      string  `json:"color"`
	Similarity float64 `json:"similarity"`
	Blend      float64 `json:"blend"`
}

type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

func (c RGB) IsZero() bool { return c.R == 0 && c.G == 0 && c.B == 0 }

type ColorWheels struct {
	Shadows    RGB `json:"shadows"`
	Midtones   RGB `json:"midtones"`
	Highlights RGB `json:"highlights"`
}

type ColorCorrection struct {
	Brightness float64     `json:"brightness,omitempty"`
	Contrast   *float64    `json:"contrast,omitempty"`
	Saturation *float64    `json:"saturation,omitempty"`
	Wheels     ColorWheels `json:"wheels"`
	LUT        string      `json:"lut,omitempty"`
	Curve      []Point     `json:"curve,omitempty"`
}

type TransitionOut struct {
	Type     string  `json:"type"`
	Duration float64 `json:"duration"`
}

// End is the exclusive timeline end of the clip.
func (c Clip) End() float64 {
	return c.TimelineStart + c.Duration
}

// Intersects reports whether [TimelineStart, End) overlaps [start, end).
func (c Clip) Intersects(start, end float64) bool {
	return c.End() > start && c.TimelineStart < end
}

// PlaybackSpeed returns the clip speed, treating an unset speed as 1.
func (c Clip) PlaybackSpeed() float64 {
	if c.Speed <= 0 {
		return 1
	}
	return c.Speed
}

// Gain returns the clip volume, defaulting to unity.
func (c Clip) Gain() float64 {
	if c.Volume == nil {
		return 1
	}
	return *c.Volume
}

// SourceIn is the source position played at windowStart, or at the clip's
// first frame when the clip starts inside the window.
func (c Clip) SourceIn(windowStart float64) float64 {
	return c.Start + c.PlaybackSpeed()*math.Max(0, windowStart-c.TimelineStart)
}

// HasMedia reports whether the clip kind reads a source file.
func (c Clip) HasMedia() bool {
	return c.Type == ClipVideo || c.Type == ClipAudio
}

// Duration is the end of the last clip on any track.
func (p *Project) Duration() float64 {
	var d float64
	for _, t := range p.Tracks {
		for _, c := range t.Clips {
			if end := c.End(); end > d {
				d = end
			}
		}
	}
	return d
}
