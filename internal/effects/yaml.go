package effects

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// TemplatePlugin is an effect declared in a plugin table file. Its filter is
// a text/template evaluated with the resolved parameters as data.
type TemplatePlugin struct {
	desc Descriptor
	tmpl *template.Template
}

type pluginFile struct {
	Plugins []pluginEntry `yaml:"plugins"`
}

type pluginEntry struct {
	Type       string      `yaml:"type"`
	Name       string      `yaml:"name"`
	EffectType string      `yaml:"effect_type"`
	Params     []ParamSpec `yaml:"params"`
	Filter     string      `yaml:"filter"`
}

var templateFuncs = template.FuncMap{
	"add":    func(a, b float64) float64 { return a + b },
	"sub":    func(a, b float64) float64 { return a - b },
	"mul":    func(a, b float64) float64 { return a * b },
	"div":    safeDiv,
	"pi":     func() float64 { return math.Pi },
	"db2lin": DBToLinear,
	"clamp":  func(v, lo, hi float64) float64 { return clamp(v, lo, hi) },
	"num":    num,
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// LoadFile reads a plugin table from a YAML file.
func LoadFile(path string) ([]*TemplatePlugin, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin file: %w", err)
	}
	defer f.Close()

	plugins, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plugins, nil
}

// Load parses a plugin table.
//
//	plugins:
//	  - type: soft_vignette
//	    name: Soft Vignette
//	    effect_type: video
//	    params:
//	      - {key: strength, name: Strength, type: slider, min: 0, max: 1, step: 0.05, default: 0.5}
//	    filter: "vignette=angle={{ num (mul (div pi 2.5) (sub 1 .strength)) }}"
func Load(r io.Reader) ([]*TemplatePlugin, error) {
	var file pluginFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode plugin table: %w", err)
	}

	out := make([]*TemplatePlugin, 0, len(file.Plugins))
	for i, e := range file.Plugins {
		if e.Type == "" {
			return nil, fmt.Errorf("plugins[%d]: type is required", i)
		}
		if strings.TrimSpace(e.Filter) == "" {
			return nil, fmt.Errorf("plugin %q: filter is required", e.Type)
		}
		kind := Kind(e.EffectType)
		if kind != KindVideo && kind != KindAudio {
			return nil, fmt.Errorf("plugin %q: effect_type must be video or audio, got %q", e.Type, e.EffectType)
		}
		tmpl, err := template.New(e.Type).Funcs(templateFuncs).Option("missingkey=error").Parse(e.Filter)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: parse filter: %w", e.Type, err)
		}
		name := e.Name
		if name == "" {
			name = e.Type
		}
		out = append(out, &TemplatePlugin{
			desc: Descriptor{Type: e.Type, Name: name, EffectType: kind, Params: e.Params},
			tmpl: tmpl,
		})
	}
	return out, nil
}

func (t *TemplatePlugin) Describe() Descriptor { return t.desc }

func (t *TemplatePlugin) Build(p Params) (string, error) {
	p = WithDefaults(t.desc, p)
	data := make(map[string]float64, len(p))
	for k, v := range p {
		if f, ok := toFloat(v); ok {
			data[k] = f
		}
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("plugin %q: %w", t.desc.Type, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
