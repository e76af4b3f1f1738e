package effects

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the plugins available to the resolver. It is built once at
// startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]EffectPlugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]EffectPlugin)}
}

// Register adds a plugin. Types are unique; registering a type twice fails.
func (r *Registry) Register(p EffectPlugin) error {
	d := p.Describe()
	if d.Type == "" {
		return fmt.Errorf("plugin %q has no type", d.Name)
	}
	if d.EffectType != KindVideo && d.EffectType != KindAudio {
		return fmt.Errorf("plugin %q: effectType must be video or audio, got %q", d.Type, d.EffectType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[d.Type]; exists {
		return fmt.Errorf("plugin %q already registered", d.Type)
	}
	r.plugins[d.Type] = p
	return nil
}

func (r *Registry) Lookup(effectType string) (EffectPlugin, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[effectType]
	return p, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Descriptors returns plugin descriptors sorted by type.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p.Describe())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
