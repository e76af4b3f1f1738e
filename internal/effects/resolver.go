package effects

import (
	"log/slog"
	"strings"

	"github.com/heimdex/heimdex-render/internal/project"
)

// Resolver maps effect descriptors to filter fragments. It never fails: an
// effect that cannot be resolved contributes nothing to the graph.
type Resolver struct {
	registry *Registry
	logger   *slog.Logger
}

func NewResolver(registry *Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, logger: logger}
}

// Resolve returns the fragment for an effect applied to a stream of the given
// kind. ok is false when the effect contributes nothing.
//
// Plugins take precedence over built-ins, but only when their effect type
// matches the stream kind; otherwise the built-in catalog is consulted. A
// plugin whose Build fails or yields a fragment that would break the
// surrounding graph is skipped with a warning.
func (r *Resolver) Resolve(e project.Effect, kind Kind) (fragment string, ok bool) {
	if p, found := r.registry.Lookup(e.Type); found && p.Describe().EffectType == kind {
		frag, err := p.Build(Params(e.Params))
		if err != nil {
			r.logger.Warn("effect plugin failed", "type", e.Type, "error", err)
			return "", false
		}
		if err := checkFragment(e.Type, frag); err != nil {
			r.logger.Warn("effect plugin rejected", "type", e.Type, "error", err)
			return "", false
		}
		return frag, true
	}

	if b, found := Builtin(e.Type); found {
		if b.Describe().EffectType != kind {
			return "", false
		}
		frag, _ := b.Build(Params(e.Params))
		return frag, true
	}

	return "", false
}

// Chain resolves effects in order and joins the non-empty fragments.
func (r *Resolver) Chain(list []project.Effect, kind Kind) string {
	var parts []string
	for _, e := range list {
		if frag, ok := r.Resolve(e, kind); ok {
			parts = append(parts, frag)
		}
	}
	return strings.Join(parts, ",")
}

// Descriptors lists plugin and built-in effects. A plugin shadows a built-in
// of the same type.
func (r *Resolver) Descriptors() []Descriptor {
	var out []Descriptor
	if r.registry != nil {
		out = r.registry.Descriptors()
	}
	for _, d := range BuiltinDescriptors() {
		if _, shadowed := r.registry.Lookup(d.Type); !shadowed {
			out = append(out, d)
		}
	}
	return out
}

// checkFragment rejects fragments that would escape their chain position.
func checkFragment(effectType, frag string) error {
	if strings.TrimSpace(frag) == "" || strings.ContainsAny(frag, "[];") {
		return &FragmentError{Type: effectType, Fragment: frag}
	}
	return nil
}
