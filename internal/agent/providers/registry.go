package providers

import (
	"errors"
	"fmt"
	"sort"

	errx "github.com/lessonforge/server/internal/core/error"
)

type key struct {
	name       string
	capability Capability
}

// Registry indexes adapters by (name, capability). It is read-only once built
// and safe for concurrent use.
type Registry struct {
	entries  map[key]any
	defaults map[Capability]string
}

// RegistryBuilder collects adapters before the registry is frozen.
type RegistryBuilder struct {
	entries  map[key]any
	defaults map[Capability]string
	errs     []error
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		entries:  map[key]any{},
		defaults: map[Capability]string{},
	}
}

func (b *RegistryBuilder) Agent(name string, a StructuredAgent) *RegistryBuilder {
	return b.register(name, CapabilityStructuredAgent, a)
}

func (b *RegistryBuilder) Text(name string, t TextCompleter) *RegistryBuilder {
	return b.register(name, CapabilityTextCompletion, t)
}

func (b *RegistryBuilder) Image(name string, g ImageGenerator) *RegistryBuilder {
	return b.register(name, CapabilityImageGeneration, g)
}

func (b *RegistryBuilder) Narration(name string, g NarrationGenerator) *RegistryBuilder {
	return b.register(name, CapabilityNarrationGeneration, g)
}

// Default names the adapter ResolveOrDefault falls back to for c.
func (b *RegistryBuilder) Default(c Capability, name string) *RegistryBuilder {
	b.defaults[c] = name
	return b
}

func (b *RegistryBuilder) register(name string, c Capability, adapter any) *RegistryBuilder {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("register %s adapter: empty name", c))
		return b
	}
	if adapter == nil {
		b.errs = append(b.errs, fmt.Errorf("register %s adapter %q: nil adapter", c, name))
		return b
	}
	k := key{name: name, capability: c}
	if _, dup := b.entries[k]; dup {
		b.errs = append(b.errs, fmt.Errorf("register %s adapter %q: already registered", c, name))
		return b
	}
	b.entries[k] = adapter
	return b
}

// Build freezes the registry. Registration errors and defaults that point at
// unregistered adapters are reported together.
func (b *RegistryBuilder) Build() (*Registry, error) {
	errs := append([]error(nil), b.errs...)
	caps := make([]string, 0, len(b.defaults))
	for c := range b.defaults {
		caps = append(caps, string(c))
	}
	sort.Strings(caps)
	for _, c := range caps {
		name := b.defaults[Capability(c)]
		if _, ok := b.entries[key{name: name, capability: Capability(c)}]; !ok {
			errs = append(errs, fmt.Errorf("default %s adapter %q is not registered", c, name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	r := &Registry{
		entries:  make(map[key]any, len(b.entries)),
		defaults: make(map[Capability]string, len(b.defaults)),
	}
	for k, v := range b.entries {
		r.entries[k] = v
	}
	for k, v := range b.defaults {
		r.defaults[k] = v
	}
	return r, nil
}

// Resolve returns the adapter registered as name for capability c.
func Resolve[P any](r *Registry, c Capability, name string) (P, error) {
	var zero P
	v, ok := r.entries[key{name: name, capability: c}]
	if !ok {
		return zero, errx.UnknownProvider(string(c), name)
	}
	p, ok := v.(P)
	if !ok {
		return zero, errx.UnknownProvider(string(c), name)
	}
	return p, nil
}

// ResolveOrDefault resolves name, or the configured default for c when name is empty.
func ResolveOrDefault[P any](r *Registry, c Capability, name string) (P, error) {
	if name == "" {
		name = r.defaults[c]
	}
	return Resolve[P](r, c, name)
}

func (r *Registry) ResolveAgent(name string) (StructuredAgent, error) {
	return Resolve[StructuredAgent](r, CapabilityStructuredAgent, name)
}

func (r *Registry) ResolveText(name string) (TextCompleter, error) {
	return Resolve[TextCompleter](r, CapabilityTextCompletion, name)
}

func (r *Registry) ResolveImage(name string) (ImageGenerator, error) {
	return Resolve[ImageGenerator](r, CapabilityImageGeneration, name)
}

func (r *Registry) ResolveNarration(name string) (NarrationGenerator, error) {
	return Resolve[NarrationGenerator](r, CapabilityNarrationGeneration, name)
}

// Names lists the registered adapter names for c in sorted order.
func (r *Registry) Names(c Capability) []string {
	var out []string
	for k := range r.entries {
		if k.capability == c {
			out = append(out, k.name)
		}
	}
	sort.Strings(out)
	return out
}
