package plugin

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Resolved is the (processor path, config path) pair PluginResolver produces.
type Resolved struct {
	ProcessorPath string
	ConfigPath    string
}

// Resolver turns a short processor name into a fully-qualified path plus its
// companion config schema path. Resolutions are
// cached: a long-running Service that reconfigures repeatedly should not
// re-walk the registry on every resolve call.
type Resolver struct {
	cache *lru.Cache[string, Resolved]
}

// NewResolver creates a Resolver with an LRU cache of the given size.
func NewResolver(cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	c, err := lru.New[string, Resolved](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("plugin: creating resolver cache: %w", err)
	}
	return &Resolver{cache: c}, nil
}

// Resolve treats a dotted input as already
// resolved; a bare name is looked up in the static registry. Unlike the
// source's directory walk, a broken registration can never exist here — a
// Go package either compiles and registers in its init(), or it isn't in the
// binary at all — so the "skip broken siblings" edge case has no Go
// equivalent; see DESIGN.md.
func (r *Resolver) Resolve(name string) (Resolved, error) {
	if cached, ok := r.cache.Get(name); ok {
		return cached, nil
	}

	var out Resolved
	if strings.Contains(name, ".") {
		if reg, ok := lookupByPath(name); ok {
			out = Resolved{ProcessorPath: reg.Path, ConfigPath: configPathOrDefault(reg)}
		} else {
			out = Resolved{ProcessorPath: name, ConfigPath: defaultConfigPath()}
		}
		r.cache.Add(name, out)
		return out, nil
	}

	reg, ok := lookupByName(name)
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %s", ErrUnresolvedComponent, name)
	}
	out = Resolved{ProcessorPath: reg.Path, ConfigPath: configPathOrDefault(reg)}
	r.cache.Add(name, out)
	return out, nil
}

func configPathOrDefault(reg Registration) string {
	if reg.ConfigPath != "" {
		return reg.ConfigPath
	}
	return defaultConfigPath()
}
