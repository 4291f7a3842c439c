package plugin

import (
	"fmt"
	"sync"

	"github.com/ait-detectmate/detectmate-go/internal/configstore"
)

// Factory instantiates a processor from a decoded configuration payload. It
// returns any rather than Processor directly so that Loader performs a real
// capability check, mirroring the source's
// isinstance check at load time rather than trusting the registration.
type Factory func(config map[string]any) (any, error)

// Registration is one entry in the static plugin registry.
type Registration struct {
	// Path is this processor's fully-qualified name, in the
	// "<namespace>.<Name>" form the resolver and loader exchange.
	Path string
	// ConfigPath is the companion config schema's fully-qualified name, or
	// "" to fall back to the default minimal schema.
	ConfigPath string
	Factory    Factory
	Schema     configstore.Schema
}

const registryRoot = "detectmate.plugin.builtin"

var (
	registryMu sync.RWMutex
	byName     = map[string]Registration{}
	byPath     = map[string]Registration{}
)

// Register adds a processor under its short name to the static registry. It
// is intended to be called from an init() function of a package under
// internal/plugin/builtin (or an external plugin package compiled into the
// binary), the Go analogue of the source's namespace-walk discovery.
func Register(shortName string, reg Registration) {
	if reg.Path == "" {
		reg.Path = registryRoot + "." + shortName
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	byName[shortName] = reg
	byPath[reg.Path] = reg
}

func lookupByName(name string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := byName[name]
	return reg, ok
}

func lookupByPath(path string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := byPath[path]
	return reg, ok
}

// resetForTest clears the registry. Only used by _test.go files in this
// package to isolate registration side effects between test cases.
func resetForTest() {
	registryMu.Lock()
	defer registryMu.Unlock()
	byName = map[string]Registration{}
	byPath = map[string]Registration{}
}

func defaultConfigPath() string {
	return fmt.Sprintf("%s.%s", registryRoot, "DefaultConfig")
}
