package plugin

import "fmt"

// Loader instantiates a processor from a fully-qualified path produced by
// Resolver.Resolve. It is stateless: every field it needs travels in the
// call.
type Loader struct{}

// NewLoader returns a ready-to-use Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load looks up path in the static registry (the Go substitute for module
// import), instantiates with config, and verifies the instance conforms to
// Processor.
func (l *Loader) Load(path string, config map[string]any) (Processor, error) {
	reg, ok := lookupByPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportFailed, path)
	}

	instance, err := reg.Factory(config)
	if err != nil {
		return nil, fmt.Errorf("plugin: instantiating %s: %w", path, err)
	}

	proc, ok := instance.(Processor)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not implement Process(ctx, []byte) ([]byte, error)", ErrTypeMismatch, path)
	}
	return proc, nil
}

// ConfigSchema returns the schema registered alongside path, if any.
func (l *Loader) ConfigSchema(configPath string) (Registration, bool) {
	return lookupByPath(configPath)
}
