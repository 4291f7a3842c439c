// Package plugin resolves, loads, and statically registers processors: the
// Go-idiomatic replacement for the source's dynamic namespace walk — a
// compiled-language port naturally prefers a static registry over a runtime
// directory scan.
package plugin

import (
	"context"
	"errors"
)

// Processor is the capability every loaded component must satisfy: it
// transforms one message into zero or one result. Returning (nil, nil) means
// "skip broadcast for this message".
type Processor interface {
	Process(ctx context.Context, payload []byte) ([]byte, error)
}

// TypedProcessor lets a processor declare its own component_type. Nothing in
// the runtime consults it: service.New derives the component identity from
// Settings.ComponentType alone, before the processor is loaded.
type TypedProcessor interface {
	Processor
	ComponentType() string
}

// ErrUnresolvedComponent is returned by Resolver.Resolve when no registered
// processor matches a short name.
var ErrUnresolvedComponent = errors.New("plugin: unresolved-component")

// ErrImportFailed is returned by Loader.Load when a fully-qualified path
// does not match any registered processor.
var ErrImportFailed = errors.New("plugin: import-failed")

// ErrTypeMismatch is returned by Loader.Load when a registered factory's
// product does not satisfy Processor.
var ErrTypeMismatch = errors.New("plugin: type-mismatch")
