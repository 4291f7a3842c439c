// Package builtin registers a handful of reference processors used by the
// runtime's own tests to exercise the engine's broadcast, failure-tolerance,
// and reconfigure paths without depending on an external detection library.
// Real readers/parsers/detectors are out of scope and are
// expected to live in their own packages, registering via plugin.Register
// from their own init().
package builtin

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ait-detectmate/detectmate-go/internal/plugin"
)

func init() {
	plugin.Register("Uppercase", plugin.Registration{
		Factory: func(config map[string]any) (any, error) {
			return &uppercaseProcessor{}, nil
		},
	})
	plugin.Register("Discard", plugin.Registration{
		Factory: func(config map[string]any) (any, error) {
			return &discardProcessor{}, nil
		},
	})
	plugin.Register("Alternator", plugin.Registration{
		Factory: func(config map[string]any) (any, error) {
			return &alternatingProcessor{}, nil
		},
	})
}

// uppercaseProcessor implements the "Single output echo" / "Broadcast"
// scenarios: PROCESSED: <INPUT UPPERCASED>.
type uppercaseProcessor struct{}

func (p *uppercaseProcessor) Process(_ context.Context, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("PROCESSED: ")
	buf.Write(bytes.ToUpper(payload))
	return buf.Bytes(), nil
}

// discardProcessor implements the "Processor returns null" scenario.
type discardProcessor struct{}

func (p *discardProcessor) Process(_ context.Context, _ []byte) ([]byte, error) {
	return nil, nil
}

// alternatingProcessor implements the detector-alternation scenario: every
// other invocation detects (returns a non-empty payload), the rest are
// silent. State lives on the instance since the engine is its sole caller.
type alternatingProcessor struct {
	calls int
}

func (p *alternatingProcessor) Process(_ context.Context, payload []byte) ([]byte, error) {
	p.calls++
	if p.calls%2 == 0 {
		return []byte(fmt.Sprintf(`{"detected": true, "input": %q}`, payload)), nil
	}
	return nil, nil
}
