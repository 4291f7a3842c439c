// Package configstore implements ConfigStore: a single-writer, schema-
// validated configuration tree with atomic update and minimal-form YAML
// persistence.
package configstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNoSchema is returned by Load when the backing file is missing and the
// store was built without a schema, so no default can be synthesized.
var ErrNoSchema = errors.New("configstore: no schema to synthesize a default from")

// ConfigStore holds at most one current configuration value, protected by a
// single-writer lock. It is never mutated on a failed load, update, or save.
type ConfigStore struct {
	path   string
	schema Schema
	logger *slog.Logger

	mu      sync.RWMutex
	current *yaml.Node // nil until a successful Load or Update
}

// New creates a ConfigStore backed by path, validating against schema. It
// does not load; call Load explicitly.
func New(path string, schema Schema, logger *slog.Logger) *ConfigStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigStore{path: path, schema: schema, logger: logger}
}

// Load reads the backing file. If it is absent, the schema's default value is
// synthesized, persisted, and installed. A YAML decode error or a schema
// violation fails the operation without mutating the current value.
func (c *ConfigStore) Load() error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		c.logger.Info("configstore: backing file absent, synthesizing default", "path", c.path)
		def := c.schema.SynthesizeDefault()
		node, err := toNode(def)
		if err != nil {
			return fmt.Errorf("configstore: synthesizing default: %w", err)
		}
		if err := c.writeNode(node); err != nil {
			return err
		}
		c.mu.Lock()
		c.current = node
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("configstore: reading %s: %w", c.path, err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("configstore: decoding %s: %w", c.path, err)
	}
	root := documentRoot(&node)

	tree, err := nodeToGeneric(root)
	if err != nil {
		return fmt.Errorf("configstore: %w", err)
	}
	if err := c.schema.Validate(tree); err != nil {
		return err
	}

	c.mu.Lock()
	c.current = root
	c.mu.Unlock()
	return nil
}

// Get returns the current value, or nil if never loaded. The returned map is
// a fresh snapshot decoded from the stored node; mutating it does not affect
// the store.
func (c *ConfigStore) Get() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	tree, err := nodeToGeneric(c.current)
	if err != nil {
		// current only ever holds a node decoded from valid YAML or encoded
		// from a validated tree, so this would indicate memory corruption,
		// not a user-facing error.
		c.logger.Error("configstore: snapshot decode failed", "error", err)
		return nil
	}
	return tree
}

// Update validates tree against the schema and atomically swaps it in as the
// current value. On validation failure the previous value is retained.
func (c *ConfigStore) Update(tree map[string]any) error {
	if err := c.schema.Validate(tree); err != nil {
		return err
	}
	node, err := toNode(tree)
	if err != nil {
		return fmt.Errorf("configstore: encoding update: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		replaceMapping(c.current, node)
	} else {
		c.current = node
	}
	return nil
}

// Save serializes tree (or the current value if tree is nil) to the backing
// path as YAML, creating the parent directory if missing. The dump is
// minimal-form: because ConfigStore only ever installs user-supplied keys
// into its node (see Update and replaceMapping), nothing here re-adds schema
// defaults that the caller did not themselves provide.
func (c *ConfigStore) Save(tree map[string]any) error {
	var node *yaml.Node
	if tree != nil {
		n, err := toNode(tree)
		if err != nil {
			return fmt.Errorf("configstore: encoding save: %w", err)
		}
		node = n
	} else {
		c.mu.RLock()
		node = c.current
		c.mu.RUnlock()
		if node == nil {
			return nil
		}
	}
	return c.writeNode(node)
}

func (c *ConfigStore) writeNode(node *yaml.Node) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("configstore: creating %s: %w", dir, err)
	}

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("configstore: creating %s: %w", tmp, err)
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	encErr := enc.Encode(node)
	closeErr := enc.Close()
	fCloseErr := f.Close()

	if encErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("configstore: encoding %s: %w", c.path, encErr)
	}
	if closeErr != nil || fCloseErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("configstore: writing %s: %w", c.path, errors.Join(closeErr, fCloseErr))
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("configstore: renaming into place %s: %w", c.path, err)
	}
	return nil
}

func documentRoot(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return n.Content[0]
	}
	return n
}

// toNode encodes v into a *yaml.Node. yaml.v3 marshals plain Go maps with a
// deterministic (lexically sorted) key order, which is the best available
// ordering for trees with no prior node to preserve order from — e.g. admin
// reconfigure payloads decoded from JSON, which carries no key order of its
// own either.
func toNode(v map[string]any) (*yaml.Node, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return documentRoot(&node), nil
}

func nodeToGeneric(n *yaml.Node) (map[string]any, error) {
	var tree map[string]any
	if err := n.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return normalize(tree).(map[string]any), nil
}

// normalize recursively converts map[any]any (which yaml.v3 can still
// produce for nested anonymous maps when decoding through Node.Decode) into
// map[string]any so schema validation and JSON re-encoding see a uniform
// shape.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprintf("%v", k)] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	default:
		return v
	}
}

// replaceMapping replaces dst's content with src's wholesale: this is a real
// swap, not a merge — a key present in dst but absent from src does not
// survive. dst's existing key order is reused only as a preference for keys
// that appear in both (so an update that doesn't touch a key's position
// doesn't reshuffle the file); keys only in src are appended in their src
// order. Both nodes are expected to be yaml.MappingNode; if either is not,
// dst becomes src outright.
func replaceMapping(dst, src *yaml.Node) {
	if dst.Kind != yaml.MappingNode || src.Kind != yaml.MappingNode {
		*dst = *src
		return
	}

	srcByKey := make(map[string]*yaml.Node, len(src.Content)/2)
	for i := 0; i+1 < len(src.Content); i += 2 {
		srcByKey[src.Content[i].Value] = src.Content[i+1]
	}

	placed := make(map[string]bool, len(srcByKey))
	content := make([]*yaml.Node, 0, len(src.Content))
	for i := 0; i+1 < len(dst.Content); i += 2 {
		key := dst.Content[i].Value
		if val, ok := srcByKey[key]; ok {
			content = append(content, dst.Content[i], val)
			placed[key] = true
		}
	}
	for i := 0; i+1 < len(src.Content); i += 2 {
		key := src.Content[i]
		if !placed[key.Value] {
			content = append(content, key, src.Content[i+1])
		}
	}

	dst.Content = content
}
