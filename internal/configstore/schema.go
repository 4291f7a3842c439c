package configstore

import "fmt"

// FieldKind enumerates the value kinds the minimal schema validator
// understands. There is no JSON-schema validation library anywhere in the
// retrieved reference set (only a schema *generator*, invopop/jsonschema,
// turns up as an indirect dependency of one example) so this is a small,
// purpose-built structural validator over decoded YAML/JSON trees — see
// DESIGN.md for the full justification.
type FieldKind int

const (
	KindAny FieldKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindObject
	KindArray
)

// Field describes one node of a configuration schema.
type Field struct {
	Kind       FieldKind
	Required   bool
	Default    any
	Properties map[string]Field // for KindObject
	Items      *Field           // for KindArray
}

// Schema is the root of a configuration tree's structural contract. The
// runtime never materializes a fully-defaulted instance of it into the
// persisted tree: SynthesizeDefault() is used only to synthesize the very first
// on-disk file when none exists, never to backfill an existing tree, which
// is what keeps ConfigStore's save path minimal-form (see store.go).
type Schema struct {
	Root Field
}

// Default returns a minimal schema: an open object with no required keys,
// matching the source's fallback CoreConfig when no schema is supplied.
func Default() Schema {
	return Schema{Root: Field{Kind: KindObject, Properties: map[string]Field{}}}
}

// Validate checks tree against the schema. tree is nil-safe: a nil tree is
// valid only if the root has no required properties.
func (s Schema) Validate(tree map[string]any) error {
	return validateObject(s.Root, tree, "$")
}

// SynthesizeDefault builds the default value for the schema, used only when
// ConfigStore.Load finds no backing file.
func (s Schema) SynthesizeDefault() map[string]any {
	out, _ := defaultValue(s.Root).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func defaultValue(f Field) any {
	if f.Default != nil {
		return f.Default
	}
	switch f.Kind {
	case KindObject:
		m := map[string]any{}
		for name, sub := range f.Properties {
			if sub.Required || sub.Default != nil {
				m[name] = defaultValue(sub)
			}
		}
		return m
	case KindArray:
		return []any{}
	case KindString:
		return ""
	case KindInt:
		return 0
	case KindFloat:
		return 0.0
	case KindBool:
		return false
	default:
		return nil
	}
}

func validateObject(f Field, tree map[string]any, path string) error {
	if f.Kind != KindObject {
		return nil
	}
	for name, sub := range f.Properties {
		v, present := tree[name]
		if !present {
			if sub.Required {
				return fmt.Errorf("configstore: %s.%s is required", path, name)
			}
			continue
		}
		if err := validateValue(sub, v, path+"."+name); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(f Field, v any, path string) error {
	switch f.Kind {
	case KindAny:
		return nil
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("configstore: %s must be a string, got %T", path, v)
		}
	case KindInt:
		switch v.(type) {
		case int, int64, float64:
			return nil
		default:
			return fmt.Errorf("configstore: %s must be an integer, got %T", path, v)
		}
	case KindFloat:
		switch v.(type) {
		case int, int64, float64:
			return nil
		default:
			return fmt.Errorf("configstore: %s must be a number, got %T", path, v)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("configstore: %s must be a bool, got %T", path, v)
		}
	case KindObject:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("configstore: %s must be an object, got %T", path, v)
		}
		return validateObject(f, m, path)
	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("configstore: %s must be an array, got %T", path, v)
		}
		if f.Items != nil {
			for i, elem := range arr {
				if err := validateValue(*f.Items, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
