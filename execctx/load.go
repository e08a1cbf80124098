package execctx

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a Context from a JSON file, mirroring the teacher's
// spec.LoadSpec(path) pattern: read the whole file, then unmarshal.
func Load(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context %s: %w", path, err)
	}
	ctx := NewDefaultContext()
	if err := json.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("parse context %s: %w", path, err)
	}
	return ctx, nil
}

// Save writes the context as indented JSON.
func (c *Context) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadYAML reads a Context from a YAML authoring file. This is a
// convenience front-end, not a spec-required format: it decodes onto a
// default context so unspecified fields keep their documented defaults.
func LoadYAML(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context %s: %w", path, err)
	}
	ctx := NewDefaultContext()
	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("parse context %s: %w", path, err)
	}
	return ctx, nil
}

// SaveYAML writes the context as YAML.
func (c *Context) SaveYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadParameters reads Parameters from a JSON file (used by the
// `execd pipeline-step` re-exec target to receive its per-invocation
// inputs across the fork boundary when they are too large for argv/env).
func LoadParameters(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameters %s: %w", path, err)
	}
	p := NewParameters("")
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse parameters %s: %w", path, err)
	}
	return p, nil
}

// Save writes Parameters as indented JSON.
func (p *Parameters) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
