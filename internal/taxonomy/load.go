package taxonomy

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

type document struct {
	Entries []Entry `yaml:"entries"`
}

// Parse decodes a YAML catalog of the form `entries: [...]`. Unknown keys are rejected.
func Parse(r io.Reader) (*Taxonomy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("taxonomy: decode yaml: %w", err)
	}
	return New(doc.Entries)
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Taxonomy, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Default returns the built-in pharmaceutical customer-question catalog.
func Default() *Taxonomy {
	t, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy is invalid: %v", err))
	}
	return t
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
