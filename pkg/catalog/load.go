package catalog

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML catalog definition and validates it.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog definition. Unknown keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("could not decode catalog: %w", err)
	}
	return New(def)
}

// Marshal renders the catalog definition back to YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c.def)
}
