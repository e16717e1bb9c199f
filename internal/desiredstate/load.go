package desiredstate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a resources.yaml-style document from path, then runs
// structural validation. Parsing and I/O are ambient concerns (spec.md calls
// "configuration file parsing" out of scope for the core engine) but still
// live here so the CLI has a single call to make.
func Load(path string) (*DesiredState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading desired state %s: %w", path, err)
	}

	var ds DesiredState
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing desired state %s: %w", path, err)
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}

	return &ds, nil
}

// Dump serializes a DesiredState back to YAML with yaml.Marshal, which emits
// map keys in sorted order: the deployment's document order is not
// preserved (internal/splitter builds its own ordered yaml.Node for that
// reason).
func Dump(ds *DesiredState) ([]byte, error) {
	out, err := yaml.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("serializing desired state: %w", err)
	}
	return out, nil
}
