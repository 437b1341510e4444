// Package scenario loads scenario definitions from YAML files, used to seed
// a fresh deployment from the command line.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"taxinav/internal/model"
)

// Load reads a scenario definition from path. Unknown fields are rejected so
// typos in hand-written files surface immediately.
func Load(path string) (model.ScenarioIn, error) {
	var in model.ScenarioIn
	f, err := os.Open(path)
	if err != nil {
		return in, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("parse %s: %w", path, err)
	}
	if in.Name == "" {
		return in, fmt.Errorf("%s: scenario name is required", path)
	}
	return in, nil
}
