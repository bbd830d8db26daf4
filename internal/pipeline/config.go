// Package pipeline is the "host framework" spec.md §6 assumes around the
// nine passes: a YAML-described, ordered pass list plus a PRNG seed,
// standing in for LLVM's -passname flags and RegisterPass machinery.
// Grounded on kanso's indirect gopkg.in/yaml.v3 and github.com/segmentio/ksuid
// dependencies, promoted to direct use here.
package pipeline

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes one obfuscation run: which registered passes to apply,
// in what order, and the PRNG seed every pass is built from (spec.md §5's
// "seed injection ... for reproducible test vectors").
type Config struct {
	Passes []string `yaml:"passes"`
	Seed   int64    `yaml:"seed"`
}

// LoadConfig reads and parses a YAML pipeline config from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading pipeline config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing pipeline config %s", path)
	}
	return &cfg, nil
}
