// Package config loads the migration run's configuration from a TOML
// file via github.com/pelletier/go-toml.
package config

import (
	"io/ioutil"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Config is the full set of run parameters read from the TOML config
// file.
type Config struct {
	Architectures  []string       `toml:"architectures"`
	NoBreakArches  []string       `toml:"nobreakarches"`
	DefaultUrgency string         `toml:"default_urgency"`
	MinDays        map[string]int `toml:"min_days"`

	UnstablePath string `toml:"unstable_path"`
	TestingPath  string `toml:"testing_path"`
	StateDir     string `toml:"state_dir"`

	HintsDir string `toml:"hints_dir"`
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	return Parse(data)
}

// Parse parses TOML-encoded configuration data.
func Parse(data []byte) (*Config, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing config TOML")
	}

	cfg := &Config{MinDays: make(map[string]int)}
	if err := tree.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config TOML")
	}
	return cfg, nil
}

// Validate checks that the config is internally consistent: the default
// urgency must have a minimum-days entry, since AgePolicy cannot start
// without one.
func (c *Config) Validate() error {
	if _, ok := c.MinDays[c.DefaultUrgency]; !ok {
		return errors.Errorf("default_urgency %q has no corresponding min_days entry", c.DefaultUrgency)
	}
	return nil
}
