// Package config loads engine configuration from CUE or YAML files, with
// environment variable overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/quorum/internal/engine"
)

// DefaultDatabase is the event log path used when none is configured.
const DefaultDatabase = "quorum.db"

// Config describes one quorum engine deployment.
//
// Owners and Threshold are validated by engine.NewRegistry, not here, so
// that the rules live in one place.
type Config struct {
	Owners    []string `json:"owners" yaml:"owners" env:"QUORUM_OWNERS" envSeparator:","`
	Threshold int      `json:"threshold" yaml:"threshold" env:"QUORUM_THRESHOLD"`
	Database  string   `json:"database,omitempty" yaml:"database,omitempty" env:"QUORUM_DB"`
}

// schemaCUE constrains .cue config files. #Config is closed, so unknown
// fields are rejected the same way the YAML decoder rejects them.
const schemaCUE = `
#Config: {
	owners:    [string, ...string]
	threshold: int & >=1
	database?: string
}
`

// Load reads a config file and applies environment overrides.
// Files ending in .cue are checked against the CUE schema; anything else is
// decoded as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		cfg, err = parseCUE(path, data)
	default:
		cfg, err = parseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a config from environment variables alone.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields with QUORUM_OWNERS, QUORUM_THRESHOLD and
// QUORUM_DB when set. Unset variables leave fields untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	for i, o := range cfg.Owners {
		cfg.Owners[i] = strings.TrimSpace(o)
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	return nil
}

// Registry builds the engine owner registry.
// Returns an error matching engine.ErrInvalidConfiguration for bad owner
// sets or thresholds.
func (c *Config) Registry() (*engine.Registry, error) {
	owners := make([]engine.OwnerID, len(c.Owners))
	for i, o := range c.Owners {
		owners[i] = engine.OwnerID(o)
	}
	return engine.NewRegistry(owners, c.Threshold)
}

func parseCUE(path string, data []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, errors.New(cueerrors.Details(err, nil))
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, errors.New(strings.TrimSpace(cueerrors.Details(err, nil)))
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &cfg, nil
}

func parseYAML(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &cfg, nil
}
