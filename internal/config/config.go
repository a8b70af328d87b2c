// Package config loads the YAML configuration layered over a global
// file and a per-project file, with environment variable overrides for
// API keys (spec §6 EXPANSION). Grounded on the teacher's
// internal/config/config.go priority-merge shape (global < project <
// environment), adapted from JSON/JSONC to YAML per the spec's
// concrete shape and using gopkg.in/yaml.v3 instead of encoding/json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aidev/agentcore/internal/permission"
	"github.com/aidev/agentcore/pkg/types"
)

// ModelConfig describes one entry of the `models` map (spec §6).
type ModelConfig struct {
	Provider         string  `yaml:"provider"`
	Temperature      float64 `yaml:"temperature"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
}

// PermissionsConfig is the raw `permissions` block, parsed into rule
// strings; internal/permission.ParseRules compiles them.
type PermissionsConfig struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
	Ask   []string `yaml:"ask"`
}

// Config is the fully merged configuration (spec §6 EXPANSION).
type Config struct {
	DefaultModel string                 `yaml:"default_model"`
	Models       map[string]ModelConfig `yaml:"models"`
	Permissions  PermissionsConfig      `yaml:"permissions"`
	APIKeys      map[string]string      `yaml:"api_keys"`
}

// RuleSet builds a permission.RuleSet from the parsed permissions
// block.
func (c *Config) RuleSet() permission.RuleSet {
	return permission.NewRuleSet(c.Permissions.Allow, c.Permissions.Deny, c.Permissions.Ask)
}

// Model resolves name (or c.DefaultModel if name is empty) to its
// ModelConfig.
func (c *Config) Model(name string) (ModelConfig, error) {
	if name == "" {
		name = c.DefaultModel
	}
	m, ok := c.Models[name]
	if !ok {
		return ModelConfig{}, &types.ConfigError{Msg: fmt.Sprintf("model %q is not configured", name)}
	}
	return m, nil
}

const configFileName = "config.yaml"

// GlobalDir returns the global config directory, `~/.config/agentcore`.
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentcore")
}

// ProjectDir returns the project config directory, `<directory>/.agentcore`.
func ProjectDir(directory string) string {
	return filepath.Join(directory, ".agentcore")
}

// Load reads the global config, then the project config (each entry
// overriding the same key from the one before), then expands
// `${ENV_VAR}` references in api_keys (spec §6 EXPANSION priority:
// "global config < project config < environment").
func Load(directory string) (*Config, error) {
	cfg := &Config{
		Models:  make(map[string]ModelConfig),
		APIKeys: make(map[string]string),
	}

	if err := mergeFile(cfg, filepath.Join(GlobalDir(), configFileName)); err != nil {
		return nil, err
	}
	if directory != "" {
		if err := mergeFile(cfg, filepath.Join(ProjectDir(directory), configFileName)); err != nil {
			return nil, err
		}
	}

	expandAPIKeys(cfg)
	return cfg, nil
}

// mergeFile loads path, if present, and merges it over cfg. A missing
// file is not an error (spec: layered config, any layer may be
// absent); a present-but-malformed file is a ConfigError (spec §7:
// "a fatal, once-surfaced startup failure... a malformed
// permission/agent rule").
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &types.ConfigError{Msg: fmt.Sprintf("read %s", path), Err: err}
	}

	var layer Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return &types.ConfigError{Msg: fmt.Sprintf("parse %s", path), Err: err}
	}

	mergeInto(cfg, &layer)
	return nil
}

func mergeInto(target, source *Config) {
	if source.DefaultModel != "" {
		target.DefaultModel = source.DefaultModel
	}
	for name, model := range source.Models {
		target.Models[name] = model
	}
	if len(source.Permissions.Allow) > 0 {
		target.Permissions.Allow = source.Permissions.Allow
	}
	if len(source.Permissions.Deny) > 0 {
		target.Permissions.Deny = source.Permissions.Deny
	}
	if len(source.Permissions.Ask) > 0 {
		target.Permissions.Ask = source.Permissions.Ask
	}
	for provider, key := range source.APIKeys {
		target.APIKeys[provider] = key
	}
}

var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandAPIKeys replaces every `${ENV_VAR}` reference in api_keys with
// the named environment variable's value, leaving the reference
// literal if the variable is unset (spec §6: "${ANTHROPIC_API_KEY}").
func expandAPIKeys(cfg *Config) {
	for provider, raw := range cfg.APIKeys {
		cfg.APIKeys[provider] = envRefRe.ReplaceAllStringFunc(raw, func(ref string) string {
			name := envRefRe.FindStringSubmatch(ref)[1]
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			return ref
		})
	}
}

// Validate reports a ConfigError for any api_keys entry that still
// contains an unexpanded `${...}` reference, i.e. the referenced
// environment variable was never set (spec §7).
func (c *Config) Validate() error {
	for provider, key := range c.APIKeys {
		if envRefRe.MatchString(key) {
			return &types.ConfigError{Msg: fmt.Sprintf("api_keys.%s references an unset environment variable: %s", provider, strings.TrimSpace(key))}
		}
	}
	return nil
}
