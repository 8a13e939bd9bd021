// Package config loads and manages the deck configuration file stored at
// ~/.extdeck/config.yaml, plus .env and environment overrides for
// extension preferences.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigDir is the directory under the user's home for deck state.
const DefaultConfigDir = ".extdeck"

// DefaultConfigFile is the config file name within the config directory.
const DefaultConfigFile = "config.yaml"

// DefaultBridgeAddr is where `deck serve` listens unless configured.
const DefaultBridgeAddr = "127.0.0.1:7420"

// PathEnv overrides the config file location.
const PathEnv = "DECK_CONFIG"

// Config represents the contents of ~/.extdeck/config.yaml.
type Config struct {
	DataDir    string                       `yaml:"data_dir"`
	BridgeAddr string                       `yaml:"bridge_addr"`
	Verbose    bool                         `yaml:"verbose"`
	Extensions map[string]map[string]string `yaml:"extensions,omitempty"`

	path string
}

// Path returns the config file location: $DECK_CONFIG or
// ~/.extdeck/config.yaml.
func Path() (string, error) {
	if p := strings.TrimSpace(os.Getenv(PathEnv)); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Load reads .env from the working directory, if any, and then the config
// file at Path.
func Load() (*Config, error) {
	_ = godotenv.Load()
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.path = path
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DataDir == "" {
		c.DataDir = filepath.Join(filepath.Dir(c.path), "data")
	}
	if strings.HasPrefix(c.DataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("determining home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, c.DataDir[2:])
	}
	if c.BridgeAddr == "" {
		c.BridgeAddr = DefaultBridgeAddr
	}
	if c.Extensions == nil {
		c.Extensions = make(map[string]map[string]string)
	}
	return nil
}

// File returns the path the config was loaded from.
func (c *Config) File() string {
	return c.path
}

// StorePath is the SQLite database holding extension state.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "deck.db")
}

// Save writes the config back to the file it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}

// EnvKey is the environment variable overriding pref of ext, e.g.
// DECK_TODOIST_TOKEN.
func EnvKey(ext, pref string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return "DECK_" + strings.ToUpper(r.Replace(ext)) + "_" + strings.ToUpper(r.Replace(pref))
}

// Preferences merges the file preferences of ext with environment
// overrides for the named preferences. lookup is normally os.LookupEnv.
func (c *Config) Preferences(ext string, names []string, lookup func(string) (string, bool)) map[string]string {
	out := maps.Clone(c.Extensions[ext])
	if out == nil {
		out = make(map[string]string)
	}
	for _, name := range names {
		if v, ok := lookup(EnvKey(ext, name)); ok {
			out[name] = v
		}
	}
	return out
}

// Set assigns a top-level key (data_dir, bridge_addr, verbose) or an
// extension preference written as <extension>.<preference>.
func (c *Config) Set(key, value string) error {
	switch key {
	case "data_dir":
		c.DataDir = value
	case "bridge_addr":
		c.BridgeAddr = value
	case "verbose":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.New("verbose must be true or false")
		}
		c.Verbose = b
	default:
		ext, pref, err := splitPrefKey(key)
		if err != nil {
			return err
		}
		if c.Extensions[ext] == nil {
			c.Extensions[ext] = make(map[string]string)
		}
		c.Extensions[ext][pref] = value
	}
	return nil
}

// Unset removes an extension preference and reports whether it existed.
func (c *Config) Unset(key string) (bool, error) {
	ext, pref, err := splitPrefKey(key)
	if err != nil {
		return false, err
	}
	prefs := c.Extensions[ext]
	if _, ok := prefs[pref]; !ok {
		return false, nil
	}
	delete(prefs, pref)
	if len(prefs) == 0 {
		delete(c.Extensions, ext)
	}
	return true, nil
}

func splitPrefKey(key string) (ext, pref string, err error) {
	ext, pref, ok := strings.Cut(key, ".")
	if !ok || ext == "" || pref == "" {
		return "", "", fmt.Errorf("unknown config key %q (want data_dir, bridge_addr, verbose or <extension>.<preference>)", key)
	}
	return ext, pref, nil
}

// Masked returns a copy with the values of secret preferences replaced.
func (c *Config) Masked(secret func(ext, pref string) bool) *Config {
	out := *c
	out.Extensions = make(map[string]map[string]string, len(c.Extensions))
	for ext, prefs := range c.Extensions {
		m := make(map[string]string, len(prefs))
		for k, v := range prefs {
			if secret(ext, k) && v != "" {
				v = mask(v)
			}
			m[k] = v
		}
		out.Extensions[ext] = m
	}
	return &out
}

func mask(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// PreferenceKeys lists ext.pref keys set in the file, sorted.
func (c *Config) PreferenceKeys() []string {
	var out []string
	for ext, prefs := range c.Extensions {
		for k := range prefs {
			out = append(out, ext+"."+k)
		}
	}
	sort.Strings(out)
	return out
}
