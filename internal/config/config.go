// Package config loads the front-end-facing YAML configuration: colouring
// rules and the readonly flag. The core itself never reads this file —
// it is handed a parsed Config by the CLI layer — but validation
// (compiling regex colouring rules, rejecting malformed documents) lives
// here so a bad config degrades to defaults instead of crashing the
// viewer.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/frank-taylor-lieder/otail/internal/filterspec"
)

// ColourRule pairs a filter predicate with optional foreground/background
// colour names for the front end to apply when the predicate matches a
// line.
type ColourRule struct {
	Enabled    bool
	Spec       filterspec.Spec
	Foreground string
	Background string
}

// Config is the parsed, validated configuration document.
type Config struct {
	Colouring []ColourRule
	ReadOnly  bool
}

// rawRule mirrors the on-disk YAML shape before its pattern/mode pair is
// compiled into a filterspec.Spec.
type rawRule struct {
	Enabled    bool   `mapstructure:"enabled"`
	Pattern    string `mapstructure:"pattern"`
	Mode       string `mapstructure:"mode"`
	Foreground string `mapstructure:"fg"`
	Background string `mapstructure:"bg"`
}

// Default returns the zero Config: no colouring rules and ReadOnly
// false. Load returns it for an empty path and alongside every error.
func Default() Config {
	return Config{}
}

// Discover probes the conventional config locations in order: the
// current directory's otail.yaml, then $HOME/.config/otail.yaml. It
// returns "" if neither exists.
func Discover() string {
	if _, err := os.Stat("otail.yaml"); err == nil {
		return "otail.yaml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".config", "otail.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Load reads and validates the YAML document at path. An empty path is
// not an error: it simply yields Default(). A malformed or unreadable
// file at a non-empty path returns Default() alongside the error so
// callers can fall back to a read-only session with default colouring
// exactly as an external front end is expected to.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return Default(), fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc struct {
		Colouring []rawRule `mapstructure:"colouring"`
		ReadOnly  bool      `mapstructure:"readonly"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := Config{ReadOnly: doc.ReadOnly}
	for _, r := range doc.Colouring {
		mode, err := parseMode(r.Mode)
		if err != nil {
			return Default(), fmt.Errorf("config: %s: colouring rule %q: %w", path, r.Pattern, err)
		}
		spec, err := filterspec.New(mode, r.Pattern)
		if err != nil {
			return Default(), fmt.Errorf("config: %s: colouring rule %q: %w", path, r.Pattern, err)
		}
		cfg.Colouring = append(cfg.Colouring, ColourRule{
			Enabled:    r.Enabled,
			Spec:       spec,
			Foreground: r.Foreground,
			Background: r.Background,
		})
	}
	return cfg, nil
}

func parseMode(s string) (filterspec.Mode, error) {
	switch s {
	case "", "sensitive", "case_sensitive":
		return filterspec.CaseSensitive, nil
	case "insensitive", "case_insensitive":
		return filterspec.CaseInsensitive, nil
	case "regex":
		return filterspec.Regex, nil
	default:
		return 0, fmt.Errorf("unknown colouring mode %q", s)
	}
}
