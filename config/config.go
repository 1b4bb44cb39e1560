// Package config loads the convopipe configuration surface: deny-list
// entries, content length limit, sentiment window capacity, the
// keyword→tool route table and the tool timeout.
//
// Source priority (highest to lowest):
//  1. Environment variables (CONVOPIPE_LOG_LEVEL)
//  2. Config file passed to Load
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse naturally.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(td)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Route is one priority-ordered entry of the keyword→tool table. Query
// optionally pins the knowledge-base query for the route; tools with
// richer argument needs get their builders attached by the support
// package.
type Route struct {
	Tool     string   `yaml:"tool"`
	Keywords []string `yaml:"keywords"`
	Query    string   `yaml:"query,omitempty"`
}

// Config is the full recognized option surface.
type Config struct {
	// LogLevel: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// DenyList entries are matched as case-insensitive substrings.
	DenyList []string `yaml:"deny_list"`
	// MaxContentLength is the truncation limit L in characters.
	MaxContentLength int `yaml:"max_content_length"`
	// SentimentWindow is the rolling window capacity N.
	SentimentWindow int `yaml:"sentiment_window"`
	// ToolTimeout bounds a single tool invocation.
	ToolTimeout Duration `yaml:"tool_timeout"`
	// Routes is the keyword→tool priority table. Empty uses the stock table.
	Routes []Route `yaml:"routes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:         "info",
		DenyList:         []string{"<script>", "DROP TABLE", "DELETE FROM", "../../"},
		MaxContentLength: 5000,
		SentimentWindow:  100,
		ToolTimeout:      Duration(30 * time.Second),
	}
}

// Load reads path and merges it over the defaults. A missing file is an
// error; pass an empty path to get defaults plus env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if lvl := os.Getenv("CONVOPIPE_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
}

func (c *Config) validate() error {
	if c.MaxContentLength < 0 {
		return fmt.Errorf("max_content_length must not be negative")
	}
	if c.SentimentWindow < 0 {
		return fmt.Errorf("sentiment_window must not be negative")
	}
	for i, r := range c.Routes {
		if r.Tool == "" {
			return fmt.Errorf("route %d: tool must not be empty", i)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("route %d (%s): keywords must not be empty", i, r.Tool)
		}
	}
	return nil
}
