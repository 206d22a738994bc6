// CLAUDE:SUMMARY Defines darkzap config structs and parses YAML configuration files with defaults.
// Package config handles darkzap configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/selector"
)

// Config is the top-level darkzap configuration.
type Config struct {
	DBPath        string        `yaml:"db_path"`
	Listen        string        `yaml:"listen"`
	LogLevel      string        `yaml:"log_level"` // debug | info | warn | error
	DefaultLevel  *int          `yaml:"default_level"`
	Viewport      dom.Size      `yaml:"viewport"`
	Editor        dom.Size      `yaml:"editor"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	Browser       BrowserConfig `yaml:"browser"`
	Pages         []PageConfig  `yaml:"pages"`
}

// BrowserConfig controls Chrome for live pages.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Timeout          time.Duration `yaml:"timeout"`
}

// PageConfig defines a page opened at startup: a local HTML file or a URL.
type PageConfig struct {
	ID   string `yaml:"id"`
	HTML string `yaml:"html"`
	URL  string `yaml:"url"`
	Host string `yaml:"host"`
}

// LoadFile reads a YAML configuration file. Relative page paths are resolved
// against the file's directory.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i := range cfg.Pages {
		if p := cfg.Pages[i].HTML; p != "" && !filepath.IsAbs(p) {
			cfg.Pages[i].HTML = filepath.Join(dir, p)
		}
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Level returns the configured default specificity level.
func (c *Config) Level() selector.Level {
	if c.DefaultLevel == nil {
		return selector.DefaultLevel
	}
	return selector.Level(*c.DefaultLevel).Clamp()
}

func (c *Config) validate() error {
	seen := make(map[string]bool)
	for i, p := range c.Pages {
		if (p.HTML == "") == (p.URL == "") {
			return fmt.Errorf("config: pages[%d]: exactly one of html and url is required", i)
		}
		if p.ID != "" {
			if seen[p.ID] {
				return fmt.Errorf("config: pages[%d]: duplicate id %q", i, p.ID)
			}
			seen[p.ID] = true
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "darkzap.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8427"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = dom.Size{Width: 1280, Height: 800}
	}
	if c.Editor.Width <= 0 || c.Editor.Height <= 0 {
		c.Editor = dom.Size{Width: 320, Height: 180}
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = time.Second
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.Timeout <= 0 {
		c.Browser.Timeout = 30 * time.Second
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page%d", i+1)
		}
	}
}
