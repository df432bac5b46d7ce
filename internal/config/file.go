// Package config handles capwatch configuration from a YAML file and an
// optional SQLite meetings table.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level capwatch configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Meetings  []MeetingConfig `yaml:"meetings"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Translate TranslateConfig `yaml:"translate"`
	Sinks     []SinkConfig    `yaml:"sinks"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	UserDataDir      string        `yaml:"user_data_dir"`
	Mode             string        `yaml:"mode"` // headless | headful
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// MeetingConfig is one meeting page to caption.
type MeetingConfig struct {
	ID             string   `yaml:"id"`
	URL            string   `yaml:"url"`
	TargetLanguage string   `yaml:"target_language"`
	VoiceID        string   `yaml:"voice_id"`
	Selectors      []string `yaml:"selectors"`  // overrides the built-in caption strategies
	AutoStart      bool     `yaml:"auto_start"` // start monitoring once the tab is open
}

// PipelineConfig tunes the extraction pipeline.
type PipelineConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	NotifyDebounce time.Duration `yaml:"notify_debounce"`
	BufferDelay    time.Duration `yaml:"buffer_delay"`
	MinInterval    time.Duration `yaml:"min_interval"`
	MinTextLength  int           `yaml:"min_text_length"`
	UIFilters      []string      `yaml:"ui_filters"` // extra regexps for UI chrome text
}

// TranslateConfig points at the translation backend. The API key comes
// from the CAPWATCH_API_KEY environment variable, never from the file.
type TranslateConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Timeout        time.Duration `yaml:"timeout"`
	SourceLanguage string        `yaml:"source_language"`
	TargetLanguage string        `yaml:"target_language"` // default for meetings without one
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string `yaml:"type"`    // stdout | webhook | overlay | player
	URL     string `yaml:"url"`     // webhook
	Command string `yaml:"command"` // player
	Audio   bool   `yaml:"audio"`   // forward audio payloads too
}

// HTTPConfig is the control plane listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Pipeline.PollInterval <= 0 {
		c.Pipeline.PollInterval = 750 * time.Millisecond
	}
	if c.Pipeline.NotifyDebounce <= 0 {
		c.Pipeline.NotifyDebounce = 2 * time.Second
	}
	if c.Pipeline.BufferDelay <= 0 {
		c.Pipeline.BufferDelay = 2 * time.Second
	}
	if c.Pipeline.MinInterval <= 0 {
		c.Pipeline.MinInterval = 2 * time.Second
	}
	if c.Pipeline.MinTextLength <= 0 {
		c.Pipeline.MinTextLength = 2
	}
	if c.Translate.Timeout <= 0 {
		c.Translate.Timeout = 15 * time.Second
	}
	if c.Translate.SourceLanguage == "" {
		c.Translate.SourceLanguage = "en"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8765"
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
	for i := range c.Meetings {
		if c.Meetings[i].TargetLanguage == "" {
			c.Meetings[i].TargetLanguage = c.Translate.TargetLanguage
		}
	}
}

// Validate reports configuration errors that would otherwise surface late.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Meetings))
	for i, m := range c.Meetings {
		switch {
		case m.ID == "":
			errs = append(errs, fmt.Errorf("meetings[%d]: id is required", i))
		case seen[m.ID]:
			errs = append(errs, fmt.Errorf("meetings[%d]: duplicate id %q", i, m.ID))
		}
		seen[m.ID] = true
		if m.URL == "" {
			errs = append(errs, fmt.Errorf("meetings[%d]: url is required", i))
		}
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout", "overlay":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: webhook needs url", i))
			}
		case "player":
			if s.Command == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: player needs command", i))
			}
		default:
			errs = append(errs, fmt.Errorf("sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Meeting returns the meeting with id.
func (c *Config) Meeting(id string) (MeetingConfig, bool) {
	for _, m := range c.Meetings {
		if m.ID == id {
			return m, true
		}
	}
	return MeetingConfig{}, false
}
