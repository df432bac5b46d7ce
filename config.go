package capwatch

import (
	"github.com/hazyhaar/capwatch/internal/config"
)

// Config is the top-level capwatch configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// MeetingConfig is one meeting page to caption.
type MeetingConfig = config.MeetingConfig

// PipelineConfig tunes the extraction pipeline.
type PipelineConfig = config.PipelineConfig

// TranslateConfig points at the translation backend.
type TranslateConfig = config.TranslateConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes YAML configuration with defaults applied.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}
