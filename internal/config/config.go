// Package config loads grabber settings from defaults and an optional YAML file
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/framebus"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/pkg/types"
)

// Frame sources
const (
	SourceCamera  = "camera"
	SourcePattern = "pattern"
)

// Config is the complete grabber configuration
type Config struct {
	Source      string          `yaml:"source"` // camera, pattern
	Device      int             `yaml:"device"` // video input index, -1 when unset
	FPS         int             `yaml:"fps"`    // pattern pacing
	Bus         framebus.Config `yaml:"bus"`
	MetricsAddr string          `yaml:"metrics_addr"` // empty disables the HTTP endpoint
	LogLevel    string          `yaml:"log_level"`
	LogColor    bool            `yaml:"log_color"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Source:   SourceCamera,
		Device:   -1,
		FPS:      30,
		Bus:      framebus.DefaultConfig(),
		LogLevel: "info",
		LogColor: true,
	}
}

// LoadFile reads a YAML file over the defaults. Keys missing from the
// file keep their default values. The result is not validated: callers
// layer command-line overrides on top and then call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole configuration, bus settings included
func (c *Config) Validate() error {
	switch c.Source {
	case SourceCamera:
		if c.Device < 0 {
			return fmt.Errorf("camera source needs a device index")
		}
	case SourcePattern:
		if c.FPS < 0 {
			return fmt.Errorf("fps must not be negative: %d", c.FPS)
		}
	default:
		return fmt.Errorf("unknown source %q (want %s or %s)", c.Source, SourceCamera, SourcePattern)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Bus.Compression == types.CompressionJPEG && (c.Bus.JPEGQuality < 1 || c.Bus.JPEGQuality > 100) {
		return fmt.Errorf("%w: jpeg quality %d", framebus.ErrInvalidConfig, c.Bus.JPEGQuality)
	}
	return c.Bus.Validate()
}
