// Package config loads the viewer's YAML configuration, applying defaults
// for everything the file leaves out.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Display  DisplayConfig  `yaml:"display"`
	Sync     SyncConfig     `yaml:"sync"`
	Viewport ViewportConfig `yaml:"viewport"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
	WSPort   int    `yaml:"ws_port"`
}

type DisplayConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	FPSTarget float64 `yaml:"fps_target"`
	Quality   string  `yaml:"quality"`
}

type SyncConfig struct {
	Interval   time.Duration `yaml:"interval"`
	HistoryCap int           `yaml:"history_cap"`
}

type ViewportConfig struct {
	Layout           string  `yaml:"layout"`
	MouseSensitivity float64 `yaml:"mouse_sensitivity"`
	KeySpeed         float64 `yaml:"key_speed"`
	SyncCameras      bool    `yaml:"sync_cameras"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "localhost",
			HTTPPort: 8080,
			WSPort:   8081,
		},
		Display: DisplayConfig{
			Width:     1920,
			Height:    1080,
			FPSTarget: 30,
			Quality:   "high",
		},
		Sync: SyncConfig{
			Interval:   100 * time.Millisecond,
			HistoryCap: 100,
		},
		Viewport: ViewportConfig{
			Layout:           "single",
			MouseSensitivity: 1.0,
			KeySpeed:         1.0,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault returns defaults when the file does not exist, but still
// surfaces read and parse errors for a file that is present.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}
