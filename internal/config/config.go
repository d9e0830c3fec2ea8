// Package config loads and validates the docforge configuration file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docforge/internal/build"
)

type Config struct {
	Source SourceConfig        `yaml:"source"`
	Output OutputConfig        `yaml:"output"`
	Build  BuildConfig         `yaml:"build"`
	Render build.RenderContext `yaml:"render"`
	Cache  CacheConfig         `yaml:"cache"`
	Watch  WatchConfig         `yaml:"watch"`
	Server ServerConfig        `yaml:"server"`
	NATS   NATSConfig          `yaml:"nats"`
}

type SourceConfig struct {
	Directory string `yaml:"directory"`
}

type OutputConfig struct {
	Directory string `yaml:"directory"`
}

type BuildConfig struct {
	Workers       int  `yaml:"workers"`
	FailOnWarning bool `yaml:"fail_on_warning"`
}

type CacheConfig struct {
	MaxBytes      int64         `yaml:"max_bytes"`
	MaxAge        time.Duration `yaml:"max_age"`
	Path          string        `yaml:"path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type WatchConfig struct {
	QuietWindow time.Duration `yaml:"quiet_window"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Load reads the configuration file. Environment variables referenced in the
// YAML are expanded; a .env or .env.local file is loaded first without
// overriding the process environment.
func Load(path string) (*Config, error) {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("load %s: %w", envPath, err)
			}
			break
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration usable without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Source.Directory == "" {
		c.Source.Directory = "./docs"
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./site"
	}
	if c.Build.Workers <= 0 {
		c.Build.Workers = runtime.NumCPU()
	}
	if c.Cache.MaxBytes <= 0 {
		c.Cache.MaxBytes = 256 << 20
	}
	if c.Cache.MaxAge <= 0 {
		c.Cache.MaxAge = 30 * 24 * time.Hour
	}
	if c.Cache.FlushInterval <= 0 {
		c.Cache.FlushInterval = 5 * time.Minute
	}
	if c.Watch.QuietWindow <= 0 {
		c.Watch.QuietWindow = 200 * time.Millisecond
	}
	if c.Watch.MaxDelay <= 0 {
		c.Watch.MaxDelay = 2 * time.Second
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
}

func (c *Config) validate() error {
	if c.Source.Directory == c.Output.Directory {
		return fmt.Errorf("source and output directories must differ")
	}
	if c.Watch.QuietWindow > c.Watch.MaxDelay {
		return fmt.Errorf("watch quiet_window %s exceeds max_delay %s", c.Watch.QuietWindow, c.Watch.MaxDelay)
	}
	return nil
}
