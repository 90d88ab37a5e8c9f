// Package config holds the typed build configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Pipeline names accepted by build.only.
const (
	PipelineDomain    = "domain"
	PipelineClassical = "classical"
)

type Config struct {
	Sources string `mapstructure:"sources"`
	Output  string `mapstructure:"output"`

	Mihomo struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"mihomo"`

	Build struct {
		Only        string   `mapstructure:"only"`
		Include     []string `mapstructure:"include"`
		SkipCompile bool     `mapstructure:"skip_compile"`
	} `mapstructure:"build"`

	GeoIP struct {
		Database string        `mapstructure:"database"`
		Cache    string        `mapstructure:"cache"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"geoip"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sources", "sources")
	v.SetDefault("output", "output")
	v.SetDefault("mihomo.path", "mihomo")
	v.SetDefault("build.only", "")
	v.SetDefault("build.include", []string{})
	v.SetDefault("build.skip_compile", false)
	v.SetDefault("geoip.database", "")
	v.SetDefault("geoip.cache", "")
	v.SetDefault("geoip.ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

func (c *Config) Validate() error {
	if c.Sources == "" {
		return fmt.Errorf("sources directory is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Mihomo.Path == "" {
		return fmt.Errorf("mihomo path is required")
	}
	switch c.Build.Only {
	case "", PipelineDomain, PipelineClassical:
	default:
		return fmt.Errorf("unknown pipeline %q, use %q or %q", c.Build.Only, PipelineDomain, PipelineClassical)
	}
	if c.GeoIP.TTL <= 0 {
		return fmt.Errorf("geoip ttl must be positive")
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
