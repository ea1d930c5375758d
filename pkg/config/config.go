// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads fabric configuration from an optional yaml file and
// the environment.
//
// Precedence is env > file > defaults. Env keys use the FABRIC prefix with
// dots replaced by underscores (fabric.gateway.port -> FABRIC_GATEWAY_PORT).
// The plain service-URL variables the deployment already exports
// (ANALYSIS_SERVICE_URL, VECTOR_SERVICE_URL, ..., plus _ALT1/_ALT2 for
// alternative replicas) are bound alongside the prefixed names, so existing
// compose files keep working without changes.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Configuration Model
// =============================================================================

// ServiceNames lists the downstream services, in gateway route order.
// Index + 1 is the service's default port offset from the gateway.
var ServiceNames = []string{
	"analysis", "scraping", "validation", "vector",
	"gis", "acris", "data", "google-drive",
}

// ServiceEndpoint is one downstream service's base URL plus up to two
// alternative replicas tried when the primary's retry budget is exhausted.
type ServiceEndpoint struct {
	URL        string   `mapstructure:"url"`
	Alternates []string `mapstructure:"alternates"`
}

// Config is the full fabric configuration tree.
type Config struct {
	Gateway struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`

		// RateLimit is requests per second per client IP; Burst is the
		// token bucket depth. Zero disables limiting.
		RateLimit float64 `mapstructure:"rate_limit"`
		Burst     int     `mapstructure:"burst"`

		// HealthInterval is the seconds between registry health sweeps.
		HealthInterval int `mapstructure:"health_interval"`
	} `mapstructure:"gateway"`

	// Services maps service name to its endpoint set.
	Services map[string]ServiceEndpoint `mapstructure:"services"`

	Redundancy struct {
		FailureThreshold int     `mapstructure:"failure_threshold"`
		RecoverySeconds  int     `mapstructure:"recovery_seconds"`
		CacheTTLSeconds  int     `mapstructure:"cache_ttl_seconds"`
		CacheMaxEntries  int     `mapstructure:"cache_max_entries"`
		TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
		MaxAttempts      int     `mapstructure:"max_attempts"`
		BaseDelayMillis  int     `mapstructure:"base_delay_millis"`
		MaxDelaySeconds  int     `mapstructure:"max_delay_seconds"`
		JitterFraction   float64 `mapstructure:"jitter_fraction"`
	} `mapstructure:"redundancy"`

	Vector struct {
		// Backend selects "memory" or "weaviate".
		Backend string `mapstructure:"backend"`
		Host    string `mapstructure:"host"`
		Scheme  string `mapstructure:"scheme"`
		APIKey  string `mapstructure:"api_key"`

		// Dimension is the embedding width; it must match the engine.
		Dimension int `mapstructure:"dimension"`

		// EmbedWorkers bounds concurrent embedding inference.
		EmbedWorkers int `mapstructure:"embed_workers"`
	} `mapstructure:"vector"`

	Data struct {
		// Dir is the badger database directory; empty selects in-memory.
		Dir string `mapstructure:"dir"`
	} `mapstructure:"data"`

	Drive struct {
		// CredentialsFile is the Google service-account JSON path.
		CredentialsFile string `mapstructure:"credentials_file"`
	} `mapstructure:"drive"`

	Log struct {
		Level  string `mapstructure:"level"`
		Dir    string `mapstructure:"dir"`
		JSON   bool   `mapstructure:"json"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`

	Tracing struct {
		// Endpoint is the OTLP gRPC collector address; empty disables tracing.
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"tracing"`
}

// CacheTTL returns the redundancy cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redundancy.CacheTTLSeconds) * time.Second
}

// RecoveryInterval returns the breaker recovery interval as a duration.
func (c *Config) RecoveryInterval() time.Duration {
	return time.Duration(c.Redundancy.RecoverySeconds) * time.Second
}

// Timeout returns the default operation timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Redundancy.TimeoutSeconds) * time.Second
}

// BaseDelay returns the retry base delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Redundancy.BaseDelayMillis) * time.Millisecond
}

// MaxDelay returns the retry backoff ceiling as a duration.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Redundancy.MaxDelaySeconds) * time.Second
}

// HealthInterval returns the registry probe interval as a duration.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Gateway.HealthInterval) * time.Second
}

// ServicePort returns the default listen port for a service name
// (gateway 8000, then 8001..8008 in ServiceNames order). Unknown names
// return 0.
func ServicePort(name string) int {
	if name == "gateway" {
		return 8000
	}
	for i, s := range ServiceNames {
		if s == name {
			return 8001 + i
		}
	}
	return 0
}

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from configPath (optional; searched in the
// usual locations when empty) and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("fabric")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.recordfabric")
		v.AddConfigPath("/etc/recordfabric")
	}
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("FABRIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindServiceURLs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	overlayAlternates(&cfg)
	return &cfg, nil
}

// setDefaults seeds every knob so a bare environment still boots.
func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8000)
	v.SetDefault("gateway.rate_limit", 0)
	v.SetDefault("gateway.burst", 20)
	v.SetDefault("gateway.health_interval", 30)

	for i, name := range ServiceNames {
		key := "services." + name
		v.SetDefault(key+".url", fmt.Sprintf("http://localhost:%d", 8001+i))
		v.SetDefault(key+".alternates", []string{})
	}

	v.SetDefault("redundancy.failure_threshold", 5)
	v.SetDefault("redundancy.recovery_seconds", 60)
	v.SetDefault("redundancy.cache_ttl_seconds", 300)
	v.SetDefault("redundancy.cache_max_entries", 10000)
	v.SetDefault("redundancy.timeout_seconds", 30)
	v.SetDefault("redundancy.max_attempts", 3)
	v.SetDefault("redundancy.base_delay_millis", 100)
	v.SetDefault("redundancy.max_delay_seconds", 30)
	v.SetDefault("redundancy.jitter_fraction", 0.1)

	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.host", "localhost:8080")
	v.SetDefault("vector.scheme", "http")
	v.SetDefault("vector.dimension", 384)
	v.SetDefault("vector.embed_workers", 4)

	v.SetDefault("data.dir", "")
	v.SetDefault("drive.credentials_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.json", false)

	v.SetDefault("tracing.endpoint", "")
}

// bindServiceURLs binds the unprefixed deployment variables
// (ANALYSIS_SERVICE_URL, GOOGLE_DRIVE_SERVICE_URL, ...) on top of the
// FABRIC_-prefixed names.
func bindServiceURLs(v *viper.Viper) {
	for _, name := range ServiceNames {
		envBase := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		v.BindEnv("services."+name+".url", envBase+"_SERVICE_URL")
	}
	v.BindEnv("vector.host", "VECTOR_STORE_HOST")
	v.BindEnv("vector.api_key", "VECTOR_STORE_API_KEY")
}

// overlayAlternates applies the <NAME>_SERVICE_URL_ALT1/_ALT2 variables,
// which predate the prefixed config tree and name one replica each.
func overlayAlternates(cfg *Config) {
	if cfg.Services == nil {
		cfg.Services = make(map[string]ServiceEndpoint)
	}
	for _, name := range ServiceNames {
		envBase := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		endpoint := cfg.Services[name]
		for _, suffix := range []string{"_SERVICE_URL_ALT1", "_SERVICE_URL_ALT2"} {
			if alt := os.Getenv(envBase + suffix); alt != "" {
				endpoint.Alternates = append(endpoint.Alternates, alt)
			}
		}
		cfg.Services[name] = endpoint
	}
}
