package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Permissions struct {
		TTL string `yaml:"ttl"`
		// Modules grants every listed module to every user when no Postgres directory is configured.
		Modules []string `yaml:"modules"`
	} `yaml:"permissions"`
	Grading struct {
		AllowPartialSubmission bool   `yaml:"allow_partial_submission"`
		AttemptTTL             string `yaml:"attempt_ttl"`
		// RatePerMinute caps checks per caller; zero disables the limit.
		RatePerMinute int `yaml:"rate_per_minute"`
		RateBurst     int `yaml:"rate_burst"`
	} `yaml:"grading"`
	Notifications struct {
		Channel string `yaml:"channel"`
		Timeout string `yaml:"timeout"`
	} `yaml:"notifications"`
}

// Load reads YAML config from path. A missing file yields the zero config so the
// service can run from flags and environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
