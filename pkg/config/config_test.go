package config

import (
	"os"
	"path/filepath"
	"testing"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got error: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "api address must not be empty",
			mutate: func(c *Config) {
				c.API.Address = ""
			},
		},
		{
			name: "api read timeout must be > 0",
			mutate: func(c *Config) {
				c.API.ReadTimeout = 0
			},
		},
		{
			name: "identical streaming port bases",
			mutate: func(c *Config) {
				c.Streaming.AudioPortBase = c.Streaming.VideoPortBase
			},
		},
		{
			name: "http rps must be > 0 when rate limiting enabled",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name: "http burst must be > 0 when rate limiting enabled",
			mutate: func(c *Config) {
				c.RateLimiting.HTTP.Burst = 0
			},
		},
		{
			name: "tracing sample rate in range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 2.0
			},
		},
		{
			name: "logging level must not be empty",
			mutate: func(c *Config) {
				c.Logging.Level = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wolf.yaml")

	yaml := `
api:
  address: ":48989"
logging:
  level: debug
streaming:
  video_port_base: 50100
  audio_port_base: 50200
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Address != ":48989" {
		t.Errorf("api.address = %q, want :48989", cfg.API.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Streaming.VideoPortBase != 50100 {
		t.Errorf("video_port_base = %d, want 50100", cfg.Streaming.VideoPortBase)
	}
	// default survives partial file
	if cfg.API.ReadTimeout <= 0 {
		t.Error("expected default read timeout to survive partial config")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
