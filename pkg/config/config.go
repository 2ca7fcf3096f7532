package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds the runtime settings of the wolf host process. The
// durable apps/paired-clients state lives in its own TOML file managed
// by internal/core/state; this is only the process configuration.
type Config struct {
	API struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"api"`

	Paths struct {
		StateConfig    string `yaml:"state_config"`
		PrivateKey     string `yaml:"private_key"`
		Certificate    string `yaml:"certificate"`
		AppStateFolder string `yaml:"app_state_folder"`
		DockerSocket   string `yaml:"docker_socket"`
	} `yaml:"paths"`

	Streaming struct {
		VideoPortBase uint16 `yaml:"video_port_base"`
		AudioPortBase uint16 `yaml:"audio_port_base"`
	} `yaml:"streaming"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// DefaultConfig returns sensible defaults for a local host.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.API.Address = ":47989"
	cfg.API.ReadTimeout = 10 * time.Second
	cfg.API.WriteTimeout = 10 * time.Second
	cfg.API.ShutdownTimeout = 5 * time.Second
	cfg.Paths.StateConfig = "config.toml"
	cfg.Paths.PrivateKey = "key.pem"
	cfg.Paths.Certificate = "cert.pem"
	cfg.Paths.AppStateFolder = "/etc/wolf"
	cfg.Paths.DockerSocket = "/var/run/docker.sock"
	cfg.Streaming.VideoPortBase = 48100
	cfg.Streaming.AudioPortBase = 48200
	cfg.Monitoring.PrometheusEnabled = false
	cfg.Monitoring.PrometheusPort = 9090
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0
	cfg.Auth.JWTSecret = ""
	cfg.Auth.AccessTokenTTL = 24 * time.Hour
	return cfg
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// API
	if c.API.Address == "" {
		return fmt.Errorf("api.address must not be empty")
	}
	if c.API.ReadTimeout <= 0 {
		return fmt.Errorf("api.read_timeout must be > 0")
	}
	if c.API.WriteTimeout <= 0 {
		return fmt.Errorf("api.write_timeout must be > 0")
	}
	if c.API.ShutdownTimeout <= 0 {
		return fmt.Errorf("api.shutdown_timeout must be > 0")
	}

	// Paths
	if c.Paths.PrivateKey == "" || c.Paths.Certificate == "" {
		return fmt.Errorf("paths.private_key and paths.certificate must not be empty")
	}

	// Streaming
	if c.Streaming.VideoPortBase == 0 || c.Streaming.AudioPortBase == 0 {
		return fmt.Errorf("streaming port bases must be > 0")
	}
	if c.Streaming.VideoPortBase == c.Streaming.AudioPortBase {
		return fmt.Errorf("streaming.video_port_base and audio_port_base must differ")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1.0 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	// Auth
	if c.Auth.JWTSecret != "" && c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0 when auth is enabled")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}
