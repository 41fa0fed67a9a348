package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the correlation engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Topology  TopologyConfig  `yaml:"topology"`
	Changes   ChangesConfig   `yaml:"changes"`
	Generator GeneratorConfig `yaml:"generator"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// TopologyConfig controls loading of the service dependency document.
type TopologyConfig struct {
	Path           string        `yaml:"path"`
	ReloadInterval time.Duration `yaml:"reloadInterval"`
	CacheTTL       time.Duration `yaml:"cacheTTL"`
}

// ChangesConfig configures access to the code-hosting changes API.
type ChangesConfig struct {
	BaseURL  string        `yaml:"baseURL"`
	Path     string        `yaml:"path"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// GeneratorConfig selects and tunes the hypothesis generator. When APIKey is
// empty the rule-based generator at RulesPath is used instead of the model.
type GeneratorConfig struct {
	APIKey    string        `yaml:"apiKey"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	RulesPath string        `yaml:"rulesPath"`
}

// AnalysisConfig tunes per-batch analysis behaviour.
type AnalysisConfig struct {
	Environment string `yaml:"environment"`
	Concurrency int    `yaml:"concurrency"`
}

// IngestConfig controls webhook batch buffering.
type IngestConfig struct {
	MaxBatch      int           `yaml:"maxBatch"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// NotifyConfig configures report delivery.
type NotifyConfig struct {
	SlackWebhookURL string        `yaml:"slackWebhookURL"`
	Timeout         time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed caching of expensive lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FAULTLINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 10 * time.Second,
		},
		Topology: TopologyConfig{
			Path:           "configs/topology/services.yaml",
			ReloadInterval: 5 * time.Minute,
			CacheTTL:       10 * time.Minute,
		},
		Changes: ChangesConfig{
			Path:     "/api/v1/changes",
			Timeout:  5 * time.Second,
			CacheTTL: 2 * time.Minute,
		},
		Generator: GeneratorConfig{
			Timeout:   15 * time.Second,
			RulesPath: "configs/rules/default.yaml",
		},
		Analysis: AnalysisConfig{
			Environment: "production",
			Concurrency: 4,
		},
		Ingest: IngestConfig{
			MaxBatch:      100,
			FlushInterval: 5 * time.Second,
		},
		Notify: NotifyConfig{Timeout: 5 * time.Second},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAULTLINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FAULTLINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FAULTLINE_TOPOLOGY_PATH"); v != "" {
		cfg.Topology.Path = v
	}
	if v := os.Getenv("FAULTLINE_TOPOLOGY_RELOAD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Topology.ReloadInterval = d
		}
	}
	if v := os.Getenv("FAULTLINE_CHANGES_BASE_URL"); v != "" {
		cfg.Changes.BaseURL = v
	}
	if v := os.Getenv("FAULTLINE_CHANGES_PATH"); v != "" {
		cfg.Changes.Path = v
	}
	if v := os.Getenv("FAULTLINE_CHANGES_TOKEN"); v != "" {
		cfg.Changes.Token = v
	}
	if v := os.Getenv("FAULTLINE_GENERATOR_API_KEY"); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv("FAULTLINE_GENERATOR_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("FAULTLINE_GENERATOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Generator.Timeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_RULES_PATH"); v != "" {
		cfg.Generator.RulesPath = v
	}
	if v := os.Getenv("FAULTLINE_ENVIRONMENT"); v != "" {
		cfg.Analysis.Environment = v
	}
	if v := os.Getenv("FAULTLINE_ANALYSIS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Concurrency = n
		}
	}
	if v := os.Getenv("FAULTLINE_INGEST_MAX_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.MaxBatch = n
		}
	}
	if v := os.Getenv("FAULTLINE_INGEST_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.FlushInterval = d
		}
	}
	if v := os.Getenv("FAULTLINE_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.SlackWebhookURL = v
	}
	if v := os.Getenv("FAULTLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FAULTLINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FAULTLINE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("FAULTLINE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
}
