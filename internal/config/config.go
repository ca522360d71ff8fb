package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Filter    FilterConfig    `yaml:"filter"`
	Routing   RoutingConfig   `yaml:"routing"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	GRPCHealthPort   int           `yaml:"grpc_health_port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	DefaultRPM       int           `yaml:"default_rpm"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, sslMode)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

type FilterConfig struct {
	Secrets   SecretsFilterConfig   `yaml:"secrets"`
	Injection InjectionFilterConfig `yaml:"injection"`
	Policy    PolicyFilterConfig    `yaml:"policy"`
}

type SecretsFilterConfig struct {
	Enabled bool `yaml:"enabled"`
}

type InjectionFilterConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BlockThreshold float64 `yaml:"block_threshold"`
	FlagThreshold  float64 `yaml:"flag_threshold"`
}

type PolicyFilterConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type RoutingConfig struct {
	MaxAttempts    int                  `yaml:"max_attempts"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

// MaxCompletionIterations is the most continuation calls one run may make.
// max_completion_iterations can lower it, never raise it.
const MaxCompletionIterations = 3

// PipelineConfig holds the tunables of the SQL synthesis pipeline.
type PipelineConfig struct {
	Model                   string        `yaml:"model"`
	Temperature             float64       `yaml:"temperature"`
	ExplainTemperature      float64       `yaml:"explain_temperature"`
	MaxOutputTokens         int           `yaml:"max_output_tokens"`
	MaxCompletionIterations int           `yaml:"max_completion_iterations"`
	RequestTimeout          time.Duration `yaml:"request_timeout"`
	CallTimeout             time.Duration `yaml:"call_timeout"`
	ReviewEnabled           bool          `yaml:"review_enabled"`
	CompletionModes         []string      `yaml:"completion_modes"`
	MaxInputChars           int           `yaml:"max_input_chars"`
	DefaultDailyQuota       int64         `yaml:"default_daily_quota"`
	QuotaBackend            string        `yaml:"quota_backend"`
}

// CompletesMode reports whether truncated output of the given mode is continued.
func (p PipelineConfig) CompletesMode(mode string) bool {
	for _, m := range p.CompletionModes {
		if m == mode {
			return true
		}
	}
	return false
}

// continuableModes are the modes whose output is SQL and can be continued.
var continuableModes = map[string]bool{"generate": true, "optimize": true, "validate": true}

// Validate reports every problem in the pipeline and server settings at once.
func (c *Config) Validate() error {
	var errs []error
	p := c.Pipeline
	if p.Model == "" {
		errs = append(errs, errors.New("pipeline.model is required"))
	}
	if p.MaxCompletionIterations < 1 || p.MaxCompletionIterations > MaxCompletionIterations {
		errs = append(errs, fmt.Errorf("pipeline.max_completion_iterations must be 1..%d, got %d", MaxCompletionIterations, p.MaxCompletionIterations))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature must be 0..2, got %v", p.Temperature))
	}
	if p.ExplainTemperature < 0 || p.ExplainTemperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.explain_temperature must be 0..2, got %v", p.ExplainTemperature))
	}
	for _, m := range p.CompletionModes {
		if !continuableModes[m] {
			errs = append(errs, fmt.Errorf("pipeline.completion_modes: %q cannot be continued", m))
		}
	}
	switch p.QuotaBackend {
	case "redis", "postgres":
	default:
		errs = append(errs, fmt.Errorf("pipeline.quota_backend must be redis or postgres, got %q", p.QuotaBackend))
	}
	if p.CallTimeout > 0 && p.RequestTimeout > 0 && p.CallTimeout > p.RequestTimeout {
		errs = append(errs, errors.New("pipeline.call_timeout exceeds pipeline.request_timeout"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive, got %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			GRPCHealthPort:   8081,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			DefaultRPM:       30,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "querysmith",
			User:            "querysmith",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Filter: FilterConfig{
			Secrets: SecretsFilterConfig{Enabled: true},
			Injection: InjectionFilterConfig{
				Enabled:        true,
				BlockThreshold: 0.9,
				FlagThreshold:  0.7,
			},
			Policy: PolicyFilterConfig{
				Enabled:           false,
				BundlePath:        "/etc/querysmith/policies",
				EvaluationTimeout: 100 * time.Millisecond,
			},
		},
		Routing: RoutingConfig{
			MaxAttempts: 2,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Pipeline: PipelineConfig{
			Model:                   "sql-default",
			Temperature:             0,
			ExplainTemperature:      0.4,
			MaxOutputTokens:         2048,
			MaxCompletionIterations: MaxCompletionIterations,
			RequestTimeout:          60 * time.Second,
			CallTimeout:             25 * time.Second,
			ReviewEnabled:           true,
			CompletionModes:         []string{"generate", "optimize", "validate"},
			MaxInputChars:           20000,
			DefaultDailyQuota:       200,
			QuotaBackend:            "redis",
		},
	}
}
