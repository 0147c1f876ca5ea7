// Package config loads scholar's configuration from YAML or JSON5 files.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/scholar/internal/auth"
	"github.com/haasonsaas/scholar/internal/ledger"
	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/observability"
	"github.com/haasonsaas/scholar/internal/orchestrator"
	"github.com/haasonsaas/scholar/internal/providers"
	"github.com/haasonsaas/scholar/internal/ratelimit"
)

// EnvConfigPath names the environment variable holding the config path.
const EnvConfigPath = "SCHOLAR_CONFIG"

// Config is the root configuration.
type Config struct {
	Version int `yaml:"version"`

	Logging       LoggingConfig             `yaml:"logging"`
	Observability ObservabilityConfig       `yaml:"observability"`
	Providers     map[string]ProviderConfig `yaml:"providers"`
	Orchestrator  OrchestratorConfig        `yaml:"orchestrator"`
	Classifier    ClassifierConfig          `yaml:"classifier"`

	// Models are added to the built-in catalog.
	Models []models.ModelDescriptor `yaml:"models"`

	// Chains overrides the built-in fallback chains per field.
	Chains ChainsConfig `yaml:"chains"`

	// Preferences are the defaults used when a request carries none.
	Preferences models.UserPreferences `yaml:"preferences"`

	Ledger LedgerConfig `yaml:"ledger"`
	Server ServerConfig `yaml:"server"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// ProviderConfig holds one provider's key and endpoint.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
}

type OrchestratorConfig struct {
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
	RequestDeadline time.Duration `yaml:"request_deadline"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
}

// ClassifierConfig configures the remote fallback of the intent classifier.
type ClassifierConfig struct {
	// Remote enables the remote call for unmatched queries. Defaults to true.
	Remote  *bool         `yaml:"remote"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RemoteEnabled reports whether the remote classification call is on.
func (c ClassifierConfig) RemoteEnabled() bool {
	return c.Remote == nil || *c.Remote
}

// ChainsConfig overrides parts of the built-in chain table. Unset fields keep
// their defaults.
type ChainsConfig struct {
	Tasks          map[models.TaskCategory][]string `yaml:"tasks"`
	ReasoningModel string                           `yaml:"reasoning_model"`
	LatencyModel   string                           `yaml:"latency_model"`
	TerminalModel  string                           `yaml:"terminal_model"`
}

// LedgerConfig selects the outcome store. Driver "memory" keeps outcomes in
// process; "sqlite" and "postgres" persist them.
type LedgerConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxRecords      int           `yaml:"max_records"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type ServerConfig struct {
	Address           string              `yaml:"address"`
	JWTSecret         string              `yaml:"jwt_secret"`
	TokenExpiry       time.Duration       `yaml:"token_expiry"`
	APIKeys           []auth.APIKeyConfig `yaml:"api_keys"`
	ReadHeaderTimeout time.Duration       `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration       `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration       `yaml:"shutdown_timeout"`

	// RateLimit bounds /v1/ask per caller.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "scholar"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}
	if cfg.Orchestrator.AttemptTimeout == 0 {
		cfg.Orchestrator.AttemptTimeout = orchestrator.DefaultAttemptTimeout
	}
	if cfg.Orchestrator.RequestDeadline == 0 {
		cfg.Orchestrator.RequestDeadline = orchestrator.DefaultRequestDeadline
	}
	if cfg.Orchestrator.MaxOutputTokens == 0 {
		cfg.Orchestrator.MaxOutputTokens = 2048
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = models.ModelGeminiFlashLite
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 5 * time.Second
	}
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "memory"
	}
	if cfg.Ledger.MaxRecords == 0 {
		cfg.Ledger.MaxRecords = 10000
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.TokenExpiry == 0 {
		cfg.Server.TokenExpiry = 24 * time.Hour
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
}

// Registry builds the model catalog: built-ins plus configured models.
func (c *Config) Registry() (*models.Registry, error) {
	reg := models.DefaultRegistry()
	if len(c.Models) == 0 {
		return reg, nil
	}
	extended, err := reg.Extend(c.Models...)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	return extended, nil
}

// ChainConfig merges the configured overrides onto the built-in chains.
func (c *Config) ChainConfig() models.ChainConfig {
	out := models.DefaultChainConfig()
	for task, chain := range c.Chains.Tasks {
		out.Chains[task] = append([]string(nil), chain...)
	}
	if c.Chains.ReasoningModel != "" {
		out.ReasoningModel = c.Chains.ReasoningModel
	}
	if c.Chains.LatencyModel != "" {
		out.LatencyModel = c.Chains.LatencyModel
	}
	if c.Chains.TerminalModel != "" {
		out.TerminalModel = c.Chains.TerminalModel
	}
	return out
}

// Credentials returns configured keys, falling back to the environment.
func (c *Config) Credentials() providers.Credentials {
	static := providers.StaticCredentials{}
	for name, p := range c.Providers {
		if key := strings.TrimSpace(p.APIKey); key != "" {
			static[strings.ToLower(name)] = key
		}
	}
	return providers.ChainCredentials{static, providers.EnvCredentials{}}
}

// StructuredConfig returns settings for the Gemini backend.
func (c *Config) StructuredConfig() providers.StructuredConfig {
	p := c.Providers["google"]
	return providers.StructuredConfig{BaseURL: p.BaseURL, APIVersion: p.APIVersion}
}

// GenericConfig returns settings for the OpenAI-compatible backend.
func (c *Config) GenericConfig() providers.GenericConfig {
	endpoints := map[string]string{}
	for name, p := range c.Providers {
		if name == "google" || p.BaseURL == "" {
			continue
		}
		endpoints[strings.ToLower(name)] = p.BaseURL
	}
	return providers.GenericConfig{Endpoints: endpoints}
}

// LogConfig converts the logging section.
func (c *Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
	}
}

// TraceConfig converts the tracing section. Disabled tracing yields an empty
// endpoint.
func (c *Config) TraceConfig() observability.TraceConfig {
	t := c.Observability.Tracing
	out := observability.TraceConfig{
		ServiceName:    t.ServiceName,
		ServiceVersion: t.ServiceVersion,
		Environment:    t.Environment,
		SamplingRate:   t.SamplingRate,
		Attributes:     t.Attributes,
		EnableInsecure: t.Insecure,
	}
	if t.Enabled {
		out.Endpoint = t.Endpoint
	}
	return out
}

// SQLConfig converts the ledger section for SQL drivers.
func (c *Config) SQLConfig() ledger.SQLConfig {
	return ledger.SQLConfig{
		Driver:          c.Ledger.Driver,
		DSN:             c.Ledger.DSN,
		MaxOpenConns:    c.Ledger.MaxOpenConns,
		MaxIdleConns:    c.Ledger.MaxIdleConns,
		ConnMaxLifetime: c.Ledger.ConnMaxLifetime,
	}
}

// AuthConfig converts the server auth settings.
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		JWTSecret:   c.Server.JWTSecret,
		TokenExpiry: c.Server.TokenExpiry,
		APIKeys:     c.Server.APIKeys,
	}
}
