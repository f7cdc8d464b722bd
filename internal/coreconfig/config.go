// Package coreconfig loads and hot-reloads the orchestration core's
// configuration: the darpana proxy's listen address and routing table, the
// dharma policy preset, and the sutra/lokapala tuning knobs.
package coreconfig

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/darpana-core/darpana-core/internal/darpana"
	"github.com/darpana-core/darpana-core/internal/dharma"
	"github.com/darpana-core/darpana-core/internal/lokapala"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	CORS     CORSConfig     `yaml:"cors"`
	Routing  RoutingConfig  `yaml:"routing"`
	Policy   PolicyConfig   `yaml:"policy"`
	Guardian GuardianConfig `yaml:"guardian"`
	Bus      BusConfig      `yaml:"bus"`
}

// ServerConfig configures the darpana HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig configures the proxy's client-facing API key.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// CORSConfig configures cross-origin access to the proxy.
type CORSConfig struct {
	AllowedOrigin string `yaml:"allowed_origin"`
}

// ProviderConfig is one upstream LLM provider entry.
type ProviderConfig struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"` // openai, gemini, passthrough
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Models  []string `yaml:"models"`
}

// RoutingConfig lists the providers and aliases darpana resolves models against.
type RoutingConfig struct {
	Providers []ProviderConfig  `yaml:"providers"`
	Aliases   map[string]string `yaml:"aliases"`
}

// PolicyConfig selects and tunes the dharma policy engine.
type PolicyConfig struct {
	Preset           string   `yaml:"preset"` // strict, standard, permissive, readonly, review
	ReadOnlyPaths    []string `yaml:"read_only_paths"`
	CostBudgetUSD    float64  `yaml:"cost_budget_usd"`
}

// GuardianConfig tunes the lokapala post-hoc scanner.
type GuardianConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MaxFindings         int     `yaml:"max_findings"`
}

// BusConfig tunes the sutra message bus.
type BusConfig struct {
	HistoryCapacity int `yaml:"history_capacity"`
	MaxTopics       int `yaml:"max_topics"`
}

// Load reads and parses the configuration file, resolving $include
// directives, expanding environment variables, and applying defaults.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("coreconfig: re-encode merged config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(encoded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("coreconfig: parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("coreconfig: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DARPANA_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	for i := range cfg.Routing.Providers {
		envVar := "DARPANA_PROVIDER_" + strings.ToUpper(cfg.Routing.Providers[i].Name) + "_API_KEY"
		if v := os.Getenv(envVar); v != "" {
			cfg.Routing.Providers[i].APIKey = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Policy.Preset == "" {
		cfg.Policy.Preset = "standard"
	}
	if cfg.Guardian.ConfidenceThreshold == 0 {
		cfg.Guardian.ConfidenceThreshold = lokapala.DefaultConfidenceThreshold
	}
	if cfg.Guardian.MaxFindings == 0 {
		cfg.Guardian.MaxFindings = lokapala.DefaultMaxFindings
	}
	if cfg.Bus.HistoryCapacity == 0 {
		cfg.Bus.HistoryCapacity = 1000
	}
	if cfg.Bus.MaxTopics == 0 {
		cfg.Bus.MaxTopics = 10000
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("coreconfig: server.port %d out of range", cfg.Server.Port)
	}
	switch cfg.Policy.Preset {
	case "strict", "standard", "permissive", "readonly", "review":
	default:
		return fmt.Errorf("coreconfig: unknown policy.preset %q", cfg.Policy.Preset)
	}
	for _, p := range cfg.Routing.Providers {
		switch p.Type {
		case "openai", "gemini", "passthrough":
		default:
			return fmt.Errorf("coreconfig: provider %q has unknown type %q", p.Name, p.Type)
		}
	}
	return nil
}

// DarpanaRouting converts the loaded provider/alias table into darpana's
// routing shape.
func (c *Config) DarpanaRouting() darpana.RoutingConfig {
	providers := make([]darpana.ProviderConfig, 0, len(c.Routing.Providers))
	for _, p := range c.Routing.Providers {
		providers = append(providers, darpana.ProviderConfig{
			Name:    p.Name,
			Type:    darpana.ProviderType(p.Type),
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			Models:  p.Models,
		})
	}
	return darpana.RoutingConfig{Providers: providers, Aliases: c.Routing.Aliases}
}

// DharmaPreset resolves the configured preset name to a dharma.Preset.
func (c *Config) DharmaPreset() (dharma.Preset, error) {
	var preset dharma.Preset
	switch c.Policy.Preset {
	case "strict":
		preset = dharma.StrictPreset()
	case "standard":
		preset = dharma.StandardPreset()
	case "permissive":
		preset = dharma.PermissivePreset()
	case "readonly":
		preset = dharma.ReadonlyPreset()
	case "review":
		preset = dharma.ReviewPreset()
	default:
		return dharma.Preset{}, fmt.Errorf("coreconfig: unknown policy.preset %q", c.Policy.Preset)
	}
	if len(c.Policy.ReadOnlyPaths) > 0 {
		preset.DefaultReadOnlyPaths = c.Policy.ReadOnlyPaths
	}
	if c.Policy.CostBudgetUSD > 0 {
		preset.DefaultCostBudgetUSD = c.Policy.CostBudgetUSD
	}
	return preset, nil
}

// LokapalaConfig converts the loaded guardian tuning into lokapala's config shape.
func (c *Config) LokapalaConfig() lokapala.Config {
	return lokapala.Config{
		ConfidenceThreshold: c.Guardian.ConfidenceThreshold,
		MaxFindings:         c.Guardian.MaxFindings,
	}
}
