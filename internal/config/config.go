// Package config loads the companion server's configuration: vault
// location, HTTP bind address, sandbox backend settings, and LLM
// provider credentials. Grounded on
// _examples/haasonsaas-nexus/internal/config/config.go's
// Load/applyDefaults/applyEnvOverrides idiom, scoped down to the
// handful of settings this module's components actually need rather
// than the teacher's full gateway configuration surface.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/companion/internal/sandbox"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APISecret signs bearer tokens gating every route except
	// /healthz and /metrics. Empty disables auth, appropriate for a
	// single-user deployment not reachable off the local host.
	APISecret string `yaml:"api_secret"`
}

// LLMConfig carries provider credentials and default models.
type LLMConfig struct {
	AnthropicAPIKey    string `yaml:"anthropic_api_key"`
	AnthropicModel     string `yaml:"anthropic_model"`
	OpenAIAPIKey       string `yaml:"openai_api_key"`
	OpenAIObserverModel string `yaml:"openai_observer_model"`
}

// SandboxConfig mirrors sandbox.Config's YAML-facing fields.
type SandboxConfig struct {
	Backend      string `yaml:"backend"`
	Image        string `yaml:"image"`
	ToolsVolume  string `yaml:"tools_volume"`
	NetworkName  string `yaml:"network_name"`
	MemoryLimit  string `yaml:"memory_limit"`
	CPULimit     string `yaml:"cpu_limit"`
	WallTimeout  time.Duration `yaml:"wall_timeout"`
	ChunkTimeout time.Duration `yaml:"chunk_timeout"`
	ProbeTTL     time.Duration `yaml:"probe_ttl"`
}

// Config is the full companion server configuration.
type Config struct {
	VaultRoot string        `yaml:"vault_root"`
	Server    ServerConfig  `yaml:"server"`
	LLM       LLMConfig     `yaml:"llm"`
	Sandbox   SandboxConfig `yaml:"sandbox"`
}

// ToSandboxConfig converts the YAML-facing SandboxConfig into
// sandbox.Config, filling the vault root and falling back to
// sandbox.DefaultConfig() for anything left zero.
func (c Config) ToSandboxConfig() sandbox.Config {
	def := sandbox.DefaultConfig()
	out := sandbox.Config{
		Backend:      sandbox.Backend(firstNonEmpty(c.Sandbox.Backend, string(def.Backend))),
		Image:        firstNonEmpty(c.Sandbox.Image, def.Image),
		VaultRoot:    c.VaultRoot,
		ToolsVolume:  c.Sandbox.ToolsVolume,
		NetworkName:  firstNonEmpty(c.Sandbox.NetworkName, def.NetworkName),
		MemoryLimit:  firstNonEmpty(c.Sandbox.MemoryLimit, def.MemoryLimit),
		CPULimit:     firstNonEmpty(c.Sandbox.CPULimit, def.CPULimit),
		WallTimeout:  firstNonZeroDuration(c.Sandbox.WallTimeout, def.WallTimeout),
		ChunkTimeout: firstNonZeroDuration(c.Sandbox.ChunkTimeout, def.ChunkTimeout),
		ProbeTTL:     firstNonZeroDuration(c.Sandbox.ProbeTTL, def.ProbeTTL),
	}
	return out
}

// Load reads path, expanding ${VAR} references against the process
// environment, decodes it strictly (unknown fields rejected), applies
// environment variable overrides, then fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.VaultRoot == "" {
		cfg.VaultRoot = "./vault"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.LLM.AnthropicModel == "" {
		cfg.LLM.AnthropicModel = "claude-sonnet-4-5"
	}
	if cfg.LLM.OpenAIObserverModel == "" {
		cfg.LLM.OpenAIObserverModel = "gpt-4o-mini"
	}
}

// applyEnvOverrides lets deployment secrets and ports be supplied
// without editing the config file on disk, matching the teacher's
// env-override convention for credentials and listen ports.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COMPANION_VAULT_ROOT"); v != "" {
		cfg.VaultRoot = v
	}
	if v := os.Getenv("COMPANION_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("COMPANION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("COMPANION_API_SECRET"); v != "" {
		cfg.Server.APISecret = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.LLM.AnthropicModel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZeroDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
