package connectors

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BotsConfig is the persisted multi-platform connector configuration,
// stored at <vault>/.parachute/bots.yaml (mode 0600) per spec.md §6's
// persisted-layout table.
type BotsConfig struct {
	Platforms map[string]Config `yaml:"platforms"`
}

// LoadBotsConfig reads the persisted config, returning an empty config
// (not an error) if the file doesn't exist yet.
func LoadBotsConfig(vaultRoot string) (BotsConfig, error) {
	data, err := os.ReadFile(botsConfigPath(vaultRoot))
	if errors.Is(err, os.ErrNotExist) {
		return BotsConfig{Platforms: map[string]Config{}}, nil
	}
	if err != nil {
		return BotsConfig{}, err
	}
	var cfg BotsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return BotsConfig{}, err
	}
	if cfg.Platforms == nil {
		cfg.Platforms = map[string]Config{}
	}
	return cfg, nil
}

// SaveBotsConfig persists the config, creating the .parachute
// directory if needed.
func SaveBotsConfig(vaultRoot string, cfg BotsConfig) error {
	path := botsConfigPath(vaultRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func botsConfigPath(vaultRoot string) string {
	return filepath.Join(vaultRoot, ".parachute", "bots.yaml")
}
