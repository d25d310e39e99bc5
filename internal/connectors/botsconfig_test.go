package connectors

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBotsConfig_LoadMissingFileReturnsEmpty(t *testing.T) {
	cfg, err := LoadBotsConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platforms == nil || len(cfg.Platforms) != 0 {
		t.Errorf("expected empty platforms map, got %+v", cfg.Platforms)
	}
}

func TestBotsConfig_SaveThenLoadRoundTrips(t *testing.T) {
	vaultRoot := t.TempDir()
	cfg := BotsConfig{Platforms: map[string]Config{
		"telegram": {Token: "secret", ResponseMode: ModeMentionOnly, AllowList: []string{"u1"}},
	}}
	if err := SaveBotsConfig(vaultRoot, cfg); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(vaultRoot, ".parachute", "bots.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected bots.yaml to be mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := LoadBotsConfig(vaultRoot)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Platforms["telegram"].Token != "secret" {
		t.Errorf("expected round-tripped token, got %+v", loaded.Platforms["telegram"])
	}
}
