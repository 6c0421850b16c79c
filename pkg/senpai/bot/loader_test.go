package bot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	data := []byte(`
persona: rin
model:
  name: gemini-2.0-pro
memory:
  backend: static
  static_entries:
    - "记忆一"
`)

	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.Persona != "rin" {
		t.Errorf("persona not overlaid: %q", cfg.Persona)
	}
	if cfg.Model.Name != "gemini-2.0-pro" {
		t.Errorf("model not overlaid: %q", cfg.Model.Name)
	}
	if cfg.Memory.Backend != "static" || len(cfg.Memory.StaticEntries) != 1 {
		t.Errorf("memory config not overlaid: %+v", cfg.Memory)
	}

	// Untouched values keep their defaults.
	if cfg.History.Limit != 10 {
		t.Errorf("history default lost: %d", cfg.History.Limit)
	}
	if cfg.Model.TimeoutSeconds != 60 {
		t.Errorf("timeout default lost: %d", cfg.Model.TimeoutSeconds)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	if _, err := ParseConfig([]byte("persona: [broken")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfigFromFile_ExpandsEnvVars(t *testing.T) {
	t.Setenv("SENPAI_TEST_PERSONA", "from-env")

	tmpDir, err := os.MkdirTemp("", "senpai-config-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("persona: ${SENPAI_TEST_PERSONA}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}
	if cfg.Persona != "from-env" {
		t.Errorf("env var not expanded: %q", cfg.Persona)
	}
}

func TestResolveSecrets_FromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DISCORD_TOKEN", "test-token")

	cfg := DefaultConfig()
	ResolveSecrets(cfg)

	if cfg.Model.APIKey != "test-key" {
		t.Errorf("API key not resolved: %q", cfg.Model.APIKey)
	}
	if cfg.Discord.Token != "test-token" {
		t.Errorf("Discord token not resolved: %q", cfg.Discord.Token)
	}
}

func TestResolveSecrets_KeepsExplicitValues(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg := DefaultConfig()
	cfg.Model.APIKey = "explicit-key"
	ResolveSecrets(cfg)

	if cfg.Model.APIKey != "explicit-key" {
		t.Errorf("explicit key overridden: %q", cfg.Model.APIKey)
	}
}

func TestSaveConfigToFile_RestrictsPermissions(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "senpai-config-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	path := filepath.Join(tmpDir, "config.yaml")
	if err := SaveConfigToFile(DefaultConfig(), path); err != nil {
		t.Fatalf("SaveConfigToFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %04o", perm)
	}

	// Round trip.
	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("round-trip load failed: %v", err)
	}
	if cfg.Persona != DefaultConfig().Persona {
		t.Errorf("round trip lost persona: %q", cfg.Persona)
	}
}
