package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_WindowSize(t *testing.T) {
	cfg := Defaults()
	cfg.History.WindowSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for windowSize=0")
	}

	cfg = Defaults()
	cfg.History.WindowSize = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("windowSize=1 should be valid: %v", err)
	}

	cfg.History.WindowSize = 9999
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for windowSize=9999")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_MissingProvider(t *testing.T) {
	cfg := Defaults()
	cfg.General.Provider = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty provider")
	}
}

func TestValidate_MetricsPort(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for metrics port 0 when enabled")
	}

	cfg.Metrics.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled metrics should skip port check: %v", err)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.General.Provider = "ollama"
	original.History.WindowSize = 25

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.General.Provider != "ollama" {
		t.Errorf("expected ollama, got %s", loaded.General.Provider)
	}
	if loaded.History.WindowSize != 25 {
		t.Errorf("expected windowSize 25, got %d", loaded.History.WindowSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MergesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	partial := `{"general": {"provider": "openai", "maxConcurrentMessages": 3}}`
	if err := os.WriteFile(path, []byte(partial), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.Provider != "openai" {
		t.Errorf("expected openai, got %s", cfg.General.Provider)
	}
	// Untouched sections keep their defaults.
	if cfg.History.WindowSize != 10 {
		t.Errorf("expected default windowSize 10, got %d", cfg.History.WindowSize)
	}
}

// --- Env expansion ---

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("CLARABOT_TEST_TOKEN", "secret123")
	out := ExpandEnvVars(`{"token": "${CLARABOT_TEST_TOKEN}"}`)
	if out != `{"token": "secret123"}` {
		t.Errorf("unexpected expansion: %s", out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("CLARABOT_TEST_UNSET")
	out := ExpandEnvVars(`${CLARABOT_TEST_UNSET:-fallback}`)
	if out != "fallback" {
		t.Errorf("expected fallback, got %s", out)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("CLARABOT_TEST_UNSET")
	out := ExpandEnvVars(`${CLARABOT_TEST_UNSET}`)
	if out != "${CLARABOT_TEST_UNSET}" {
		t.Errorf("expected original kept, got %s", out)
	}
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	var f FlexStringList
	if err := json.Unmarshal([]byte(`["123", 456]`), &f); err != nil {
		t.Fatal(err)
	}
	if len(f) != 2 || f[0] != "123" || f[1] != "456" {
		t.Errorf("unexpected list: %v", f)
	}
}
