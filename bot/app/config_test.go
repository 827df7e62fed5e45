package app

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
openai:
  api_key: "sk-test"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Telegram.RunMode != "longpoll" {
		t.Errorf("run_mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
	if cfg.OpenAI.Model != "gpt-image-1" {
		t.Errorf("model = %q", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.TimeoutSeconds != 180 {
		t.Errorf("timeout = %d", cfg.OpenAI.TimeoutSeconds)
	}
	if cfg.Image.TargetSize != 1024 {
		t.Errorf("target_size = %d", cfg.Image.TargetSize)
	}
	if cfg.Database.Enabled() {
		t.Error("database should be disabled without a host")
	}
	if cfg.CoreConfig() == nil {
		t.Fatal("CoreConfig returned nil")
	}
}

func TestLoadReadsDatabaseSection(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
openai:
  api_key: "sk-test"
database:
  host: "localhost"
  port: "5433"
  name: "editbot"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Database.Enabled() {
		t.Fatal("database should be enabled")
	}
	if cfg.Database.Port != "5433" {
		t.Errorf("port = %q", cfg.Database.Port)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("OPENAI_IMAGE_MODEL", "gpt-image-1-mini")

	path := writeConfig(t, `
telegram:
  token: "123:abc"
openai:
  api_key: "sk-test"
  model: "gpt-image-1"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.Model != "gpt-image-1-mini" {
		t.Errorf("model = %q, want env override", cfg.OpenAI.Model)
	}
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	path := writeConfig(t, `
telegram:
  token: "123:abc"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing openai api key")
	}
}
