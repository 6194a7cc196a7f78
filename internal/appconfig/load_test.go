package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 3
state_dir: /state
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Suggest.DropdownLimit != 10 || cfg.Suggest.InlineLimit != 1 {
		t.Fatalf("expected default limits, got %+v", cfg.Suggest)
	}
	if cfg.SSH.Term != "xterm-256color" {
		t.Fatalf("expected default term, got %q", cfg.SSH.Term)
	}
}

func TestLoadOverridesAndExpands(t *testing.T) {
	t.Setenv("AIT_TEST_ROOT", "/srv/ait")
	path := writeConfig(t, `
config_version: 1
state_dir: $AIT_TEST_ROOT/state
database_path: $AIT_TEST_ROOT/state/history.db
suggest:
  inline_debounce_ms: 250
  dropdown_limit: 5
keyboard:
  enhanced: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir != "/srv/ait/state" || cfg.DatabasePath != "/srv/ait/state/history.db" {
		t.Fatalf("expected expanded paths, got %q %q", cfg.StateDir, cfg.DatabasePath)
	}
	if !cfg.Keyboard.Enhanced {
		t.Fatalf("expected keyboard.enhanced")
	}
	engine, err := cfg.Engine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if engine.InlineDebounce != 250*time.Millisecond || engine.DropdownLimit != 5 {
		t.Fatalf("unexpected engine config %+v", engine)
	}
	if engine.SuggestCacheTTL != 2*time.Second {
		t.Fatalf("expected default cache ttl, got %v", engine.SuggestCacheTTL)
	}
}

func TestLoadRejectsInlineAboveDropdown(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
suggest:
  inline_limit: 4
  dropdown_limit: 2
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "suggest.inline_limit") {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestLoadRejectsInvalidAssistantURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
assistant:
  server_url: localhost
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "assistant.server_url") {
		t.Fatalf("expected server_url error, got %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("expected written default to load: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
