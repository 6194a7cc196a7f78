package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"pkt.systems/ait/internal/appconfig"
	"pkt.systems/ait/internal/store"
)

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"connect", "profile", "history", "settings", "macro", "ask", "init", "version"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}

func TestVersionPrintsModule(t *testing.T) {
	out, err := runAit(t, nil, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 3 || !strings.HasPrefix(fields[1], "v") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("HOME", dir)

	if _, err := runAit(t, nil, "-c", path, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	cfg := loadConfigFromPath(t, path)
	if _, err := os.Stat(cfg.Vault.StorePath); err != nil {
		t.Fatalf("expected vault key store: %v", err)
	}
	if _, err := runAit(t, nil, "-c", path, "init"); err == nil {
		t.Fatalf("expected second init without --force to fail")
	}
	if _, err := runAit(t, nil, "-c", path, "init", "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func runAit(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(bytes.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.StateDir = t.TempDir()
	cfg.DatabasePath = filepath.Join(cfg.StateDir, "ait.db")
	cfg.Vault.StorePath = filepath.Join(t.TempDir(), "keys.bundle")
	cfg.Vault.SecretDir = filepath.Join(t.TempDir(), "secrets")
	cfg.SSH.KnownHosts = filepath.Join(t.TempDir(), "known_hosts")
	cfg.Logging.File = ""
	path := filepath.Join(t.TempDir(), "config.yaml")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func loadConfigFromPath(t *testing.T, path string) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func openTestStore(t *testing.T, cfgPath string) *store.Store {
	t.Helper()
	cfg := loadConfigFromPath(t, cfgPath)
	db, err := store.Open(context.Background(), cfg.DatabasePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustRun(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := runAit(t, nil, append([]string{"-c", cfgPath}, args...)...)
	if err != nil {
		t.Fatalf("ait %s: %v", strings.Join(args, " "), err)
	}
	return out
}
