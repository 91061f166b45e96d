package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWorkspaceConfigDefaultsWhenMissing(t *testing.T) {
	root := t.TempDir()
	c, err := NewConfig(root)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Workspace.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Workspace.Version)
	}
	if c.Workspace.Debounce.Files != DefaultFilesDebounce || c.Workspace.Debounce.Controller != DefaultControllerDebounce {
		t.Fatalf("unexpected debounce defaults %+v", c.Workspace.Debounce)
	}
	if c.Workspace.Build.MaxParallel != DefaultMaxParallel() {
		t.Fatalf("expected max_parallel %d, got %d", DefaultMaxParallel(), c.Workspace.Build.MaxParallel)
	}
	if c.Workspace.Build.Mode != ModeOnce {
		t.Fatalf("expected once mode, got %q", c.Workspace.Build.Mode)
	}
	if c.Workspace.Bridge.Enabled || c.Workspace.Bridge.Address() != "127.0.0.1:8765" {
		t.Fatalf("bridge should default to disabled on 127.0.0.1:8765, got %+v", c.Workspace.Bridge)
	}
}

func TestLoadWorkspaceConfigParsesYaml(t *testing.T) {
	root := t.TempDir()
	weftDir := filepath.Join(root, WeftDir)
	if err := os.MkdirAll(weftDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
profiles: [web, " prod ", web]
debounce:
  files: 50ms
  controller: 1s
build:
  max_parallel: 3
  mode: WATCH
bridge:
  enabled: true
  port: 9100
log:
  level: DEBUG
`)
	if err := os.WriteFile(filepath.Join(weftDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(root)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if got := c.Profiles(); len(got) != 2 || got[0] != "web" || got[1] != "prod" {
		t.Fatalf("profiles = %v", got)
	}
	if c.Workspace.Debounce.Files != 50*time.Millisecond || c.Workspace.Debounce.Init != DefaultInitDebounce || c.Workspace.Debounce.Controller != time.Second {
		t.Fatalf("debounce = %+v", c.Workspace.Debounce)
	}
	if c.Workspace.Build.MaxParallel != 3 || c.Workspace.Build.Mode != ModeWatch {
		t.Fatalf("build = %+v", c.Workspace.Build)
	}
	if !c.Workspace.Bridge.Enabled || c.Workspace.Bridge.Address() != "127.0.0.1:9100" {
		t.Fatalf("bridge = %+v", c.Workspace.Bridge)
	}
	if c.Workspace.Log.Level != "debug" {
		t.Fatalf("log level = %q", c.Workspace.Log.Level)
	}
}

func TestLoadWorkspaceConfigRejectsInvalidMode(t *testing.T) {
	root := t.TempDir()
	weftDir := filepath.Join(root, WeftDir)
	if err := os.MkdirAll(weftDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(weftDir, "config.yaml"), []byte("build:\n  mode: sometimes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(root); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEFT_PROFILES", "node, test")
	t.Setenv("WEFT_MAX_PARALLEL", "7")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if got := c.Profiles(); len(got) != 2 || got[0] != "node" || got[1] != "test" {
		t.Fatalf("profiles = %v", got)
	}
	if c.Workspace.Build.MaxParallel != 7 {
		t.Fatalf("max_parallel = %d", c.Workspace.Build.MaxParallel)
	}
}

func TestBridgeEnvOverrides(t *testing.T) {
	t.Setenv("WEFT_BRIDGE_ENABLED", "true")
	t.Setenv("WEFT_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("WEFT_BRIDGE_PORT", "9001")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if !c.Workspace.Bridge.Enabled || c.Workspace.Bridge.Address() != "0.0.0.0:9001" {
		t.Fatalf("bridge = %+v", c.Workspace.Bridge)
	}

	t.Setenv("WEFT_BRIDGE_PORT", "70000")
	if _, err := NewConfig(t.TempDir()); err == nil || !strings.Contains(err.Error(), "bridge.port") {
		t.Fatalf("expected bridge.port validation error, got %v", err)
	}
}

func TestInitWeftDirSeedsConfig(t *testing.T) {
	root := t.TempDir()
	if err := InitWeftDir(root); err != nil {
		t.Fatalf("InitWeftDir: %v", err)
	}
	for _, dir := range []string{"logs", "state", "cache"} {
		if info, err := os.Stat(filepath.Join(root, WeftDir, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", dir, err)
		}
	}
	c, err := NewConfig(root)
	if err != nil {
		t.Fatalf("seeded config should load: %v", err)
	}
	if got := c.Profiles(); len(got) != 1 || got[0] != "default" {
		t.Fatalf("seeded profiles = %v", got)
	}
}

func TestSetProfilesPersists(t *testing.T) {
	root := t.TempDir()
	c, err := NewConfig(root)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if err := c.SetProfiles([]string{"web", "prod"}); err != nil {
		t.Fatalf("SetProfiles: %v", err)
	}
	reloaded, err := NewConfig(root)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Profiles(); len(got) != 2 || got[0] != "web" {
		t.Fatalf("persisted profiles = %v", got)
	}
}
