// internal/config/config.go
//
// This package handles configuration and the .weft directory structure.
// Every workspace that uses weft gets a .weft/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WeftDir is the name of the directory we create in each workspace
	WeftDir = ".weft"

	DefaultFilesDebounce      = 200 * time.Millisecond
	DefaultInitDebounce       = 400 * time.Millisecond
	DefaultControllerDebounce = 500 * time.Millisecond

	// DefaultBridgeHost keeps the bridge on loopback.
	DefaultBridgeHost = "127.0.0.1"
	DefaultBridgePort = 8765
)

// Build modes.
const (
	ModeOnce  = "once"
	ModeWatch = "watch"
)

const defaultWorkspaceConfigYAML = `# weft workspace configuration
version: 1

# Active profiles, highest priority first. Files tagged with these
# (src/api#web.ts) replace their untagged counterparts.
profiles:
  - default

debounce:
  files: 200ms
  init: 400ms
  controller: 500ms

build:
  # Defaults to the number of CPUs minus one.
  # max_parallel: 3
  mode: once

bridge:
  enabled: false
  host: 127.0.0.1
  port: 8765

log:
  level: info
`

// DebounceConfig holds the coalescing windows for each recompute loop.
type DebounceConfig struct {
	Files      time.Duration `yaml:"files"`
	Init       time.Duration `yaml:"init"`
	Controller time.Duration `yaml:"controller"`
}

// BuildConfig controls build fan-out.
type BuildConfig struct {
	MaxParallel int    `yaml:"max_parallel,omitempty"`
	Mode        string `yaml:"mode,omitempty"`
}

// BridgeConfig controls the HTTP bridge served by `weft dev`. It is off
// unless enabled.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// Address returns the bind address in host:port form.
func (b BridgeConfig) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// LogConfig selects how chatty the runtime log is.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// WorkspaceConfig models .weft/config.yaml.
type WorkspaceConfig struct {
	Version  int            `yaml:"version"`
	Profiles []string       `yaml:"profiles,omitempty"`
	Debounce DebounceConfig `yaml:"debounce"`
	Build    BuildConfig    `yaml:"build"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Log      LogConfig      `yaml:"log"`
}

// Config holds the runtime configuration for weft.
type Config struct {
	// Root is the workspace root holding weft.yaml
	Root string

	// WeftProjectDir is Root/.weft
	WeftProjectDir string

	Workspace WorkspaceConfig
}

// InitWeftDir creates the .weft directory structure in the given workspace.
//
// Structure created:
// .weft/
// ├── logs/   <- runtime log and build journal
// ├── state/  <- engine state persisted between runs
// └── cache/  <- scratch space for builders
func InitWeftDir(root string) error {
	weftDir := filepath.Join(root, WeftDir)
	dirs := []string{
		filepath.Join(weftDir, "logs"),
		filepath.Join(weftDir, "state"),
		filepath.Join(weftDir, "cache"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureWorkspaceConfig(filepath.Join(weftDir, "config.yaml"))
}

// NewConfig loads .weft/config.yaml under root and applies environment
// overrides. A missing file yields the defaults.
func NewConfig(root string) (*Config, error) {
	cfg := &Config{
		Root:           root,
		WeftProjectDir: filepath.Join(root, WeftDir),
		Workspace:      defaultWorkspaceConfig(),
	}
	if err := cfg.loadWorkspaceConfig(); err != nil {
		return nil, err
	}
	cfg.Workspace.applyEnvOverrides()
	if err := cfg.Workspace.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.WeftProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.WeftProjectDir, "state")
}

// CacheDir returns the scratch directory handed to builders
func (c *Config) CacheDir() string {
	return filepath.Join(c.WeftProjectDir, "cache")
}

// ConfigPath returns the on-disk location for the workspace config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.WeftProjectDir, "config.yaml")
}

// BuildLogPath is the build journal written by the engine.
func (c *Config) BuildLogPath() string {
	return filepath.Join(c.LogsDir(), "builds.log")
}

// Profiles returns the active profile list.
func (c *Config) Profiles() []string {
	return append([]string(nil), c.Workspace.Profiles...)
}

// SetProfiles replaces the active profiles and persists them.
func (c *Config) SetProfiles(profiles []string) error {
	c.Workspace.Profiles = append([]string(nil), profiles...)
	return c.saveWorkspaceConfig()
}

func (c *Config) loadWorkspaceConfig() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed WorkspaceConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}

	c.Workspace = parsed
	return nil
}

func defaultWorkspaceConfig() WorkspaceConfig {
	wc := WorkspaceConfig{Version: 1}
	wc.applyDefaults()
	wc.normalize()
	return wc
}

// DefaultMaxParallel is one less than the CPU count, never below one.
func DefaultMaxParallel() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

func (wc *WorkspaceConfig) applyDefaults() {
	if wc.Version == 0 {
		wc.Version = 1
	}
	if wc.Debounce.Files == 0 {
		wc.Debounce.Files = DefaultFilesDebounce
	}
	if wc.Debounce.Init == 0 {
		wc.Debounce.Init = DefaultInitDebounce
	}
	if wc.Debounce.Controller == 0 {
		wc.Debounce.Controller = DefaultControllerDebounce
	}
	if wc.Build.MaxParallel == 0 {
		wc.Build.MaxParallel = DefaultMaxParallel()
	}
	if wc.Build.Mode == "" {
		wc.Build.Mode = ModeOnce
	}
	if wc.Bridge.Host == "" {
		wc.Bridge.Host = DefaultBridgeHost
	}
	if wc.Bridge.Port == 0 {
		wc.Bridge.Port = DefaultBridgePort
	}
	if wc.Log.Level == "" {
		wc.Log.Level = "info"
	}
}

func (wc *WorkspaceConfig) normalize() {
	wc.Profiles = splitProfiles(wc.Profiles)
	wc.Build.Mode = strings.ToLower(strings.TrimSpace(wc.Build.Mode))
	wc.Bridge.Host = strings.TrimSpace(wc.Bridge.Host)
	wc.Log.Level = strings.ToLower(strings.TrimSpace(wc.Log.Level))
}

func (wc *WorkspaceConfig) validate() error {
	if wc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if wc.Debounce.Files < 0 || wc.Debounce.Init < 0 || wc.Debounce.Controller < 0 {
		return fmt.Errorf("debounce windows must not be negative")
	}
	if wc.Build.MaxParallel < 1 {
		return fmt.Errorf("build.max_parallel must be >= 1")
	}
	switch wc.Build.Mode {
	case ModeOnce, ModeWatch:
	default:
		return fmt.Errorf("build.mode must be 'once' or 'watch'")
	}
	if wc.Bridge.Port < 1 || wc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be between 1 and 65535")
	}
	switch wc.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

func (wc *WorkspaceConfig) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("WEFT_PROFILES")); value != "" {
		wc.Profiles = splitProfiles(strings.Split(value, ","))
	}
	if value := strings.TrimSpace(os.Getenv("WEFT_MAX_PARALLEL")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			wc.Build.MaxParallel = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("WEFT_BRIDGE_ENABLED")); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			wc.Bridge.Enabled = enabled
		}
	}
	if value := strings.TrimSpace(os.Getenv("WEFT_BRIDGE_HOST")); value != "" {
		wc.Bridge.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("WEFT_BRIDGE_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			wc.Bridge.Port = parsed
		}
	}
}

func splitProfiles(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

func ensureWorkspaceConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultWorkspaceConfigYAML), 0o644)
}

func (c *Config) saveWorkspaceConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Workspace.applyDefaults()
	c.Workspace.normalize()
	if err := c.Workspace.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.WeftProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure weft dir: %w", err)
	}
	data, err := yaml.Marshal(c.Workspace)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write workspace config: %w", err)
	}
	return nil
}
