package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/weft/internal/profile"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("weft %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestInitResolveAndStatus(t *testing.T) {
	root := t.TempDir()
	core := filepath.Join(root, "packages", "core")
	if err := os.MkdirAll(core, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"index.ts":     "export const a = 1\n",
		"index#web.ts": "export const a = 2\n",
	} {
		if err := os.WriteFile(filepath.Join(core, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out := runCLI(t, "init", "-C", root, "--name", "demo", "--project", "packages/core")
	if !strings.Contains(out, "wrote") {
		t.Fatalf("init output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(root, ".weft", "config.yaml")); err != nil {
		t.Fatalf("expected .weft/config.yaml: %v", err)
	}

	out = runCLI(t, "resolve", "core", "-C", root, "-p", "web", "--json")
	var res profile.Resolution
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode resolution: %v\n%s", err, out)
	}
	if got := res.Paths["./index"]; got != "./index#web.ts" {
		t.Fatalf("resolved ./index = %q", got)
	}

	runCLI(t, "profiles", "set", "web", "prod", "-C", root)
	if out := runCLI(t, "profiles", "-C", root); strings.TrimSpace(out) != "#web #prod" {
		t.Fatalf("profiles = %q", out)
	}

	if out := runCLI(t, "status", "-C", root); !strings.Contains(out, "No state recorded") {
		t.Fatalf("status output = %q", out)
	}
}
