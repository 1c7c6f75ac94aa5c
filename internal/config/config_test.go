package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if !cfg.Dispatch.CacheEnabled() {
		t.Errorf("cache should default to enabled")
	}
	if cfg.Dispatch.MaxCandidates != DefaultMaxCandidates {
		t.Errorf("MaxCandidates = %d", cfg.Dispatch.MaxCandidates)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("Addr = %s", cfg.Server.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
dispatch:
  cache: false
  max_candidates: 5
log:
  level: debug
  format: json
catalog:
  path: /tmp/catalog.db
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Dispatch.CacheEnabled() {
		t.Errorf("cache: false was ignored")
	}
	if cfg.Dispatch.MaxCandidates != 5 {
		t.Errorf("MaxCandidates = %d, want 5", cfg.Dispatch.MaxCandidates)
	}
	if cfg.Dispatch.MaxDepth != DefaultMaxDepth {
		t.Errorf("MaxDepth should fall back to default, got %d", cfg.Dispatch.MaxDepth)
	}
	if cfg.Catalog.Path != "/tmp/catalog.db" {
		t.Errorf("Catalog.Path = %s", cfg.Catalog.Path)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"negative candidates", "dispatch:\n  max_candidates: -1\n"},
		{"malformed", "dispatch: [\n"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.yaml)); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := FindAndLoad(nested)
	if err != nil || path != "" {
		t.Fatalf("without a file: path=%q err=%v", path, err)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("expected defaults")
	}

	if err := os.WriteFile(filepath.Join(root, ConfigFileName), []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, path, err = FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if path != filepath.Join(root, ConfigFileName) {
		t.Errorf("path = %s", path)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Level = %s, want info", cfg.Log.Level)
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Debug("hidden")
	logger.Info("shown", "k", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record should be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected a JSON record, got %s", out)
	}
}
