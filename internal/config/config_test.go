package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Source.Name != "web-platform-tests" || cfg.Target.Name != "gecko" {
		t.Errorf("unexpected default repositories %q and %q", cfg.Source.Name, cfg.Target.Name)
	}
	if cfg.PathPrefix != "testing/web-platform/tests" {
		t.Errorf("unexpected default path prefix %q", cfg.PathPrefix)
	}
	if cfg.CIContext != "continuous-integration/travis-ci/pr" {
		t.Errorf("unexpected default CI context %q", cfg.CIContext)
	}
	if cfg.DefaultProduct != "Testing" || cfg.DefaultComponent != "web-platform-tests" {
		t.Errorf("unexpected default routing %s :: %s", cfg.DefaultProduct, cfg.DefaultComponent)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
source:
  root: /srv/wpt
target:
  root: /srv/gecko
command_timeout: 5m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source.Root != "/srv/wpt" || cfg.Target.Root != "/srv/gecko" {
		t.Errorf("file values not applied: %q and %q", cfg.Source.Root, cfg.Target.Root)
	}
	if cfg.CommandTimeout != 5*time.Minute {
		t.Errorf("expected 5m timeout, got %v", cfg.CommandTimeout)
	}

	// Untouched fields keep their defaults
	if cfg.Source.Name != "web-platform-tests" {
		t.Errorf("default source name lost, got %q", cfg.Source.Name)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DatabasePath != Default().DatabasePath {
		t.Errorf("expected pure defaults, got %q", cfg.DatabasePath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("defaults without repository roots should not validate")
	}

	cfg.Source.Root = "/srv/wpt"
	cfg.Target.Root = "/srv/gecko"
	if err := cfg.Validate(); err != nil {
		t.Errorf("complete config rejected: %v", err)
	}

	cfg.PathPrefix = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing path prefix should not validate")
	}
}
