package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Level string `yaml:"level"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "nexus")
	cfg := &sample{Port: 8080, Level: "info"}
	if err := Load(writeConfig(t, "name: ${SAMPLE_NAME}\n"), cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "nexus" || cfg.Port != 8080 || cfg.Level != "info" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadValidates(t *testing.T) {
	cfg := &sample{}
	err := Load(writeConfig(t, "port: 0\n"), cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &sample{Port: 1}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	cfg := &sample{Port: 9}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), cfg)
	if err != nil || found {
		t.Fatalf("LoadOptional missing = %v, %v", found, err)
	}
	if cfg.Port != 9 {
		t.Errorf("defaults lost: %+v", cfg)
	}

	found, err = LoadOptional(writeConfig(t, "port: 10\n"), cfg)
	if err != nil || !found || cfg.Port != 10 {
		t.Errorf("LoadOptional present = %v, %v, %+v", found, err, cfg)
	}

	if _, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &sample{}); err == nil {
		t.Error("defaults should still be validated")
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("NEXUS_SET", "value")
	t.Setenv("NEXUS_EMPTY", "")
	tests := map[string]string{
		"${NEXUS_SET}":             "value",
		"$NEXUS_SET/x":             "value/x",
		"${NEXUS_SET:-other}":      "value",
		"${NEXUS_EMPTY:-fallback}": "fallback",
		"${NEXUS_UNSET:-8080}":     "8080",
		"${NEXUS_UNSET}":           "",
		"plain":                    "plain",
	}
	for in, want := range tests {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadFallbackDefault(t *testing.T) {
	cfg := &sample{}
	if err := Load(writeConfig(t, "port: ${NEXUS_TEST_PORT:-7070}\nlevel: ${NEXUS_TEST_LEVEL:-warn}\n"), cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7070 || cfg.Level != "warn" {
		t.Errorf("cfg = %+v", cfg)
	}
}
