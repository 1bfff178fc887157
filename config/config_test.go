package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("threshold = %f, want 0.6", cfg.Matching.Threshold)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sampleRate = %d", cfg.Audio.SampleRate)
	}
	if !cfg.Messages.FromEnd {
		t.Error("FromEnd must default to true")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
paths:
  rawDir: /srv/audio/raw
matching:
  threshold: 0.72
audio:
  cableDevice: "CABLE Input"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Paths.RawDir != "/srv/audio/raw" {
		t.Errorf("rawDir = %q", cfg.Paths.RawDir)
	}
	if cfg.Matching.Threshold != 0.72 {
		t.Errorf("threshold = %f", cfg.Matching.Threshold)
	}
	if cfg.Audio.CableDevice != "CABLE Input" {
		t.Errorf("cableDevice = %q", cfg.Audio.CableDevice)
	}

	// Незатронутые секции сохраняют значения по умолчанию
	if cfg.Builder.MaxClipMs != 8000 {
		t.Errorf("maxClipMs = %d, want default 8000", cfg.Builder.MaxClipMs)
	}
	if cfg.Paths.ClipsDir != "data/clips" {
		t.Errorf("clipsDir = %q, want default", cfg.Paths.ClipsDir)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("paths: [not: valid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
