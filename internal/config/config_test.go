package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.WSPort != 9002 {
		t.Errorf("WSPort = %d, want 9002", c.WSPort)
	}
	if c.LogLevel != "info" || c.LogFormat != "text" {
		t.Errorf("LogLevel/LogFormat = %q/%q, want info/text", c.LogLevel, c.LogFormat)
	}
	if c.TARSI != 14 {
		t.Errorf("TARSI = %d, want 14", c.TARSI)
	}
}

func TestLoadPositionalPortOverride(t *testing.T) {
	c, err := Load([]string{"7001"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.WSPort != 7001 {
		t.Errorf("WSPort = %d, want 7001", c.WSPort)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GMA_WSPORT", "8500")
	c, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.WSPort != 8500 {
		t.Errorf("WSPort = %d, want 8500 from GMA_WSPORT", c.WSPort)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gma.json")
	if err := os.WriteFile(path, []byte(`{"wsPort": 9100, "logLevel": "debug"}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.WSPort != 9100 {
		t.Errorf("WSPort = %d, want 9100 from config file", c.WSPort)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug from config file", c.LogLevel)
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("GMA_LOGLEVEL", "verbose")
	if _, err := Load(nil); err == nil {
		t.Fatal("Load() error = nil, want error for invalid logLevel")
	}
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	t.Setenv("GMA_WSPORT", "99999")
	if _, err := Load(nil); err == nil {
		t.Fatal("Load() error = nil, want error for out-of-range wsPort")
	}
}
