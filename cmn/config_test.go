package cmn

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig on missing file should not error, got %v", err)
	}
	if cfg.Migration.ScanRate != 1000 {
		t.Fatalf("expected default ScanRate 1000, got %d", cfg.Migration.ScanRate)
	}
	if cfg.Failure.Quorum != 2 {
		t.Fatalf("expected default quorum 2, got %d", cfg.Failure.Quorum)
	}
}

func TestLoadConfigOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := "migration:\n  scan_rate: 42\nbroker:\n  listen_addr: \":9999\"\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Migration.ScanRate != 42 {
		t.Fatalf("expected overlaid ScanRate 42, got %d", cfg.Migration.ScanRate)
	}
	if cfg.Broker.ListenAddr != ":9999" {
		t.Fatalf("expected overlaid listen_addr :9999, got %q", cfg.Broker.ListenAddr)
	}
	// Fields absent from the YAML keep their defaults.
	if cfg.Migration.PreCheckInterval != 10*time.Millisecond {
		t.Fatalf("expected default PreCheckInterval to survive a partial overlay, got %v", cfg.Migration.PreCheckInterval)
	}
}

func TestGCOPutGet(t *testing.T) {
	custom := defaultConfig()
	custom.Migration.ScanRate = 7
	GCO.Put(custom)
	defer GCO.Put(defaultConfig())

	if got := GCO.Get().Migration.ScanRate; got != 7 {
		t.Fatalf("GCO.Get() did not reflect the last Put: got ScanRate %d", got)
	}
}
