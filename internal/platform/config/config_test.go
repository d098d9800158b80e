package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_defaults(t *testing.T) {
	for _, k := range []string{"WORKERS", "SEGMENT_DELAY", "HEARTBEAT_INTERVAL", "KEEP_TEMP", "TEMP_DIR"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.SegmentDelay != 250*time.Millisecond {
		t.Errorf("SegmentDelay = %v", cfg.SegmentDelay)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
	if cfg.KeepTemp {
		t.Error("KeepTemp should default to false")
	}
	if cfg.TempDir != "download_temp" {
		t.Errorf("TempDir = %q", cfg.TempDir)
	}
}

func TestFromEnv_overrides(t *testing.T) {
	t.Setenv("WORKERS", "8")
	t.Setenv("SEGMENT_DELAY", "3s")
	t.Setenv("HEARTBEAT_INTERVAL", "10")
	t.Setenv("KEEP_TEMP", "yes")
	t.Setenv("REQUESTS_PER_SECOND", "2.5")

	cfg := FromEnv()
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.SegmentDelay != 3*time.Second {
		t.Errorf("SegmentDelay = %v", cfg.SegmentDelay)
	}
	if cfg.HeartbeatInterval != 10*time.Second {
		t.Errorf("bare integer should be seconds, got %v", cfg.HeartbeatInterval)
	}
	if !cfg.KeepTemp {
		t.Error("KeepTemp = false, want true")
	}
	if cfg.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v", cfg.RequestsPerSecond)
	}
}

func TestGetEnv_invalid_values_fall_back(t *testing.T) {
	t.Setenv("X_INT", "many")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")
	if got := GetEnvInt("X_INT", 3); got != 3 {
		t.Errorf("GetEnvInt = %d", got)
	}
	if got := GetEnvBool("X_BOOL", true); !got {
		t.Error("GetEnvBool should fall back to true")
	}
	if got := GetEnvDuration("X_DUR", time.Minute); got != time.Minute {
		t.Errorf("GetEnvDuration = %v", got)
	}
}

func TestLoad_dotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("HLSDL_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HLSDL_TEST_VALUE", "")
	os.Unsetenv("HLSDL_TEST_VALUE")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnv("HLSDL_TEST_VALUE", "unset"); got != "from-file" {
		t.Errorf("GetEnv = %q, want from-file", got)
	}
	if err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("Load of a missing file should return an error")
	}
}
