package veloconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyConfig()

	if got := cfg.GetSplitAzimuth(); got != 0 {
		t.Errorf("GetSplitAzimuth() = %d, want 0", got)
	}
	if got := cfg.GetReplaySpeed(); got != 1.0 {
		t.Errorf("GetReplaySpeed() = %f, want 1.0", got)
	}
	if got := cfg.GetReplayLoop(); got != false {
		t.Errorf("GetReplayLoop() = %v, want false", got)
	}
	if got := cfg.GetReplaySync(); got != false {
		t.Errorf("GetReplaySync() = %v, want false", got)
	}
	if got := cfg.GetUDPReadTimeout(); got != time.Second {
		t.Errorf("GetUDPReadTimeout() = %v, want 1s", got)
	}
	if got := cfg.GetSensorID(); got == "" {
		t.Error("GetSensorID() must never return an empty string")
	}
}

func TestLoadConfigPartialFile(t *testing.T) {
	path := writeConfigFile(t, "tuning.json", `{"split_azimuth": 18000, "replay_loop": true}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.GetSplitAzimuth(); got != 18000 {
		t.Errorf("GetSplitAzimuth() = %d, want 18000", got)
	}
	if got := cfg.GetReplayLoop(); got != true {
		t.Errorf("GetReplayLoop() = %v, want true", got)
	}
	// Unspecified fields still fall back to defaults.
	if got := cfg.GetReplaySpeed(); got != 1.0 {
		t.Errorf("GetReplaySpeed() = %f, want 1.0", got)
	}
}

func TestLoadConfigRejectsNonJSONExtension(t *testing.T) {
	path := writeConfigFile(t, "tuning.txt", `{}`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for a non-.json config path")
	}
}

func TestLoadConfigRejectsInvalidReplaySpeed(t *testing.T) {
	path := writeConfigFile(t, "tuning.json", `{"replay_speed": -2}`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for a negative replay_speed")
	}
}

func TestLoadConfigRejectsUnparseableTimeout(t *testing.T) {
	path := writeConfigFile(t, "tuning.json", `{"udp_read_timeout": "soon"}`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for an unparseable udp_read_timeout")
	}
}

func TestGetSensorIDFallsBackWhenBlank(t *testing.T) {
	blank := ""
	cfg := &Config{SensorID: &blank}

	if got := cfg.GetSensorID(); got == "" {
		t.Error("GetSensorID() must substitute a generated id for a blank configured value")
	}
}
