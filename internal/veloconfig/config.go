// Package veloconfig loads the JSON tuning file that controls turn
// segmentation, replay pacing and calibration overrides, independent of
// which sensor model or packet source the caller wires up.
package veloconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root tuning document. Every field is optional; Get*
// accessors supply the production default for anything left unset, so a
// partial or empty file is always safe to load.
type Config struct {
	// SplitAzimuth is the TurnSegmenter crossing line, in hundredths of a
	// degree.
	SplitAzimuth *uint16 `json:"split_azimuth,omitempty"`
	// DistLSB overrides the HDL-64 calibration XML's distance LSB, in
	// centimetres per unit. Unset keeps the XML's own value.
	DistLSB *float32 `json:"dist_lsb,omitempty"`
	// ReplaySpeed divides a pcap capture's own inter-record gaps; 1.0
	// replays at capture speed. Only takes effect when ReplaySync is true.
	ReplaySpeed *float64 `json:"replay_speed,omitempty"`
	// ReplayLoop rewinds a pcap source to the start on reaching EOF.
	ReplayLoop *bool `json:"replay_loop,omitempty"`
	// ReplaySync paces pcap replay against the capture's own timestamps;
	// false (the default) replays as fast as the caller can drain it.
	ReplaySync *bool `json:"replay_sync,omitempty"`
	// UDPReadTimeout is a duration string like "500ms" bounding how long
	// a live UDP source blocks before reporting exhaustion.
	UDPReadTimeout *string `json:"udp_read_timeout,omitempty"`
	// SensorID identifies this decoder instance; the velodecode command
	// does not include it in its log lines. For a blank or unset value,
	// GetSensorID returns a freshly generated UUID on every call and the
	// field itself stays unset.
	SensorID *string `json:"sensor_id,omitempty"`
}

// EmptyConfig returns a Config with every field unset. Use LoadConfig to
// populate one from a file.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig reads and validates a Config from a JSON file. The path must
// end in .json and be under maxConfigFileSize. Fields the file omits keep
// their production defaults.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("veloconfig: config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("veloconfig: failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("veloconfig: config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("veloconfig: failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("veloconfig: failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("veloconfig: invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set fields carry legal values.
func (c *Config) Validate() error {
	if c.ReplaySpeed != nil && *c.ReplaySpeed < 0 {
		return fmt.Errorf("replay_speed must be non-negative, got %f", *c.ReplaySpeed)
	}
	if c.UDPReadTimeout != nil && *c.UDPReadTimeout != "" {
		if _, err := time.ParseDuration(*c.UDPReadTimeout); err != nil {
			return fmt.Errorf("invalid udp_read_timeout %q: %w", *c.UDPReadTimeout, err)
		}
	}
	return nil
}

// GetSplitAzimuth returns the configured crossing line or the default of
// zero (the sensor's reported-north line).
func (c *Config) GetSplitAzimuth() uint16 {
	if c.SplitAzimuth == nil {
		return 0
	}
	return *c.SplitAzimuth
}

// GetReplaySpeed returns the configured replay speed multiplier, or 1.0
// (capture-speed playback) if unset.
func (c *Config) GetReplaySpeed() float64 {
	if c.ReplaySpeed == nil {
		return 1.0
	}
	return *c.ReplaySpeed
}

// GetReplayLoop returns whether pcap replay should loop, defaulting to
// false.
func (c *Config) GetReplayLoop() bool {
	if c.ReplayLoop == nil {
		return false
	}
	return *c.ReplayLoop
}

// GetReplaySync returns whether pcap replay should pace itself against
// capture timestamps, defaulting to false (replay as fast as possible).
func (c *Config) GetReplaySync() bool {
	if c.ReplaySync == nil {
		return false
	}
	return *c.ReplaySync
}

// GetUDPReadTimeout parses and returns the configured UDP read timeout, or
// one second on an unset or unparseable value.
func (c *Config) GetUDPReadTimeout() time.Duration {
	if c.UDPReadTimeout == nil || *c.UDPReadTimeout == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.UDPReadTimeout)
	if err != nil {
		return time.Second
	}
	return d
}

// GetSensorID returns the configured sensor id, or a freshly generated
// UUID if the field was left blank or unset.
func (c *Config) GetSensorID() string {
	if c.SensorID == nil || *c.SensorID == "" {
		return uuid.NewString()
	}
	return *c.SensorID
}
