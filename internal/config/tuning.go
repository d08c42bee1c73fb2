package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig holds the runtime tuning knobs for the processing pipeline
// and streaming bridge. All fields are optional pointers so a partial JSON
// file overrides only what it names; the Get* methods supply defaults.
type TuningConfig struct {
	// Pipeline params
	WindowSeconds *float64 `json:"window_seconds,omitempty"`
	QueueCapacity *int     `json:"queue_capacity,omitempty"`

	// Stream bridge params
	HandoffCapacity *int    `json:"handoff_capacity,omitempty"`
	StopGrace       *string `json:"stop_grace,omitempty"` // duration string like "3s"
	LiveFramePoints *int    `json:"live_frame_points,omitempty"`
	StreamServer    *string `json:"stream_server,omitempty"`

	// Catalog feed params
	FeedURL           *string `json:"feed_url,omitempty"`
	FeedInterval      *string `json:"feed_interval,omitempty"` // duration string like "60s"
	StationServiceURL *string `json:"station_service_url,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under 1MB. Fields omitted from the JSON
// fall back to defaults through the Get* methods.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.WindowSeconds != nil && *c.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %f", *c.WindowSeconds)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", *c.QueueCapacity)
	}
	if c.HandoffCapacity != nil && *c.HandoffCapacity <= 0 {
		return fmt.Errorf("handoff_capacity must be positive, got %d", *c.HandoffCapacity)
	}
	if c.LiveFramePoints != nil && *c.LiveFramePoints <= 0 {
		return fmt.Errorf("live_frame_points must be positive, got %d", *c.LiveFramePoints)
	}
	if c.StopGrace != nil && *c.StopGrace != "" {
		if _, err := time.ParseDuration(*c.StopGrace); err != nil {
			return fmt.Errorf("invalid stop_grace '%s': %w", *c.StopGrace, err)
		}
	}
	if c.FeedInterval != nil && *c.FeedInterval != "" {
		if _, err := time.ParseDuration(*c.FeedInterval); err != nil {
			return fmt.Errorf("invalid feed_interval '%s': %w", *c.FeedInterval, err)
		}
	}
	return nil
}

// GetWindowSeconds returns the detection window length or the default.
func (c *TuningConfig) GetWindowSeconds() float64 {
	if c.WindowSeconds == nil {
		return 10
	}
	return *c.WindowSeconds
}

// GetQueueCapacity returns the processing queue capacity or the default.
func (c *TuningConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return 256
	}
	return *c.QueueCapacity
}

// GetHandoffCapacity returns the stream handoff capacity or the default.
func (c *TuningConfig) GetHandoffCapacity() int {
	if c.HandoffCapacity == nil {
		return 64
	}
	return *c.HandoffCapacity
}

// GetStopGrace parses and returns the stream stop grace period.
func (c *TuningConfig) GetStopGrace() time.Duration {
	if c.StopGrace == nil || *c.StopGrace == "" {
		return 3 * time.Second
	}
	d, err := time.ParseDuration(*c.StopGrace)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// GetLiveFramePoints returns the live frame downsample cap or the default.
func (c *TuningConfig) GetLiveFramePoints() int {
	if c.LiveFramePoints == nil {
		return 800
	}
	return *c.LiveFramePoints
}

// GetStreamServer returns the SeedLink server address or the default.
func (c *TuningConfig) GetStreamServer() string {
	if c.StreamServer == nil || *c.StreamServer == "" {
		return "rtserve.iris.washington.edu:18000"
	}
	return *c.StreamServer
}

// GetFeedURL returns the catalog feed URL or the default.
func (c *TuningConfig) GetFeedURL() string {
	if c.FeedURL == nil || *c.FeedURL == "" {
		return "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"
	}
	return *c.FeedURL
}

// GetStationServiceURL returns the FDSN station service URL or the default.
func (c *TuningConfig) GetStationServiceURL() string {
	if c.StationServiceURL == nil || *c.StationServiceURL == "" {
		return "https://service.iris.edu/fdsnws/station/1/query"
	}
	return *c.StationServiceURL
}

// GetFeedInterval parses and returns the catalog feed polling interval.
func (c *TuningConfig) GetFeedInterval() time.Duration {
	if c.FeedInterval == nil || *c.FeedInterval == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(*c.FeedInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
