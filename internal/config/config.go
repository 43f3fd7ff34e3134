package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DeviceConfig identifies this unit on the network.
type DeviceConfig struct {
	Label string `json:"label"`
	ID    int    `json:"id"`
}

// NetworkConfig holds the command and heartbeat endpoints.
type NetworkConfig struct {
	CommandPort       int    `json:"command_port"`
	HeartbeatAddr     string `json:"heartbeat_addr"`
	HeartbeatInterval string `json:"heartbeat_interval"`
}

// LightingConfig holds the light-array parameters.
type LightingConfig struct {
	PixelCount        int     `json:"pixel_count"`
	DefaultBrightness int     `json:"default_brightness"`
	QueueSize         int     `json:"queue_size"`
	FlushRate         float64 `json:"flush_rate_limit"`
	FlushBurst        int     `json:"flush_rate_burst"`
}

// PlaybackConfig holds the media playback parameters.
type PlaybackConfig struct {
	MediaDir     string `json:"media_dir"`
	DefaultMedia string `json:"default_media"`
	QueueSize    int    `json:"queue_size"`
	FrameRate    int    `json:"frame_rate"`
	FailureLimit int    `json:"failure_limit"`
}

// ResetConfig holds the factory-reset hold timing.
type ResetConfig struct {
	HoldThreshold string `json:"hold_threshold"`
}

// ServerConfig - local HTTP observability endpoint (status hub + metrics).
type ServerConfig struct {
	Port           string   `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MQTTConfig - optional MQTT bridge settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"` // tcp://IP:PORT
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// Config is the root structure persisted as a JSON file.
type Config struct {
	Device   DeviceConfig   `json:"device"`
	Network  NetworkConfig  `json:"network"`
	Lighting LightingConfig `json:"lighting"`
	Playback PlaybackConfig `json:"playback"`
	Reset    ResetConfig    `json:"reset"`
	Server   ServerConfig   `json:"server"`
	MQTT     MQTTConfig     `json:"mqtt"`

	// File system settings
	PatternsDir   string `json:"patterns_dir"`
	SchedulesFile string `json:"schedules_file"`
}

// Load reads the file, parses the JSON and applies validation/defaults. A
// missing file is not an error; the device boots with factory defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.setDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	cfg := &Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) sanitize() {
	c.Device.Label = strings.TrimSpace(c.Device.Label)
	c.Network.HeartbeatAddr = strings.TrimSpace(c.Network.HeartbeatAddr)
	c.Playback.MediaDir = strings.TrimSpace(c.Playback.MediaDir)
	c.Playback.DefaultMedia = strings.TrimSpace(c.Playback.DefaultMedia)
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.PatternsDir = strings.TrimSpace(c.PatternsDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
}

func (c *Config) setDefaults() {
	// Device Defaults
	if c.Device.Label == "" {
		c.Device.Label = "prop-unit"
	}

	// Network Defaults
	if c.Network.CommandPort == 0 {
		c.Network.CommandPort = 8888
	}
	if c.Network.HeartbeatAddr == "" {
		c.Network.HeartbeatAddr = "255.255.255.255:8889"
	}
	if c.Network.HeartbeatInterval == "" {
		c.Network.HeartbeatInterval = "5s"
	}

	// Lighting Defaults
	if c.Lighting.PixelCount <= 0 {
		c.Lighting.PixelCount = 16
	}
	if c.Lighting.DefaultBrightness <= 0 {
		c.Lighting.DefaultBrightness = 50
	}
	if c.Lighting.QueueSize <= 0 {
		c.Lighting.QueueSize = 10
	}
	if c.Lighting.FlushRate <= 0 {
		c.Lighting.FlushRate = 120.0
	}
	if c.Lighting.FlushBurst <= 0 {
		c.Lighting.FlushBurst = 30
	}

	// Playback Defaults
	if c.Playback.MediaDir == "" {
		c.Playback.MediaDir = "/media"
	}
	if c.Playback.QueueSize <= 0 {
		c.Playback.QueueSize = 4
	}
	if c.Playback.FrameRate <= 0 {
		c.Playback.FrameRate = 30
	}
	if c.Playback.FailureLimit <= 0 {
		c.Playback.FailureLimit = 10
	}

	// Reset Defaults
	if c.Reset.HoldThreshold == "" {
		c.Reset.HoldThreshold = "5s"
	}

	// Server Defaults
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// File Defaults
	if c.PatternsDir == "" {
		c.PatternsDir = "patterns"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}

	// MQTT Defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "prop-controller"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "prop"
	}
}

func (c *Config) validate() error {
	if c.Network.CommandPort < 0 || c.Network.CommandPort > 65535 {
		return fmt.Errorf("config error: 'command_port' out of range: %d", c.Network.CommandPort)
	}
	if c.Lighting.DefaultBrightness > 100 {
		return fmt.Errorf("config error: 'default_brightness' must be 0..100")
	}
	return nil
}
