package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	CouchURL   string `yaml:"couch_url"`
	Database   string `yaml:"database"`
	NodeUUID   string `yaml:"node_uuid"`
	ManagerURL string `yaml:"manager_url"`

	DataDir string `yaml:"data_dir"`

	Display   DisplayConfig   `yaml:"display"`
	Feed      FeedConfig      `yaml:"feed"`
	Capture   CaptureConfig   `yaml:"capture"`
	Status    StatusConfig    `yaml:"status"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
}

// DisplayConfig defines the output surface and render pacing.
type DisplayConfig struct {
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
	TickRate  time.Duration `yaml:"tick_rate"`
	ScrollPPS float64       `yaml:"scroll_pps"` // overlay scroll speed, pixels/second
}

// FeedConfig defines the change-feed watcher behavior.
type FeedConfig struct {
	Heartbeat  time.Duration `yaml:"heartbeat"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// CaptureConfig defines website screenshot capture.
type CaptureConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	SettleWait time.Duration `yaml:"settle_wait"`
	ExecPath   string        `yaml:"exec_path"` // browser binary; empty = chromedp default lookup
}

// StatusConfig defines upstream status reporting.
type StatusConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
}

// ReaperConfig defines attachment garbage collection.
type ReaperConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RemoteCleanup bool          `yaml:"remote_cleanup"`
}

// WebConfig defines the local diagnostics HTTP endpoint.
type WebConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

// MessagingConfig defines the optional manager-facing broker client.
type MessagingConfig struct {
	Backend           string        `yaml:"backend"` // "mqtt", "kafka", or "" (disabled)
	MQTT              MQTTConfig    `yaml:"mqtt"`
	Kafka             KafkaConfig   `yaml:"kafka"`
	NodeTopic         string        `yaml:"node_topic"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		CouchURL: "http://localhost:5984",
		Database: "slideshows",
		DataDir:  "/var/lib/slidenode",
		Display: DisplayConfig{
			Width:     1920,
			Height:    1080,
			TickRate:  time.Second / 30,
			ScrollPPS: 50,
		},
		Feed: FeedConfig{
			Heartbeat:  10 * time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Capture: CaptureConfig{
			Timeout:    30 * time.Second,
			SettleWait: 3 * time.Second,
		},
		Status: StatusConfig{
			MinInterval: time.Second,
		},
		Reaper: ReaperConfig{
			Interval:      15 * time.Minute,
			RemoteCleanup: true,
		},
		Web: WebConfig{
			Host:    "127.0.0.1",
			Port:    8090,
			Enabled: true,
		},
		Messaging: MessagingConfig{
			NodeTopic:         "signage/nodes",
			HeartbeatInterval: 60 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
	}
}

// Load reads a YAML config file over Defaults. If the file doesn't exist,
// defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the process cannot run without.
func (c *Config) Validate() error {
	if c.CouchURL == "" {
		return fmt.Errorf("couch_url is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if _, err := uuid.Parse(c.NodeUUID); err != nil {
		return fmt.Errorf("node_uuid %q: %w", c.NodeUUID, err)
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display size %dx%d is invalid", c.Display.Width, c.Display.Height)
	}
	return nil
}

// DatabasePath returns the path of the node-local SQLite database.
func (c *Config) DatabasePath() string {
	return c.DataDir + "/slidenode.db"
}

// MediaDir returns the directory cached attachments are stored in.
func (c *Config) MediaDir() string {
	return c.DataDir + "/media"
}
