package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/fmradiod/internal/chip"
)

// DefaultFile is read when present, before any explicit config file.
const DefaultFile = "config/default.yaml"

// Config represents the complete daemon configuration
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Ops     OpsConfig     `yaml:"ops"`
	Device  DeviceConfig  `yaml:"device"`
	RDS     RDSConfig     `yaml:"rds"`
	Audio   AudioConfig   `yaml:"audio"`
	Render  RenderConfig  `yaml:"render"`
	Logging LoggingConfig `yaml:"logging"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// NetworkConfig holds network-related settings
type NetworkConfig struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// HTTPConfig holds the control front end settings
type HTTPConfig struct {
	Host           string             `yaml:"host"`
	Port           int                `yaml:"port"`
	ServerHeader   string             `yaml:"serverHeader"`
	AllowedCIDRs   []string           `yaml:"allowedCidrs"` // empty allows everyone
	MaxConnections int                `yaml:"maxConnections"`
	ReadTimeoutMs  int                `yaml:"readTimeoutMs"`
	MaxBodyBytes   int                `yaml:"maxBodyBytes"`
	ControlPath    string             `yaml:"controlPath"`
	StaticFiles    []StaticFileConfig `yaml:"staticFiles"`
	CrossDomain    []string           `yaml:"crossDomain"`
}

// MaintenanceConfig holds maintenance TCP console settings
type MaintenanceConfig struct {
	Port         int      `yaml:"port"` // 0 disables the console
	AllowedCIDRs []string `yaml:"allowedCidrs"`
}

// StaticFileConfig maps a URI to a file
type StaticFileConfig struct {
	URI      string `yaml:"uri"`
	Path     string `yaml:"path"`
	MimeType string `yaml:"mimeType"`
}

// OpsConfig holds the metrics and JSON API server settings
type OpsConfig struct {
	Port             int `yaml:"port"` // 0 disables the ops server
	StreamIntervalMs int `yaml:"streamIntervalMs"`
}

// DeviceConfig holds tuner settings
type DeviceConfig struct {
	Driver        string `yaml:"driver"`
	Region        string `yaml:"region"`
	SeekThreshold int    `yaml:"seekThreshold"`
	EnableVolume  bool   `yaml:"enableVolume"`
	EnableLED     bool   `yaml:"enableLed"`
}

// RDSConfig holds RDS reader settings
type RDSConfig struct {
	StartOnBoot       bool `yaml:"startOnBoot"`
	PollIntervalMs    int  `yaml:"pollIntervalMs"`
	PollLimit         int  `yaml:"pollLimit"`
	MismatchThreshold int  `yaml:"mismatchThreshold"`
}

// AudioConfig holds passthrough settings
type AudioConfig struct {
	Backend         string `yaml:"backend"` // sim, portaudio or none
	CaptureDevice   string `yaml:"captureDevice"`
	PlaybackDevice  string `yaml:"playbackDevice"`
	FramesPerBuffer int    `yaml:"framesPerBuffer"`
	LowWaterMs      int    `yaml:"lowWaterMs"`
	ToneHz          int    `yaml:"toneHz"` // sim backend only
	PowerOnBoot     bool   `yaml:"powerOnBoot"`
}

// RenderConfig holds status document settings
type RenderConfig struct {
	MaxBytes int `yaml:"maxBytes"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	File       string `yaml:"file"` // empty logs to stderr only
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// MQTTConfig holds status publishing settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicPrefix"`
	IntervalMs  int    `yaml:"intervalMs"`
	QoS         int    `yaml:"qos"`
}

// ReadTimeout returns the per-connection read deadline.
func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// StreamInterval returns the websocket push period.
func (c OpsConfig) StreamInterval() time.Duration {
	return time.Duration(c.StreamIntervalMs) * time.Millisecond
}

// PollInterval returns the RDS poll period.
func (c RDSConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// LowWater returns the playback low-water mark.
func (c AudioConfig) LowWater() time.Duration {
	return time.Duration(c.LowWaterMs) * time.Millisecond
}

// Interval returns the MQTT poll period.
func (c MQTTConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Load builds the configuration: defaults, then config/default.yaml when it
// exists, then path (or FMRADIOD_CONFIG when path is empty), then environment
// overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := getDefaultConfig()

	if err := loadFromFile(cfg, DefaultFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultFile, err)
	}

	if path == "" {
		path = os.Getenv("FMRADIOD_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			HTTP: HTTPConfig{
				Port:           8080,
				ServerHeader:   "fmradiod",
				MaxConnections: 16,
				ReadTimeoutMs:  5000,
				MaxBodyBytes:   64 * 1024,
				ControlPath:    "/radio",
				CrossDomain:    []string{"*"},
			},
			Maintenance: MaintenanceConfig{
				Port:         50000,
				AllowedCIDRs: []string{"127.0.0.0/8", "::1/128"},
			},
		},
		Ops: OpsConfig{
			Port:             9090,
			StreamIntervalMs: 1000,
		},
		Device: DeviceConfig{
			Driver:        "simulator",
			Region:        "US",
			SeekThreshold: 100,
		},
		RDS: RDSConfig{
			PollIntervalMs:    20,
			PollLimit:         100,
			MismatchThreshold: 10,
		},
		Audio: AudioConfig{
			Backend:         "sim",
			FramesPerBuffer: 441,
			LowWaterMs:      10,
			ToneHz:          440,
		},
		Render: RenderConfig{
			MaxBytes: 4096,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "fmradiod",
			IntervalMs:  2000,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("FMRADIOD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Network.HTTP.Port = p
		}
	}

	if region := os.Getenv("FMRADIOD_REGION"); region != "" {
		cfg.Device.Region = region
	}

	if logFile := os.Getenv("FMRADIOD_LOG_FILE"); logFile != "" {
		cfg.Logging.File = logFile
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	http := cfg.Network.HTTP
	if http.Port < 0 || http.Port > 65535 {
		return fmt.Errorf("invalid HTTP port %d", http.Port)
	}
	if cfg.Ops.Port < 0 || cfg.Ops.Port > 65535 {
		return fmt.Errorf("invalid ops port %d", cfg.Ops.Port)
	}
	if cfg.Ops.Port != 0 && cfg.Ops.Port == http.Port {
		return fmt.Errorf("ops port %d collides with the HTTP port", cfg.Ops.Port)
	}
	if http.MaxConnections <= 0 {
		return fmt.Errorf("maxConnections must be positive, got %d", http.MaxConnections)
	}
	if http.ControlPath == "" || http.ControlPath[0] != '/' {
		return fmt.Errorf("controlPath %q must start with /", http.ControlPath)
	}
	for _, cidr := range http.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid allowed CIDR %q: %w", cidr, err)
		}
	}
	maint := cfg.Network.Maintenance
	if maint.Port < 0 || maint.Port > 65535 {
		return fmt.Errorf("invalid maintenance port %d", maint.Port)
	}
	if maint.Port != 0 && (maint.Port == http.Port || maint.Port == cfg.Ops.Port) {
		return fmt.Errorf("maintenance port %d collides with another listener", maint.Port)
	}
	for _, cidr := range maint.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid maintenance CIDR %q: %w", cidr, err)
		}
	}
	for _, f := range http.StaticFiles {
		if f.URI == "" || f.Path == "" {
			return fmt.Errorf("static file entries need both uri and path")
		}
	}

	if _, err := chip.ParseRegion(cfg.Device.Region); err != nil {
		return fmt.Errorf("invalid device region: %w", err)
	}
	if cfg.Device.SeekThreshold < 0 || cfg.Device.SeekThreshold > 255 {
		return fmt.Errorf("seek threshold %d is outside [0, 255]", cfg.Device.SeekThreshold)
	}

	if cfg.RDS.PollIntervalMs <= 0 || cfg.RDS.PollLimit <= 0 || cfg.RDS.MismatchThreshold <= 0 {
		return fmt.Errorf("RDS poll interval, poll limit and mismatch threshold must be positive")
	}

	validBackends := []string{"sim", "portaudio", "none"}
	if !contains(validBackends, cfg.Audio.Backend) {
		return fmt.Errorf("invalid audio backend %s, must be one of: %v", cfg.Audio.Backend, validBackends)
	}

	if cfg.Render.MaxBytes < 256 {
		return fmt.Errorf("render maxBytes %d is too small", cfg.Render.MaxBytes)
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("MQTT is enabled but no broker is set")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("invalid MQTT QoS %d", cfg.MQTT.QoS)
		}
		if cfg.MQTT.IntervalMs <= 0 {
			return fmt.Errorf("MQTT interval must be positive")
		}
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
