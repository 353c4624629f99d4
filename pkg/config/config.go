package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/dougsko/cwbeacon/pkg/morse"
)

// Config represents the cwbeacon configuration
type Config struct {
	Station  StationConfig  `yaml:"station"`
	Beacon   BeaconConfig   `yaml:"beacon"`
	LoRa     LoRaConfig     `yaml:"lora"`
	Hardware HardwareConfig `yaml:"hardware"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Web      WebConfig      `yaml:"web"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StationConfig identifies the beacon on the shared control channel
type StationConfig struct {
	Name string `yaml:"name"`
}

// BeaconConfig holds the transmission parameters that remote commands can
// change at runtime
type BeaconConfig struct {
	Text           string `yaml:"text"`
	WPM            int    `yaml:"wpm"`
	FrequencyHz    int64  `yaml:"frequency"`
	OffsetHz       int64  `yaml:"offset"`
	FSKOffsetHz    int64  `yaml:"fsk_offset"`
	KeyDownSeconds int    `yaml:"keydown"`
	PauseSeconds   int    `yaml:"pause"`
	CW             bool   `yaml:"cw"`
	FSK            bool   `yaml:"fsk"`
}

// LoRaConfig configures the remote control receiver
type LoRaConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Device            string `yaml:"device"` // empty selects the mock radio
	BaudRate          int    `yaml:"baud_rate"`
	FrequencyHz       int64  `yaml:"frequency"`
	Address           int    `yaml:"address"`
	NetworkID         int    `yaml:"network_id"`
	TimeoutSeconds    int    `yaml:"timeout"`
	JitterSeconds     int    `yaml:"jitter"`
	StartDelaySeconds int    `yaml:"start_delay"`
}

// HardwareConfig maps beacon signals to GPIO lines
type HardwareConfig struct {
	EnableGPIO  bool  `yaml:"enable_gpio"`
	PAPin       int   `yaml:"pa_pin"`
	ExtPAPin    int   `yaml:"ext_pa_pin"`
	OscPin      int   `yaml:"osc_pin"`
	PowerLEDPin int   `yaml:"power_led_pin"`
	TxLEDPin    int   `yaml:"tx_led_pin"`
	LoRaLEDPin  int   `yaml:"lora_led_pin"`
	CrystalHz   int64 `yaml:"crystal_hz"`
}

// WatchdogConfig configures the hardware watchdog
type WatchdogConfig struct {
	Device         string `yaml:"device"` // empty selects the mock watchdog
	TimeoutSeconds int    `yaml:"timeout"`
}

// WebConfig configures the status API
type WebConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
}

// StorageConfig configures the event journal
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	MaxRecords   int    `yaml:"max_records"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	Structured bool   `yaml:"structured"`
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // number of rotated files
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns a configuration with every default applied. Fields
// where zero is meaningful (offsets, pause, mode flags) are defaulted here
// rather than after parsing so an explicit zero in the file is kept.
func DefaultConfig() *Config {
	return &Config{
		Station: StationConfig{
			Name: "BEACON",
		},
		Beacon: BeaconConfig{
			Text:           "VVV DE BEACON",
			WPM:            20,
			KeyDownSeconds: 5,
			PauseSeconds:   60,
			CW:             true,
		},
		LoRa: LoRaConfig{
			Enabled:           true,
			BaudRate:          115200,
			FrequencyHz:       868000000,
			TimeoutSeconds:    900,
			JitterSeconds:     9,
			StartDelaySeconds: 5,
		},
		Hardware: HardwareConfig{
			PAPin:       2,
			ExtPAPin:    0,
			OscPin:      3,
			PowerLEDPin: 9,
			TxLEDPin:    10,
			LoRaLEDPin:  11,
			CrystalHz:   25000000,
		},
		Watchdog: WatchdogConfig{
			TimeoutSeconds: 5,
		},
		Web: WebConfig{
			Port:        8080,
			BindAddress: "0.0.0.0",
		},
		Storage: StorageConfig{
			MaxRecords: 10000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Zero is never valid for these
	if config.LoRa.BaudRate == 0 {
		config.LoRa.BaudRate = 115200
	}
	if config.LoRa.TimeoutSeconds == 0 {
		config.LoRa.TimeoutSeconds = 900
	}
	if config.Hardware.CrystalHz == 0 {
		config.Hardware.CrystalHz = 25000000
	}
	if config.Watchdog.TimeoutSeconds == 0 {
		config.Watchdog.TimeoutSeconds = 5
	}
	if config.Web.Port == 0 {
		config.Web.Port = 8080
	}
	if config.Web.BindAddress == "" {
		config.Web.BindAddress = "0.0.0.0"
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Station.Name == "" {
		return fmt.Errorf("station name is required")
	}
	if c.Beacon.WPM <= 0 {
		return fmt.Errorf("beacon wpm must be positive, got %d", c.Beacon.WPM)
	}
	if c.Beacon.WPM > morse.MaxWPM {
		return fmt.Errorf("beacon wpm must be at most %d, got %d", morse.MaxWPM, c.Beacon.WPM)
	}
	if c.Beacon.FrequencyHz <= 0 {
		return fmt.Errorf("beacon frequency must be positive, got %d", c.Beacon.FrequencyHz)
	}
	if c.Beacon.FrequencyHz+c.Beacon.OffsetHz-c.Beacon.FSKOffsetHz <= 0 {
		return fmt.Errorf("beacon offsets leave no positive transmit frequency")
	}
	if c.Beacon.KeyDownSeconds < 0 {
		return fmt.Errorf("beacon keydown cannot be negative, got %d", c.Beacon.KeyDownSeconds)
	}
	if c.Beacon.PauseSeconds < 0 {
		return fmt.Errorf("beacon pause cannot be negative, got %d", c.Beacon.PauseSeconds)
	}
	if c.LoRa.JitterSeconds < 0 {
		return fmt.Errorf("lora jitter cannot be negative, got %d", c.LoRa.JitterSeconds)
	}
	if c.Watchdog.TimeoutSeconds <= 0 {
		return fmt.Errorf("watchdog timeout must be positive, got %d", c.Watchdog.TimeoutSeconds)
	}
	return nil
}

// Save writes the configuration to path. The file is replaced atomically so
// a power loss mid-write leaves the previous configuration intact.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cwbeacon-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close config file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
