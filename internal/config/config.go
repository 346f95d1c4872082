package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

const (
	ConnectorBluetooth ConnectorType = "bluetooth"
	ConnectorSerial    ConnectorType = "serial"

	DefaultDeviceName        = "ESP32-Scale"
	DefaultSerialBaud        = 115200
	DefaultConnectTimeoutMS  = 20000
	DefaultResponseTimeoutMS = 5000
	DefaultChunkSize         = 5
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level" yaml:"level" toml:"level"`
	LogToFile bool   `json:"log_to_file" yaml:"log_to_file" toml:"log_to_file"`
}

// ConnectionConfig selects the connector and how to reach the scale.
type ConnectionConfig struct {
	Connector        ConnectorType `json:"connector" yaml:"connector" toml:"connector"`
	DeviceName       string        `json:"device_name" yaml:"device_name" toml:"device_name"`
	BluetoothAddress string        `json:"bluetooth_address" yaml:"bluetooth_address" toml:"bluetooth_address"`
	BluetoothAdapter string        `json:"bluetooth_adapter" yaml:"bluetooth_adapter" toml:"bluetooth_adapter"`
	SerialPort       string        `json:"serial_port" yaml:"serial_port" toml:"serial_port"`
	SerialBaud       int           `json:"serial_baud" yaml:"serial_baud" toml:"serial_baud"`
	ConnectTimeoutMS int           `json:"connect_timeout_ms" yaml:"connect_timeout_ms" toml:"connect_timeout_ms"`
}

// ProtocolConfig tunes the command/response exchange.
type ProtocolConfig struct {
	ResponseTimeoutMS int `json:"response_timeout_ms" yaml:"response_timeout_ms" toml:"response_timeout_ms"`
}

// FetchConfig controls the buffer drain run by the fetch command.
type FetchConfig struct {
	ChunkSize   int    `json:"chunk_size" yaml:"chunk_size" toml:"chunk_size"`
	SetTime     *bool  `json:"set_time,omitempty" yaml:"set_time,omitempty" toml:"set_time,omitempty"`
	RecordsFile string `json:"records_file" yaml:"records_file" toml:"records_file"`
}

// AppConfig is the persisted scalectl configuration. It is stored as JSON,
// or as YAML or TOML when the file extension says so.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection" yaml:"connection" toml:"connection"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging" toml:"logging"`
	Protocol   ProtocolConfig   `json:"protocol" yaml:"protocol" toml:"protocol"`
	Fetch      FetchConfig      `json:"fetch" yaml:"fetch" toml:"fetch"`
}

// Default connects over Bluetooth to the first device advertising
// DefaultDeviceName.
func Default() AppConfig {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	return cfg
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	// #nosec G304 -- path comes from the user config dir or an explicit --config flag.
	raw, err := os.ReadFile(filepath.Clean(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := formatFor(path).unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config %s: %w", formatFor(path), err)
	}
	cfg.FillMissingDefaults()

	return cfg, nil
}

type fileFormat string

const (
	formatJSON fileFormat = "json"
	formatYAML fileFormat = "yaml"
	formatTOML fileFormat = "toml"
)

func formatFor(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".toml":
		return formatTOML
	default:
		return formatJSON
	}
}

func (f fileFormat) unmarshal(raw []byte, cfg *AppConfig) error {
	switch f {
	case formatYAML:
		return yaml.Unmarshal(raw, cfg)
	case formatTOML:
		return toml.Unmarshal(raw, cfg)
	default:
		return json.Unmarshal(raw, cfg)
	}
}

func (f fileFormat) marshal(cfg AppConfig) ([]byte, error) {
	switch f {
	case formatYAML:
		return yaml.Marshal(cfg)
	case formatTOML:
		return toml.Marshal(cfg)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(raw, '\n'), nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorBluetooth
	}
	c.Connection.DeviceName = strings.TrimSpace(c.Connection.DeviceName)
	if c.Connection.DeviceName == "" && strings.TrimSpace(c.Connection.BluetoothAddress) == "" {
		c.Connection.DeviceName = DefaultDeviceName
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Connection.ConnectTimeoutMS <= 0 {
		c.Connection.ConnectTimeoutMS = DefaultConnectTimeoutMS
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Protocol.ResponseTimeoutMS <= 0 {
		c.Protocol.ResponseTimeoutMS = DefaultResponseTimeoutMS
	}
	if c.Fetch.ChunkSize <= 0 {
		c.Fetch.ChunkSize = DefaultChunkSize
	}
	if c.Fetch.SetTime == nil {
		setTime := true
		c.Fetch.SetTime = &setTime
	}
}

func (c AppConfig) Validate() error {
	if err := c.Connection.validate(); err != nil {
		return err
	}
	if c.Protocol.ResponseTimeoutMS <= 0 {
		return errors.New("response timeout must be positive")
	}
	if c.Fetch.ChunkSize <= 0 {
		return errors.New("fetch chunk size must be positive")
	}

	return nil
}

func (c ConnectionConfig) validate() error {
	switch c.Connector {
	case ConnectorBluetooth:
		if strings.TrimSpace(c.BluetoothAddress) == "" && strings.TrimSpace(c.DeviceName) == "" {
			return errors.New("bluetooth needs an address or a device name to scan for")
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.SerialPort) == "" {
			return errors.New("serial connector needs a port")
		}
		if c.SerialBaud <= 0 {
			return fmt.Errorf("invalid serial baud rate: %d", c.SerialBaud)
		}
	default:
		return fmt.Errorf("unknown connector %q", c.Connector)
	}

	return nil
}

// ResponseTimeout is the bounded wait for a single command reply.
func (c AppConfig) ResponseTimeout() time.Duration {
	return time.Duration(c.Protocol.ResponseTimeoutMS) * time.Millisecond
}

func (c AppConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.Connection.ConnectTimeoutMS) * time.Millisecond
}

// SetTimeOnFetch reports whether fetch syncs the device clock first.
func (c AppConfig) SetTimeOnFetch() bool {
	return c.Fetch.SetTime == nil || *c.Fetch.SetTime
}

// Encode renders cfg in the format picked by the extension of path.
func Encode(path string, cfg AppConfig) ([]byte, error) {
	raw, err := formatFor(path).marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	return raw, nil
}

// Save validates cfg and replaces the file at path atomically, in the
// format picked by its extension.
func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := Encode(path, cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}

	return nil
}
