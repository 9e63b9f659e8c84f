package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "IDMBRIDGE_"

type Config struct {
	Devices []DeviceConfig `koanf:"devices"`
	HTTP    HTTPConfig     `koanf:"http"`
	MQTT    MQTTConfig     `koanf:"mqtt"`
	Modbus  ModbusConfig   `koanf:"modbus"`
}

// DeviceConfig describes one heat pump on the network.
type DeviceConfig struct {
	ID           string        `koanf:"id"`
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	UnitID       byte          `koanf:"unit_id"`
	ScanInterval time.Duration `koanf:"scan_interval"`
	// Timeout overrides modbus.timeout for this device.
	Timeout  time.Duration `koanf:"timeout"`
	Cooling  bool          `koanf:"cooling"`
	MaxBoost time.Duration `koanf:"max_boost"`
}

func (d DeviceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type MQTTConfig struct {
	Enabled         bool   `koanf:"enabled"`
	BrokerURL       string `koanf:"broker_url"`
	ClientID        string `koanf:"client_id"`
	BaseTopic       string `koanf:"base_topic"`
	DiscoveryPrefix string `koanf:"discovery_prefix"`
	QoS             byte   `koanf:"qos"`
	RetainState     bool   `koanf:"retain_state"`
	Username        string `koanf:"username"`
	Password        string `koanf:"password"`
}

// ModbusConfig tunes the shared transport behavior of all devices.
type ModbusConfig struct {
	Timeout     time.Duration `koanf:"timeout"`
	Retries     int           `koanf:"retries"`
	CoalesceGap uint16        `koanf:"coalesce_gap"`
}

func defaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		MQTT: MQTTConfig{
			BrokerURL:       "tcp://localhost:1883",
			BaseTopic:       "idmbridge",
			DiscoveryPrefix: "homeassistant",
		},
		Modbus: ModbusConfig{
			Timeout:     5 * time.Second,
			Retries:     3,
			CoalesceGap: 16,
		},
	}
}

// LoadConfig layers defaults, an optional config file, and IDMBRIDGE_*
// environment variables, in that order.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return Config{}, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return Config{}, fmt.Errorf("load config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		// Config file missing → defaults plus environment.
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
}

// envKeyTransform maps IDMBRIDGE_MQTT_BROKER_URL to "mqtt.broker_url". The
// first token selects the section; the rest keep their underscores. Device
// lists cannot be set from the environment.
func envKeyTransform(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	switch section {
	case "http", "mqtt", "modbus":
		return section + "." + rest
	default:
		return key
	}
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Port == 0 {
			d.Port = 502
		}
		if d.UnitID == 0 {
			d.UnitID = 1
		}
		if d.ScanInterval <= 0 {
			d.ScanInterval = 30 * time.Second
		}
		if d.Timeout <= 0 {
			d.Timeout = cfg.Modbus.Timeout
		}
		if d.MaxBoost <= 0 {
			d.MaxBoost = 4 * time.Hour
		}
	}
	if !cfg.HTTP.Enabled && !cfg.MQTT.Enabled {
		cfg.HTTP.Enabled = true
	}
}

func validate(cfg Config) error {
	if len(cfg.Devices) == 0 {
		return errors.New("config: at least one device is required")
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for _, d := range cfg.Devices {
		if d.ID == "" {
			return errors.New("config: device id is required")
		}
		if d.Host == "" {
			return fmt.Errorf("config: device %q: host is required", d.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("config: duplicate device id %q", d.ID)
		}
		seen[d.ID] = true
	}
	if cfg.MQTT.Enabled && cfg.MQTT.QoS > 1 {
		return errors.New("config: mqtt qos must be 0 or 1")
	}
	return nil
}
