package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvKeyTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTP_ADDR", "http.addr"},
		{"MQTT_BROKER_URL", "mqtt.broker_url"},
		{"MQTT_DISCOVERY_PREFIX", "mqtt.discovery_prefix"},
		{"MODBUS_COALESCE_GAP", "modbus.coalesce_gap"},
		{"HTTP", "http"}, // not enough parts -> passthrough
		{"DEVICES", "devices"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_YAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
devices:
  - id: pump
    host: 192.168.1.20
http:
  addr: ":9090"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(cfg.Devices))
	}
	d := cfg.Devices[0]
	if d.Addr() != "192.168.1.20:502" {
		t.Fatalf("expected default port 502, got %q", d.Addr())
	}
	if d.UnitID != 1 {
		t.Fatalf("expected default unit id 1, got %d", d.UnitID)
	}
	if d.ScanInterval != 30*time.Second {
		t.Fatalf("expected default scan interval, got %v", d.ScanInterval)
	}
	if d.MaxBoost != 4*time.Hour {
		t.Fatalf("expected default max boost, got %v", d.MaxBoost)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected file to win over default addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.Modbus.Timeout != 5*time.Second {
		t.Fatalf("expected default modbus timeout, got %v", cfg.Modbus.Timeout)
	}
	if d.Timeout != 5*time.Second {
		t.Fatalf("expected device timeout to inherit modbus timeout, got %v", d.Timeout)
	}
}

func TestLoadConfig_DeviceOverrides(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
devices:
  - id: pump
    host: pump.local
    port: 1502
    unit_id: 3
    scan_interval: 10s
    timeout: 3s
    cooling: true
    max_boost: 2h
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	d := cfg.Devices[0]
	if d.Port != 1502 || d.UnitID != 3 || !d.Cooling {
		t.Fatalf("unexpected device config: %+v", d)
	}
	if d.ScanInterval != 10*time.Second || d.Timeout != 3*time.Second || d.MaxBoost != 2*time.Hour {
		t.Fatalf("expected parsed durations, got scan=%v timeout=%v boost=%v",
			d.ScanInterval, d.Timeout, d.MaxBoost)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "devices": [{"id": "pump", "host": "pump.local"}],
  "mqtt": {"enabled": true, "broker_url": "tcp://broker:1883"}
}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.BrokerURL != "tcp://broker:1883" {
		t.Fatalf("unexpected mqtt config: %+v", cfg.MQTT)
	}
	if cfg.MQTT.BaseTopic != "idmbridge" {
		t.Fatalf("expected default base topic, got %q", cfg.MQTT.BaseTopic)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
devices:
  - id: pump
    host: pump.local
http:
  addr: ":9090"
`)
	t.Setenv("IDMBRIDGE_HTTP_ADDR", ":7070")
	t.Setenv("IDMBRIDGE_MQTT_BROKER_URL", "tcp://env-broker:1883")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("expected env to win, got %q", cfg.HTTP.Addr)
	}
	if cfg.MQTT.BrokerURL != "tcp://env-broker:1883" {
		t.Fatalf("expected env broker url, got %q", cfg.MQTT.BrokerURL)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error without any device")
	}

	path := writeConfig(t, "config.yaml", `
devices:
  - id: pump
    host: a.local
  - id: pump
    host: b.local
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for duplicate device ids")
	}

	path = writeConfig(t, "config.yaml", `
devices:
  - id: pump
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestLoadConfig_UnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "config.toml", `devices = []`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}
