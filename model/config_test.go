package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mqtt.BrokerAddress != "localhost:1883" {
		t.Errorf("broker=%s want localhost:1883", cfg.Mqtt.BrokerAddress)
	}
	if cfg.Mqtt.ClientID != "buzzer-worker" {
		t.Errorf("client_id=%s want buzzer-worker", cfg.Mqtt.ClientID)
	}
	if cfg.Mqtt.TopicPrefix != "buzzer" {
		t.Errorf("topic_prefix=%s want buzzer", cfg.Mqtt.TopicPrefix)
	}
	if cfg.Device.ClkoutPath != DefaultClkoutPath {
		t.Errorf("clkout_path=%s want default", cfg.Device.ClkoutPath)
	}
	if got := cfg.Defaults.Setpoints(); got != DefaultSetpoints() {
		t.Errorf("setpoints=%+v want builtin defaults", got)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
mqtt:
  broker: broker.local:1883
  username: buzzer
  password: secret
  topic_prefix: shack/buzzer
device:
  clkout_path: /tmp/clkout_freq
defaults:
  frequency: 4096
  period: 5s
  duty_on_percent: 25
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mqtt.BrokerAddress != "broker.local:1883" {
		t.Errorf("broker=%s", cfg.Mqtt.BrokerAddress)
	}
	if cfg.Mqtt.UserName != "buzzer" || cfg.Mqtt.Password != "secret" {
		t.Errorf("credentials=%s/%s", cfg.Mqtt.UserName, cfg.Mqtt.Password)
	}
	if cfg.Mqtt.TopicPrefix != "shack/buzzer" {
		t.Errorf("topic_prefix=%s", cfg.Mqtt.TopicPrefix)
	}
	// ClientID was not given, the default must still apply.
	if cfg.Mqtt.ClientID != "buzzer-worker" {
		t.Errorf("client_id=%s want buzzer-worker", cfg.Mqtt.ClientID)
	}
	if cfg.Device.ClkoutPath != "/tmp/clkout_freq" {
		t.Errorf("clkout_path=%s", cfg.Device.ClkoutPath)
	}
	want := Setpoints{Frequency: 4096, Period: 5 * time.Second, DutyOnPercent: 25}
	if got := cfg.Defaults.Setpoints(); got != want {
		t.Errorf("setpoints=%+v want %+v", got, want)
	}
}

func TestLoadConfigRejectsInvalidDefaults(t *testing.T) {
	path := writeConfigFile(t, `
defaults:
  frequency: 123
`)
	if _, err := LoadConfig(path); !IsValidation(err) {
		t.Fatalf("LoadConfig err=%v want validation error", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("LoadConfig of missing file succeeded")
	}
}

func TestLoadConfigRejectsMalformedYaml(t *testing.T) {
	path := writeConfigFile(t, "mqtt: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("LoadConfig of malformed file succeeded")
	}
}
