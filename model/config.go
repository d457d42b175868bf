package model

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultClkoutPath is the sysfs attribute used to program the clock-output
// frequency of the RTC chip driving the buzzer.
const DefaultClkoutPath = "/sys/bus/i2c/drivers/rtc-pcf85063/8-0051/clkout_freq"

// Config holds the configuration of a single buzzer worker.
type Config struct {
	// MQTT broker used as parameter bus
	Mqtt MqttConfig `yaml:"mqtt"`
	// Frequency device settings
	Device DeviceConfig `yaml:"device"`
	// Setpoint defaults published at startup
	Defaults DefaultsConfig `yaml:"defaults"`
}

// MqttConfig holds the connection settings of the parameter bus.
type MqttConfig struct {
	BrokerAddress string `yaml:"broker"`
	UserName      string `yaml:"username"`
	Password      string `yaml:"password"`
	ClientID      string `yaml:"client_id"`
	// TopicPrefix is prepended to all parameter topics.
	TopicPrefix string `yaml:"topic_prefix"`
}

// DeviceConfig holds the settings of the frequency device.
type DeviceConfig struct {
	// ClkoutPath is the sysfs attribute accepting an integer frequency.
	ClkoutPath string `yaml:"clkout_path"`
}

// DefaultsConfig holds overrides for the setpoint defaults.
// Zero values mean "use the builtin default".
type DefaultsConfig struct {
	Frequency     int           `yaml:"frequency"`
	Period        time.Duration `yaml:"period"`
	DutyOnPercent int           `yaml:"duty_on_percent"`
}

// LoadConfig reads the configuration from the given YAML file.
// An empty path yields the builtin defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, maskAny(err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, maskAny(err)
		}
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, maskAny(err)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Mqtt.BrokerAddress == "" {
		c.Mqtt.BrokerAddress = "localhost:1883"
	}
	if c.Mqtt.ClientID == "" {
		c.Mqtt.ClientID = "buzzer-worker"
	}
	if c.Mqtt.TopicPrefix == "" {
		c.Mqtt.TopicPrefix = "buzzer"
	}
	if c.Device.ClkoutPath == "" {
		c.Device.ClkoutPath = DefaultClkoutPath
	}
}

// UnmarshalYAML parses the setpoint defaults, accepting the period as a
// duration string ("5s", "1m30s").
func (d *DefaultsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Frequency     int    `yaml:"frequency"`
		Period        string `yaml:"period"`
		DutyOnPercent int    `yaml:"duty_on_percent"`
	}
	if err := value.Decode(&raw); err != nil {
		return maskAny(err)
	}
	d.Frequency = raw.Frequency
	d.DutyOnPercent = raw.DutyOnPercent
	if raw.Period != "" {
		period, err := time.ParseDuration(raw.Period)
		if err != nil {
			return errors.Wrapf(ValidationError, "invalid period '%s': %s", raw.Period, err.Error())
		}
		d.Period = period
	}
	return nil
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c Config) Validate() error {
	if c.Mqtt.BrokerAddress == "" {
		return errors.Wrap(ValidationError, "mqtt broker address is empty")
	}
	if c.Device.ClkoutPath == "" {
		return errors.Wrap(ValidationError, "device clkout path is empty")
	}
	if err := c.Defaults.Setpoints().Validate(); err != nil {
		return maskAny(err)
	}
	return nil
}

// Setpoints returns the configured setpoint defaults,
// falling back to the builtin defaults for zero values.
func (d DefaultsConfig) Setpoints() Setpoints {
	result := DefaultSetpoints()
	if d.Frequency != 0 {
		result.Frequency = d.Frequency
	}
	if d.Period != 0 {
		result.Period = d.Period
	}
	if d.DutyOnPercent != 0 {
		result.DutyOnPercent = d.DutyOnPercent
	}
	return result
}
