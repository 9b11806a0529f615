package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/berfenger/midnite-modbusd/internal/register"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	MAX_WATCHED_REGISTERS = 10
	MIN_CLASSIC_IP_LEN    = 7

	MIN_SAMPLE_INTERVAL_MILLIS = 1000
	MAX_SAMPLE_INTERVAL_MILLIS = 60000
)

var ErrConfigInvalid = errors.New("invalid config")

type Config struct {
	LogLevel             zapcore.Level `mapstructure:"-"`
	ClassicIp            string        `mapstructure:"classic_ip"`
	ClassicPort          uint          `mapstructure:"classic_port"`
	UnitId               uint8         `mapstructure:"unit_id"`
	SampleIntervalMillis uint32        `mapstructure:"sample_interval"`
	IOTimeoutMillis      uint32        `mapstructure:"io_timeout_millis"`
	DataDir              string        `mapstructure:"data_dir"`
	WatchList            []uint16      `mapstructure:"-"`
	HTTP                 HTTPConfig    `mapstructure:"http"`
	MQTT                 MQTTConfig    `mapstructure:"mqtt"`
}

type HTTPConfig struct {
	Port uint
	Log  bool
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
	// publish the computed datapoints next to the watched registers
	Datapoints bool
}

func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Host != ""
}

// Validate returns the first violation found.
func (c *Config) Validate(fs afero.Fs) error {
	if len(c.ClassicIp) < MIN_CLASSIC_IP_LEN {
		return invalid("classic_ip %q is too short", c.ClassicIp)
	}
	if c.ClassicPort < 1 || c.ClassicPort > 65535 {
		return invalid("classic_port %d out of range", c.ClassicPort)
	}
	if c.SampleIntervalMillis < MIN_SAMPLE_INTERVAL_MILLIS || c.SampleIntervalMillis > MAX_SAMPLE_INTERVAL_MILLIS {
		return invalid("sample_interval should be between %d and %d ms", MIN_SAMPLE_INTERVAL_MILLIS, MAX_SAMPLE_INTERVAL_MILLIS)
	}
	if c.IOTimeoutMillis == 0 || c.IOTimeoutMillis >= c.SampleIntervalMillis {
		return invalid("io_timeout_millis should be > 0 and < sample_interval")
	}
	if c.DataDir == "" {
		return invalid("data_dir is empty")
	}
	if ok, err := afero.IsDir(fs, c.DataDir); err != nil || !ok {
		return invalid("data directory %s does not exist", c.DataDir)
	}
	if err := checkWatchList(c.WatchList); err != nil {
		return err
	}
	if c.MQTTEnabled() {
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			return invalid("mqtt.port %d out of range", c.MQTT.Port)
		}
		baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
		if err != nil {
			return invalid("invalid mqtt.base_topic. can only contain letters, numbers and underscores")
		}
		c.MQTT.BaseTopic = baseTopic
		haTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
		if err != nil {
			return invalid("invalid mqtt.ha_discovery_topic. can only contain letters, numbers and underscores")
		}
		c.MQTT.HADiscoveryTopic = haTopic
	}
	return nil
}

func checkWatchList(watch []uint16) error {
	if len(watch) > MAX_WATCHED_REGISTERS {
		return invalid("log_registers holds %d registers, at most %d allowed", len(watch), MAX_WATCHED_REGISTERS)
	}
	seen := make(map[uint16]bool, len(watch))
	for _, addr := range watch {
		if seen[addr] {
			return invalid("log_registers lists %d twice", addr)
		}
		seen[addr] = true
		if !register.CLASSIC_LAYOUT.Contains(addr) {
			return invalid("log_registers: %d is not a polled register", addr)
		}
	}
	return nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	if !baseTopicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.MQTT.Username != "" {
		c.MQTT.Username = "*redacted*"
	}
	if c.MQTT.Password != "" {
		c.MQTT.Password = "*redacted*"
	}
	return c
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, args...))
}
