package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	ENV_PREFIX         = "modbusd"
	STATS_DIR          = "stats"
	DEFAULT_BASE_TOPIC = "modbusd"
)

func SetDefaults(v *viper.Viper, workingDir string) {
	v.SetDefault("log_level", "info")
	v.SetDefault("classic_port", 502)
	v.SetDefault("unit_id", 255)
	v.SetDefault("sample_interval", 10000)
	v.SetDefault("io_timeout_millis", 5000)
	v.SetDefault("data_dir", filepath.Join(workingDir, STATS_DIR))
	v.SetDefault("log_registers", "")
	v.SetDefault("http.port", 0)
	v.SetDefault("http.log", false)
	v.SetDefault("mqtt.host", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.base_topic", DEFAULT_BASE_TOPIC)
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("mqtt.datapoints", true)
}

// Load resolves the config from defaults, MODBUSD_* env vars and the config
// file. A file ending in .conf is read as whitespace separated key value
// lines. An empty path skips the file.
func Load(v *viper.Viper, fs afero.Fs, file string, workingDir string) (*Config, error) {
	SetDefaults(v, workingDir)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		if _, err := fs.Stat(file); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		v.SetFs(fs)
		v.SetConfigFile(file)
		if filepath.Ext(file) == ".conf" {
			v.SetConfigType("properties")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	watch, err := ParseWatchList(v.Get("log_registers"))
	if err != nil {
		return nil, err
	}
	cfg.WatchList = watch

	return &cfg, nil
}

// ParseWatchList accepts a comma separated string or a list of numbers.
func ParseWatchList(raw any) ([]uint16, error) {
	var items []string
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case string:
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	case []any:
		for _, item := range value {
			items = append(items, fmt.Sprint(item))
		}
	case []int:
		for _, item := range value {
			items = append(items, strconv.Itoa(item))
		}
	case []string:
		items = value
	case int:
		items = []string{strconv.Itoa(value)}
	default:
		return nil, invalid("log_registers: unsupported value %v", raw)
	}

	watch := make([]uint16, 0, len(items))
	for _, item := range items {
		addr, err := strconv.ParseUint(strings.TrimSpace(item), 10, 16)
		if err != nil || addr == 0 {
			return nil, invalid("log_registers: %q is not a register number", item)
		}
		watch = append(watch, uint16(addr))
	}
	return watch, nil
}
