package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const WORKING_DIR = "/var/lib/midnite-modbusd"

func testFs(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(WORKING_DIR+"/stats", 0775))
	return fs
}

func validConfig() Config {
	return Config{
		ClassicIp:            "192.168.1.20",
		ClassicPort:          502,
		UnitId:               255,
		SampleIntervalMillis: 10000,
		IOTimeoutMillis:      5000,
		DataDir:              WORKING_DIR + "/stats",
		WatchList:            []uint16{4371, 4373},
	}
}

func TestLoadPropertiesFile(t *testing.T) {

	require := require.New(t)

	fs := testFs(t)
	require.NoError(afero.WriteFile(fs, "/etc/midnite-modbusd.conf", []byte(
		"# classic on the garage lan\n"+
			"classic_ip 192.168.1.20\n"+
			"classic_port 5020\n"+
			"sample_interval 5000\n"+
			"log_registers 4371,4373,16390\n"+
			"log_level debug\n"), 0644))

	cfg, err := Load(viper.New(), fs, "/etc/midnite-modbusd.conf", WORKING_DIR)
	require.NoError(err)

	require.Equal("192.168.1.20", cfg.ClassicIp)
	require.Equal(uint(5020), cfg.ClassicPort)
	require.Equal(uint32(5000), cfg.SampleIntervalMillis)
	require.Equal([]uint16{4371, 4373, 16390}, cfg.WatchList)
	require.Equal(zap.DebugLevel, cfg.LogLevel)

	// defaults
	require.Equal(uint8(255), cfg.UnitId)
	require.Equal(WORKING_DIR+"/stats", cfg.DataDir)
	require.Equal(uint(0), cfg.HTTP.Port)
	require.Equal(1883, cfg.MQTT.Port)
	require.Equal("modbusd", cfg.MQTT.BaseTopic)
	require.True(cfg.MQTT.Datapoints)
	require.False(cfg.MQTTEnabled())
}

func TestLoadYamlFileAndEnv(t *testing.T) {

	require := require.New(t)

	t.Setenv("MODBUSD_CLASSIC_PORT", "1502")
	t.Setenv("MODBUSD_MQTT_HOST", "broker.lan")

	fs := testFs(t)
	require.NoError(afero.WriteFile(fs, "/etc/modbusd.yaml", []byte(`
classic_ip: 10.0.0.100
log_registers: [4101, 4102]
http:
  port: 8080
`), 0644))

	cfg, err := Load(viper.New(), fs, "/etc/modbusd.yaml", WORKING_DIR)
	require.NoError(err)
	require.Equal("10.0.0.100", cfg.ClassicIp)
	require.Equal(uint(1502), cfg.ClassicPort)
	require.Equal([]uint16{4101, 4102}, cfg.WatchList)
	require.Equal(uint(8080), cfg.HTTP.Port)
	require.Equal("broker.lan", cfg.MQTT.Host)
	require.True(cfg.MQTTEnabled())
}

func TestLoadMissingFile(t *testing.T) {

	_, err := Load(viper.New(), afero.NewMemMapFs(), "/etc/missing.conf", WORKING_DIR)
	assert.ErrorContains(t, err, "config file not found")
}

func TestValidate(t *testing.T) {

	fs := testFs(t)

	cases := []struct {
		name   string
		modify func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"short ip", func(c *Config) { c.ClassicIp = "1.2.3" }, false},
		{"port zero", func(c *Config) { c.ClassicPort = 0 }, false},
		{"port too big", func(c *Config) { c.ClassicPort = 70000 }, false},
		{"interval low", func(c *Config) { c.SampleIntervalMillis = 999 }, false},
		{"interval min", func(c *Config) { c.SampleIntervalMillis = 1000; c.IOTimeoutMillis = 500 }, true},
		{"interval max", func(c *Config) { c.SampleIntervalMillis = 60000 }, true},
		{"interval high", func(c *Config) { c.SampleIntervalMillis = 60001 }, false},
		{"timeout over interval", func(c *Config) { c.IOTimeoutMillis = 10000 }, false},
		{"missing data dir", func(c *Config) { c.DataDir = "/nope" }, false},
		{"empty watch list", func(c *Config) { c.WatchList = nil }, true},
		{"ten watched", func(c *Config) {
			c.WatchList = []uint16{4101, 4102, 4103, 4104, 4105, 4106, 4107, 4108, 4109, 4110}
		}, true},
		{"eleven watched", func(c *Config) {
			c.WatchList = []uint16{4101, 4102, 4103, 4104, 4105, 4106, 4107, 4108, 4109, 4110, 4111}
		}, false},
		{"duplicate watched", func(c *Config) { c.WatchList = []uint16{4371, 4371} }, false},
		{"watched in gap", func(c *Config) { c.WatchList = []uint16{4395} }, false},
		{"bad mqtt topic", func(c *Config) { c.MQTT.Host = "broker"; c.MQTT.Port = 1883; c.MQTT.BaseTopic = "a/b" }, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.modify(&cfg)
			err := cfg.Validate(fs)
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfigInvalid)
			}
		})
	}
}

func TestValidateNormalizesTopics(t *testing.T) {

	assert := assert.New(t)

	cfg := validConfig()
	cfg.MQTT = MQTTConfig{Host: "broker", Port: 1883, BaseTopic: "Classic_1", HADiscoveryTopic: "HomeAssistant"}
	assert.NoError(cfg.Validate(testFs(t)))
	assert.Equal("classic_1", cfg.MQTT.BaseTopic)
	assert.Equal("homeassistant", cfg.MQTT.HADiscoveryTopic)
}

func TestParseWatchList(t *testing.T) {

	assert := assert.New(t)

	watch, err := ParseWatchList("4371, 4373 ,16390")
	assert.NoError(err)
	assert.Equal([]uint16{4371, 4373, 16390}, watch)

	watch, err = ParseWatchList("")
	assert.NoError(err)
	assert.Empty(watch)

	watch, err = ParseWatchList([]any{4101, "4102"})
	assert.NoError(err)
	assert.Equal([]uint16{4101, 4102}, watch)

	_, err = ParseWatchList("4371,abc")
	assert.ErrorIs(err, ErrConfigInvalid)

	_, err = ParseWatchList("70000")
	assert.ErrorIs(err, ErrConfigInvalid)

	_, err = ParseWatchList("0")
	assert.ErrorIs(err, ErrConfigInvalid)
}

func TestRedacted(t *testing.T) {

	cfg := validConfig()
	cfg.MQTT.Username = "user"
	cfg.MQTT.Password = "secret"

	r := cfg.Redacted()
	assert.Equal(t, "*redacted*", r.MQTT.Password)
	assert.Equal(t, "secret", cfg.MQTT.Password)
}
