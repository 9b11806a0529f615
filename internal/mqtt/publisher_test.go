package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/classic"
	"github.com/berfenger/midnite-modbusd/internal/config"
	"github.com/berfenger/midnite-modbusd/internal/cycle"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  string
}

// fakeClient records publishes; methods not overridden panic through the
// nil embedded interface.
type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	published []message
	connected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.connected = true
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.connected = false
}

func (c *fakeClient) IsConnected() bool {
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	c.published = append(c.published, message{topic, retained, s})
	return &fakeToken{}
}

func (c *fakeClient) messages() map[string]message {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]message)
	for _, msg := range c.published {
		m[msg.topic] = msg
	}
	return m
}

func testConfig() *config.Config {
	return &config.Config{
		ClassicIp:   "192.168.1.20",
		ClassicPort: 502,
		WatchList:   []uint16{4371, 4373},
		MQTT: config.MQTTConfig{
			Host:              "broker",
			Port:              1883,
			BaseTopic:         "modbusd",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
	}
}

func testPublisher(cfg *config.Config) (*Publisher, *fakeClient) {
	fake := &fakeClient{}
	p := newPublisher(cfg, zap.NewNop())
	p.client = &MQTTClient{client: fake, cfg: cfg.MQTT}
	return p, fake
}

func TestOptsFromConfig(t *testing.T) {

	assert := assert.New(t)

	cfg := testConfig()
	cfg.MQTT.Username = "user"
	cfg.MQTT.Password = "pass"
	opts := OptsFromConfig(cfg)

	assert.Equal("tcp://broker:1883", opts.Servers[0].String())
	assert.Equal("user", opts.Username)
	assert.Equal("modbusd/bridge/state", opts.WillTopic)
	assert.Equal([]byte(MQTT_PAYLOAD_OFFLINE), opts.WillPayload)
	assert.True(opts.WillRetained)
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	p, _ := testPublisher(testConfig())
	assert.Equal("modbusd/sensor/register_4371/state", p.client.SensorStateTopic("register_4371"))
	assert.Equal("modbusd/sample", p.client.SampleTopic())
	assert.Equal("homeassistant/sensor/"+p.sensors[2].Device.Id+"/register_4371/config", p.client.HADiscoverySensorTopic(p.sensors[2]))
}

func TestPublishDiscoveryOnConnect(t *testing.T) {

	require := require.New(t)

	p, fake := testPublisher(testConfig())
	require.NoError(p.Start(context.Background()))
	p.onConnect(fake)

	require.Eventually(func() bool { return len(fake.messages()) == 1+4 }, time.Second, 10*time.Millisecond)
	msgs := fake.messages()

	online := msgs["modbusd/bridge/state"]
	require.Equal(MQTT_PAYLOAD_ONLINE, online.payload)
	require.True(online.retained)

	var disc HADiscoveryConfig
	topic := p.client.HADiscoverySensorTopic(p.sensors[2])
	require.True(msgs[topic].retained)
	require.NoError(json.Unmarshal([]byte(msgs[topic].payload), &disc))
	require.Equal("modbusd/sensor/register_4371/state", disc.StateTopic)
	require.Equal("modbusd/bridge/state", disc.AvTopic)
	require.Equal("WhizBangJr Current (register 4371)", disc.Name)
}

func TestPublishDatapoints(t *testing.T) {

	require := require.New(t)

	cfg := testConfig()
	cfg.MQTT.Datapoints = true
	p, fake := testPublisher(cfg)
	require.NoError(p.Start(context.Background()))
	p.onConnect(fake)

	// online state, two bridge sensors, two registers and every datapoint
	require.Eventually(func() bool { return len(fake.messages()) == 1+4+len(classic.DATAPOINTS) }, time.Second, 10*time.Millisecond)

	var disc HADiscoveryConfig
	topic := "homeassistant/sensor/" + p.sensors[2].Device.Id + "/dp_vout/config"
	require.NoError(json.Unmarshal([]byte(fake.messages()[topic].payload), &disc))
	require.Equal("Output Voltage", disc.Name)
	require.Equal("V", disc.UnitOfMeasurement)
	require.Equal("modbusd/sensor/dp_vout/state", disc.StateTopic)

	p.Observe(cycle.Result{
		Status: cycle.STATUS_OK,
		Sample: &cycle.Sample{
			Timestamp: time.Date(2024, 3, 9, 14, 5, 30, 0, time.UTC),
			Values: []cycle.RegisterValue{
				{Address: 4115, Value: 276},
				{Address: 4120, Value: 4<<8 | 3},
				{Address: 4371, Value: 123},
				{Address: 4373, Value: 87},
			},
		},
	})

	msgs := fake.messages()
	require.Equal("27.6", msgs["modbusd/sensor/dp_vout/state"].payload)
	require.Equal("87", msgs["modbusd/sensor/dp_soc/state"].payload)
	require.Equal("Bulk", msgs["modbusd/sensor/dp_cstageword/state"].payload)
	require.Equal("12.3", msgs["modbusd/sensor/dp_ibat/state"].payload)
	require.Equal("123", msgs["modbusd/sensor/register_4371/state"].payload)
	require.Equal("87", msgs["modbusd/sensor/register_4373/state"].payload)

	// unknown resting reason has no state
	_, ok := msgs["modbusd/sensor/dp_restingreasonword/state"]
	require.False(ok)
}

func TestObserveSample(t *testing.T) {

	require := require.New(t)

	p, fake := testPublisher(testConfig())
	p.Observe(cycle.Result{
		Status:   cycle.STATUS_OK,
		Duration: 130 * time.Millisecond,
		Sample: &cycle.Sample{
			Timestamp: time.Date(2024, 3, 9, 14, 5, 30, 0, time.UTC),
			Watched:   []cycle.RegisterValue{{Address: 4371, Value: 2715}},
			Values:    []cycle.RegisterValue{{Address: 4101, Value: 150}, {Address: 4371, Value: 2715}},
		},
	})

	require.Eventually(func() bool { return len(fake.messages()) == 4 }, time.Second, 10*time.Millisecond)
	msgs := fake.messages()
	require.Equal("0", msgs["modbusd/sensor/last_status/state"].payload)
	require.Equal("2715", msgs["modbusd/sensor/register_4371/state"].payload)
	require.Equal("0", msgs["modbusd/sensor/register_4373/state"].payload)

	var sample SamplePayload
	require.NoError(json.Unmarshal([]byte(msgs["modbusd/sample"].payload), &sample))
	require.Equal(map[uint16]uint16{4101: 150, 4371: 2715}, sample.Registers)
	require.Equal(int64(130), sample.DurationMs)
}

func TestObserveFailureOnlyStatus(t *testing.T) {

	p, fake := testPublisher(testConfig())
	p.Observe(cycle.Result{Status: 3})

	msgs := fake.messages()
	assert.Len(t, msgs, 1)
	assert.Equal(t, "3", msgs["modbusd/sensor/last_status/state"].payload)
}

func TestStop(t *testing.T) {

	p, fake := testPublisher(testConfig())
	require.NoError(t, p.Start(context.Background()))
	p.Stop()

	assert.Equal(t, MQTT_PAYLOAD_OFFLINE, fake.messages()["modbusd/bridge/state"].payload)
	assert.False(t, fake.IsConnected())
}
