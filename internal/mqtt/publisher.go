package mqtt

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/classic"
	"github.com/berfenger/midnite-modbusd/internal/config"
	"github.com/berfenger/midnite-modbusd/internal/cycle"
	"github.com/berfenger/midnite-modbusd/internal/events"
	"github.com/berfenger/midnite-modbusd/internal/logging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const PUBLISH_TIMEOUT = 5 * time.Second

type SamplePayload struct {
	Timestamp  string            `json:"timestamp"`
	DurationMs int64             `json:"duration_ms"`
	Registers  map[uint16]uint16 `json:"registers"`
}

// Publisher forwards cycle results to the broker. Publishing never blocks
// the cycle; failures are logged and the value is dropped.
type Publisher struct {
	client     *MQTTClient
	sensors    []events.GenericSensor
	haEnable   bool
	datapoints bool
	timeout    time.Duration
	logger     *zap.Logger
}

func NewPublisher(cfg *config.Config, logger *zap.Logger) *Publisher {
	p := newPublisher(cfg, logger)
	p.client = CreateMQTTClient(cfg, OptsFromConfig(cfg), p.onConnect, p.onConnectionLost)
	return p
}

func newPublisher(cfg *config.Config, logger *zap.Logger) *Publisher {
	bridge := events.BridgeDevice(cfg.MQTT.BaseTopic)
	device := events.ClassicDevice(cfg.ClassicIp, cfg.ClassicPort, bridge)
	sensors := append(events.BridgeSensors(bridge), events.RegisterSensors(device, cfg.WatchList)...)
	if cfg.MQTT.Datapoints {
		sensors = append(sensors, events.DatapointSensors(device)...)
	}
	return &Publisher{
		sensors:    sensors,
		haEnable:   cfg.MQTT.HADiscoveryEnable,
		datapoints: cfg.MQTT.Datapoints,
		timeout:    PUBLISH_TIMEOUT,
		logger:     logging.Component("mqtt", logger),
	}
}

// Start connects to the broker. The client keeps retrying in the background
// when the first attempt fails.
func (p *Publisher) Start(ctx context.Context) error {
	done := make(chan error, 1)
	p.client.Connect(func(err error) { done <- err }, p.timeout)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Stop() {
	done := make(chan error, 1)
	p.client.Publish(p.client.BridgeStateTopic(), MQTT_PAYLOAD_OFFLINE, 0, true, func(err error) { done <- err }, p.timeout)
	if err := <-done; err != nil {
		p.logger.Debug("offline state not published", zap.Error(err))
	}
	p.client.Disconnect(250 * time.Millisecond)
}

func (p *Publisher) Observe(res cycle.Result) {
	p.publish(p.client.SensorStateTopic(events.SENSOR_ID_LAST_STATUS), strconv.Itoa(res.Status), false)
	if res.Sample == nil {
		return
	}

	registers := make(classic.Registers, len(res.Sample.Values))
	for _, rv := range res.Sample.Values {
		registers[rv.Address] = rv.Value
	}
	var values classic.Values
	if p.datapoints {
		values = classic.Evaluate(registers).Values()
	}
	for _, sensor := range p.sensors {
		switch {
		case sensor.Datapoint != "":
			if state := classic.FormatValue(values[sensor.Datapoint]); state != "" {
				p.publish(p.client.SensorStateTopic(sensor.Id), state, false)
			}
		case sensor.Address != 0:
			p.publish(p.client.SensorStateTopic(sensor.Id), strconv.Itoa(int(registers[sensor.Address])), false)
		}
	}

	payload := SamplePayload{
		Timestamp:  res.Sample.Timestamp.Format(time.RFC3339Nano),
		DurationMs: res.Duration.Milliseconds(),
		Registers:  registers,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("cannot encode sample", zap.Error(err))
		return
	}
	p.publish(p.client.SampleTopic(), data, false)
}

func (p *Publisher) onConnect(client mqtt.Client) {
	p.logger.Info("connected to broker")
	p.publish(p.client.BridgeStateTopic(), MQTT_PAYLOAD_ONLINE, true)
	if p.haEnable {
		p.publishDiscovery()
	}
}

func (p *Publisher) onConnectionLost(client mqtt.Client, err error) {
	p.logger.Warn("connection to broker lost", zap.Error(err))
}

func (p *Publisher) publishDiscovery() {
	for _, sensor := range p.sensors {
		data, err := json.Marshal(GenericSensorToHADiscoveryMessage(p.client, sensor))
		if err != nil {
			p.logger.Error("cannot encode discovery message", zap.String("sensor", sensor.Id), zap.Error(err))
			continue
		}
		p.publish(p.client.HADiscoverySensorTopic(sensor), data, true)
	}
}

func (p *Publisher) publish(topic string, payload any, retain bool) {
	p.client.Publish(topic, payload, 0, retain, func(err error) {
		if err != nil {
			p.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}, p.timeout)
}
