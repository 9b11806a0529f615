package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/midnite-modbusd/internal/classic"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE    = "bridge"
	SENSOR_ID_LAST_STATUS     = "last_status"
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("modbusd_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "midnite-modbusd",
		Model:        "modbusd",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Modbusd %s", md5HashShort(baseTopic)),
	}
}

// ClassicDevice identifies the polled charge controller by its address.
func ClassicDevice(host string, port uint, bridge Device) Device {
	endpoint := fmt.Sprintf("%s:%d", host, port)
	return Device{
		Id:           fmt.Sprintf("classic_%s", md5HashShort(endpoint)),
		Manufacturer: "MidNite Solar",
		Model:        "Classic",
		Name:         fmt.Sprintf("Classic %s", endpoint),
		ViaDevice:    bridge.Id,
	}
}

func RegisterSensorId(addr uint16) string {
	return fmt.Sprintf("register_%d", addr)
}

func DatapointSensorId(label string) string {
	return fmt.Sprintf("dp_%s", label)
}

// RegisterSensors has one raw value sensor per watched register. Registers
// backing a datapoint borrow its name.
func RegisterSensors(device Device, watch []uint16) []GenericSensor {
	sensors := make([]GenericSensor, 0, len(watch))
	for _, addr := range watch {
		id := RegisterSensorId(addr)
		name := fmt.Sprintf("Register %d", addr)
		if dp, ok := classic.ForRegister(addr); ok {
			name = fmt.Sprintf("%s (register %d)", dp.Name, addr)
		}
		sensors = append(sensors, GenericSensor{
			Device:     device,
			Id:         id,
			SensorType: SENSOR_TYPE_SENSOR,
			Name:       name,
			StateClass: STATE_CLASS_MEASUREMENT,
			Icon:       "mdi:counter",
			UniqueId:   uniqueId(device.Id, id),
			Address:    addr,
		})
	}
	return sensors
}

// DatapointSensors has one sensor per datapoint with its name and unit.
func DatapointSensors(device Device) []GenericSensor {
	sensors := make([]GenericSensor, 0, len(classic.DATAPOINTS))
	for _, dp := range classic.DATAPOINTS {
		id := DatapointSensorId(dp.Label)
		sensor := GenericSensor{
			Device:            device,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              dp.Name,
			UnitOfMeasurement: dp.Unit,
			UniqueId:          uniqueId(device.Id, id),
			Datapoint:         dp.Label,
		}
		if !dp.Text {
			sensor.StateClass = STATE_CLASS_MEASUREMENT
		}
		sensors = append(sensors, sensor)
	}
	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Connection state",
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_LAST_STATUS,
			SensorType:     SENSOR_TYPE_SENSOR,
			Name:           "Last cycle status",
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			Icon:           "mdi:list-status",
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_LAST_STATUS),
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
