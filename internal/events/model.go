package events

// Sensor Model
type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	EntityCategory    string // diagnostic, nil
	Icon              string
	// raw register the sensor reports, 0 when it reports a datapoint
	Address uint16
	// datapoint label the sensor reports
	Datapoint string
}
