package classic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/spf13/cast"
)

// Datapoint is a named value computed from the register snapshot. Derived
// datapoints read earlier datapoints of the same table.
type Datapoint struct {
	Label string
	Name  string
	Unit  string
	// registers read, empty for derived datapoints
	Sources []uint16
	// Text datapoints hold a word instead of a number.
	Text bool
	eval func(r Registers, v Values) any
}

type Point struct {
	Label string `json:"-"`
	Name  string `json:"name"`
	Value any    `json:"value"`
	Unit  string `json:"unit"`
}

// Points keeps the table order and encodes as a JSON object keyed by label.
type Points []Point

func (p Points) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, point := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(point.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(point)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p Points) Get(label string) (Point, bool) {
	for _, point := range p {
		if point.Label == label {
			return point, true
		}
	}
	return Point{}, false
}

func (p Points) Values() Values {
	values := make(Values, len(p))
	for _, point := range p {
		values[point.Label] = point.Value
	}
	return values
}

// Values maps labels to evaluated values.
type Values map[string]any

func (v Values) Float(label string) float64 {
	return cast.ToFloat64(v[label])
}

func (v Values) Int(label string) int {
	return cast.ToInt(v[label])
}

// FormatValue renders a value as an MQTT state payload, empty for nil.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

type evalFunc func(r Registers, v Values) any

func raw(addr uint16) evalFunc {
	return func(r Registers, _ Values) any {
		return int64(r.Get(addr))
	}
}

// tenths reads registers holding a value times ten.
func tenths(addr uint16) evalFunc {
	return func(r Registers, _ Values) any {
		return round(float64(r.Get(addr))/10, 1)
	}
}

func signedTenths(addr uint16) evalFunc {
	return func(r Registers, _ Values) any {
		return round(float64(r.Signed(addr))/10, 1)
	}
}

func loadData(f func(vout, iout, ibat float64) float64) evalFunc {
	return func(_ Registers, v Values) any {
		return round(f(v.Float("vout"), v.Float("iout"), v.Float("ibat")), 1)
	}
}

// DATAPOINTS is evaluated in order.
var DATAPOINTS = []Datapoint{
	{Label: "classic", Name: "Classic Unit Type", Sources: []uint16{4101},
		eval: func(r Registers, _ Values) any { return int64(LSB(r.Get(4101))) }},
	{Label: "rev", Name: "Classic PCB Revision", Sources: []uint16{4101},
		eval: func(r Registers, _ Values) any { return int64(MSB(r.Get(4101))) }},
	{Label: "firmdate", Name: "Firmware Date", Sources: []uint16{4102, 4103}, Text: true,
		eval: func(r Registers, _ Values) any {
			return fmt.Sprintf("%d-%d-%d", r.Get(4102), MSB(r.Get(4103)), LSB(r.Get(4103)))
		}},
	{Label: "firmver", Name: "Firmware Version", Sources: []uint16{16387}, eval: raw(16387)},
	{Label: "commver", Name: "Revision of the communications code stack", Sources: []uint16{16389}, eval: raw(16389)},
	{Label: "uptimeh", Name: "Uptime hours", Unit: "hours", Sources: []uint16{4349, 4350},
		eval: func(r Registers, _ Values) any { return int64(math.Round(float64(r.Long(4350, 4349)) / 3600)) }},
	{Label: "uptime", Name: "Uptime days", Unit: "days", Sources: []uint16{4349, 4350},
		eval: func(r Registers, _ Values) any { return round(float64(r.Long(4350, 4349))/86400, 2) }},
	{Label: "plifetime", Name: "Lifetime kWh", Unit: "kWh", Sources: []uint16{4126, 4127},
		eval: func(r Registers, _ Values) any { return round(float64(r.Long(4127, 4126))/10, 1) }},
	{Label: "ptoday", Name: "kWh Today", Unit: "kWh", Sources: []uint16{4118}, eval: tenths(4118)},
	{Label: "ftoday", Name: "Float Time Today", Unit: "seconds", Sources: []uint16{4138}, eval: raw(4138)},

	// 4120 holds the charge stage in the high byte and the state in the low byte
	{Label: "cstate", Name: "Charge Stage Raw", Sources: []uint16{4120},
		eval: func(r Registers, _ Values) any { return int64(MSB(r.Get(4120))) }},
	{Label: "cstageword", Name: "Charge Stage", Text: true,
		eval: func(_ Registers, v Values) any { return StageWord(v.Int("cstate")) }},
	{Label: "cstagelin", Name: "Charge Stage Lin",
		eval: func(_ Registers, v Values) any { return StageLinear(v.Int("cstate")) }},
	{Label: "state", Name: "State Raw", Sources: []uint16{4120},
		eval: func(r Registers, _ Values) any { return int64(LSB(r.Get(4120))) }},
	{Label: "stateword", Name: "State", Text: true,
		eval: func(_ Registers, v Values) any { return StateWord(v.Int("state")) }},
	{Label: "restingreason", Name: "Reason for resting", Sources: []uint16{4275}, eval: raw(4275)},
	{Label: "restingreasonword", Name: "Reason for resting", Text: true,
		eval: func(_ Registers, v Values) any { return RestingReason(v.Int("restingreason")) }},
	{Label: "restingreasonwordshort", Name: "Reason for resting", Text: true,
		eval: func(_ Registers, v Values) any { return RestingReasonShort(v.Int("restingreason")) }},
	{Label: "infoflags", Name: "Info Flags", Sources: []uint16{4130, 4131},
		eval: func(r Registers, _ Values) any { return int64(r.Long(4131, 4130)) }},

	// no battery sensor reads as 25 degrees
	{Label: "tbat", Name: "Battery Temp", Unit: "°C", Sources: []uint16{4132},
		eval: func(r Registers, _ Values) any {
			if r.Get(4132) > 65000 {
				return float64(25)
			}
			return round(float64(r.Get(4132))/10, 1)
		}},
	{Label: "tcc", Name: "FET Temp", Unit: "°C", Sources: []uint16{4133}, eval: tenths(4133)},
	{Label: "tcc2", Name: "PCB Temp", Unit: "°C", Sources: []uint16{4134}, eval: tenths(4134)},

	{Label: "pout", Name: "Output Power", Unit: "W", Sources: []uint16{4119}, eval: raw(4119)},
	{Label: "vout", Name: "Output Voltage", Unit: "V", Sources: []uint16{4115}, eval: tenths(4115)},
	{Label: "iout", Name: "Output Current", Unit: "A", Sources: []uint16{4117}, eval: tenths(4117)},
	{Label: "vpv", Name: "PV Voltage", Unit: "V", Sources: []uint16{4116}, eval: tenths(4116)},
	{Label: "ipv", Name: "PV Current", Unit: "A", Sources: []uint16{4121}, eval: tenths(4121)},

	// WhizBang Jr shunt
	{Label: "whizbtemp", Name: "WhizBangJr Shunt Temperature", Unit: "°C", Sources: []uint16{4372},
		eval: func(r Registers, _ Values) any { return int64(LSB(r.Get(4372))) - 50 }},
	{Label: "ibat", Name: "WhizBangJr Current", Unit: "A", Sources: []uint16{4371}, eval: signedTenths(4371)},
	{Label: "soc", Name: "State of Charge", Unit: "%", Sources: []uint16{4373}, eval: raw(4373)},
	{Label: "battahrem", Name: "Remaining battery capacity", Unit: "Ah", Sources: []uint16{4377}, eval: raw(4377)},
	{Label: "battah", Name: "Battery capacity", Unit: "Ah", Sources: []uint16{4381}, eval: raw(4381)},

	// ibat is positive while charging
	{Label: "iabsbat", Name: "Battery Current Abs", Unit: "A",
		eval: loadData(func(_, _, ibat float64) float64 { return math.Abs(ibat) })},
	{Label: "ichgbat", Name: "Battery Current Charge", Unit: "A",
		eval: loadData(func(_, _, ibat float64) float64 { return max(ibat, 0) })},
	{Label: "idisbat", Name: "Battery Current Discharge", Unit: "A",
		eval: loadData(func(_, _, ibat float64) float64 { return max(-ibat, 0) })},
	{Label: "batstate", Name: "Battery Current State", Text: true,
		eval: func(_ Registers, v Values) any {
			if v.Float("ibat") > 0 {
				return "Charging"
			}
			return "Discharging"
		}},
	{Label: "iload", Name: "Load Current", Unit: "A",
		eval: loadData(func(_, iout, ibat float64) float64 { return iout - ibat })},
	{Label: "pload", Name: "Load Power", Unit: "W",
		eval: loadData(func(vout, iout, ibat float64) float64 { return (iout - ibat) * vout })},
	{Label: "eff", Name: "Efficiency", Unit: "%",
		eval: func(_ Registers, v Values) any {
			pin := v.Float("ipv") * v.Float("vpv")
			if pin == 0 {
				return float64(0)
			}
			return round(v.Float("iout")*v.Float("vout")/pin*100, 0)
		}},
}

// Evaluate computes every datapoint from a register snapshot.
func Evaluate(r Registers) Points {
	points := make(Points, 0, len(DATAPOINTS))
	values := make(Values, len(DATAPOINTS))
	for _, dp := range DATAPOINTS {
		value := dp.eval(r, values)
		values[dp.Label] = value
		points = append(points, Point{Label: dp.Label, Name: dp.Name, Value: value, Unit: dp.Unit})
	}
	return points
}

// ForRegister returns the first datapoint computed from addr alone.
func ForRegister(addr uint16) (Datapoint, bool) {
	for _, dp := range DATAPOINTS {
		if slices.Equal(dp.Sources, []uint16{addr}) {
			return dp, true
		}
	}
	return Datapoint{}, false
}
