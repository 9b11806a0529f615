package classic

import (
	"sync"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/cycle"
)

type dailyPoint struct {
	Label    string
	Name     string
	Unit     string
	Decimals int
	update   func(acc float64, first bool, v Values, hours float64) float64
}

func anyStage(int) bool   { return true }
func inBulk(s int) bool   { return s == STAGE_BULK_MPPT }
func inAbsorb(s int) bool { return s == STAGE_ABSORB }
func inFloat(s int) bool  { return s == STAGE_FLOAT || s == STAGE_FLOAT_MPPT }

func timeIn(stage func(int) bool) func(float64, bool, Values, float64) float64 {
	return func(acc float64, _ bool, v Values, hours float64) float64 {
		if stage(v.Int("cstate")) {
			return acc + hours
		}
		return acc
	}
}

// integrate sums label over time while the controller is in stage.
func integrate(label string, stage func(int) bool) func(float64, bool, Values, float64) float64 {
	return func(acc float64, _ bool, v Values, hours float64) float64 {
		if stage(v.Int("cstate")) {
			return acc + v.Float(label)*hours
		}
		return acc
	}
}

func dailyMax(label string) func(float64, bool, Values, float64) float64 {
	return func(acc float64, first bool, v Values, _ float64) float64 {
		if x := v.Float(label); first || x > acc {
			return x
		}
		return acc
	}
}

func dailyMin(label string) func(float64, bool, Values, float64) float64 {
	return func(acc float64, first bool, v Values, _ float64) float64 {
		if x := v.Float(label); first || x < acc {
			return x
		}
		return acc
	}
}

var DAILY_POINTS = []dailyPoint{
	{"durbulk", "Time in bulk", "hrs", 1, timeIn(inBulk)},
	{"durabsorb", "Time in absorb", "hrs", 1, timeIn(inAbsorb)},
	{"durfloat", "Time in float", "hrs", 1, timeIn(inFloat)},
	{"whtotal", "Wh total", "Wh", 0, integrate("pout", anyStage)},
	{"whbulk", "Wh in bulk", "Wh", 0, integrate("pout", inBulk)},
	{"whabsorb", "Wh in absorb", "Wh", 0, integrate("pout", inAbsorb)},
	{"whfloat", "Wh in float", "Wh", 0, integrate("pout", inFloat)},
	{"whload", "Wh Load", "Wh", 0, integrate("pload", anyStage)},
	{"ahcharge", "Charge Amp Hrs", "Ah", 1, integrate("ichgbat", anyStage)},
	{"ahdischarge", "Discharge Amp Hrs", "Ah", 1, integrate("idisbat", anyStage)},
	{"maxpout", "Max power output", "W", 0, dailyMax("pout")},
	{"maxiout", "Max current output", "A", 1, dailyMax("iout")},
	{"maxvbat", "Max battery voltage", "V", 1, dailyMax("vout")},
	{"minvbat", "Min battery voltage", "V", 1, dailyMin("vout")},
	{"maxsoc", "Max SOC", "%", 0, dailyMax("soc")},
	{"minsoc", "Min SOC", "%", 0, dailyMin("soc")},
}

// Daily holds the aggregates of one local calendar day.
type Daily struct {
	Date    string `json:"date"`
	Samples int    `json:"samples"`
	Data    Points `json:"data"`
}

// DailyTally aggregates successful samples per day. Each sample stands for
// one sampling interval.
type DailyTally struct {
	mu       sync.Mutex
	interval time.Duration
	day      string
	samples  int
	acc      []float64
}

func NewDailyTally(interval time.Duration) *DailyTally {
	return &DailyTally{
		interval: interval,
		acc:      make([]float64, len(DAILY_POINTS)),
	}
}

func (t *DailyTally) Observe(res cycle.Result) {
	if res.Sample == nil {
		return
	}
	regs := make(Registers, len(res.Sample.Values))
	for _, rv := range res.Sample.Values {
		regs[rv.Address] = rv.Value
	}
	t.Add(res.Sample.Timestamp, Evaluate(regs).Values())
}

// Add accounts one sample taken at ts. The first sample of a new day
// resets the tally.
func (t *DailyTally) Add(ts time.Time, v Values) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := ts.Format(time.DateOnly)
	if day != t.day {
		t.day = day
		t.samples = 0
		clear(t.acc)
	}
	hours := t.interval.Hours()
	for i, p := range DAILY_POINTS {
		t.acc[i] = p.update(t.acc[i], t.samples == 0, v, hours)
	}
	t.samples++
}

// Today returns the aggregates of the day holding now, zero when no sample
// was taken that day yet.
func (t *DailyTally) Today(now time.Time) Daily {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := now.Format(time.DateOnly)
	current := day == t.day
	d := Daily{Date: day, Data: make(Points, 0, len(DAILY_POINTS))}
	if current {
		d.Samples = t.samples
	}
	for i, p := range DAILY_POINTS {
		value := 0.0
		if current {
			value = round(t.acc[i], p.Decimals)
		}
		d.Data = append(d.Data, Point{Label: p.Label, Name: p.Name, Value: value, Unit: p.Unit})
	}
	return d
}
