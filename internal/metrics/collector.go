package metrics

import (
	"strconv"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/cycle"
	"github.com/berfenger/midnite-modbusd/pkg/classic_modbus"
	"github.com/prometheus/client_golang/prometheus"
)

const NAMESPACE = "modbusd"

// Collector turns cycle results and request timings into prometheus
// metrics. Register values are exported for watched registers only.
type Collector struct {
	cycles     *prometheus.CounterVec
	duration   prometheus.Histogram
	lastStatus prometheus.Gauge
	registers  *prometheus.GaugeVec
	requests   *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "cycles_total",
			Help:      "Sample cycles by status code",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "cycle_duration_seconds",
			Help:      "Time from the scheduled boundary to the end of the cycle",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		lastStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "last_status",
			Help:      "Status code of the last cycle",
		}),
		registers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "register_value",
			Help:      "Last value read for a watched register",
		}, []string{"address"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "request_duration_seconds",
			Help:      "Device round trips",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, []string{"fn"}),
	}
	reg.MustRegister(c.cycles, c.duration, c.lastStatus, c.registers, c.requests)
	return c
}

func (c *Collector) Observe(res cycle.Result) {
	c.cycles.WithLabelValues(strconv.Itoa(res.Status)).Inc()
	c.lastStatus.Set(float64(res.Status))
	if res.Status == cycle.STATUS_DISABLED {
		return
	}
	c.duration.Observe(res.Duration.Seconds())
	if res.Sample == nil {
		return
	}
	for _, rv := range res.Sample.Watched {
		c.registers.WithLabelValues(strconv.Itoa(int(rv.Address))).Set(float64(rv.Value))
	}
}

// Instrument feeds session timings into request_duration_seconds.
func (c *Collector) Instrument() *classic_modbus.ModbusInstrument {
	return &classic_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			c.requests.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}
