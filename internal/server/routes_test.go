package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/classic"
	"github.com/berfenger/midnite-modbusd/internal/config"
	"github.com/berfenger/midnite-modbusd/internal/cycle"
	"github.com/berfenger/midnite-modbusd/internal/metrics"
	"github.com/berfenger/midnite-modbusd/internal/output"
	"github.com/berfenger/midnite-modbusd/internal/status"
	"github.com/berfenger/midnite-modbusd/pkg/classic_modbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const DATA_DIR = "/data"

type fixture struct {
	handler  http.Handler
	tracker  *status.Tracker
	tally    *classic.DailyTally
	fs       afero.Fs
	registry *prometheus.Registry
}

func newFixture(t *testing.T) fixture {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(DATA_DIR, 0775))
	tracker := status.NewTracker(10 * time.Second)
	tally := classic.NewDailyTally(10 * time.Second)
	registry := prometheus.NewRegistry()
	srv := NewServer(config.Config{DataDir: DATA_DIR, HTTP: config.HTTPConfig{Port: 8080}}, tracker, tally, registry, fs)
	return fixture{handler: srv.Handler, tracker: tracker, tally: tally, fs: fs, registry: registry}
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {

	assert := assert.New(t)
	f := newFixture(t)

	rec := get(f.handler, "/healthcheck")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("health_check: OK", rec.Body.String())

	f.tracker.Observe(cycle.Result{Status: classic_modbus.STATUS_CONNECT, Scheduled: time.Now()})
	rec = get(f.handler, "/healthcheck")
	assert.Equal(http.StatusServiceUnavailable, rec.Code)
	assert.Equal("health_check: FAIL", rec.Body.String())

	f.tracker.Observe(cycle.Result{Status: cycle.STATUS_OK, Scheduled: time.Now()})
	assert.Equal(http.StatusOK, get(f.handler, "/healthcheck").Code)
}

func TestSnapshot(t *testing.T) {

	require := require.New(t)
	f := newFixture(t)

	require.Equal(http.StatusNotFound, get(f.handler, "/snapshot").Code)

	ts := time.Date(2024, 3, 9, 14, 5, 30, 0, time.Local)
	w, err := output.CreateSnapshot(f.fs, DATA_DIR, ts)
	require.NoError(err)
	w.WriteValue(4101, 150)
	w.WriteValue(16390, 3)
	require.NoError(w.Publish())

	rec := get(f.handler, "/snapshot")
	require.Equal(http.StatusOK, rec.Code)

	var resp SnapshotResponse
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(map[uint16]uint16{4101: 150, 16390: 3}, resp.Registers)
	require.True(strings.HasPrefix(resp.Timestamp, "2024-03-09T14:05:30.000"))
}

func TestDatapoints(t *testing.T) {

	require := require.New(t)
	f := newFixture(t)

	require.Equal(http.StatusNotFound, get(f.handler, "/datapoints").Code)

	ts := time.Date(2024, 3, 9, 14, 5, 30, 0, time.Local)
	w, err := output.CreateSnapshot(f.fs, DATA_DIR, ts)
	require.NoError(err)
	w.WriteValue(4101, 2<<8|150)
	w.WriteValue(4115, 276)
	w.WriteValue(4373, 87)
	require.NoError(w.Publish())

	rec := get(f.handler, "/datapoints")
	require.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Timestamp int64 `json:"timestamp"`
		Data      map[string]struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
			Unit  string `json:"unit"`
		} `json:"data"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(ts.Unix(), resp.Timestamp)
	require.Equal(150.0, resp.Data["classic"].Value)
	require.Equal(2.0, resp.Data["rev"].Value)
	require.Equal(27.6, resp.Data["vout"].Value)
	require.Equal("V", resp.Data["vout"].Unit)
	require.Equal("State of Charge", resp.Data["soc"].Name)
}

func TestDailyDatapoints(t *testing.T) {

	require := require.New(t)
	f := newFixture(t)

	now := time.Now()
	f.tally.Add(now, classic.Values{"cstate": int64(classic.STAGE_BULK_MPPT), "pout": int64(360)})

	rec := get(f.handler, "/datapoints/daily")
	require.Equal(http.StatusOK, rec.Code)

	var daily struct {
		Date    string `json:"date"`
		Samples int    `json:"samples"`
		Data    map[string]struct {
			Value float64 `json:"value"`
		} `json:"data"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &daily))
	require.Equal(now.Format(time.DateOnly), daily.Date)
	require.Equal(1, daily.Samples)
	require.Equal(1.0, daily.Data["whbulk"].Value)
}

func TestStatus(t *testing.T) {

	f := newFixture(t)
	f.tracker.Observe(cycle.Result{Status: classic_modbus.STATUS_BODY, Scheduled: time.Now()})

	rec := get(f.handler, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var state status.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, classic_modbus.STATUS_BODY, state.LastStatus)
	assert.Equal(t, 1, state.ConsecutiveFailures)
}

func TestMetrics(t *testing.T) {

	f := newFixture(t)
	collector := metrics.NewCollector(f.registry)
	collector.Observe(cycle.Result{Status: cycle.STATUS_OK, Duration: time.Second, Sample: &cycle.Sample{}})

	rec := get(f.handler, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `modbusd_cycles_total{status="0"} 1`)
}
