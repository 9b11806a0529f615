package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/output"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintReport(t *testing.T) {

	require := require.New(t)

	fs := afero.NewMemMapFs()
	require.NoError(fs.MkdirAll("/stats", 0775))
	ts := time.Date(2024, 6, 1, 12, 30, 0, 0, time.Local)
	w, err := output.CreateSnapshot(fs, "/stats", ts)
	require.NoError(err)
	w.WriteValue(4101, 2<<8|150)
	w.WriteValue(4119, 540)
	w.WriteValue(4120, 5<<8|3)
	require.NoError(w.Publish())

	var out bytes.Buffer
	require.NoError(printReport(&out, fs, output.SnapshotPath("/stats"), false))
	require.True(strings.HasPrefix(out.String(), "{\n    \"timestamp\": "))

	var report struct {
		Timestamp int64 `json:"timestamp"`
		Data      map[string]struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
			Unit  string `json:"unit"`
		} `json:"data"`
	}
	require.NoError(json.Unmarshal(out.Bytes(), &report))
	require.Equal(ts.Unix(), report.Timestamp)
	require.Equal("Classic Unit Type", report.Data["classic"].Name)
	require.Equal(150.0, report.Data["classic"].Value)
	require.Equal(540.0, report.Data["pout"].Value)
	require.Equal("W", report.Data["pout"].Unit)
	require.Equal("Float", report.Data["cstageword"].Value)

	out.Reset()
	require.NoError(printReport(&out, fs, output.SnapshotPath("/stats"), true))
	require.Equal(1, strings.Count(out.String(), "\n"))
}

func TestPrintReportMissingFile(t *testing.T) {

	var out bytes.Buffer
	err := printReport(&out, afero.NewMemMapFs(), "/nope/data.txt", false)
	assert.ErrorContains(t, err, "invalid data file")
	assert.Zero(t, out.Len())
}
