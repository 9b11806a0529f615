package classic

import (
	"fmt"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/output"
	"github.com/spf13/afero"
)

const DEFAULT_DATA_FILE = "/var/lib/midnite-modbusd/stats/data.txt"

// Report is the datapoint view of one published snapshot.
type Report struct {
	// unix seconds of the sample
	Timestamp int64  `json:"timestamp"`
	Data      Points `json:"data"`
}

func NewReport(snap *output.Snapshot) Report {
	return Report{
		Timestamp: snap.Timestamp.Unix(),
		Data:      Evaluate(snap.Registers),
	}
}

// LoadReport parses a snapshot file, typically the published data.txt.
func LoadReport(fs afero.Fs, path string) (Report, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("invalid data file: %w", err)
	}
	defer f.Close()

	snap, err := output.ParseSnapshot(f, time.Local)
	if err != nil {
		return Report{}, fmt.Errorf("invalid data file %s: %w", path, err)
	}
	return NewReport(snap), nil
}
