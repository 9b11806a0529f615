package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const (
	DAILY_LOG_DATE_FORMAT   = "2006-01-02"
	DAILY_LOG_HEADER_FORMAT = "[15:04:05.000] - "
)

func DailyLogPath(dataDir string, t time.Time) string {
	return filepath.Join(dataDir, t.Format(DAILY_LOG_DATE_FORMAT)+".txt")
}

// DailyLog is one entry appended to the compact log of the day:
//
//	[HH:MM:SS.mmm] - addr:value\taddr:value\t
//	<status> - <ms> ms
type DailyLog struct {
	f afero.File
	w *bufio.Writer
}

func OpenDailyLog(fs afero.Fs, dataDir string, t time.Time) (*DailyLog, error) {
	f, err := fs.OpenFile(DailyLogPath(dataDir, t), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := &DailyLog{f: f, w: bufio.NewWriter(f)}
	l.w.WriteString(t.Format(DAILY_LOG_HEADER_FORMAT))
	return l, nil
}

func (l *DailyLog) WriteValue(addr uint16, value uint16) {
	fmt.Fprintf(l.w, "%d:%d\t", addr, value)
}

// Finish ends the entry with the cycle status and duration and closes the
// file.
func (l *DailyLog) Finish(status int, duration time.Duration) error {
	fmt.Fprintf(l.w, "\n%d - %d ms\n", status, duration.Milliseconds())
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// Close drops the unfinished entry.
func (l *DailyLog) Close() error {
	l.w.Reset(nil)
	return l.f.Close()
}
