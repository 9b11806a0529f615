package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	SNAPSHOT_FILE          = "data.txt"
	SNAPSHOT_TEMP_FILE     = "tempdata.txt"
	SNAPSHOT_SEPARATOR     = "--"
	SNAPSHOT_HEADER_FORMAT = "2006-01-02 15:04:05.000"
)

var ErrNoSnapshot = errors.New("no snapshot published")

func SnapshotPath(dataDir string) string {
	return filepath.Join(dataDir, SNAPSHOT_FILE)
}

// SnapshotWriter writes the full register dump next to the published
// snapshot and swaps it in with a rename once the cycle succeeded.
type SnapshotWriter struct {
	fs      afero.Fs
	dataDir string
	f       afero.File
	w       *bufio.Writer
}

func CreateSnapshot(fs afero.Fs, dataDir string, t time.Time) (*SnapshotWriter, error) {
	f, err := fs.OpenFile(filepath.Join(dataDir, SNAPSHOT_TEMP_FILE), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	s := &SnapshotWriter{fs: fs, dataDir: dataDir, f: f, w: bufio.NewWriter(f)}
	fmt.Fprintf(s.w, "[%s]\n", t.Format(SNAPSHOT_HEADER_FORMAT))
	return s, nil
}

func (s *SnapshotWriter) WriteValue(addr uint16, value uint16) {
	fmt.Fprintf(s.w, "%d:%d\n", addr, value)
}

// Finish writes the separator and closes the temporary file.
func (s *SnapshotWriter) Finish() error {
	if s.f == nil {
		return nil
	}
	s.w.WriteString(SNAPSHOT_SEPARATOR + "\n")
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}

// Publish replaces the published snapshot. Readers see either the old or
// the new file, never a partial one.
func (s *SnapshotWriter) Publish() error {
	if err := s.Finish(); err != nil {
		return err
	}
	return s.fs.Rename(filepath.Join(s.dataDir, SNAPSHOT_TEMP_FILE), SnapshotPath(s.dataDir))
}

// Discard drops the temporary file, leaving the published snapshot as is.
func (s *SnapshotWriter) Discard() error {
	_ = s.Finish()
	err := s.fs.Remove(filepath.Join(s.dataDir, SNAPSHOT_TEMP_FILE))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type Snapshot struct {
	Timestamp time.Time
	Addresses []uint16
	Registers map[uint16]uint16
}

func ReadSnapshot(fs afero.Fs, dataDir string) (*Snapshot, error) {
	f, err := fs.Open(SnapshotPath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSnapshot(f, time.Local)
}

// ParseSnapshot reads the snapshot format back: a bracketed timestamp, one
// addr:value line per register and the separator.
func ParseSnapshot(r io.Reader, loc *time.Location) (*Snapshot, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("empty snapshot")
	}
	header := strings.TrimSpace(scanner.Text())
	if !strings.HasPrefix(header, "[") || !strings.HasSuffix(header, "]") {
		return nil, fmt.Errorf("invalid snapshot header %q", header)
	}
	ts, err := time.ParseInLocation(SNAPSHOT_HEADER_FORMAT, header[1:len(header)-1], loc)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot timestamp: %w", err)
	}

	snap := &Snapshot{
		Timestamp: ts,
		Registers: make(map[uint16]uint16),
	}
	complete := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == SNAPSHOT_SEPARATOR {
			complete = true
			break
		}
		addr, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid snapshot line %q", line)
		}
		a, err := strconv.ParseUint(addr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid address in %q: %w", line, err)
		}
		v, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", line, err)
		}
		snap.Addresses = append(snap.Addresses, uint16(a))
		snap.Registers[uint16(a)] = uint16(v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !complete {
		return nil, errors.New("snapshot is missing the separator")
	}
	return snap, nil
}
