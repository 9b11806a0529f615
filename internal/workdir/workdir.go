package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	DEFAULT_WORKING_DIR = "/var/lib/midnite-modbusd"
	DEFAULT_LOCK_FILE   = "/var/run/midnite-modbusd.lock"
	STATS_DIR           = "stats"
)

var ErrLocked = errors.New("another instance holds the lock file")

// Resolve makes workingDir absolute against the current directory. Paths
// derived from it stay valid after Prepare changes directory.
func Resolve(workingDir string) (string, error) {
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		return "", fmt.Errorf("get working dir failed: %w", err)
	}
	return abs, nil
}

// Prepare enters the working directory and makes sure its stats directory
// exists. It returns the absolute stats path.
func Prepare(fs afero.Fs, workingDir string, logger *zap.Logger) (string, error) {
	workingDir, err := Resolve(workingDir)
	if err != nil {
		return "", err
	}
	if err := os.Chdir(workingDir); err != nil {
		return "", fmt.Errorf("get working dir failed: %w", err)
	}
	stats := filepath.Join(workingDir, STATS_DIR)
	if err := EnsureDir(fs, stats, logger); err != nil {
		return "", err
	}
	return stats, nil
}

func EnsureDir(fs afero.Fs, dir string, logger *zap.Logger) error {
	ok, err := afero.DirExists(fs, dir)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	logger.Info("creating data directory", zap.String("path", dir))
	if err := fs.MkdirAll(dir, 0775); err != nil {
		return fmt.Errorf("data directory create failed: %w", err)
	}
	return nil
}

type Lock struct {
	fs   afero.Fs
	path string
}

// AcquireLock creates path exclusively and writes the pid into it. An empty
// path disables locking.
func AcquireLock(fs afero.Fs, path string) (*Lock, error) {
	if path == "" {
		return &Lock{fs: fs}, nil
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) {
		pid, _ := afero.ReadFile(fs, path)
		return nil, fmt.Errorf("%w: %s (pid %s)", ErrLocked, path, pid)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = fs.Remove(path)
		return nil, err
	}
	return &Lock{fs: fs, path: path}, nil
}

func (l *Lock) Path() string {
	return l.path
}

func (l *Lock) Release() error {
	if l.path == "" {
		return nil
	}
	err := l.fs.Remove(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
