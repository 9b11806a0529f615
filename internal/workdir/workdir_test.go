package workdir

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPrepareCreatesStats(t *testing.T) {

	require := require.New(t)

	cwd, err := os.Getwd()
	require.NoError(err)
	t.Cleanup(func() { os.Chdir(cwd) })

	dir := t.TempDir()
	stats, err := Prepare(afero.NewOsFs(), dir, zap.NewNop())
	require.NoError(err)
	require.Equal(filepath.Join(dir, STATS_DIR), stats)

	info, err := os.Stat(stats)
	require.NoError(err)
	require.True(info.IsDir())

	wd, err := os.Getwd()
	require.NoError(err)
	resolved, _ := filepath.EvalSymlinks(dir)
	wdResolved, _ := filepath.EvalSymlinks(wd)
	require.Equal(resolved, wdResolved)

	// second run keeps the existing directory
	_, err = Prepare(afero.NewOsFs(), dir, zap.NewNop())
	require.NoError(err)
}

func TestPrepareRelativeWorkingDir(t *testing.T) {

	require := require.New(t)

	cwd, err := os.Getwd()
	require.NoError(err)
	t.Cleanup(func() { os.Chdir(cwd) })

	parent := t.TempDir()
	require.NoError(os.Mkdir(filepath.Join(parent, "work"), 0775))
	require.NoError(os.Chdir(parent))

	abs, err := Resolve("./work")
	require.NoError(err)
	require.True(filepath.IsAbs(abs))

	stats, err := Prepare(afero.NewOsFs(), "./work", zap.NewNop())
	require.NoError(err)
	require.True(filepath.IsAbs(stats))
	require.Equal(filepath.Join(abs, STATS_DIR), stats)

	_, err = os.Stat(filepath.Join(parent, "work", STATS_DIR))
	require.NoError(err)
	_, err = os.Stat(filepath.Join(parent, "work", "work"))
	require.True(os.IsNotExist(err), "stats is not nested under the working dir twice")
}

func TestPrepareMissingWorkingDir(t *testing.T) {

	_, err := Prepare(afero.NewOsFs(), filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	assert.ErrorContains(t, err, "get working dir failed")
}

func TestLock(t *testing.T) {

	require := require.New(t)

	fs := afero.NewMemMapFs()
	lock, err := AcquireLock(fs, DEFAULT_LOCK_FILE)
	require.NoError(err)

	pid, err := afero.ReadFile(fs, DEFAULT_LOCK_FILE)
	require.NoError(err)
	require.Equal(strconv.Itoa(os.Getpid()), string(pid))

	_, err = AcquireLock(fs, DEFAULT_LOCK_FILE)
	require.ErrorIs(err, ErrLocked)

	require.NoError(lock.Release())
	require.NoError(lock.Release(), "releasing twice is fine")

	lock, err = AcquireLock(fs, DEFAULT_LOCK_FILE)
	require.NoError(err)
	require.NoError(lock.Release())
}

func TestLockDisabled(t *testing.T) {

	lock, err := AcquireLock(afero.NewMemMapFs(), "")
	assert.NoError(t, err)
	assert.Equal(t, "", lock.Path())
	assert.NoError(t, lock.Release())
}
