package cycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/logging"
	"github.com/berfenger/midnite-modbusd/internal/output"
	"github.com/berfenger/midnite-modbusd/internal/register"
	"github.com/berfenger/midnite-modbusd/internal/scheduler"
	"github.com/berfenger/midnite-modbusd/pkg/classic_modbus"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	STATUS_OK       = classic_modbus.STATUS_OK
	STATUS_DISABLED = 9

	DISABLE_FILE = "modbusd.disabled"
)

var ErrOutputUnwritable = errors.New("output unwritable")

// DeviceReader is the part of classic_modbus.Session the cycle drives.
type DeviceReader interface {
	ReadRegisters(ctx context.Context, start uint16, count uint16, dst []byte) error
	Close() error
}

type RegisterValue struct {
	Address uint16 `json:"address"`
	Value   uint16 `json:"value"`
}

type Sample struct {
	Timestamp time.Time       `json:"timestamp"`
	Watched   []RegisterValue `json:"watched"`
	Values    []RegisterValue `json:"values"`
}

type Result struct {
	Status    int
	Scheduled time.Time
	Duration  time.Duration
	// nil unless Status is STATUS_OK
	Sample *Sample
	Err    error
}

type Config struct {
	DataDir    string
	WorkingDir string
	Watch      []uint16
}

// Cycle performs one poll per tick: read every range of the layout, write
// the daily log entry and the snapshot, publish the snapshot on success.
// It owns the register buffer and is not safe for concurrent use.
type Cycle struct {
	cfg       Config
	layout    register.Layout
	ranges    []register.AddressRange
	addresses []uint16
	watch     map[uint16]bool
	buffer    *register.Buffer
	reader    DeviceReader
	fs        afero.Fs
	observers []Observer
	now       func() time.Time
	logger    *zap.Logger
}

func New(cfg Config, layout register.Layout, reader DeviceReader, fs afero.Fs, logger *zap.Logger, observers ...Observer) (*Cycle, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	watch := make(map[uint16]bool, len(cfg.Watch))
	for _, addr := range cfg.Watch {
		if !layout.Contains(addr) {
			return nil, fmt.Errorf("watched register %d is outside the polled windows", addr)
		}
		watch[addr] = true
	}
	return &Cycle{
		cfg:       cfg,
		layout:    layout,
		ranges:    layout.Ranges(),
		addresses: layout.Addresses(),
		watch:     watch,
		buffer:    register.NewBuffer(layout),
		reader:    reader,
		fs:        fs,
		observers: observers,
		now:       time.Now,
		logger:    logging.Component("cycle", logger),
	}, nil
}

func (c *Cycle) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

func (c *Cycle) DisableFilePath() string {
	return filepath.Join(c.cfg.WorkingDir, DISABLE_FILE)
}

// Job adapts the cycle to the scheduler loop. Only an unwritable output
// stops the loop.
func (c *Cycle) Job() scheduler.Job {
	return func(ctx context.Context, tick scheduler.Tick) error {
		_, err := c.Run(ctx, tick)
		return err
	}
}

// Run executes one cycle. The returned error is non-nil only when an output
// file cannot be opened, which the daemon treats as fatal.
func (c *Cycle) Run(ctx context.Context, tick scheduler.Tick) (Result, error) {
	res := Result{Scheduled: tick.Scheduled}

	if c.disabled() {
		_ = c.reader.Close()
		c.logger.Warn("disabled file found, disconnecting", zap.String("path", c.DisableFilePath()))
		res.Status = STATUS_DISABLED
		res.Duration = c.now().Sub(tick.Scheduled)
		c.notify(res)
		return res, nil
	}

	label := tick.Scheduled.Local()
	dailyLog, err := output.OpenDailyLog(c.fs, c.cfg.DataDir, label)
	if err != nil {
		return res, fmt.Errorf("%w: daily log: %w", ErrOutputUnwritable, err)
	}
	snapshot, err := output.CreateSnapshot(c.fs, c.cfg.DataDir, label)
	if err != nil {
		_ = dailyLog.Close()
		return res, fmt.Errorf("%w: snapshot: %w", ErrOutputUnwritable, err)
	}

	res.Err = c.read(ctx)
	res.Status = classic_modbus.StatusOf(res.Err)

	if res.Status == STATUS_OK {
		res.Sample = &Sample{Timestamp: label}
		for _, addr := range c.addresses {
			value := c.buffer.Decode(addr)
			snapshot.WriteValue(addr, value)
			res.Sample.Values = append(res.Sample.Values, RegisterValue{addr, value})
			if c.watch[addr] {
				dailyLog.WriteValue(addr, value)
				res.Sample.Watched = append(res.Sample.Watched, RegisterValue{addr, value})
			}
		}
	}

	res.Duration = c.now().Sub(tick.Scheduled)
	if err := dailyLog.Finish(res.Status, res.Duration); err != nil {
		c.logger.Error("daily log write failed", zap.Error(err))
	}

	if res.Status == STATUS_OK {
		if err := snapshot.Publish(); err != nil {
			c.logger.Error("snapshot publish failed", zap.Error(err))
		}
	} else if err := snapshot.Discard(); err != nil {
		c.logger.Error("snapshot discard failed", zap.Error(err))
	}

	c.logger.Debug("cycle done", zap.Int("status", res.Status), zap.Duration("duration", res.Duration))
	c.notify(res)
	return res, nil
}

// read fills the buffer range by range, the first failure aborts.
func (c *Cycle) read(ctx context.Context) error {
	c.buffer.Reset()
	for _, r := range c.ranges {
		slot, err := c.buffer.Slot(r)
		if err == nil {
			err = c.reader.ReadRegisters(ctx, r.Start, r.Count, slot)
		}
		if err != nil {
			_ = c.reader.Close()
			c.logger.Warn(fmt.Sprintf("modbus read error: %d", classic_modbus.StatusOf(err)),
				zap.Stringer("range", r), zap.Error(err))
			return err
		}
	}
	return nil
}

func (c *Cycle) disabled() bool {
	exists, err := afero.Exists(c.fs, c.DisableFilePath())
	if err != nil {
		c.logger.Warn("cannot check disable file", zap.Error(err))
	}
	return exists
}

func (c *Cycle) notify(res Result) {
	for _, o := range c.observers {
		o.Observe(res)
	}
}
