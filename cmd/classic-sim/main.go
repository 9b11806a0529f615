package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/berfenger/midnite-modbusd/internal/logging"
	"github.com/berfenger/midnite-modbusd/internal/register"
	"github.com/berfenger/midnite-modbusd/pkg/classic_modbus"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Fixture is the register file served by the simulator:
//
//	registers:
//	  4101: 150
//	  16390: 3
type Fixture struct {
	Registers map[uint16]uint16 `yaml:"registers"`
}

func LoadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("register fixture: %w", err)
	}
	for addr := range f.Registers {
		if !register.CLASSIC_LAYOUT.Contains(addr) {
			return nil, fmt.Errorf("register fixture: %d is outside the Classic register map", addr)
		}
	}
	return &f, nil
}

func classicWindows() []classic_modbus.AddressWindow {
	return []classic_modbus.AddressWindow{
		classic_modbus.AddressWindow(register.CLASSIC_LAYOUT.Main),
		classic_modbus.AddressWindow(register.CLASSIC_LAYOUT.Trailer),
	}
}

func main() {
	flags := flag.NewFlagSet("classic-sim", flag.ContinueOnError)
	listen := flags.String("listen", "tcp://0.0.0.0:5020", "listen url")
	registers := flags.String("registers", "", "YAML register fixture")
	debug := flags.BoolP("debug", "d", false, "debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	logger := logging.Bootstrap(os.Stderr, *debug)

	fixture := &Fixture{}
	if *registers != "" {
		f, err := os.Open(*registers)
		if err != nil {
			logger.Error("cannot open fixture", "error", err)
			os.Exit(1)
		}
		fixture, err = LoadFixture(f)
		f.Close()
		if err != nil {
			logger.Error("invalid fixture", "error", err)
			os.Exit(1)
		}
	}

	sim, err := classic_modbus.NewSimulator(*listen, classicWindows(), fixture.Registers)
	if err != nil {
		logger.Error("cannot create simulator", "error", err)
		os.Exit(1)
	}
	if err := sim.Start(); err != nil {
		logger.Error("cannot start simulator", "error", err)
		os.Exit(1)
	}
	logger.Info("simulator listening", "url", *listen, "registers", len(fixture.Registers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("stopping", "reads", sim.Reads())
	_ = sim.Stop()
}
