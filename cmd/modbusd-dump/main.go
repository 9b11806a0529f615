package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/berfenger/midnite-modbusd/pkg/classic_modbus"
	"github.com/goburrow/modbus"
	flag "github.com/spf13/pflag"
)

type dumpOptions struct {
	host    string
	port    uint
	unit    uint8
	start   uint16
	count   uint16
	timeout time.Duration
}

// dump reads one range with an independent Modbus stack and prints it in
// the snapshot line format, to cross check what the daemon decodes.
func dump(w io.Writer, opts dumpOptions) error {
	if opts.start == 0 || opts.count == 0 || opts.count > classic_modbus.MAX_READ_COUNT {
		return fmt.Errorf("start must be >= 1 and count within 1..%d", classic_modbus.MAX_READ_COUNT)
	}

	handler := modbus.NewTCPClientHandler(net.JoinHostPort(opts.host, strconv.FormatUint(uint64(opts.port), 10)))
	handler.Timeout = opts.timeout
	handler.SlaveId = opts.unit
	if err := handler.Connect(); err != nil {
		return err
	}
	defer handler.Close()

	client := modbus.NewClient(handler)
	results, err := client.ReadHoldingRegisters(opts.start-1, opts.count)
	if err != nil {
		return err
	}
	if len(results) != int(opts.count)*2 {
		return fmt.Errorf("expected %d bytes, got %d", int(opts.count)*2, len(results))
	}
	for i := 0; i < int(opts.count); i++ {
		fmt.Fprintf(w, "%d:%d\n", int(opts.start)+i, binary.BigEndian.Uint16(results[i*2:]))
	}
	return nil
}

func main() {
	flags := flag.NewFlagSet("modbusd-dump", flag.ContinueOnError)
	host := flags.String("host", "", "device address")
	port := flags.Uint("port", 502, "device port")
	unit := flags.Uint8("unit", classic_modbus.DEFAULT_UNIT_ID, "unit id")
	start := flags.Uint16("start", 4101, "first register, one-based")
	count := flags.Uint16("count", 50, "number of registers")
	timeout := flags.Duration("timeout", classic_modbus.DEFAULT_TIMEOUT, "connect and read timeout")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if *host == "" {
		fmt.Fprintln(os.Stderr, "--host is required")
		os.Exit(2)
	}

	err := dump(os.Stdout, dumpOptions{
		host:    *host,
		port:    *port,
		unit:    *unit,
		start:   *start,
		count:   *count,
		timeout: *timeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "dump failed:", err)
		os.Exit(1)
	}
}
