package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/berfenger/midnite-modbusd/internal/classic"
	"github.com/berfenger/midnite-modbusd/internal/logging"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"
)

// printReport writes the datapoints of a snapshot file as JSON.
func printReport(w io.Writer, fs afero.Fs, path string, compact bool) error {
	report, err := classic.LoadReport(fs, path)
	if err != nil {
		return err
	}
	var data []byte
	if compact {
		data, err = json.Marshal(report)
	} else {
		data, err = json.MarshalIndent(report, "", "    ")
	}
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func main() {
	flags := flag.NewFlagSet("midnite-classic-data", flag.ContinueOnError)
	dataFile := flags.StringP("data-file", "d", classic.DEFAULT_DATA_FILE, "published snapshot to read")
	compact := flags.Bool("compact", false, "print the JSON on a single line")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := printReport(os.Stdout, afero.NewOsFs(), *dataFile, *compact); err != nil {
		logging.Bootstrap(os.Stderr, false).Error("cannot read datapoints", "error", err)
		os.Exit(1)
	}
}
