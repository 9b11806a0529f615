package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/classic"
	"github.com/berfenger/midnite-modbusd/internal/config"
	"github.com/berfenger/midnite-modbusd/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

type Server struct {
	port     uint
	httpLog  bool
	tracker  *status.Tracker
	tally    *classic.DailyTally
	gatherer prometheus.Gatherer
	fs       afero.Fs
	dataDir  string
}

func NewServer(cfg config.Config, tracker *status.Tracker, tally *classic.DailyTally, gatherer prometheus.Gatherer, fs afero.Fs) *http.Server {
	NewServer := &Server{
		port:     cfg.HTTP.Port,
		httpLog:  cfg.HTTP.Log,
		tracker:  tracker,
		tally:    tally,
		gatherer: gatherer,
		fs:       fs,
		dataDir:  cfg.DataDir,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
