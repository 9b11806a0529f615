package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/classic"
	"github.com/berfenger/midnite-modbusd/internal/output"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type SnapshotResponse struct {
	Timestamp string            `json:"timestamp"`
	Registers map[uint16]uint16 `json:"registers"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.GET("/snapshot", s.SnapshotHandler)
	e.GET("/datapoints", s.DatapointsHandler)
	e.GET("/datapoints/daily", s.DailyHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	if s.tracker.Healthy() {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.tracker.State())
}

// SnapshotHandler serves the last published snapshot, never the one being
// written.
func (s *Server) SnapshotHandler(c echo.Context) error {
	snap, err := s.readSnapshot()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SnapshotResponse{
		Timestamp: snap.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Registers: snap.Registers,
	})
}

// DatapointsHandler serves the named values of the last published snapshot.
func (s *Server) DatapointsHandler(c echo.Context) error {
	snap, err := s.readSnapshot()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, classic.NewReport(snap))
}

func (s *Server) DailyHandler(c echo.Context) error {
	if s.tally == nil {
		return echo.NewHTTPError(http.StatusNotFound, "daily aggregates disabled")
	}
	return c.JSON(http.StatusOK, s.tally.Today(time.Now()))
}

func (s *Server) readSnapshot() (*output.Snapshot, error) {
	snap, err := output.ReadSnapshot(s.fs, s.dataDir)
	if errors.Is(err, output.ErrNoSnapshot) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no snapshot published yet")
	}
	return snap, err
}
