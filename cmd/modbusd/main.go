package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/berfenger/midnite-modbusd/internal/classic"
	"github.com/berfenger/midnite-modbusd/internal/config"
	"github.com/berfenger/midnite-modbusd/internal/cycle"
	"github.com/berfenger/midnite-modbusd/internal/logging"
	"github.com/berfenger/midnite-modbusd/internal/metrics"
	"github.com/berfenger/midnite-modbusd/internal/mqtt"
	"github.com/berfenger/midnite-modbusd/internal/register"
	"github.com/berfenger/midnite-modbusd/internal/scheduler"
	"github.com/berfenger/midnite-modbusd/internal/server"
	"github.com/berfenger/midnite-modbusd/internal/status"
	"github.com/berfenger/midnite-modbusd/internal/workdir"
	"github.com/berfenger/midnite-modbusd/pkg/classic_modbus"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type options struct {
	configFile string
	debug      int
	logFile    string
	lockFile   string
	workingDir string
}

func main() {
	flags := flag.NewFlagSet("midnite-modbusd", flag.ContinueOnError)
	var opts options
	flags.StringVarP(&opts.configFile, "config", "c", "/etc/midnite-modbusd.conf", "path to the configuration file")
	flags.CountVarP(&opts.debug, "debug", "d", "enable debug logging")
	flags.StringVarP(&opts.logFile, "log-file", "l", "", "also append log entries to this file")
	flags.StringVarP(&opts.lockFile, "lock-file", "k", workdir.DEFAULT_LOCK_FILE, "lock file path, empty to disable")
	flags.StringVarP(&opts.workingDir, "working-dir", "w", workdir.DEFAULT_WORKING_DIR, "working directory")
	showVersion := flags.Bool("version", false, "print the version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if *showVersion {
		fmt.Println(versioninfo.Short())
		os.Exit(0)
	}

	os.Exit(run(opts))
}

func run(opts options) int {
	fs := afero.NewOsFs()
	boot := logging.Bootstrap(os.Stderr, opts.debug > 0)

	workingDir, err := workdir.Resolve(opts.workingDir)
	if err != nil {
		boot.Error("working directory", "error", err)
		return 1
	}

	// load config
	cfg, err := config.Load(viper.New(), fs, opts.configFile, workingDir)
	if err != nil {
		boot.Error("config errors", "error", err)
		return 1
	}
	if opts.debug > 0 {
		cfg.LogLevel = zap.DebugLevel
	}

	// zap logger
	logger, err := logging.New(cfg.LogLevel, opts.logFile)
	if err != nil {
		boot.Error("cannot create logger", "error", err)
		return 1
	}
	defer logger.Sync()
	slog.SetDefault(logging.Slog(logger))

	logger.Info("midnite-modbusd starting", zap.String("version", versioninfo.Short()),
		zap.String("config", opts.configFile))

	if _, err := workdir.Prepare(fs, workingDir, logger); err != nil {
		logger.Fatal("working directory", zap.Error(err))
	}
	if err := cfg.Validate(fs); err != nil {
		logger.Fatal("config invalid", zap.Error(err))
	}
	logger.Info("config ok", zap.Any("config", cfg.Redacted()))

	lock, err := workdir.AcquireLock(fs, opts.lockFile)
	if err != nil {
		logger.Fatal("lock file", zap.Error(err))
	}
	defer lock.Release()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	session := classic_modbus.NewSession(classic_modbus.SessionConfig{
		Host:    cfg.ClassicIp,
		Port:    cfg.ClassicPort,
		UnitId:  cfg.UnitId,
		Timeout: time.Duration(cfg.IOTimeoutMillis) * time.Millisecond,
	}, logger, collector.Instrument())
	defer session.Close()

	interval := time.Duration(cfg.SampleIntervalMillis) * time.Millisecond
	tracker := status.NewTracker(interval)
	tally := classic.NewDailyTally(interval)

	sampleCycle, err := cycle.New(cycle.Config{
		DataDir:    cfg.DataDir,
		WorkingDir: workingDir,
		Watch:      cfg.WatchList,
	}, register.CLASSIC_LAYOUT, session, fs, logger, tracker, collector, tally)
	if err != nil {
		logger.Error("cycle setup", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MQTTEnabled() {
		publisher := mqtt.NewPublisher(cfg, logger)
		startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := publisher.Start(startCtx); err != nil {
			logger.Warn("mqtt broker not reachable yet, retrying in background", zap.Error(err))
		}
		cancel()
		sampleCycle.AddObserver(publisher)
		defer publisher.Stop()
	}

	if cfg.HTTP.Port != 0 {
		srv := server.NewServer(*cfg, tracker, tally, registry, fs)
		done := make(chan bool, 1)
		go gracefulShutdown(ctx, srv, logger, done)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer func() { <-done }()
	}

	trigger, err := scheduler.NewAlignedTrigger(interval)
	if err != nil {
		logger.Error("scheduler", zap.Error(err))
		stop()
		return 1
	}
	logger.Info("starting",
		zap.String("classic", fmt.Sprintf("%s:%d", cfg.ClassicIp, cfg.ClassicPort)),
		zap.Duration("interval", interval))

	err = scheduler.New(trigger, logger).Run(ctx, sampleCycle.Job())
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return 0
	}
	logger.Error("polling stopped", zap.Error(err))
	stop()
	return 1
}

func gracefulShutdown(ctx context.Context, apiServer *http.Server, logger *zap.Logger, done chan bool) {
	<-ctx.Done()

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	done <- true
}
