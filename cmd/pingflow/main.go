package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pingflow/internal/api"
	"pingflow/internal/config"
	"pingflow/internal/invoker"
	"pingflow/internal/localcron"
	"pingflow/internal/metrics"
	"pingflow/internal/scheduler"
	"pingflow/internal/store"
	"pingflow/internal/tasks"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config file")
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		driver  = flag.String("driver", "", "database driver: sqlite, postgres or memory (overrides config)")
		dsn     = flag.String("db", "", "database DSN or SQLite path (overrides config)")
		debug   = flag.Bool("debug", false, "enable pprof endpoints")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	cfg.Debug = cfg.Debug || *debug
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setupLogging(cfg.Log)

	st, closeStore := openStore(cfg.Database)
	defer closeStore()

	timeout, _ := cfg.InvokerTimeout()
	inv := invoker.New(invoker.Options{
		Timeout:       timeout,
		UserAgent:     cfg.Invoker.UserAgent,
		RatePerSecond: cfg.Invoker.RatePerSecond,
		Burst:         cfg.Invoker.Burst,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sched := scheduler.NewService(st, inv, scheduler.Options{
		MaxConcurrency: cfg.Scheduler.MaxConcurrency,
		Metrics:        metrics.New(reg),
	})

	if cfg.Cron.Secret == "" {
		log.Warn().Msg("no cron secret configured; /api/cron will reject every call")
	}

	var driverLoop *localcron.Driver
	if cfg.Cron.LocalSchedule != "" {
		driverLoop, err = localcron.New(cfg.Cron.LocalSchedule, sched)
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Cron.LocalSchedule).Msg("invalid local cron schedule")
		}
		driverLoop.Start()
	}

	handler := api.NewServer(api.Config{
		Tasks:      tasks.NewService(st, nil),
		Runner:     sched,
		CronSecret: cfg.Cron.Secret,
		Gatherer:   reg,
		Debug:      cfg.Debug,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("driver", cfg.Database.Driver).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	if driverLoop != nil {
		driverLoop.Stop(ctxTimeout)
	}
	_ = srv.Shutdown(ctxTimeout)
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

func openStore(cfg config.DatabaseConfig) (store.Store, func()) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("using in-memory task store; tasks are lost on restart")
		return store.NewMemory(), func() {}
	}
	db, err := store.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Driver).Msg("open db")
	}
	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	return store.NewSQL(db), func() { db.Close() }
}
