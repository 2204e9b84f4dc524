package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/getlantern/geneva/v2"
	"github.com/getlantern/geneva/v2/internal/api"
	"github.com/getlantern/geneva/v2/internal/config"
	"github.com/getlantern/geneva/v2/internal/engine"
	"github.com/getlantern/geneva/v2/internal/intercept"
	"github.com/getlantern/geneva/v2/internal/logger"
	"github.com/getlantern/geneva/v2/internal/metrics"
)

// loadConfig reads the configuration named by --config and applies the command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("strategy") {
		cfg.Strategy = c.String("strategy")
	}
	if c.IsSet("input") {
		cfg.Strategy = ""
		cfg.StrategyFile = c.String("input")
	}
	if c.IsSet("outbound-queue") {
		cfg.Queue.Outbound = uint16(c.Uint("outbound-queue"))
	}
	if c.IsSet("inbound-queue") {
		cfg.Queue.Inbound = uint16(c.Uint("inbound-queue"))
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func interceptCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	text, err := cfg.StrategyText()
	if err != nil {
		return cli.Exit(err, 1)
	}

	strat, err := geneva.NewStrategy(text)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid strategy: %v", err), 1)
	}

	log := logger.FromConfig("geneva", cfg.Log)
	logger.SetDefault(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	eng := engine.New(strat, engine.LoggerOption(log), engine.MetricsOption(m))

	log.Infof("outbound strategy: %s", strat.Outbound)
	log.Infof("inbound strategy: %s", strat.Inbound)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 3)
	running := 0

	if cfg.API != nil && cfg.API.Addr != "" {
		srv, err := api.NewServer(cfg.API.Addr, eng, &api.Options{
			AccessLog:  cfg.API.AccessLog,
			PathPrefix: cfg.API.PathPrefix,
			Logger:     log.WithFields(map[string]any{"kind": "api"}),
			Gatherer:   reg,
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot start API server: %v", err), 1)
		}

		log.Infof("control API listening on %s", srv.Addr())
		running++
		go func() { errc <- srv.Serve(ctx) }()
	}

	if cfg.Metrics != nil && cfg.Metrics.Addr != "" && (cfg.API == nil || cfg.Metrics.Addr != cfg.API.Addr) {
		svc, err := metrics.NewService(cfg.Metrics.Addr, cfg.Metrics.Path, reg)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot start metrics server: %v", err), 1)
		}

		log.Infof("metrics listening on %s", svc.Addr())
		running++
		go func() { errc <- svc.Serve(ctx) }()
	}

	running++
	go func() {
		errc <- intercept.Run(ctx, &intercept.Options{
			Queue:     cfg.Queue,
			Processor: eng,
			Logger:    log.WithFields(map[string]any{"kind": "intercept"}),
			Metrics:   m,
		})
	}()

	// the first component to stop takes the others down with it
	var firstErr error
	for ; running > 0; running-- {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}

	if firstErr != nil {
		return cli.Exit(firstErr, 1)
	}

	return nil
}

func printConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	if err := cfg.Write(c.App.Writer, c.String("format")); err != nil {
		return cli.Exit(err, 1)
	}

	return nil
}
