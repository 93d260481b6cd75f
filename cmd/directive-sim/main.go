package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/metrics"
	"github.com/goliatone/go-directive/sim"
)

type Globals struct {
	LogLevel  string `help:"Log level." default:"info" enum:"trace,debug,info,warn,error"`
	LogFormat string `help:"Log format." default:"text" enum:"text,json"`
}

type CLI struct {
	Globals

	Run      RunCmd      `cmd:"" help:"Play a session script against the sequencer and print the trace."`
	Validate ValidateCmd `cmd:"" help:"Check session scripts without running them."`
}

type RunCmd struct {
	Script      string        `arg:"" type:"existingfile" help:"Path to a YAML session script."`
	Output      string        `short:"o" default:"yaml" enum:"yaml,json" help:"Report format."`
	MetricsAddr string        `help:"Serve /metrics, /stats and /healthz on this address."`
	Hold        time.Duration `help:"Keep the metrics endpoint up this long after the run." default:"0s"`
	Exceptions  string        `help:"Log exceptions for directive types matching this pattern." default:"#"`
}

func (c *RunCmd) Run(g *Globals, out io.Writer) error {
	logger := newLogger(g)

	script, err := sim.LoadFile(c.Script)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	prom := metrics.NewPrometheus(reg, "")

	var srv *statsServer
	if c.MetricsAddr != "" {
		srv = newStatsServer(c.MetricsAddr, reg, logger)
		if err := srv.start(); err != nil {
			return err
		}
		defer srv.stop()
	}

	logger.Info("running script %q from %s", script.Name, c.Script)
	report, err := sim.Run(ctx, script,
		sim.WithLogger(logger),
		sim.WithMetrics(prom),
		sim.WithExceptionRoute(c.Exceptions, directive.ExceptionReporterFunc(
			func(t directive.NamespaceAndName, messageID, reason string) {
				logger.Warn("exception %s[%s]: %s", t, messageID, reason)
			},
		)),
	)
	if err != nil {
		return err
	}
	if srv != nil {
		srv.setReport(report)
	}

	if err := writeReport(out, c.Output, report); err != nil {
		return err
	}

	if srv != nil && c.Hold > 0 {
		logger.Info("holding metrics endpoint on %s for %s", c.MetricsAddr, c.Hold)
		select {
		case <-time.After(c.Hold):
		case <-ctx.Done():
		}
	}
	return nil
}

type ValidateCmd struct {
	Scripts []string `arg:"" type:"existingfile" help:"Scripts to check."`
}

func (c *ValidateCmd) Run(g *Globals, out io.Writer) error {
	logger := newLogger(g)
	failed := 0
	for _, path := range c.Scripts {
		if _, err := sim.LoadFile(path); err != nil {
			failed++
			logger.Error("%s: %v", path, err)
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts are invalid", failed, len(c.Scripts))
	}
	return nil
}

func newLogger(g *Globals) directive.Logger {
	var base glog.Logger
	if g.LogFormat == "json" {
		base = glog.NewLogger(
			glog.WithWriter(os.Stderr),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(g.LogLevel),
		)
	} else {
		base = glog.NewLogger(
			glog.WithWriter(os.Stderr),
			glog.WithLevel(g.LogLevel),
		)
	}
	return directive.NewGlogLogger(base)
}

func writeReport(out io.Writer, format string, report *sim.Report) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("directive-sim"),
		kong.Description("Replay scripted directive sessions against the directive sequencer."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
