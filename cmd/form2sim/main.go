// Command form2sim runs a simulated Form 2 printer that answers status
// queries on the printer port. It is useful for trying form2idle without
// hardware:
//
//	form2sim -listen 127.0.0.1:3535 -remaining 2m &
//	form2idle -w -v 127.0.0.1:3535
//
// With -registry the simulator advertises itself in etcd under -name so
// form2idle can find it by name.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"form2idle/config"
	"form2idle/logging"
	"form2idle/message"
	"form2idle/registry"
	"form2idle/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("form2sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a TOML config file")
	listen := fs.String("listen", "", "listen address (default from config, \":35\")")
	advertise := fs.String("advertise", "", "address published in the registry")
	name := fs.String("name", "", "printer name published in the registry")
	remaining := fs.Duration("remaining", 0, "length of the simulated print")
	idle := fs.Bool("idle", false, "report no print running")
	endpoints := fs.String("registry", "", "comma-separated etcd endpoints")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error, off)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg := config.Default()
	cfg.Logging.Development = true
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(stderr, "form2sim:", err)
			return 2
		}
	}

	// Flags override the file
	sim := cfg.Simulator
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			sim.Listen = *listen
		case "advertise":
			sim.Advertise = *advertise
		case "name":
			sim.Name = *name
		case "remaining":
			sim.Remaining.Duration = *remaining
		case "idle":
			sim.Printing = !*idle
		case "registry":
			cfg.Registry.Endpoints = strings.Split(*endpoints, ",")
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		fmt.Fprintln(stderr, "form2sim:", err)
		return 2
	}
	defer logger.Sync()

	if err := serve(ctx, cfg, sim, logger); err != nil {
		logger.Error("simulator stopped", zap.Error(err))
		return 1
	}
	return 0
}

// serve runs the simulated printer until ctx is done.
func serve(ctx context.Context, cfg config.Config, sim config.SimulatorConfig, logger *zap.Logger) error {
	var src server.StatusSource = server.Static(server.PrinterStatus{Printing: false})
	if sim.Printing {
		src = server.NewCountdown(sim.Remaining.Duration)
	}

	opts := []server.Option{server.WithLogger(logger)}
	if len(cfg.Registry.Endpoints) > 0 {
		if sim.Advertise == "" {
			return errors.New("registry needs an advertise address")
		}
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout.Duration, logger)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts,
			server.WithRegistry(reg, sim.Name, sim.Advertise),
			server.WithRegistryTimeout(cfg.Registry.DialTimeout.Duration),
		)
	}

	svr := server.NewServer(opts...)
	svr.Handle(message.MethodGetStatus, server.StatusHandler(src))
	if err := svr.Listen("tcp", sim.Listen); err != nil {
		return err
	}
	logger.Info("simulating printer",
		zap.String("name", sim.Name),
		zap.Bool("printing", sim.Printing),
		zap.Duration("remaining", sim.Remaining.Duration),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- svr.Serve() }()

	select {
	case err := <-errCh:
		svr.Shutdown(shutdownTimeout)
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := svr.Shutdown(shutdownTimeout); err != nil {
			return err
		}
		return <-errCh
	}
}
