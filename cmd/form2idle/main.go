// Command form2idle checks whether a Form 2 printer is idle.
//
// It exits 0 when no print is running and 1 while one is. With -w it keeps
// polling until the print finishes. Typical use is chaining a job after a
// print:
//
//	form2idle -w -v lab-form2 && notify-send "print done"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"form2idle/client"
	"form2idle/config"
	"form2idle/loadbalance"
	"form2idle/logging"
	"form2idle/message"
	"form2idle/middleware"
	"form2idle/registry"
	"form2idle/transport"
)

// Exit codes.
const (
	exitIdle  = 0 // No print running
	exitBusy  = 1 // Printing, or interrupted while waiting
	exitUsage = 2 // Bad flags or config
	exitError = 3 // Printer unreachable or protocol failure
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cliOptions struct {
	verbose  bool
	wait     bool
	eta      bool
	host     string
	config   string
	registry string
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("form2idle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: form2idle [flags] HOST")
		fmt.Fprintln(stderr, "\nCheck if a Form 2 printer is idle. HOST is a printer name from the")
		fmt.Fprintln(stderr, "config or registry, or a host name / IP address (port 35 by default).")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}
	fs.BoolVar(&o.verbose, "v", false, "print current time and remaining print time")
	fs.BoolVar(&o.wait, "w", false, "wait for print to finish")
	fs.BoolVar(&o.eta, "e", false, "print remaining print time as estimated time of arrival")
	fs.StringVar(&o.config, "config", "", "path to a TOML config file")
	fs.StringVar(&o.registry, "registry", "", "comma-separated etcd endpoints for printer discovery")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error, off)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, errors.New("exactly one HOST is required")
	}
	o.host = fs.Arg(0)
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitIdle
		}
		return exitUsage
	}

	cfg := config.Default()
	if opts.config != "" {
		if cfg, err = config.Load(opts.config); err != nil {
			fmt.Fprintln(stderr, "form2idle:", err)
			return exitUsage
		}
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.registry != "" {
		cfg.Registry.Endpoints = strings.Split(opts.registry, ",")
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		fmt.Fprintln(stderr, "form2idle:", err)
		return exitUsage
	}
	defer logger.Sync()

	addr, err := resolve(ctx, cfg, opts.host, logger)
	if err != nil {
		logger.Error("resolve printer", zap.String("printer", opts.host), zap.Error(err))
		return exitError
	}

	code, err := poll(ctx, addr, cfg.Poll, opts, stdout, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return exitBusy
		}
		logger.Error("status query failed", zap.String("addr", addr), zap.Error(err))
		fmt.Fprintln(stderr, "form2idle:", err)
		return exitError
	}
	return code
}

// resolve looks the printer up in the config file, then in etcd. IP
// addresses skip the lookup. The etcd lookup is bounded by the registry dial
// timeout so an unreachable cluster fails the run instead of hanging it.
func resolve(ctx context.Context, cfg config.Config, name string, logger *zap.Logger) (string, error) {
	if isIPAddress(name) {
		return transport.Address(name), nil
	}

	bal, err := loadbalance.ByName(cfg.Registry.Balancer)
	if err != nil {
		return "", err
	}

	static := registry.NewStaticRegistry()
	for _, p := range cfg.Printers {
		inst := registry.PrinterInstance{
			Addr:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
			Weight: p.Weight,
			Model:  p.Model,
		}
		if err := static.Register(ctx, p.Name, inst, 0); err != nil {
			return "", err
		}
	}
	regs := []registry.Registry{static}

	if len(cfg.Registry.Endpoints) > 0 {
		etcd, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout.Duration, logger)
		if err != nil {
			return "", err
		}
		defer etcd.Close()
		regs = append(regs, etcd)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, cfg.Registry.DialTimeout.Duration)
	defer cancel()
	addr, err := client.Resolve(lookupCtx, name, bal, regs...)
	if err != nil {
		return "", err
	}
	logger.Debug("resolved printer", zap.String("printer", name), zap.String("addr", addr), zap.String("balancer", bal.Name()))
	return addr, nil
}

// isIPAddress reports whether host is an IP literal, with or without a port.
func isIPAddress(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return net.ParseIP(host) != nil
}

// poll queries the printer once, or until the print ends with -w. Calls are
// spaced by the poll interval; the first one goes out immediately. The time
// shown with -v is taken when the query is sent, after any wait.
func poll(ctx context.Context, addr string, pc config.PollConfig, opts cliOptions, stdout io.Writer, logger *zap.Logger) (int, error) {
	var sent time.Time
	stamp := func(next middleware.CallFunc) middleware.CallFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			sent = time.Now()
			return next(ctx, req)
		}
	}

	code := exitBusy
	err := client.With(ctx, addr, func(c *client.Client) error {
		for {
			remaining, err := c.PrintTimeRemaining(ctx)
			if err != nil {
				return err
			}
			if remaining <= 0 {
				code = exitIdle
				return nil
			}
			if opts.verbose {
				fmt.Fprintln(stdout, formatProgress(sent, remaining, opts.eta))
			}
			if !opts.wait {
				return nil
			}
		}
	},
		client.WithLogger(logger),
		client.WithMiddleware(
			middleware.Logging(logger),
			middleware.RateLimit(rate.Every(pc.Interval.Duration), 1),
			stamp,
			middleware.Timeout(pc.CallTimeout.Duration),
		),
	)
	return code, err
}
