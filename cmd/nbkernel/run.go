package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/nbkernel/kernel"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

type runFlags struct {
	connectionFile string
	configFile     string
	backend        string
	username       string
	historyPath    string
	verbose        bool
	logFormat      string
	metricsAddr    string
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve a notebook session on the channels of a connection file",
		Long: `Bind the channels described by --connection-file and serve
requests until the front-end sends shutdown_request or the process
receives SIGTERM. SIGINT interrupts the running execution.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.ErrOrStderr(), f)
		},
	}

	cmd.Flags().StringVarP(&f.connectionFile, "connection-file", "f", "", "Path to the connection file written by the front-end (required)")
	cmd.Flags().StringVar(&f.configFile, "config", "", "Path to a kernel config file (.json, .yaml or .toml)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "Interpreter backend (overrides config)")
	cmd.Flags().StringVar(&f.username, "username", "", "Username placed in message headers (overrides config)")
	cmd.Flags().StringVar(&f.historyPath, "history", "", "History directory (overrides config)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Enable verbose logging to stderr")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	cmd.MarkFlagRequired("connection-file")

	return cmd
}

func run(ctx context.Context, stderr io.Writer, f runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := transport.LoadConnectionFile(f.connectionFile)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger, err := newLogger(stderr, f.verbose, f.logFormat)
	if err != nil {
		return err
	}

	r, err := registry()
	if err != nil {
		return err
	}
	opts := []kernel.Option{
		kernel.WithLogger(logger),
		kernel.WithRegistry(r),
	}

	var reg *prometheus.Registry
	if f.metricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, kernel.WithMetrics(reg))
	}

	k, err := kernel.New(cfg, conn, opts...)
	if err != nil {
		return fmt.Errorf("failed to create kernel: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := k.Serve(gctx)
		stop()
		return err
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-interrupts:
				if !k.Interrupt() {
					logger.Info("interrupt with nothing running")
				}
			}
		}
	})
	if reg != nil {
		g.Go(func() error {
			return serveMetrics(gctx, f.metricsAddr, reg, logger)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if k.RestartRequested() {
		logger.Info("front-end requested a restart")
	}
	return nil
}

func loadConfig(f runFlags) (*kernel.Config, error) {
	var cfg *kernel.Config
	if f.configFile != "" {
		loaded, err := kernel.LoadConfig(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := kernel.DefaultConfig()
		cfg = &def
	}

	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.username != "" {
		cfg.Session.Username = f.username
	}
	if f.historyPath != "" {
		cfg.History.Path = f.historyPath
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
