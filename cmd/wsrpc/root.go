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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wsrpc/internal/config"
	"github.com/rickgao/wsrpc/pkg/wsrpc"
)

var globalFlags struct {
	ConfigPath    string
	URL           string
	MetricsListen string
	LogLevel      string
	Timeout       time.Duration
}

var rootCmd = &cobra.Command{
	Use:           "wsrpc",
	Short:         "JSON-RPC over WebSocket client",
	Long:          "wsrpc sends calls and follows subscriptions on one multiplexed WebSocket connection.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.URL, "url", "", "node WebSocket URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&globalFlags.Timeout, "timeout", 30*time.Second, "connect and call timeout")

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if globalFlags.ConfigPath != "" {
		loaded, err := config.LoadWithDefaults(globalFlags.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if globalFlags.URL != "" {
		cfg.Endpoint.URL = globalFlags.URL
	}
	if globalFlags.MetricsListen != "" {
		cfg.Metrics.Listen = globalFlags.MetricsListen
	}
	if globalFlags.LogLevel != "" {
		cfg.Log.Level = globalFlags.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// run connects a client and hands it to fn with the command's logger. It stops on SIGINT/SIGTERM and
// serves metrics alongside when configured.
func run(cmd *cobra.Command, fn func(ctx context.Context, client *wsrpc.Client, logger *slog.Logger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := append(wsrpc.FromConfig(cfg), wsrpc.WithLogger(logger))
	reg := prometheus.NewRegistry()
	if cfg.Metrics.Listen != "" {
		opts = append(opts, wsrpc.WithPrometheus(reg, cfg.Metrics.Namespace))
	}

	client, err := wsrpc.New(opts...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}

		g.Go(func() error {
			logger.Info("starting metrics server", "addr", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// Ends the metrics server once fn returns.
		defer stop()
		defer client.Close()

		connectCtx, cancel := context.WithTimeout(ctx, globalFlags.Timeout)
		defer cancel()
		if err := client.Connect(connectCtx); err != nil {
			return err
		}
		return fn(ctx, client, logger)
	})

	return g.Wait()
}
