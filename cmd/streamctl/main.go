// Command streamctl runs a framestream streamer, client or in-process
// simulation.
//
// Settings come from defaults, an optional TOML file (--config),
// FRAMESTREAM_* environment variables and finally command-line flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/framestream/config"
	"github.com/opd-ai/framestream/metrics"
	"github.com/opd-ai/framestream/scheduler"
	"github.com/opd-ai/framestream/status"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath    string
	logLevel      string
	logFormat     string
	statusListen  string
	legacyControl bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "streamctl",
		Short: "Adaptive frame streaming over UDP",
		Long: `streamctl paces frames of datagrams from a streamer to a client.

The client reassembles frames, plays one per consume cycle and throttles
the streamer with PAUSE and RESUME signals when its buffer fills or drains.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")
	pf.StringVar(&opts.statusListen, "status-listen", "", "Serve /metrics, /status and /healthz on this address")
	pf.BoolVar(&opts.legacyControl, "legacy-control", false, "Decode reserved sequence values as PAUSE/RESUME")

	rootCmd.AddCommand(
		streamerCmd(opts),
		clientCmd(opts),
		simCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig layers defaults, file, environment and flags, then validates
// and configures logging.
func loadConfig(cmd *cobra.Command, opts *rootOptions, apply func(*config.Config, *pflag.FlagSet) error) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.ApplyEnv(cfg)

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flags.Changed("status-listen") {
		cfg.Status.Listen = opts.statusListen
	}
	if flags.Changed("legacy-control") {
		cfg.LegacyControl = opts.legacyControl
	}
	if apply != nil {
		if err := apply(cfg, flags); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runLoop drives loop in real time until the context ends or duration
// passes, serving status if configured. start runs on the loop first; stop
// runs after the loop has returned.
func runLoop(ctx context.Context, cfg *config.Config, loop *scheduler.Loop, m *metrics.Metrics,
	sources map[string]status.SnapshotFunc, duration time.Duration, start func(), stop func() error,
) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, duration)
		defer cancelTimeout()
	}

	var srv *status.Server
	if cfg.Status.Listen != "" {
		srv = status.New(loop, m.Registry())
		for name, fn := range sources {
			srv.AddSource(name, fn)
		}
		if _, err := srv.Start(cfg.Status.Listen); err != nil {
			_ = stop()
			return err
		}
	}

	loop.Post(start)
	runErr := loop.Run(ctx)

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "runLoop",
				"error":    err.Error(),
			}).Warn("Status server shutdown failed")
		}
	}

	stopErr := stop()
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		runErr = nil
	}
	return errors.Join(runErr, stopErr)
}
