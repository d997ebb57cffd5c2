package main

import (
	"fmt"
	"time"

	"github.com/opd-ai/framestream/client"
	"github.com/opd-ai/framestream/config"
	"github.com/opd-ai/framestream/metrics"
	"github.com/opd-ai/framestream/scheduler"
	"github.com/opd-ai/framestream/status"
	"github.com/opd-ai/framestream/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func clientCmd(root *rootOptions) *cobra.Command {
	var (
		listen           string
		feedbackRemote   string
		generateInterval time.Duration
		consumeInterval  time.Duration
		capacity         int
		pauseThreshold   int
		resumeThreshold  int
		duration         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Receive and play frames, throttling the streamer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, func(cfg *config.Config, flags *pflag.FlagSet) error {
				if flags.Changed("listen") {
					cfg.Client.Listen = listen
				}
				if flags.Changed("feedback-remote") {
					cfg.Client.FeedbackRemote = feedbackRemote
				}
				if flags.Changed("generate-interval") {
					cfg.Client.GenerateInterval = generateInterval
				}
				if flags.Changed("consume-interval") {
					cfg.Client.ConsumeInterval = consumeInterval
				}
				if flags.Changed("capacity") {
					cfg.Client.FrameBufferCapacity = capacity
				}
				if flags.Changed("pause-threshold") {
					cfg.Client.PauseThreshold = pauseThreshold
				}
				if flags.Changed("resume-threshold") {
					cfg.Client.ResumeThreshold = resumeThreshold
				}
				return nil
			})
			if err != nil {
				return err
			}
			return runClient(cmd, cfg, duration)
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "Local data socket (host:port)")
	f.StringVar(&feedbackRemote, "feedback-remote", "", "Streamer feedback endpoint (host:port)")
	f.DurationVar(&generateInterval, "generate-interval", 0, "Reassembly period")
	f.DurationVar(&consumeInterval, "consume-interval", 0, "Playback period")
	f.IntVar(&capacity, "capacity", 0, "Frame buffer capacity")
	f.IntVar(&pauseThreshold, "pause-threshold", 0, "Send PAUSE above this many ready frames")
	f.IntVar(&resumeThreshold, "resume-threshold", 0, "Send RESUME below this many ready frames")
	f.DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")

	return cmd
}

func runClient(cmd *cobra.Command, cfg *config.Config, duration time.Duration) error {
	opts, err := cfg.ClientOptions()
	if err != nil {
		return err
	}
	listen, err := transport.ParseEndpoint(cfg.Client.Listen)
	if err != nil {
		return fmt.Errorf("client.listen: %w", err)
	}

	loop := scheduler.NewLoop(nil)
	m := metrics.New(nil)

	conn, err := transport.NewUDPTransportWithOptions(listen, loop, cfg.ParseOptions())
	if err != nil {
		return err
	}
	c, err := client.New(opts, loop, conn, m)
	if err != nil {
		_ = conn.Close()
		return err
	}
	c.OnPlayback(func(f *client.Frame) {
		logrus.WithFields(logrus.Fields{
			"function": "playback",
			"frame":    f.Index,
		}).Trace("Frame played")
	})

	sources := map[string]status.SnapshotFunc{
		"client": func() any { return c.Status() },
	}
	err = runLoop(cmd.Context(), cfg, loop, m, sources, duration, c.Start, c.Stop)

	stats := c.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "frames played %d, underruns %d, pauses sent %d, resumes sent %d\n",
		stats.FramesPlayed, stats.Underruns, stats.PausesSent, stats.ResumesSent)
	return err
}
