package main

import (
	"fmt"
	"time"

	"github.com/opd-ai/framestream/config"
	"github.com/opd-ai/framestream/metrics"
	"github.com/opd-ai/framestream/scheduler"
	"github.com/opd-ai/framestream/status"
	"github.com/opd-ai/framestream/streamer"
	"github.com/opd-ai/framestream/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func streamerCmd(root *rootOptions) *cobra.Command {
	var (
		remote         string
		listen         string
		feedbackListen string
		maxPackets     uint64
		packetSize     int
		interval       time.Duration
		fill           string
		duration       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "streamer",
		Short: "Send frames to a client and obey its feedback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, func(cfg *config.Config, flags *pflag.FlagSet) error {
				if flags.Changed("remote") {
					cfg.Streamer.Remote = remote
				}
				if flags.Changed("listen") {
					cfg.Streamer.Listen = listen
				}
				if flags.Changed("feedback-listen") {
					cfg.Streamer.FeedbackListen = feedbackListen
				}
				if flags.Changed("max-packets") {
					cfg.Streamer.MaxPackets = maxPackets
				}
				if flags.Changed("packet-size") {
					cfg.Streamer.PacketSize = packetSize
				}
				if flags.Changed("interval") {
					cfg.Streamer.Interval = interval
				}
				if flags.Changed("fill") {
					cfg.Streamer.Fill = fill
				}
				return nil
			})
			if err != nil {
				return err
			}
			return runStreamer(cmd, cfg, duration)
		},
	}

	f := cmd.Flags()
	f.StringVar(&remote, "remote", "", "Client data endpoint (host:port)")
	f.StringVar(&listen, "listen", "", "Local data socket (host:port)")
	f.StringVar(&feedbackListen, "feedback-listen", "", "Socket receiving PAUSE/RESUME (host:port)")
	f.Uint64Var(&maxPackets, "max-packets", 0, "Send budget in packets")
	f.IntVar(&packetSize, "packet-size", 0, "Payload bytes per packet")
	f.DurationVar(&interval, "interval", 0, "Time between bursts")
	f.StringVar(&fill, "fill", "", "Payload fill pattern")
	f.DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")

	return cmd
}

func runStreamer(cmd *cobra.Command, cfg *config.Config, duration time.Duration) error {
	opts, err := cfg.StreamerOptions()
	if err != nil {
		return err
	}
	listen, err := transport.ParseEndpoint(cfg.Streamer.Listen)
	if err != nil {
		return fmt.Errorf("streamer.listen: %w", err)
	}
	feedbackListen, err := transport.ParseEndpoint(cfg.Streamer.FeedbackListen)
	if err != nil {
		return fmt.Errorf("streamer.feedback_listen: %w", err)
	}

	loop := scheduler.NewLoop(nil)
	m := metrics.New(nil)

	data, err := transport.NewUDPTransportWithOptions(listen, loop, cfg.ParseOptions())
	if err != nil {
		return err
	}
	feedback, err := transport.NewUDPTransportWithOptions(feedbackListen, loop, cfg.ParseOptions())
	if err != nil {
		_ = data.Close()
		return err
	}

	s, err := streamer.New(opts, loop, data, feedback, m)
	if err != nil {
		_ = data.Close()
		_ = feedback.Close()
		return err
	}

	sources := map[string]status.SnapshotFunc{
		"streamer": func() any { return s.Stats() },
	}
	return runLoop(cmd.Context(), cfg, loop, m, sources, duration, s.Start, s.Stop)
}
