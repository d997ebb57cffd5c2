package main

import (
	"encoding/json"
	"time"

	"github.com/opd-ai/framestream/config"
	"github.com/opd-ai/framestream/simulation"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func simCmd(root *rootOptions) *cobra.Command {
	var (
		duration      time.Duration
		lossRate      float64
		duplicateRate float64
		minDelay      time.Duration
		maxDelay      time.Duration
		seed          int64
		packetSize    int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a streamer and a client over a simulated lossy network",
		Long: `sim runs both sides in one process on a virtual clock, so a ten second
scenario completes in a fraction of that. The same seed reproduces the
same report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, func(cfg *config.Config, flags *pflag.FlagSet) error {
				if flags.Changed("duration") {
					cfg.Sim.Duration = duration
				}
				if flags.Changed("loss") {
					cfg.Sim.LossRate = lossRate
				}
				if flags.Changed("duplicate") {
					cfg.Sim.DuplicateRate = duplicateRate
				}
				if flags.Changed("min-delay") {
					cfg.Sim.MinDelay = minDelay
				}
				if flags.Changed("max-delay") {
					cfg.Sim.MaxDelay = maxDelay
				}
				if flags.Changed("seed") {
					cfg.Sim.Seed = seed
				}
				if flags.Changed("packet-size") {
					cfg.Streamer.PacketSize = packetSize
				}
				return nil
			})
			if err != nil {
				return err
			}

			report, err := simulation.Run(cfg)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.DurationVar(&duration, "duration", 0, "Simulated time to run")
	f.Float64Var(&lossRate, "loss", 0, "Datagram loss probability [0,1]")
	f.Float64Var(&duplicateRate, "duplicate", 0, "Datagram duplication probability [0,1]")
	f.DurationVar(&minDelay, "min-delay", 0, "Minimum one-way delay")
	f.DurationVar(&maxDelay, "max-delay", 0, "Maximum one-way delay")
	f.Int64Var(&seed, "seed", 0, "Random seed")
	f.IntVar(&packetSize, "packet-size", 0, "Payload bytes per packet")
	f.BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}
