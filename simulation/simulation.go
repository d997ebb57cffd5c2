// Package simulation runs a streamer and a client in one process over a
// simulated lossy network on a virtual clock. Runs with the same
// configuration and seed produce identical reports.
package simulation

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/opd-ai/framestream/client"
	"github.com/opd-ai/framestream/config"
	"github.com/opd-ai/framestream/metrics"
	"github.com/opd-ai/framestream/scheduler"
	"github.com/opd-ai/framestream/streamer"
	"github.com/opd-ai/framestream/transport"
	"github.com/sirupsen/logrus"
)

// Report summarizes a simulated run.
type Report struct {
	Duration     time.Duration      `json:"duration"`
	Streamer     streamer.Stats     `json:"streamer"`
	Client       client.Stats       `json:"client"`
	Network      transport.SimStats `json:"network"`
	PeakReady    int                `json:"peak_ready"`
	LastPlayed   uint32             `json:"last_played"`
	BytesPlayed  uint64             `json:"bytes_played"`
	OutOfOrder   uint64             `json:"out_of_order"`
	PlaybackRate float64            `json:"playback_rate"`
}

// Harness wires one streamer and one client to a simulated network.
type Harness struct {
	Loop     *scheduler.Loop
	Network  *transport.SimNetwork
	Streamer *streamer.Streamer
	Client   *client.Client
	Metrics  *metrics.Metrics

	peakReady   int
	lastPlayed  uint32
	played      bool
	bytesPlayed uint64
	outOfOrder  uint64
}

// New builds a harness from cfg. A nil m records into a private registry.
func New(cfg *config.Config, m *metrics.Metrics) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	loop := scheduler.NewVirtualLoop()
	network, err := transport.NewSimNetwork(loop, cfg.SimNetwork())
	if err != nil {
		return nil, err
	}
	return newHarness(cfg, loop, network, m)
}

// newHarness binds both sides on network. On failure every transport it
// bound is closed again, leaving the network as it found it.
func newHarness(cfg *config.Config, loop *scheduler.Loop, network *transport.SimNetwork, m *metrics.Metrics) (h *Harness, err error) {
	if m == nil {
		m = metrics.New(nil)
	}

	var bound []*transport.SimTransport
	defer func() {
		if err != nil {
			for _, t := range bound {
				_ = t.Close()
			}
		}
	}()

	bind := func(addr string) (*transport.SimTransport, error) {
		ep, err := transport.ParseEndpoint(addr)
		if err != nil {
			return nil, err
		}
		t, err := network.Bind(ep)
		if err != nil {
			return nil, err
		}
		bound = append(bound, t)
		return t, nil
	}

	data, err := bind(cfg.Streamer.Listen)
	if err != nil {
		return nil, fmt.Errorf("streamer data socket: %w", err)
	}
	feedback, err := bind(cfg.Streamer.FeedbackListen)
	if err != nil {
		return nil, fmt.Errorf("streamer feedback socket: %w", err)
	}
	conn, err := bind(cfg.Client.Listen)
	if err != nil {
		return nil, fmt.Errorf("client socket: %w", err)
	}

	sopts, err := cfg.StreamerOptions()
	if err != nil {
		return nil, err
	}
	s, err := streamer.New(sopts, loop, data, feedback, m)
	if err != nil {
		return nil, err
	}

	copts, err := cfg.ClientOptions()
	if err != nil {
		return nil, err
	}
	c, err := client.New(copts, loop, conn, m)
	if err != nil {
		return nil, err
	}

	h = &Harness{
		Loop:     loop,
		Network:  network,
		Streamer: s,
		Client:   c,
		Metrics:  m,
	}
	c.OnPlayback(h.onPlayback)
	return h, nil
}

func (h *Harness) onPlayback(f *client.Frame) {
	if h.played && f.Index <= h.lastPlayed {
		h.outOfOrder++
	}
	h.played = true
	h.lastPlayed = f.Index
	h.bytesPlayed += uint64(f.Size())
}

// Run starts both sides, advances the virtual clock by d, stops both sides
// and reports.
func (h *Harness) Run(d time.Duration) Report {
	h.Streamer.Start()
	h.Client.Start()

	logrus.WithFields(logrus.Fields{
		"function": "Harness.Run",
		"duration": d,
	}).Info("Simulation started")

	// Step in consume-sized slices to track the peak frame buffer.
	step := 10 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		if remaining := d - elapsed; remaining < step {
			step = remaining
		}
		h.Loop.RunFor(step)
		if ready := h.Client.Reassembler().Ready(); ready > h.peakReady {
			h.peakReady = ready
		}
	}

	report := Report{
		Duration:    d,
		Streamer:    h.Streamer.Stats(),
		Client:      h.Client.Stats(),
		Network:     h.Network.Stats(),
		PeakReady:   h.peakReady,
		LastPlayed:  h.lastPlayed,
		BytesPlayed: h.bytesPlayed,
		OutOfOrder:  h.outOfOrder,
	}
	if cycles := report.Client.FramesPlayed + report.Client.Underruns; cycles > 0 {
		report.PlaybackRate = float64(report.Client.FramesPlayed) / float64(cycles)
	}

	_ = h.Streamer.Stop()
	_ = h.Client.Stop()

	logrus.WithFields(logrus.Fields{
		"function":      "Harness.Run",
		"frames_played": report.Client.FramesPlayed,
		"underruns":     report.Client.Underruns,
		"pauses":        report.Streamer.PausesReceived,
		"resumes":       report.Streamer.ResumesReceived,
	}).Info("Simulation finished")

	return report
}

// Run builds a harness from cfg and runs it for cfg.Sim.Duration.
func Run(cfg *config.Config) (Report, error) {
	h, err := New(cfg, nil)
	if err != nil {
		return Report{}, err
	}
	return h.Run(cfg.Sim.Duration), nil
}

// WriteText prints the report as an aligned table.
func (r Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		name  string
		value any
	}{
		{"duration", r.Duration},
		{"packets sent", r.Streamer.Sent},
		{"bursts", r.Streamer.Bursts},
		{"pauses received", r.Streamer.PausesReceived},
		{"resumes received", r.Streamer.ResumesReceived},
		{"network sent", r.Network.Sent},
		{"network dropped", r.Network.Dropped},
		{"network duplicated", r.Network.Duplicated},
		{"packets received", r.Client.PacketsReceived},
		{"frames promoted", r.Client.Reassembly.Promoted},
		{"frames dropped (overflow)", r.Client.Reassembly.DroppedOverflow},
		{"frames dropped (stale)", r.Client.Reassembly.DroppedStale},
		{"frames dropped (stale partial)", r.Client.Reassembly.DroppedStalePartial},
		{"frames dropped (saturated)", r.Client.Reassembly.DroppedSaturated},
		{"frames played", r.Client.FramesPlayed},
		{"underruns", r.Client.Underruns},
		{"playback rate", fmt.Sprintf("%.3f", r.PlaybackRate)},
		{"peak ready frames", r.PeakReady},
		{"bytes played", r.BytesPlayed},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%v\n", row.name, row.value); err != nil {
			return err
		}
	}
	return tw.Flush()
}
