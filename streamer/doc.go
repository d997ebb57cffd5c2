// Package streamer implements the sending side of a frame stream.
//
// A Streamer emits bursts of sequentially numbered data packets on a fixed
// interval. Each burst is one frame of transport.FrameSize packets stamped
// with the loop time. PAUSE and RESUME packets from the client flip it
// between StateSending and StatePaused. While paused, ticks keep their
// cadence but send nothing.
//
//	loop := scheduler.NewVirtualLoop()
//	s, err := streamer.New(streamer.Config{
//		Remote:     transport.MustEndpoint("10.1.2.4:9"),
//		MaxPackets: 100000,
//		PacketSize: 1024,
//		Interval:   time.Second / 90,
//	}, loop, data, feedback, nil)
//	if err != nil {
//		return err
//	}
//	s.Start()
//	loop.RunFor(10 * time.Second)
package streamer
