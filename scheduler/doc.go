// Package scheduler provides the single-threaded cooperative event loop that
// drives the streamer and the client.
//
// All periodic work (the streamer's send tick, the client's generate and
// consume ticks) and every datagram arrival callback runs on one goroutine.
// Buffers owned by those components are only touched from loop callbacks and
// need no locking.
//
// # Clocks
//
// A virtual loop advances time only when told to, which makes tests and the
// simulation command deterministic:
//
//	loop := scheduler.NewVirtualLoop()
//	task := loop.Periodic(50*time.Millisecond, func() bool {
//	    generate()
//	    return true
//	})
//	task.Start(0)
//	loop.RunFor(time.Second) // fires 20 times
//
// A real-time loop sleeps until the next event is due:
//
//	loop := scheduler.NewLoop(nil)
//	go socketReader(func(pkt []byte) { loop.Post(func() { handle(pkt) }) })
//	err := loop.Run(ctx)
//
// # Periodic Tasks
//
// Periodic returns a Task that re-arms itself after each firing for as long as
// its callback returns true. Each task keeps its own cadence; a slow task never
// delays the schedule of another beyond the time it occupies the loop.
package scheduler
