// Package client implements the receiving side of a frame stream.
//
// Data packets are bucketed by frame (sequence / transport.FrameSize) in a
// packet buffer that never holds more than the configured number of partial
// frames; opening one more evicts the lowest. A generate cycle moves complete frames into a bounded frame
// buffer, lowest index first. A consume cycle plays the current frame,
// advances the current frame by one and tells the streamer to PAUSE when
// the frame buffer is nearly full or to RESUME when it is nearly empty.
//
// The two cycles run on independent intervals on the same scheduler.Loop,
// so the buffers need no locking.
package client
