package client

import (
	"github.com/opd-ai/framestream/transport"
	"github.com/sirupsen/logrus"
)

// ConsumeResult describes one consume cycle.
type ConsumeResult struct {
	// Frame is the index that was due this cycle.
	Frame uint32
	// Played reports whether that frame was ready.
	Played bool
	// Remaining is the frame buffer size after removal.
	Remaining int
	// Signal is KindPause or KindResume when feedback was sent, zero otherwise.
	Signal transport.Kind
}

// Consume plays the current frame if it is ready, advances the current frame
// by one and sends at most one feedback signal based on what remains.
func (c *Client) Consume() ConsumeResult {
	res := ConsumeResult{Frame: c.curFrame}

	if frame, ok := c.reasm.Take(c.curFrame); ok {
		res.Played = true
		c.played++
		c.metrics.FramesPlayed.Inc()
		if c.playback != nil {
			c.playback(frame)
		}
	} else {
		c.underruns++
		c.metrics.Underruns.Inc()
	}

	c.curFrame++
	c.metrics.CurrentFrame.Set(float64(c.curFrame))

	res.Remaining = c.reasm.Ready()
	c.metrics.ReadyFrames.Set(float64(res.Remaining))

	switch {
	case res.Remaining > c.cfg.PauseThreshold:
		res.Signal = transport.KindPause
	case res.Remaining < c.cfg.ResumeThreshold:
		res.Signal = transport.KindResume
	default:
		return res
	}
	c.sendFeedback(res.Signal, res.Remaining)
	return res
}

func (c *Client) sendFeedback(kind transport.Kind, remaining int) {
	packet := transport.NewControlPacket(kind, c.loop.Timestamp())
	if err := c.conn.Send(packet, c.cfg.FeedbackRemote); err != nil {
		c.sendErrors++
		c.metrics.SendErrors.WithLabelValues(kind.String()).Inc()
		c.log.WithFields(logrus.Fields{
			"function": "sendFeedback",
			"signal":   kind.String(),
			"remote":   c.cfg.FeedbackRemote.String(),
			"error":    err.Error(),
		}).Warn("Failed to send feedback")
		return
	}

	if kind == transport.KindPause {
		c.pauses++
	} else {
		c.resumes++
	}
	c.metrics.ControlSent.WithLabelValues(kind.String()).Inc()

	c.log.WithFields(logrus.Fields{
		"function":  "sendFeedback",
		"signal":    kind.String(),
		"remaining": remaining,
	}).Debug("Feedback sent")
}
