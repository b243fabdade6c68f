package audio

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// NullDevice simulates an output device. Buffers "play" for their real
// duration scaled by the delay factor and nothing is heard.
type NullDevice struct {
	*deviceCore

	delayFactor atomic.Uint64 // float64 bits
	played      atomic.Int64
}

// NewNullDevice creates a simulated device. A delay factor of 0 completes
// buffers immediately; 1.0 is real time.
func NewNullDevice(delayFactor float64) *NullDevice {
	n := &NullDevice{}
	n.SetDelayFactor(delayFactor)
	n.deviceCore = newDeviceCore("null", n, nil)
	return n
}

// SetDelayFactor changes the speed of simulated playback.
func (n *NullDevice) SetDelayFactor(factor float64) {
	if factor < 0 {
		factor = 0
	}
	n.delayFactor.Store(floatBits(factor))
}

// Played returns the number of buffers that ran to completion.
func (n *NullDevice) Played() int64 {
	return n.played.Load()
}

func (n *NullDevice) render(ctx context.Context, s *stream, pcm []byte) error {
	remaining := time.Duration(float64(s.format.Duration(len(pcm))) * floatFrom(n.delayFactor.Load()))

	tick := 5 * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if !s.Paused() {
				remaining -= now.Sub(last)
			}
			last = now
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	n.played.Add(1)
	return nil
}

func floatBits(f float64) uint64 { return math.Float64bits(f) }

func floatFrom(b uint64) float64 { return math.Float64frombits(b) }
