//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// OtoDevice plays through the system output with oto/v3. oto allows a single
// context per process, so every handle opened on the device shares its format.
type OtoDevice struct {
	*deviceCore

	context *oto.Context
	format  Format
}

// NewOtoDevice creates the oto context for format, retrying the way the
// platform needs.
func NewOtoDevice(format Format, platform *PlatformInfo) (*OtoDevice, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("invalid audio format: %+v", format)
	}
	if platform == nil {
		platform = DetectPlatform()
	}

	maxRetries, retryDelay := platform.RetryPolicy()

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			log.Debug("Retrying audio context initialization", "attempt", i+1, "of", maxRetries)
			time.Sleep(retryDelay)
		}

		ctx, err := newOtoContext(format, platform)
		if err != nil {
			lastErr = err
			log.Debug("Audio context initialization failed", "attempt", i+1, "error", err)
			continue
		}

		d := &OtoDevice{context: ctx, format: format}
		d.deviceCore = newDeviceCore("oto", d, d.accept)
		log.Info("Audio output initialized", "platform", platform.OS, "subsystem", platform.AudioSubsystem, "attempt", i+1)
		return d, nil
	}

	return nil, fmt.Errorf("failed to initialize audio context after %d attempts: %w", maxRetries, lastErr)
}

func newOtoContext(format Format, platform *PlatformInfo) (*oto.Context, error) {
	options := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   platform.BufferSize(),
	}
	if format.BitsPerSample == 8 {
		options.Format = oto.FormatUnsignedInt8
	}

	log.Debug("Initializing audio context",
		"sample_rate", options.SampleRate,
		"channels", options.ChannelCount,
		"buffer_size", options.BufferSize)

	ctx, readyChan, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	readyTimeout := platform.ReadyTimeout()
	select {
	case <-readyChan:
		return ctx, nil
	case <-time.After(readyTimeout):
		// oto v3 contexts cannot be closed; it is left to the GC
		return nil, fmt.Errorf("audio context initialization timeout after %v", readyTimeout)
	}
}

// Format returns the format every handle on this device must use.
func (d *OtoDevice) Format() Format {
	return d.format
}

func (d *OtoDevice) accept(f Format) Status {
	if f != d.format {
		return StatusBadFormat
	}
	return StatusOK
}

func (d *OtoDevice) render(ctx context.Context, s *stream, pcm []byte) error {
	// The player reads from pcm directly; pcm must stay referenced until done.
	player := d.context.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()

	player.SetVolume(s.Volume())
	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
			player.SetVolume(s.Volume())
			switch {
			case s.Paused() && !paused:
				player.Pause()
				paused = true
			case !s.Paused() && paused:
				player.Play()
				paused = false
			case !paused && !player.IsPlaying():
				if err := player.Err(); err != nil {
					return err
				}
				return nil
			}
		}
	}
}
