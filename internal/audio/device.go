package audio

import (
	"fmt"
	"time"
)

// Handle identifies an open output device. Zero is never a valid handle.
type Handle uintptr

// Status is a native result code. Zero is success; anything else is surfaced
// verbatim to the caller.
type Status uint32

const (
	StatusOK            Status = 0
	StatusError         Status = 1
	StatusBadDeviceID   Status = 2
	StatusInvalidHandle Status = 5
	StatusNoDriver      Status = 6
	StatusBadFormat     Status = 32
	StatusStillPlaying  Status = 33
)

// WaveMapper selects the default output device.
const WaveMapper = -1

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "unspecified error"
	case StatusBadDeviceID:
		return "bad device id"
	case StatusInvalidHandle:
		return "invalid handle"
	case StatusNoDriver:
		return "no driver"
	case StatusBadFormat:
		return "unsupported format"
	case StatusStillPlaying:
		return "still playing"
	default:
		return fmt.Sprintf("status %d", uint32(s))
	}
}

// Err converts a non-zero status into an error.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &DeviceError{Status: s}
}

// DeviceError wraps a non-zero native status.
type DeviceError struct {
	Status Status
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device: %s (%d)", e.Status, uint32(e.Status))
}

// Format describes interleaved PCM.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is 16-bit mono at 22.05kHz, the rate most speech models emit.
var DefaultFormat = Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16}

// BlockAlign returns the size of one frame in bytes.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// Duration returns how long n bytes of audio play for.
func (f Format) Duration(n int) time.Duration {
	bps := f.SampleRate * f.BlockAlign()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Valid reports whether the format is playable at all.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && (f.BitsPerSample == 8 || f.BitsPerSample == 16)
}

// Message is a device notification delivered to an open handle's callback.
type Message int

const (
	MsgOpen Message = iota + 1
	// MsgStart is sent when a queued buffer begins playing. param is its cookie.
	MsgStart
	// MsgDone is sent when a buffer has played or was returned by Reset. param is its cookie.
	MsgDone
	MsgClose
)

func (m Message) String() string {
	switch m {
	case MsgOpen:
		return "open"
	case MsgStart:
		return "start"
	case MsgDone:
		return "done"
	case MsgClose:
		return "close"
	default:
		return fmt.Sprintf("message(%d)", int(m))
	}
}

// Callback receives device notifications on the device's own goroutine,
// except MsgOpen and MsgClose which arrive on the caller's.
type Callback func(h Handle, msg Message, instance uintptr, param uintptr)

// Device is a wave-out style output device.
type Device interface {
	// Open opens deviceID (or WaveMapper) for the given format.
	Open(deviceID int, f Format, cb Callback, instance uintptr, flags uint32) (Status, Handle)
	// Close closes h. It fails with StatusStillPlaying while buffers are queued.
	Close(h Handle) Status
	// Write queues pcm for playback. cookie is echoed with MsgStart and MsgDone.
	Write(h Handle, pcm []byte, cookie uintptr) Status
	// Reset stops playback and returns every queued buffer with MsgDone.
	Reset(h Handle) Status
	Pause(h Handle) Status
	Restart(h Handle) Status
	// SetVolume sets the volume for h in the range [0, 1].
	SetVolume(h Handle, volume float64) Status
}
