// Package audio is the boundary between the speech engines and the system
// audio output. Engines open a device handle, queue PCM buffers on it and are
// told through a callback when each buffer starts and finishes, the way a
// native wave-out API behaves. Libraries expose the open and close entry points
// through an import table that can be patched, which is what the ducking hook
// relies on. OtoDevice plays through oto/v3; NullDevice only simulates timing.
package audio
