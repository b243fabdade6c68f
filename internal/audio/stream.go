package audio

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// renderer plays one buffer, returning when it has finished or ctx is done.
// It must honour s.Paused while playing.
type renderer interface {
	render(ctx context.Context, s *stream, pcm []byte) error
}

type buffer struct {
	pcm    []byte
	cookie uintptr
}

// stream is the per-handle state: a FIFO of buffers played by one goroutine.
type stream struct {
	handle   Handle
	format   Format
	cb       Callback
	instance uintptr

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []buffer
	current *buffer
	cancel  context.CancelFunc
	paused  bool
	volume  float64
	closed  bool
	exited  chan struct{}
}

func newStream(h Handle, f Format, cb Callback, instance uintptr) *stream {
	s := &stream{
		handle:   h,
		format:   f,
		cb:       cb,
		instance: instance,
		volume:   1.0,
		exited:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *stream) notify(msg Message, param uintptr) {
	if s.cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in audio device callback", "handle", s.handle, "msg", msg, "panic", r)
		}
	}()
	s.cb(s.handle, msg, s.instance, param)
}

// Paused reports whether playback is paused.
func (s *stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Volume returns the stream volume in [0, 1].
func (s *stream) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *stream) run(r renderer) {
	defer close(s.exited)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		buf := s.queue[0]
		s.queue = s.queue[1:]
		ctx, cancel := context.WithCancel(context.Background())
		s.current = &buf
		s.cancel = cancel
		s.mu.Unlock()

		s.notify(MsgStart, buf.cookie)
		if err := r.render(ctx, s, buf.pcm); err != nil && ctx.Err() == nil {
			log.Warn("Audio buffer playback failed", "handle", s.handle, "err", err)
		}
		cancel()

		s.mu.Lock()
		s.current = nil
		s.cancel = nil
		s.mu.Unlock()

		s.notify(MsgDone, buf.cookie)
	}
}

// deviceCore implements Device on top of a renderer.
type deviceCore struct {
	name     string
	renderer renderer
	accept   func(Format) Status

	mu      sync.Mutex
	next    Handle
	streams map[Handle]*stream
}

func newDeviceCore(name string, r renderer, accept func(Format) Status) *deviceCore {
	return &deviceCore{
		name:     name,
		renderer: r,
		accept:   accept,
		next:     0x100,
		streams:  make(map[Handle]*stream),
	}
}

func (d *deviceCore) Open(deviceID int, f Format, cb Callback, instance uintptr, flags uint32) (Status, Handle) {
	if deviceID != WaveMapper && deviceID != 0 {
		return StatusBadDeviceID, 0
	}
	if !f.Valid() {
		return StatusBadFormat, 0
	}
	if d.accept != nil {
		if st := d.accept(f); st != StatusOK {
			return st, 0
		}
	}

	d.mu.Lock()
	d.next++
	h := d.next
	s := newStream(h, f, cb, instance)
	d.streams[h] = s
	d.mu.Unlock()

	go s.run(d.renderer)

	log.Debug("Audio device opened", "device", d.name, "handle", h, "rate", f.SampleRate, "channels", f.Channels)
	s.notify(MsgOpen, 0)
	return StatusOK, h
}

func (d *deviceCore) lookup(h Handle) *stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[h]
}

func (d *deviceCore) Close(h Handle) Status {
	d.mu.Lock()
	s, ok := d.streams[h]
	if !ok {
		d.mu.Unlock()
		return StatusInvalidHandle
	}
	s.mu.Lock()
	busy := len(s.queue) > 0 || s.current != nil
	if !busy {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	if busy {
		d.mu.Unlock()
		return StatusStillPlaying
	}
	delete(d.streams, h)
	d.mu.Unlock()

	<-s.exited
	s.notify(MsgClose, 0)
	log.Debug("Audio device closed", "device", d.name, "handle", h)
	return StatusOK
}

func (d *deviceCore) Write(h Handle, pcm []byte, cookie uintptr) Status {
	s := d.lookup(h)
	if s == nil {
		return StatusInvalidHandle
	}
	if align := s.format.BlockAlign(); align > 0 && len(pcm)%align != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%align]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return StatusInvalidHandle
	}
	s.queue = append(s.queue, buffer{pcm: pcm, cookie: cookie})
	s.cond.Signal()
	return StatusOK
}

func (d *deviceCore) Reset(h Handle) Status {
	s := d.lookup(h)
	if s == nil {
		return StatusInvalidHandle
	}

	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.paused = false
	s.mu.Unlock()

	for _, buf := range dropped {
		s.notify(MsgDone, buf.cookie)
	}

	// Wait for the buffer in flight to be returned.
	for {
		s.mu.Lock()
		idle := s.current == nil
		s.mu.Unlock()
		if idle {
			return StatusOK
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *deviceCore) Pause(h Handle) Status {
	return d.setPaused(h, true)
}

func (d *deviceCore) Restart(h Handle) Status {
	return d.setPaused(h, false)
}

func (d *deviceCore) setPaused(h Handle, paused bool) Status {
	s := d.lookup(h)
	if s == nil {
		return StatusInvalidHandle
	}
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
	return StatusOK
}

func (d *deviceCore) SetVolume(h Handle, volume float64) Status {
	s := d.lookup(h)
	if s == nil {
		return StatusInvalidHandle
	}
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
	return StatusOK
}

// OpenHandles returns the number of handles currently open.
func (d *deviceCore) OpenHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}
