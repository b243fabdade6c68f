package piper

import (
	"context"
	"strings"
	"sync"

	"github.com/worldvoice/worldvoice/internal/engine"
)

// Voice is one piper model (or one speaker of a multi-speaker model).
type Voice struct {
	*engine.BaseInstance
	engine *Engine
	model  model

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Speak queues a new utterance on the playback worker.
func (v *Voice) Speak(text string) error {
	return v.Enqueue(v, engine.ModeSpeak, text, 0)
}

// SpeakIndex queues an index-only request.
func (v *Voice) SpeakIndex(index int) error {
	return v.Enqueue(v, engine.ModeSpeakIndex, "", index)
}

// Dispatch synthesizes on the worker goroutine, then queues the audio. Stop
// aborts a synthesis in progress.
func (v *Voice) Dispatch(hold engine.Ticket, mode engine.Mode, text string, index int) error {
	var data []byte
	if mode == engine.ModeSpeak && strings.TrimSpace(text) != "" {
		ctx, cancel := context.WithCancel(context.Background())
		v.mu.Lock()
		v.cancel = cancel
		v.mu.Unlock()
		defer func() {
			v.mu.Lock()
			v.cancel = nil
			v.mu.Unlock()
			cancel()
		}()

		var err error
		data, err = v.engine.synthesize(ctx, request{
			voice:      v.Name(),
			model:      v.model,
			text:       text,
			rate:       v.Rate(),
			waitFactor: v.WaitFactor(),
		})
		if err != nil {
			return err
		}
	}
	return v.engine.native.Play(v, v.Sink(), hold, data, index, float64(v.Volume())/engine.MaxParam)
}

// Stop aborts synthesis, drops outstanding utterances and silences the device.
func (v *Voice) Stop() error {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.mu.Unlock()

	v.engine.native.Stop(v)
	v.SetPlaying(false)
	return nil
}

// Close stops the voice.
func (v *Voice) Close() error {
	return v.Stop()
}
