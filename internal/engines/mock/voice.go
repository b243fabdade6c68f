package mock

import (
	"github.com/worldvoice/worldvoice/internal/engine"
)

// Voice is a mock voice instance. Requests go through the playback worker.
type Voice struct {
	*engine.BaseInstance
	engine *Engine
}

// Speak queues a new utterance.
func (v *Voice) Speak(text string) error {
	return v.Enqueue(v, engine.ModeSpeak, text, 0)
}

// SpeakIndex queues an index-only request; the index is reported when it
// starts playing.
func (v *Voice) SpeakIndex(index int) error {
	return v.Enqueue(v, engine.ModeSpeakIndex, "", index)
}

// Dispatch is called by the playback worker with the exclusion token held
// under hold.
func (v *Voice) Dispatch(hold engine.Ticket, mode engine.Mode, text string, index int) error {
	var data []byte
	if mode == engine.ModeSpeak {
		data = v.engine.synthesize(text, v.Rate(), v.WaitFactor())
	}
	return v.engine.native.Play(v, v.Sink(), hold, data, index, float64(v.Volume())/engine.MaxParam)
}

// Stop drops this voice's outstanding utterances and silences the device.
func (v *Voice) Stop() error {
	v.engine.native.Stop(v)
	v.SetPlaying(false)
	return nil
}

// Close stops the voice.
func (v *Voice) Close() error {
	return v.Stop()
}
