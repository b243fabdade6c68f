package gtts

import (
	"context"
	"strings"

	"github.com/worldvoice/worldvoice/internal/engine"
)

// Voice is one gtts language.
type Voice struct {
	*engine.BaseInstance
	engine *Engine
}

// Speak synthesizes text, waits for the exclusion token and queues the audio.
// It blocks until playback is queued or Stop aborts it.
func (v *Voice) Speak(text string) error {
	ctx, token := v.engine.current()
	if token == nil {
		return engine.ErrEngineOff
	}

	data, err := v.render(ctx, text)
	if err != nil {
		return err
	}
	hold, err := v.acquire(ctx, token)
	if err != nil {
		return err
	}
	v.Activate()
	return v.play(token, hold, data, 0)
}

// SpeakIndex reports index once the device reaches this point.
func (v *Voice) SpeakIndex(index int) error {
	ctx, token := v.engine.current()
	if token == nil {
		return engine.ErrEngineOff
	}
	hold, err := v.acquire(ctx, token)
	if err != nil {
		return err
	}
	v.Activate()
	return v.play(token, hold, nil, index)
}

// acquire waits for the token. A Stop that lands while the token is being
// handed over gives it straight back.
func (v *Voice) acquire(ctx context.Context, token *engine.Token) (engine.Ticket, error) {
	hold, err := token.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		token.Release(hold)
		return 0, err
	}
	return hold, nil
}

// Dispatch serves requests routed through a playback worker, which already
// holds the token under hold.
func (v *Voice) Dispatch(hold engine.Ticket, mode engine.Mode, text string, index int) error {
	ctx, _ := v.engine.current()
	var data []byte
	if mode == engine.ModeSpeak {
		var err error
		if data, err = v.render(ctx, text); err != nil {
			return err
		}
	}
	return v.engine.native.Play(v, v.Sink(), hold, data, index, v.volume())
}

func (v *Voice) render(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return v.engine.synthesize(ctx, v.Name(), request{
		lang:       v.ID(),
		text:       text,
		rate:       v.Rate(),
		waitFactor: v.WaitFactor(),
	})
}

func (v *Voice) play(token *engine.Token, hold engine.Ticket, data []byte, index int) error {
	if err := v.engine.native.Play(v, nil, hold, data, index, v.volume()); err != nil {
		v.SetPlaying(false)
		token.Release(hold)
		return err
	}
	return nil
}

func (v *Voice) volume() float64 {
	return float64(v.Volume()) / engine.MaxParam
}

// Stop aborts pending direct calls on the engine and silences this voice.
func (v *Voice) Stop() error {
	v.engine.abort()
	v.engine.native.Stop(v)
	v.SetPlaying(false)
	return nil
}

// Close stops the voice.
func (v *Voice) Close() error {
	return v.Stop()
}
