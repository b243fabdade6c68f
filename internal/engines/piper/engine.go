// Package piper drives the piper command-line synthesizer. Voices are the
// models found in a directory; synthesis runs on the playback worker and the
// raw PCM plays on the audio device through the callback bridge.
package piper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/cache"
	"github.com/worldvoice/worldvoice/internal/ducking"
	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/engines/pcm"
	"github.com/worldvoice/worldvoice/internal/engines/subprocess"
)

// Tag is the engine tag.
const Tag engine.Tag = "piper"

// LibPath is the library path the engine's device is registered under.
const LibPath = "piper/libpiper_phonemize.so"

const (
	maxTextSize  = 5000
	maxAudioSize = 10 * 1024 * 1024
)

// Options configures the piper engine.
type Options struct {
	Binary   string
	ModelDir string
	Timeout  time.Duration

	Store    engine.ParameterStore
	Listener engine.Listener
	Loader   *audio.Loader
	Device   audio.Device
	Hook     *ducking.Hook
	Cache    *cache.Manager // optional
	Format   audio.Format
}

// Engine implements engine.Capability.
type Engine struct {
	opts   Options
	runner *subprocess.Runner
	native *pcm.Native

	mu     sync.RWMutex
	models map[string]model
}

// New creates a piper engine.
func New(opts Options) *Engine {
	if opts.Binary == "" {
		opts.Binary = "piper"
	}
	if dir, err := homedir.Expand(opts.ModelDir); err == nil {
		opts.ModelDir = dir
	}
	if !opts.Format.Valid() {
		opts.Format = audio.DefaultFormat
	}
	if opts.Loader == nil {
		opts.Loader = audio.NewLoader()
	}
	return &Engine{
		opts:   opts,
		runner: subprocess.New(opts.Timeout, maxAudioSize),
		native: pcm.NewNative(pcm.NativeConfig{
			Name:     string(Tag),
			Loader:   opts.Loader,
			Device:   opts.Device,
			Hook:     opts.Hook,
			LibPath:  LibPath,
			Format:   opts.Format,
			Listener: opts.Listener,
		}),
		models: make(map[string]model),
	}
}

// Tag implements engine.Capability.
func (e *Engine) Tag() engine.Tag { return Tag }

// Ready reports whether the binary, a device and the model directory exist.
func (e *Engine) Ready() bool {
	if e.opts.Device == nil || e.opts.ModelDir == "" {
		return false
	}
	if st, err := os.Stat(e.opts.ModelDir); err != nil || !st.IsDir() {
		return false
	}
	return subprocess.Available(e.opts.Binary)
}

// EngineOn implements engine.Capability.
func (e *Engine) EngineOn(token *engine.Token) error {
	if e.opts.Device == nil {
		return errors.New("no audio device")
	}
	return e.native.On(token)
}

// EngineOff implements engine.Capability.
func (e *Engine) EngineOff() error {
	e.native.Off()
	return nil
}

// Voices lists the models in the model directory.
func (e *Engine) Voices() []engine.VoiceDescriptor {
	voices, models := scan(e.opts.ModelDir, e.opts.Format.SampleRate)

	e.mu.Lock()
	e.models = models
	e.mu.Unlock()

	for i := range voices {
		voices[i].Engine = Tag
	}
	return voices
}

// CreateInstance implements engine.Capability.
func (e *Engine) CreateInstance(desc engine.VoiceDescriptor, sink engine.TaskSink) (engine.Instance, error) {
	e.mu.RLock()
	m, ok := e.models[desc.Name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownVoice, desc.Name)
	}
	return &Voice{
		BaseInstance: engine.NewBaseInstance(desc, sink, e.opts.Store),
		engine:       e,
		model:        m,
	}, nil
}

// Pause suspends playback.
func (e *Engine) Pause() { e.native.Pause() }

// Resume continues paused playback.
func (e *Engine) Resume() { e.native.Resume() }

// request is one synthesis.
type request struct {
	voice      string
	model      model
	text       string
	rate       int
	waitFactor float64
}

func (r request) key() cache.Key {
	return cache.Key{
		Engine:     string(Tag),
		Voice:      r.voice,
		Rate:       r.rate,
		WaitFactor: r.waitFactor,
		Text:       r.text,
	}
}

// args maps rate 0..100 to piper's length scale (2.0 to about 0.67) and the
// wait factor to silence after each sentence.
func (r request) args() []string {
	speed := 0.5 + float64(r.rate)/100
	args := []string{
		"--model", r.model.path,
		"--output-raw",
		"--length-scale", strconv.FormatFloat(1/speed, 'f', 2, 64),
		"--sentence-silence", strconv.FormatFloat(0.1*r.waitFactor, 'f', 2, 64),
	}
	if r.model.speaker >= 0 {
		args = append(args, "--speaker", strconv.Itoa(r.model.speaker))
	}
	return args
}

func (e *Engine) synthesize(ctx context.Context, r request) ([]byte, error) {
	if len(r.text) > maxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(r.text), maxTextSize)
	}
	if e.opts.Cache != nil {
		if data, ok := e.opts.Cache.Get(r.key()); ok {
			return data, nil
		}
	}

	start := time.Now()
	data, err := e.runner.Run(ctx, []byte(r.text), e.opts.Binary, r.args()...)
	if err != nil {
		return nil, err
	}
	log.Debug("Piper synthesized",
		"voice", r.voice,
		"chars", len(r.text),
		"pcm", humanize.Bytes(uint64(len(data))),
		"took", time.Since(start))

	if e.opts.Cache != nil {
		if err := e.opts.Cache.Put(r.key(), data); err != nil {
			log.Debug("Could not cache piper audio", "err", err)
		}
	}
	return data, nil
}
