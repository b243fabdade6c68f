// Package gtts speaks through Google Translate's TTS via the gtts-cli tool,
// decoding its MP3 with ffmpeg. Unlike the queue-routed engines, its voices
// speak on the caller's goroutine: Speak synthesizes, takes the exclusion
// token and hands the PCM to the device, returning once playback is queued.
package gtts

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/cache"
	"github.com/worldvoice/worldvoice/internal/ducking"
	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/engines/pcm"
	"github.com/worldvoice/worldvoice/internal/engines/subprocess"
	"github.com/worldvoice/worldvoice/internal/locale"
)

// Tag is the engine tag.
const Tag engine.Tag = "gtts"

// LibPath is the library path the engine's device is registered under.
const LibPath = "gtts/libgtts_out.so"

const (
	maxTextSize = 5000
	maxMP3Size  = 50 * 1024 * 1024
	maxPCMSize  = 20 * 1024 * 1024
)

// DefaultLanguages are offered when Options.Languages is empty.
var DefaultLanguages = []string{"en", "fr", "de", "es", "it", "pt", "nl", "ja", "ko", "zh-CN"}

// Options configures the gtts engine.
type Options struct {
	Binary            string
	FFmpeg            string
	TLD               string
	Languages         []string
	RequestsPerMinute int
	Timeout           time.Duration

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
	opts    Options
	limiter *rate.Limiter
	runner  *subprocess.Runner
	native  *pcm.Native

	mu     sync.Mutex
	token  *engine.Token
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a gtts engine.
func New(opts Options) *Engine {
	if opts.Binary == "" {
		opts.Binary = "gtts-cli"
	}
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.TLD == "" {
		opts.TLD = "com"
	}
	if len(opts.Languages) == 0 {
		opts.Languages = DefaultLanguages
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if !opts.Format.Valid() {
		opts.Format = audio.DefaultFormat
	}
	if opts.Loader == nil {
		opts.Loader = audio.NewLoader()
	}

	e := &Engine{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1),
		runner:  subprocess.New(opts.Timeout, 0),
		native: pcm.NewNative(pcm.NativeConfig{
			Name:     string(Tag),
			Loader:   opts.Loader,
			Device:   opts.Device,
			Hook:     opts.Hook,
			LibPath:  LibPath,
			Format:   opts.Format,
			Listener: opts.Listener,
		}),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Tag implements engine.Capability.
func (e *Engine) Tag() engine.Tag { return Tag }

// Ready reports whether both tools and a device are available.
func (e *Engine) Ready() bool {
	return e.opts.Device != nil &&
		subprocess.Available(e.opts.Binary) &&
		subprocess.Available(e.opts.FFmpeg)
}

// EngineOn implements engine.Capability.
func (e *Engine) EngineOn(token *engine.Token) error {
	if err := e.native.On(token); err != nil {
		return err
	}
	e.mu.Lock()
	e.token = token
	e.mu.Unlock()
	return nil
}

// EngineOff aborts pending requests and releases the device.
func (e *Engine) EngineOff() error {
	e.abort()
	e.native.Off()
	return nil
}

// Voices offers one voice per configured language.
func (e *Engine) Voices() []engine.VoiceDescriptor {
	voices := make([]engine.VoiceDescriptor, 0, len(e.opts.Languages))
	for _, code := range e.opts.Languages {
		loc := locale.Normalize(code)
		voices = append(voices, engine.VoiceDescriptor{
			ID:          code,
			Name:        "Google " + locale.DisplayName(loc),
			Engine:      Tag,
			Language:    code,
			Locale:      loc,
			Description: locale.Readable(loc),
		})
	}
	return voices
}

// CreateInstance implements engine.Capability.
func (e *Engine) CreateInstance(desc engine.VoiceDescriptor, sink engine.TaskSink) (engine.Instance, error) {
	return &Voice{
		BaseInstance: engine.NewBaseInstance(desc, sink, e.opts.Store),
		engine:       e,
	}, nil
}

// Pause suspends playback.
func (e *Engine) Pause() { e.native.Pause() }

// Resume continues paused playback.
func (e *Engine) Resume() { e.native.Resume() }

// current returns the context direct calls run under until the next abort.
func (e *Engine) current() (context.Context, *engine.Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx, e.token
}

// abort cancels every synthesis and token wait in flight.
func (e *Engine) abort() {
	e.mu.Lock()
	e.cancel()
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()
}

type request struct {
	lang       string
	text       string
	rate       int
	waitFactor float64
}

func (r request) key(voice string) cache.Key {
	return cache.Key{
		Engine:     string(Tag),
		Voice:      voice,
		Rate:       r.rate,
		WaitFactor: r.waitFactor,
		Text:       r.text,
	}
}

// tempo maps rate 0..100 to an atempo factor around 1.0.
func tempo(rate int) float64 {
	return 0.5 + float64(rate)/100
}

func (e *Engine) synthesize(ctx context.Context, voice string, r request) ([]byte, error) {
	if len(r.text) > maxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(r.text), maxTextSize)
	}
	if e.opts.Cache != nil {
		if data, ok := e.opts.Cache.Get(r.key(voice)); ok {
			return data, nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	mp3, err := e.runner.Run(ctx, []byte(r.text), e.opts.Binary, "-", "-l", r.lang, "--tld", e.opts.TLD)
	if err != nil {
		return nil, fmt.Errorf("mp3 generation: %w", err)
	}
	if len(mp3) > maxMP3Size {
		return nil, fmt.Errorf("mp3 output too large: %d bytes", len(mp3))
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(e.opts.Format.SampleRate),
		"-ac", strconv.Itoa(e.opts.Format.Channels),
	}
	if t := tempo(r.rate); t != 1 {
		args = append(args, "-filter:a", fmt.Sprintf("atempo=%.2f", t))
	}
	args = append(args, "pipe:1")

	data, err := e.runner.Run(ctx, mp3, e.opts.FFmpeg, args...)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	if len(data) > maxPCMSize {
		return nil, fmt.Errorf("pcm output too large: %d bytes", len(data))
	}
	data = append(data, e.silence(r.waitFactor)...)

	if e.opts.Cache != nil {
		if err := e.opts.Cache.Put(r.key(voice), data); err != nil {
			log.Debug("Could not cache gtts audio", "err", err)
		}
	}
	return data, nil
}

func (e *Engine) silence(waitFactor float64) []byte {
	f := e.opts.Format
	frames := int(waitFactor * 0.1 * float64(f.SampleRate))
	return make([]byte, frames*f.BlockAlign())
}
