package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/cache"
	"github.com/worldvoice/worldvoice/internal/config"
	"github.com/worldvoice/worldvoice/internal/ducking"
	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/engines/gtts"
	"github.com/worldvoice/worldvoice/internal/engines/mock"
	"github.com/worldvoice/worldvoice/internal/engines/piper"
	"github.com/worldvoice/worldvoice/internal/notify"
	"github.com/worldvoice/worldvoice/internal/voice"
)

// speechRuntime wires the configured engines, the audio device, the cache and
// the notification sinks into one voice manager.
type speechRuntime struct {
	cfg     *config.Config
	store   *config.Store
	manager *voice.Manager
	cache   *cache.Manager
	ducking *ducking.Controller
	done    *doneCounter

	closers []func() error
}

// doneCounter tracks DoneSpeaking notifications so the CLI can wait for
// engines whose speech bypasses the playback workers.
type doneCounter struct {
	mu   sync.Mutex
	cond *sync.Cond
	done int
}

func newDoneCounter() *doneCounter {
	d := &doneCounter{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *doneCounter) IndexReached(string, int) {}

func (d *doneCounter) DoneSpeaking(string) {
	d.mu.Lock()
	d.done++
	d.mu.Unlock()
	d.cond.Broadcast()
}

func (d *doneCounter) DuckingChanged(bool, float64) {}

func (d *doneCounter) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// waitFor blocks until n notifications have arrived or stop is closed.
func (d *doneCounter) waitFor(n int, stop <-chan struct{}) bool {
	go func() {
		<-stop
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	}()
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.done < n {
		select {
		case <-stop:
			return false
		default:
		}
		d.cond.Wait()
	}
	return true
}

func newSpeechRuntime(cfg *config.Config, store *config.Store) (*speechRuntime, error) {
	rt := &speechRuntime{cfg: cfg, store: store, done: newDoneCounter()}

	sinks := notify.Multi{notify.LogSink{}, rt.done}
	if cfg.Notify.NATSURL != "" {
		ns, err := notify.Connect(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			log.Warn("Notifications will not be published", "err", err)
		} else {
			sinks = append(sinks, ns)
			rt.closers = append(rt.closers, ns.Close)
		}
	}

	format := audio.DefaultFormat
	device := openDevice(format)

	rt.ducking = ducking.NewController(cfg.Ducking.Level, cfg.Ducking.Enabled)
	rt.ducking.OnChange(sinks.DuckingChanged)
	loader := audio.NewLoader()
	hook := ducking.NewHook(loader, rt.ducking.NewDucker)
	rt.closers = append(rt.closers, func() error { hook.Uninstall(); return nil })

	if cfg.Cache.Enabled {
		c, err := openCache(cfg.Cache)
		if err != nil {
			log.Warn("Synthesis cache disabled", "err", err)
		} else {
			rt.cache = c
			rt.closers = append(rt.closers, c.Close)
		}
	}

	caps := []engine.Capability{
		piper.New(piper.Options{
			Binary:   cfg.Engines.Piper.Binary,
			ModelDir: cfg.Engines.Piper.ModelDir,
			Timeout:  cfg.Engines.Piper.Timeout,
			Store:    store,
			Listener: sinks,
			Loader:   loader,
			Device:   device,
			Hook:     hook,
			Cache:    rt.cache,
			Format:   format,
		}),
	}
	if cfg.Engines.GTTS.Enabled {
		caps = append(caps, gtts.New(gtts.Options{
			Binary:            cfg.Engines.GTTS.Binary,
			FFmpeg:            cfg.Engines.GTTS.FFmpeg,
			TLD:               cfg.Engines.GTTS.TLD,
			Languages:         cfg.Engines.GTTS.Languages,
			RequestsPerMinute: cfg.Engines.GTTS.RequestsPerMinute,
			Store:             store,
			Listener:          sinks,
			Loader:            loader,
			Device:            device,
			Hook:              hook,
			Cache:             rt.cache,
			Format:            format,
		}))
	}
	if cfg.Engines.Mock.Enabled {
		caps = append(caps, mock.New(mock.Options{
			Voices:   mockVoices(cfg.Engines.Mock.Voices),
			Store:    store,
			Listener: sinks,
			Loader:   loader,
			Device:   device,
			Hook:     hook,
			Format:   format,
		}))
	}

	if !voice.Ready(caps) {
		rt.Close()
		return nil, errors.New("no speech engine is ready: run 'worldvoice doctor' to see what is missing")
	}

	m, err := voice.New(caps, voice.Options{
		Roles:        store,
		EngineFilter: engine.Tag(cfg.Engine),
		DefaultVoice: cfg.Voice,
		WaitFactor:   cfg.WaitFactor,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("unable to start voice manager: %w", err)
	}
	rt.manager = m
	if err := m.KeepEngineConsistent(); err != nil {
		log.Warn("Could not update speech roles", "err", err)
	}
	return rt, nil
}

func openDevice(format audio.Format) audio.Device {
	platform := audio.DetectPlatform()
	log.Debug("Audio platform", "info", platform.String())
	if platform.ShouldUseNullDevice() {
		log.Warn("No audio output found, speech will be silent", "platform", platform.OS)
		return audio.NewNullDevice(1)
	}
	dev, err := audio.NewOtoDevice(format, platform)
	if err != nil {
		log.Warn("Could not open audio output, speech will be silent", "err", err)
		return audio.NewNullDevice(1)
	}
	return dev
}

func openCache(c config.CacheConfig) (*cache.Manager, error) {
	cc := cache.DefaultConfig()
	cc.Dir = c.Dir
	if cc.Dir == "" {
		dir, err := config.DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		cc.Dir = dir
	}
	if c.MaxSizeMB > 0 {
		cc.DiskCapacity = int64(c.MaxSizeMB) * 1024 * 1024
	}
	cc.CompressionLevel = c.CompressionLevel
	return cache.NewManager(cc)
}

func mockVoices(voices []config.MockVoice) []engine.VoiceDescriptor {
	out := make([]engine.VoiceDescriptor, 0, len(voices))
	for i, v := range voices {
		out = append(out, engine.VoiceDescriptor{
			ID:          fmt.Sprintf("m-%d", i),
			Name:        v.Name,
			Language:    v.Locale,
			Locale:      v.Locale,
			Description: v.Name,
		})
	}
	return out
}

// Close terminates the manager and releases everything the runtime opened.
func (rt *speechRuntime) Close() {
	if rt.manager != nil {
		rt.manager.Terminate()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Debug("Error while shutting down", "err", err)
		}
	}
}
