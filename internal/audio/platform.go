package audio

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Platform is the operating system speech output runs on.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

// AudioSubsystem is the sound server or driver layer behind the device.
type AudioSubsystem string

const (
	AudioSubsystemALSA       AudioSubsystem = "alsa"
	AudioSubsystemPulseAudio AudioSubsystem = "pulseaudio"
	AudioSubsystemCoreAudio  AudioSubsystem = "coreaudio"
	AudioSubsystemWASAPI     AudioSubsystem = "wasapi"
	AudioSubsystemNone       AudioSubsystem = "none"
)

// ForceNullEnv names the environment variable that disables real output.
const ForceNullEnv = "WORLDVOICE_NULL_AUDIO"

// tuning holds the output parameters that differ per subsystem.
type tuning struct {
	buffer     time.Duration
	attempts   int
	retryDelay time.Duration
	ready      time.Duration
}

var tunings = map[AudioSubsystem]tuning{
	// CoreAudio can race while the context comes up.
	AudioSubsystemCoreAudio:  {buffer: 100 * time.Millisecond, attempts: 3, retryDelay: 200 * time.Millisecond, ready: 10 * time.Second},
	AudioSubsystemWASAPI:     {buffer: 80 * time.Millisecond, attempts: 2, retryDelay: 150 * time.Millisecond, ready: 5 * time.Second},
	AudioSubsystemPulseAudio: {buffer: 60 * time.Millisecond, attempts: 2, retryDelay: 100 * time.Millisecond, ready: 5 * time.Second},
}

var fallbackTuning = tuning{buffer: 50 * time.Millisecond, attempts: 1, retryDelay: 100 * time.Millisecond, ready: 5 * time.Second}

// PlatformInfo describes the host's audio output.
type PlatformInfo struct {
	OS             Platform
	AudioSubsystem AudioSubsystem
	HasAudioDevice bool
	IsCI           bool
	Forced         bool
}

// DetectPlatform probes the host for a usable output device.
func DetectPlatform() *PlatformInfo {
	info := &PlatformInfo{
		OS:     Platform(runtime.GOOS),
		IsCI:   IsCI(),
		Forced: os.Getenv(ForceNullEnv) != "",
	}

	switch info.OS {
	case PlatformLinux:
		info.AudioSubsystem, info.HasAudioDevice = probeLinux()
	case PlatformDarwin:
		info.AudioSubsystem, info.HasAudioDevice = AudioSubsystemCoreAudio, true
	case PlatformWindows:
		info.AudioSubsystem, info.HasAudioDevice = AudioSubsystemWASAPI, true
	default:
		info.OS = PlatformUnknown
		info.AudioSubsystem = AudioSubsystemNone
	}

	log.Debug("Audio platform detected",
		"os", info.OS,
		"subsystem", info.AudioSubsystem,
		"device", info.HasAudioDevice,
		"ci", info.IsCI,
		"forced_null", info.Forced)
	return info
}

// IsCI reports whether the process runs under a CI system.
func IsCI() bool {
	for _, key := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE", "JENKINS_URL"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// probeLinux prefers a running PulseAudio (or PipeWire) server and falls back
// to raw ALSA cards.
func probeLinux() (AudioSubsystem, bool) {
	sub := AudioSubsystemNone
	if out, err := exec.Command("pactl", "info").Output(); err == nil && strings.Contains(string(out), "Server Name") {
		sub = AudioSubsystemPulseAudio
	} else if _, err := os.Stat("/proc/asound"); err == nil {
		sub = AudioSubsystemALSA
	}

	if entries, err := os.ReadDir("/dev/snd"); err == nil {
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "pcm") {
				return sub, true
			}
		}
	}
	cards, err := os.ReadFile("/proc/asound/cards")
	return sub, err == nil && len(cards) > 0 && !strings.Contains(string(cards), "no soundcards")
}

func (p *PlatformInfo) tuning() tuning {
	if t, ok := tunings[p.AudioSubsystem]; ok {
		return t
	}
	return fallbackTuning
}

// ShouldUseNullDevice reports whether real output is unlikely to work.
func (p *PlatformInfo) ShouldUseNullDevice() bool {
	return p.Forced || p.IsCI || p.AudioSubsystem == AudioSubsystemNone || !p.HasAudioDevice
}

// BufferSize is the output buffer the subsystem handles without underruns.
func (p *PlatformInfo) BufferSize() time.Duration {
	return p.tuning().buffer
}

// RetryPolicy returns how often and how far apart context creation is tried.
func (p *PlatformInfo) RetryPolicy() (int, time.Duration) {
	t := p.tuning()
	return t.attempts, t.retryDelay
}

// ReadyTimeout bounds the wait for a new output context.
func (p *PlatformInfo) ReadyTimeout() time.Duration {
	return p.tuning().ready
}

func (p *PlatformInfo) String() string {
	return fmt.Sprintf("%s/%s device=%v ci=%v", p.OS, p.AudioSubsystem, p.HasAudioDevice, p.IsCI)
}
