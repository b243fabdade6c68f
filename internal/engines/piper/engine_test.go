package piper

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/cache"
	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/voice"
)

const amyConfig = `{
  "audio": {"sample_rate": 22050, "quality": "medium"},
  "language": {"code": "en_US", "name_english": "English"},
  "dataset": "amy",
  "num_speakers": 1,
  "speaker_id_map": {}
}`

const libriConfig = `{
  "audio": {"sample_rate": 22050},
  "language": {"code": "en-gb"},
  "dataset": "libri",
  "num_speakers": 2,
  "speaker_id_map": {"p1": 0, "p2": 1}
}`

const lowConfig = `{
  "audio": {"sample_rate": 16000},
  "language": {"code": "de_DE"},
  "dataset": "thorsten"
}`

func writeModel(t *testing.T, dir, name, config string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".onnx"), []byte("onnx"), 0o644))
	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".onnx.json"), []byte(config), 0o644))
	}
}

// fakePiper writes a script that emits 2205 bytes of PCM per invocation and
// appends its arguments to a log file.
func fakePiper(t *testing.T) (string, string) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	dir := t.TempDir()
	logFile := filepath.Join(dir, "calls.log")
	script := filepath.Join(dir, "piper")
	body := "#!/bin/sh\n" +
		"cat >/dev/null\n" +
		"echo \"$@\" >> " + logFile + "\n" +
		"head -c 2205 /dev/zero\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script, logFile
}

func calls(t *testing.T, logFile string) []string {
	t.Helper()
	data, err := os.ReadFile(logFile)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "en_US-amy-medium", amyConfig)
	writeModel(t, dir, "en_GB-libri-high", libriConfig)
	writeModel(t, dir, "de_DE-thorsten-low", lowConfig)
	writeModel(t, dir, "broken", "{not json")
	writeModel(t, dir, "orphan", "")

	voices, models := scan(dir, 22050)

	names := make([]string, len(voices))
	for i, v := range voices {
		names[i] = v.Name
	}
	assert.Equal(t, []string{"en_GB-libri-high#p1", "en_GB-libri-high#p2", "en_US-amy-medium"}, names)

	assert.Equal(t, "en_GB", voices[0].Locale)
	assert.Equal(t, 1, models["en_GB-libri-high#p2"].speaker)
	assert.Equal(t, -1, models["en_US-amy-medium"].speaker)
	assert.Equal(t, "English (amy)", voices[2].Description)
}

func TestRequestArgs(t *testing.T) {
	r := request{
		model:      model{path: "/m/amy.onnx", speaker: -1},
		rate:       50,
		waitFactor: 2,
	}
	assert.Equal(t, []string{
		"--model", "/m/amy.onnx",
		"--output-raw",
		"--length-scale", "1.00",
		"--sentence-silence", "0.20",
	}, r.args())

	r.rate = 100
	r.model.speaker = 3
	args := r.args()
	assert.Contains(t, strings.Join(args, " "), "--length-scale 0.67")
	assert.Equal(t, []string{"--speaker", "3"}, args[len(args)-2:])
}

func TestEngine_Ready(t *testing.T) {
	script, _ := fakePiper(t)
	dir := t.TempDir()

	assert.False(t, New(Options{Binary: script, ModelDir: dir}).Ready(), "no device")
	assert.False(t, New(Options{Binary: script, ModelDir: filepath.Join(dir, "missing"), Device: audio.NewNullDevice(0)}).Ready())
	assert.False(t, New(Options{Binary: filepath.Join(dir, "nope"), ModelDir: dir, Device: audio.NewNullDevice(0)}).Ready())
	assert.True(t, New(Options{Binary: script, ModelDir: dir, Device: audio.NewNullDevice(0)}).Ready())
}

type doneCounter struct {
	mu   sync.Mutex
	done int
}

func (d *doneCounter) IndexReached(string, int) {}

func (d *doneCounter) DoneSpeaking(string) {
	d.mu.Lock()
	d.done++
	d.mu.Unlock()
}

func (d *doneCounter) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func TestEngine_SpeakThroughManager(t *testing.T) {
	script, logFile := fakePiper(t)
	models := t.TempDir()
	writeModel(t, models, "en_US-amy-medium", amyConfig)

	store, err := cache.NewManager(cache.Config{Dir: t.TempDir(), MemoryCapacity: 1 << 20, DiskCapacity: 1 << 20})
	require.NoError(t, err)
	defer store.Close()

	listener := &doneCounter{}
	e := New(Options{
		Binary:   script,
		ModelDir: models,
		Device:   audio.NewNullDevice(0),
		Listener: listener,
		Cache:    store,
	})
	m, err := voice.New([]engine.Capability{e}, voice.Options{})
	require.NoError(t, err)
	defer m.Terminate()

	inst, err := m.VoiceInstanceForLanguage("en")
	require.NoError(t, err)
	require.Equal(t, "en_US-amy-medium", inst.Name())

	require.NoError(t, inst.Speak("Hello there."))
	require.NoError(t, inst.Speak("Hello there."))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))

	assert.Equal(t, 2, listener.count())
	assert.Len(t, calls(t, logFile), 1, "second utterance served from cache")
	assert.Equal(t, int64(1), store.Stats().Hits)
}

func TestEngine_CreateUnknownModel(t *testing.T) {
	e := New(Options{ModelDir: t.TempDir()})
	_, err := e.CreateInstance(engine.VoiceDescriptor{Name: "ghost"}, nil)
	assert.ErrorIs(t, err, engine.ErrUnknownVoice)
}
