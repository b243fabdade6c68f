package piper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/locale"
)

// modelConfig is the part of a piper voice's .onnx.json we read.
type modelConfig struct {
	Audio struct {
		SampleRate int    `json:"sample_rate"`
		Quality    string `json:"quality"`
	} `json:"audio"`
	Language struct {
		Code        string `json:"code"`
		NameEnglish string `json:"name_english"`
	} `json:"language"`
	Dataset      string         `json:"dataset"`
	NumSpeakers  int            `json:"num_speakers"`
	SpeakerIDMap map[string]int `json:"speaker_id_map"`
}

// model is one voice found on disk.
type model struct {
	path    string
	speaker int // -1 for single-speaker models
	rate    int
}

// scan finds every model in dir with a readable config. Multi-speaker models
// yield one voice per speaker.
func scan(dir string, sampleRate int) ([]engine.VoiceDescriptor, map[string]model) {
	paths, _ := filepath.Glob(filepath.Join(dir, "*.onnx"))
	sort.Strings(paths)

	var voices []engine.VoiceDescriptor
	models := make(map[string]model)
	for _, path := range paths {
		cfg, err := readConfig(path + ".json")
		if err != nil {
			log.Debug("Skipping piper model", "model", path, "err", err)
			continue
		}
		if cfg.Audio.SampleRate != 0 && cfg.Audio.SampleRate != sampleRate {
			log.Debug("Skipping piper model with foreign sample rate",
				"model", path,
				"rate", cfg.Audio.SampleRate,
				"want", sampleRate)
			continue
		}

		base := strings.TrimSuffix(filepath.Base(path), ".onnx")
		loc := locale.Normalize(cfg.Language.Code)
		desc := cfg.Language.NameEnglish
		if desc == "" {
			desc = locale.DisplayName(loc)
		}

		if cfg.NumSpeakers <= 1 || len(cfg.SpeakerIDMap) == 0 {
			voices = append(voices, engine.VoiceDescriptor{
				ID:          base,
				Name:        base,
				Language:    cfg.Language.Code,
				Locale:      loc,
				Description: fmt.Sprintf("%s (%s)", desc, cfg.Dataset),
			})
			models[base] = model{path: path, speaker: -1, rate: cfg.Audio.SampleRate}
			continue
		}

		speakers := make([]string, 0, len(cfg.SpeakerIDMap))
		for s := range cfg.SpeakerIDMap {
			speakers = append(speakers, s)
		}
		sort.Strings(speakers)
		for _, s := range speakers {
			name := base + "#" + s
			voices = append(voices, engine.VoiceDescriptor{
				ID:          base + "#" + strconv.Itoa(cfg.SpeakerIDMap[s]),
				Name:        name,
				Language:    cfg.Language.Code,
				Locale:      loc,
				Description: fmt.Sprintf("%s (%s, %s)", desc, cfg.Dataset, s),
			})
			models[name] = model{path: path, speaker: cfg.SpeakerIDMap[s], rate: cfg.Audio.SampleRate}
		}
	}
	return voices, models
}

func readConfig(path string) (*modelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg modelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if cfg.Language.Code == "" {
		return nil, fmt.Errorf("%s: no language code", filepath.Base(path))
	}
	return &cfg, nil
}
