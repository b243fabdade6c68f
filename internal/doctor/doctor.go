// Package doctor checks the external tools and the audio output each speech
// engine depends on and renders a report.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/audio"
)

// Status is the outcome of one check.
type Status struct {
	Name         string
	Group        string
	Required     bool
	Installed    bool
	Version      string
	Path         string
	Instructions string
}

// Checker probes one dependency.
type Checker interface {
	Check() Status
}

// Report holds the checks in registration order.
type Report struct {
	checkers []Checker
	Results  []Status
}

// Options names the tools to look for.
type Options struct {
	Piper     string
	ModelDir  string
	GTTS      string
	FFmpeg    string
	SkipAudio bool
}

// New registers the checks for every engine.
func New(opts Options) *Report {
	r := &Report{}
	if !opts.SkipAudio {
		r.Add(AudioChecker{})
	}
	r.Add(&BinaryChecker{Name: "piper", Group: "piper", Binary: opts.Piper, VersionArg: "--version", Install: piperInstructions()})
	r.Add(&ModelChecker{Dir: opts.ModelDir})
	r.Add(&BinaryChecker{Name: "gtts-cli", Group: "gtts", Binary: opts.GTTS, VersionArg: "--version", Install: "Install with pip:\n    pip install gtts\n    Or: pipx install gtts"})
	r.Add(&BinaryChecker{Name: "ffmpeg", Group: "gtts", Binary: opts.FFmpeg, VersionArg: "-version", Install: ffmpegInstructions()})
	return r
}

// Add registers a checker.
func (r *Report) Add(c Checker) {
	r.checkers = append(r.checkers, c)
}

// Run executes every check. It reports whether every required dependency is
// present.
func (r *Report) Run() bool {
	ok := true
	r.Results = r.Results[:0]
	for _, c := range r.checkers {
		s := c.Check()
		r.Results = append(r.Results, s)
		switch {
		case s.Required && !s.Installed:
			ok = false
			log.Error("Missing required dependency", "name", s.Name)
		case s.Installed:
			log.Debug("Dependency found", "name", s.Name, "version", s.Version, "path", s.Path)
		}
	}
	return ok
}

// Ready reports whether every dependency of group is installed.
func (r *Report) Ready(group string) bool {
	found := false
	for _, s := range r.Results {
		if s.Group != group {
			continue
		}
		found = true
		if !s.Installed {
			return false
		}
	}
	return found
}

// Render formats the results. Plain output is used when styled is false.
func (r *Report) Render(styled bool) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	installedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	missingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	optionalStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	paint := func(st lipgloss.Style, s string) string {
		if !styled {
			return s
		}
		return st.Render(s)
	}

	var b strings.Builder
	b.WriteString(paint(titleStyle, "Speech dependency report"))
	b.WriteString("\n")

	group := ""
	for _, s := range r.Results {
		if s.Group != group {
			group = s.Group
			fmt.Fprintf(&b, "\n%s:\n", group)
		}
		label := s.Name + ": "
		switch {
		case s.Installed:
			b.WriteString(paint(installedStyle, "  ✓ "+label))
			fmt.Fprintf(&b, "%s\n", strings.TrimSpace(s.Path+" "+s.Version))
		case s.Required:
			b.WriteString(paint(missingStyle, "  ✗ "+label))
			b.WriteString("not found\n")
			fmt.Fprintf(&b, "    %s\n", s.Instructions)
		default:
			b.WriteString(paint(optionalStyle, "  ○ "+label))
			b.WriteString("not found (optional)\n")
			fmt.Fprintf(&b, "    %s\n", s.Instructions)
		}
	}
	return b.String()
}

// BinaryChecker looks a tool up on PATH and asks it for its version.
type BinaryChecker struct {
	Name       string
	Group      string
	Binary     string
	VersionArg string
	Install    string
	Required   bool
}

// Check implements Checker.
func (c *BinaryChecker) Check() Status {
	s := Status{Name: c.Name, Group: c.Group, Required: c.Required}
	bin := c.Binary
	if bin == "" {
		bin = c.Name
	}

	path, err := exec.LookPath(bin)
	if err != nil {
		s.Instructions = c.Install
		return s
	}
	s.Installed = true
	s.Path = path

	if c.VersionArg != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, path, c.VersionArg).CombinedOutput() //nolint:gosec
		if err == nil {
			s.Version = firstVersion(string(out))
		}
	}
	return s
}

// firstVersion picks the first token that starts with a digit on the first
// output line.
func firstVersion(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	for _, f := range strings.Fields(line) {
		f = strings.TrimPrefix(f, "v")
		if f != "" && f[0] >= '0' && f[0] <= '9' {
			return f
		}
	}
	return ""
}

// ModelChecker counts the piper models in a directory.
type ModelChecker struct {
	Dir string
}

// Check implements Checker.
func (c *ModelChecker) Check() Status {
	s := Status{Name: "piper models", Group: "piper"}
	matches, err := filepath.Glob(filepath.Join(c.Dir, "*.onnx"))
	if err != nil || len(matches) == 0 {
		s.Instructions = "Download models from: https://github.com/rhasspy/piper/blob/master/VOICES.md\n" +
			"    Place the .onnx and .onnx.json files in: " + c.Dir
		return s
	}
	s.Installed = true
	s.Path = c.Dir
	s.Version = fmt.Sprintf("%d models", len(matches))
	return s
}

// AudioChecker reports whether real audio output is available.
type AudioChecker struct{}

// Check implements Checker.
func (AudioChecker) Check() Status {
	p := audio.DetectPlatform()
	s := Status{Name: "audio output", Group: "audio", Version: string(p.AudioSubsystem)}
	if p.ShouldUseNullDevice() {
		s.Instructions = "No audio device found (" + p.String() + "); speech will be silent"
		return s
	}
	s.Installed = true
	s.Path = string(p.OS)
	return s
}

func piperInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install with: brew install piper-tts\n    Or download from: https://github.com/rhasspy/piper/releases"
	default:
		return "Download from: https://github.com/rhasspy/piper/releases\n    Extract and add to PATH"
	}
}

func ffmpegInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install with: brew install ffmpeg"
	case "linux":
		switch distro := linuxDistro(); distro {
		case "debian", "ubuntu":
			return "Install with: sudo apt-get install ffmpeg"
		case "fedora", "rhel":
			return "Install with: sudo dnf install ffmpeg"
		case "arch":
			return "Install with: sudo pacman -S ffmpeg"
		}
		return "Install with your package manager: ffmpeg"
	default:
		return "Download from: https://ffmpeg.org/download.html\n    Extract and add to PATH"
	}
}

func linuxDistro() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return "unknown"
	}
	content := strings.ToLower(string(data))
	for _, d := range []string{"ubuntu", "debian", "fedora", "arch"} {
		if strings.Contains(content, d) {
			return d
		}
	}
	if strings.Contains(content, "rhel") || strings.Contains(content, "centos") {
		return "rhel"
	}
	return "unknown"
}
