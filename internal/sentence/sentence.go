// Package sentence splits text, optionally markdown, into utterances.
package sentence

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	codeBlockRegex  = regexp.MustCompile("(?s)```.*?```|~~~.*?~~~")
	inlineCodeRegex = regexp.MustCompile("`[^`]+`")
	linkRegex       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	strongRegex     = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	emphasisRegex   = regexp.MustCompile(`\*([^*]+)\*|\b_([^_]+)_\b`)
	headingRegex    = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	listItemRegex   = regexp.MustCompile(`^\s*(?:[-*+]|\d+\.)\s+(.+)$`)
	blockquoteRegex = regexp.MustCompile(`^>\s*(.*)$`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]+>`)
	spaceRegex      = regexp.MustCompile(`\s+`)
)

var abbreviations = func() map[string]bool {
	m := make(map[string]bool)
	for _, a := range []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st", "mt",
		"inc", "ltd", "co", "corp", "llc",
		"i.e", "e.g", "etc", "vs", "cf", "al", "approx", "no", "vol",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		"ave", "blvd", "rd", "ft", "lbs", "oz", "kg", "km", "cm", "mm",
		"hr", "hrs", "min", "mins", "sec", "secs",
	} {
		m[a] = true
	}
	return m
}()

// Splitter splits text into sentences.
type Splitter struct {
	// Markdown strips markdown syntax and skips fenced code blocks first.
	Markdown bool
	// MinLength drops fragments shorter than this many runes.
	MinLength int
}

// Split splits plain text into sentences.
func Split(text string) []string {
	return Splitter{MinLength: 1}.Split(text)
}

// Split returns the sentences of text in order.
func (s Splitter) Split(text string) []string {
	if s.Markdown {
		text = StripMarkdown(text)
	}
	text = strings.TrimSpace(spaceRegex.ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var out []string
	add := func(from, to int) {
		t := strings.TrimSpace(string(runes[from:to]))
		if len([]rune(t)) >= s.MinLength && t != "" {
			out = append(out, t)
		}
	}

	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}
		if !isBoundary(runes, i, end) {
			i = end - 1
			continue
		}
		add(start, end)
		start = end
		i = end - 1
	}
	if start < len(runes) {
		add(start, len(runes))
	}
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

// isBoundary decides whether the punctuation run at runes[pos:end] ends a
// sentence.
func isBoundary(runes []rune, pos, end int) bool {
	if end >= len(runes) {
		return true
	}
	switch runes[pos] {
	case '。', '！', '？':
		return true
	}
	if !unicode.IsSpace(runes[end]) {
		return false
	}

	if runes[pos] == '.' && end == pos+1 {
		from := pos - 1
		for from >= 0 && !unicode.IsSpace(runes[from]) {
			from--
		}
		word := strings.ToLower(string(runes[from+1 : pos]))
		if abbreviations[word] {
			return false
		}
		// Initials and dotted abbreviations: "J. R. R.", "U.S."
		if len([]rune(word)) == 1 && unicode.IsUpper(runes[pos-1]) {
			return false
		}
		if strings.Contains(word, ".") && unicode.IsLetter([]rune(word)[0]) {
			return false
		}
	}

	next := end
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	if runes[pos] == '!' || runes[pos] == '?' {
		return true
	}
	return !unicode.IsLower(runes[next])
}

// StripMarkdown reduces markdown to the text a listener should hear.
func StripMarkdown(md string) string {
	md = codeBlockRegex.ReplaceAllString(md, " ")

	lines := strings.Split(md, "\n")
	var b strings.Builder
	for _, line := range lines {
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			// Headings are spoken as their own sentence.
			line = strings.TrimRight(m[1], " #")
			if line != "" && !isTerminal([]rune(line)[len([]rune(line))-1]) {
				line += "."
			}
		} else if m := listItemRegex.FindStringSubmatch(line); m != nil {
			line = m[1]
		} else if m := blockquoteRegex.FindStringSubmatch(line); m != nil {
			line = m[1]
		}

		line = htmlTagRegex.ReplaceAllString(line, "")
		line = inlineCodeRegex.ReplaceAllString(line, "")
		line = linkRegex.ReplaceAllString(line, "$1")
		line = strongRegex.ReplaceAllString(line, "$1$2")
		line = emphasisRegex.ReplaceAllString(line, "$1$2")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte(' ')
	}
	return strings.TrimSpace(spaceRegex.ReplaceAllString(b.String(), " "))
}
