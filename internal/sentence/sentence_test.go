package sentence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "simple",
			in:   "Hello world. How are you? I am fine!",
			want: []string{"Hello world.", "How are you?", "I am fine!"},
		},
		{
			name: "abbreviations",
			in:   "Dr. Smith went to Washington. He arrived at 3.30 p.m. today.",
			want: []string{"Dr. Smith went to Washington.", "He arrived at 3.30 p.m. today."},
		},
		{
			name: "decimals",
			in:   "Pi is 3.14159. E is 2.71828.",
			want: []string{"Pi is 3.14159.", "E is 2.71828."},
		},
		{
			name: "initials",
			in:   "J. R. R. Tolkien wrote books. They sold well.",
			want: []string{"J. R. R. Tolkien wrote books.", "They sold well."},
		},
		{
			name: "ellipsis before lowercase",
			in:   "Wait... what?",
			want: []string{"Wait... what?"},
		},
		{
			name: "closing quote",
			in:   `He said "Stop." Then he left.`,
			want: []string{`He said "Stop."`, "Then he left."},
		},
		{
			name: "cjk",
			in:   "你好。世界！",
			want: []string{"你好。", "世界！"},
		},
		{
			name: "no terminal punctuation",
			in:   "  just some words\n  on two lines ",
			want: []string{"just some words on two lines"},
		},
		{
			name: "empty",
			in:   " \n\t",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.in))
		})
	}
}

func TestSplitter_MinLength(t *testing.T) {
	s := Splitter{MinLength: 4}
	assert.Equal(t, []string{"Hello there.", "General Kenobi!"}, s.Split("Hello there. Ok. General Kenobi!"))
}

func TestStripMarkdown(t *testing.T) {
	md := "# Title\n\nSome **bold** and *soft* text with a [link](http://example.com).\n\n" +
		"```go\nfmt.Println(\"skip\")\n```\n" +
		"- item one\n- item `code` two\n> quoted line"

	assert.Equal(t,
		"Title. Some bold and soft text with a link. item one item two quoted line",
		StripMarkdown(md))
}

func TestSplitter_Markdown(t *testing.T) {
	s := Splitter{Markdown: true, MinLength: 1}
	got := s.Split("## Install\nRun the <b>installer</b>. Then restart.")
	assert.Equal(t, []string{"Install.", "Run the installer.", "Then restart."}, got)
}
