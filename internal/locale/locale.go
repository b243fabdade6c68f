// Package locale normalizes the language tags engines and configuration use
// and resolves human-readable names for them.
package locale

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Normalize returns tag in underscore form with canonical casing, e.g.
// "en-us" becomes "en_US". Tags that do not parse keep their text with only
// separators and casing fixed.
func Normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if t, err := language.Parse(strings.ReplaceAll(tag, "_", "-")); err == nil {
		return strings.ReplaceAll(t.String(), "-", "_")
	}

	parts := strings.FieldsFunc(tag, func(r rune) bool { return r == '-' || r == '_' })
	for i, p := range parts {
		switch {
		case i == 0:
			parts[i] = strings.ToLower(p)
		case len(p) == 4:
			parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
		default:
			parts[i] = strings.ToUpper(p)
		}
	}
	return strings.Join(parts, "_")
}

// Base strips everything after the first underscore: "en_US" becomes "en".
func Base(locale string) string {
	base, _, _ := strings.Cut(locale, "_")
	return base
}

// HasRegion reports whether locale carries more than a base language.
func HasRegion(locale string) bool {
	return strings.Contains(locale, "_")
}

var namer = display.English.Tags()

// DisplayName returns an English description of locale, or "" if unknown.
func DisplayName(locale string) string {
	t, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return ""
	}
	return namer.Name(t)
}

// Readable returns "<description> - <locale>", or just the locale when no
// description is known.
func Readable(locale string) string {
	if d := DisplayName(locale); d != "" {
		return fmt.Sprintf("%s - %s", d, locale)
	}
	return locale
}
