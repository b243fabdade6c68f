package voice

import (
	"sort"

	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/locale"
)

// index is an immutable view of a catalog: the ordered descriptors plus the
// name and locale lookups derived from them. It is rebuilt as a whole and
// swapped in, never patched.
type index struct {
	catalog []engine.VoiceDescriptor
	byName  map[string]engine.VoiceDescriptor
	// locales maps both full locales ("en_US") and base languages ("en") to
	// voice names in catalog order. A base-language key collects every
	// sub-locale and replaces an exact key of the same spelling.
	locales map[string][]string
}

func sortCatalog(descs []engine.VoiceDescriptor) {
	sort.SliceStable(descs, func(i, j int) bool {
		a, b := descs[i], descs[j]
		if a.Engine != b.Engine {
			return a.Engine < b.Engine
		}
		if a.Locale != b.Locale {
			return a.Locale < b.Locale
		}
		return a.Name < b.Name
	})
}

// buildIndex derives the lookups for an already sorted catalog.
func buildIndex(catalog []engine.VoiceDescriptor) *index {
	idx := &index{
		catalog: catalog,
		byName:  make(map[string]engine.VoiceDescriptor, len(catalog)),
		locales: make(map[string][]string),
	}

	base := make(map[string][]string)
	for _, d := range catalog {
		idx.byName[d.Name] = d
		idx.locales[d.Locale] = append(idx.locales[d.Locale], d.Name)
		b := locale.Base(d.Locale)
		base[b] = append(base[b], d.Name)
	}
	for k, names := range base {
		idx.locales[k] = names
	}
	return idx
}

// filter returns the index restricted to one engine, or idx itself for FilterAll.
func (idx *index) filter(tag engine.Tag) *index {
	if tag == engine.FilterAll {
		return idx
	}
	var sub []engine.VoiceDescriptor
	for _, d := range idx.catalog {
		if d.Engine == tag {
			sub = append(sub, d)
		}
	}
	return buildIndex(sub)
}

func (idx *index) has(name string) bool {
	_, ok := idx.byName[name]
	return ok
}

func (idx *index) languages() []string {
	out := make([]string, 0, len(idx.locales))
	for l, names := range idx.locales {
		if len(names) > 0 {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

func (idx *index) localeMap() map[string][]string {
	out := make(map[string][]string, len(idx.locales))
	for l, names := range idx.locales {
		out[l] = append([]string(nil), names...)
	}
	return out
}

func (idx *index) localeNames() map[string]string {
	out := make(map[string]string, len(idx.locales))
	for l := range idx.locales {
		out[l] = locale.Readable(l)
	}
	return out
}

func (idx *index) descriptors() []engine.VoiceDescriptor {
	return append([]engine.VoiceDescriptor(nil), idx.catalog...)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
