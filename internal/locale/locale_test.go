package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"en_US", "en_US"},
		{"en-us", "en_US"},
		{"EN", "en"},
		{"fr_ca", "fr_CA"},
		{"zh-hant-tw", "zh_Hant_TW"},
		{"  de  ", "de"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestBase(t *testing.T) {
	assert.Equal(t, "en", Base("en_US"))
	assert.Equal(t, "zh", Base("zh_Hant_TW"))
	assert.Equal(t, "fr", Base("fr"))
	assert.True(t, HasRegion("en_GB"))
	assert.False(t, HasRegion("en"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "French", DisplayName("fr"))
	assert.Contains(t, DisplayName("en_US"), "English")
	assert.Equal(t, "", DisplayName("not a tag!"))

	assert.Equal(t, "French - fr", Readable("fr"))
	assert.Equal(t, "??", Readable("??"))
}

func TestFromTLW(t *testing.T) {
	l, ok := FromTLW("ENG")
	assert.True(t, ok)
	assert.Equal(t, "en_GB", l)

	_, ok = FromTLW("XXX")
	assert.False(t, ok)
}
