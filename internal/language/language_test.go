package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_KnownCodes(t *testing.T) {
	table := NewTable(nil)

	tests := []struct {
		code  string
		voice string
		model string
	}{
		{"en", "Rachel", "eleven_turbo_v2"},
		{"hi", "Aria", "eleven_multilingual_v2"},
		{"es", "Isabella", "eleven_multilingual_v2"},
		{"fr", "Claude", "eleven_multilingual_v2"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := table.Lookup(tt.code)
			assert.Equal(t, tt.code, c.Code)
			assert.Equal(t, tt.voice, c.Voice)
			assert.Equal(t, tt.model, c.Model)
			assert.NotEmpty(t, c.PromptPrefix)
		})
	}
}

func TestLookup_UnknownCodeFallsBackToDefault(t *testing.T) {
	table := NewTable(nil)

	for _, code := range []string{"de", "", "zz", "english"} {
		c := table.Lookup(code)
		assert.Equal(t, DefaultCode, c.Code, "code %q", code)
		assert.Equal(t, "Provide medical analysis", c.PromptPrefix)
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	table := NewTable(nil)
	assert.Equal(t, "fr", table.Lookup("FR").Code)
}

func TestNewTable_Overrides(t *testing.T) {
	table := NewTable(map[string]Override{
		"es": {Voice: "custom-voice-id"},
		"de": {Prompt: "Medizinische Analyse auf Deutsch"},
	})

	es := table.Lookup("es")
	assert.Equal(t, "custom-voice-id", es.Voice)
	assert.Equal(t, "eleven_multilingual_v2", es.Model)

	de := table.Lookup("de")
	assert.Equal(t, "de", de.Code)
	assert.Equal(t, "Rachel", de.Voice)
	assert.Equal(t, "Medizinische Analyse auf Deutsch", de.PromptPrefix)

	assert.Equal(t, []string{"de", "en", "es", "fr", "hi"}, table.Codes())
}

func TestLookup_ReturnsCopy(t *testing.T) {
	table := NewTable(nil)

	c := table.Lookup("en")
	c.Voice = "mutated"

	assert.Equal(t, "Rachel", table.Lookup("en").Voice)
}
