// Package language holds the per-language voice, model and prompt table.
package language

import (
	"sort"
	"strings"
)

const (
	// DefaultCode is the key of the catch-all entry.
	DefaultCode = "default"

	// FallbackCode is used when there is no audio to detect from or
	// detection fails.
	FallbackCode = "en"
)

// Config drives voice, synthesis model and prompt selection for one language.
type Config struct {
	Code         string
	Voice        string
	Model        string
	PromptPrefix string
}

// Override replaces individual fields of a built-in entry. Empty fields keep
// the built-in value.
type Override struct {
	Voice  string `mapstructure:"voice"`
	Model  string `mapstructure:"model"`
	Prompt string `mapstructure:"prompt"`
}

var builtin = []Config{
	{Code: "en", Voice: "Rachel", Model: "eleven_turbo_v2", PromptPrefix: "Provide medical analysis in English"},
	{Code: "hi", Voice: "Aria", Model: "eleven_multilingual_v2", PromptPrefix: "हिंदी में चिकित्सा विश्लेषण प्रदान करें"},
	{Code: "es", Voice: "Isabella", Model: "eleven_multilingual_v2", PromptPrefix: "Proporcione análisis médico en español"},
	{Code: "fr", Voice: "Claude", Model: "eleven_multilingual_v2", PromptPrefix: "Fournir une analyse médicale en français"},
	{Code: DefaultCode, Voice: "Rachel", Model: "eleven_turbo_v2", PromptPrefix: "Provide medical analysis"},
}

// Table is an immutable lookup of language configurations. The zero value is
// not usable; build one with NewTable.
type Table struct {
	entries  map[string]Config
	fallback Config
}

// NewTable builds the table from the built-in entries with the given
// overrides applied. Overrides for unknown codes add new entries.
func NewTable(overrides map[string]Override) *Table {
	entries := make(map[string]Config, len(builtin)+len(overrides))
	for _, c := range builtin {
		entries[c.Code] = c
	}
	for code, o := range overrides {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		c, ok := entries[code]
		if !ok {
			c = entries[DefaultCode]
			c.Code = code
		}
		if o.Voice != "" {
			c.Voice = o.Voice
		}
		if o.Model != "" {
			c.Model = o.Model
		}
		if o.Prompt != "" {
			c.PromptPrefix = o.Prompt
		}
		entries[code] = c
	}
	return &Table{entries: entries, fallback: entries[DefaultCode]}
}

// Lookup returns the entry for code, or the default entry when code is unknown.
func (t *Table) Lookup(code string) Config {
	if c, ok := t.entries[strings.ToLower(code)]; ok {
		return c
	}
	return t.fallback
}

// Codes lists the configured language codes, excluding the default entry.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.entries))
	for code := range t.entries {
		if code != DefaultCode {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
