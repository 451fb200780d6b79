// Package gtts implements the free fallback TTS tier against the Google
// Translate text-to-speech endpoint, the same service gTTS uses. It needs no
// API key and selects the voice from a two-letter language code only.
package gtts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/tts"
)

const (
	providerName   = "gtts"
	defaultBaseURL = "https://translate.google.com/translate_tts"

	// The endpoint rejects queries longer than this many characters.
	maxChunkRunes = 100

	speedNormal = "1"
	speedSlow   = "0.3"
)

// Synthesizer implements tts.Synthesizer with Google Translate TTS.
type Synthesizer struct {
	baseURL string
	slow    bool
	client  *http.Client
}

// New creates a gTTS synthesizer from config. httpClient may be nil.
func New(cfg config.GTTSConfig, httpClient *http.Client) *Synthesizer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Synthesizer{baseURL: baseURL, slow: cfg.Slow, client: httpClient}
}

// Name returns the provider identifier.
func (s *Synthesizer) Name() string { return providerName }

// Synthesize converts text to MP3. Voice and Model are ignored; only the
// first two characters of opts.Language are used.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	lang := strings.ToLower(opts.Language)
	if len(lang) > 2 {
		lang = lang[:2]
	}
	if lang == "" {
		lang = "en"
	}

	chunks := splitText(text, maxChunkRunes)
	slog.Debug("gtts synthesize", "language", lang, "chunks", len(chunks), "text_length", len(text))

	var audio bytes.Buffer
	for idx, chunk := range chunks {
		if err := s.fetchChunk(ctx, &audio, chunk, lang, idx, len(chunks)); err != nil {
			return nil, err
		}
	}

	return &tts.SynthesizeResult{Audio: audio.Bytes(), ContentType: "audio/mpeg"}, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }

func (s *Synthesizer) fetchChunk(ctx context.Context, w io.Writer, chunk, lang string, idx, total int) error {
	speed := speedNormal
	if s.slow {
		speed = speedSlow
	}

	q := make(url.Values)
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("q", chunk)
	q.Set("tl", lang)
	q.Set("ttsspeed", speed)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return &tts.SynthesisError{Provider: providerName, Message: "request failed", Cause: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &tts.SynthesisError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("chunk %d/%d status %d: %s", idx+1, total, resp.StatusCode, strings.TrimSpace(string(body))),
			Transient:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return &tts.SynthesisError{Provider: providerName, Message: "reading audio", Cause: err, Transient: true}
	}
	if n == 0 {
		return &tts.SynthesisError{Provider: providerName, Message: fmt.Sprintf("chunk %d/%d returned no audio", idx+1, total)}
	}
	return nil
}

// splitText breaks text into chunks of at most limit runes, preferring
// sentence punctuation, then whitespace, as split points.
func splitText(text string, limit int) []string {
	var chunks []string
	runes := []rune(strings.TrimSpace(text))

	for len(runes) > limit {
		cut := lastIndexFunc(runes[:limit], isSentenceEnd)
		if cut <= 0 {
			cut = lastIndexFunc(runes[:limit], unicode.IsSpace)
		}
		if cut <= 0 {
			cut = limit - 1
		}
		if chunk := strings.TrimSpace(string(runes[:cut+1])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimSpace(string(runes[cut+1:])))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':', ',', '।', '\n':
		return true
	}
	return false
}

func lastIndexFunc(runes []rune, f func(rune) bool) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if f(runes[i]) {
			return i
		}
	}
	return -1
}
