// Package interpreter defines the interface for speech-to-text and
// language-model backends.
//
// voicedoc ships with two backends: Groq (any OpenAI-compatible hosted API)
// and Local (self-hosted whisper + Ollama).
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nadzzz/voicedoc/internal/retry"
)

// ErrEmptyAudio is returned when transcription is attempted on no audio.
var ErrEmptyAudio = errors.New("audio cannot be empty")

// TranscribeOpts controls transcription behavior.
type TranscribeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "hi") to constrain recognition.
	// Empty lets the service identify the language.
	Language string

	// Prompt provides context to improve recognition of domain-specific terms.
	Prompt string

	// Model overrides the default transcription model.
	Model string
}

// TranscribeResult holds the output of transcription.
type TranscribeResult struct {
	// Text is the recognized speech.
	Text string

	// Language is the language reported by the service, as returned (may be a
	// full name such as "English" or a code such as "en").
	Language string
}

// RespondRequest is a single-turn query to the language model.
type RespondRequest struct {
	// Prompt is the complete user message.
	Prompt string

	// ImagePath references an uploaded image. Backends only forward it when
	// image attachment is enabled in their configuration.
	ImagePath string
}

// Interpreter is the interface for audio transcription and response generation.
type Interpreter interface {
	// Name returns the backend identifier (e.g., "groq", "local").
	Name() string

	// Transcribe converts audio bytes to text.
	Transcribe(ctx context.Context, audio []byte, contentType string, opts TranscribeOpts) (*TranscribeResult, error)

	// Respond sends a single-turn query and returns the model's reply.
	Respond(ctx context.Context, req RespondRequest) (string, error)

	// Close releases any resources held by the interpreter.
	Close() error
}

// APIError is a failed call to a remote model service.
type APIError struct {
	Backend    string
	Op         string
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Backend + " " + e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: rate limits, server
// errors and transport errors without a response.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == 429 || e.StatusCode >= 500:
		return true
	case e.StatusCode == 0:
		return retry.IsRetryable(e.Err)
	default:
		return false
	}
}

// ExtFromContentType maps an audio MIME type to a file extension the
// transcription services recognise.
func ExtFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "m4a"), strings.Contains(ct, "mp4"):
		return ".m4a"
	default:
		return ".wav"
	}
}

// ContentTypeFromExt maps an audio file extension to its MIME type,
// defaulting to audio/wav.
func ContentTypeFromExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp3":
		return "audio/mpeg"
	case "ogg", "oga", "opus":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "webm":
		return "audio/webm"
	case "m4a", "mp4":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}

var languageNames = map[string]string{
	"english":    "en",
	"french":     "fr",
	"spanish":    "es",
	"castilian":  "es",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"polish":     "pl",
	"russian":    "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"arabic":     "ar",
	"hindi":      "hi",
	"turkish":    "tr",
}

// NormalizeLanguage converts a reported language (full name or code, e.g.
// "English", "en-US") to a lower-case two-letter code. Unknown names are
// truncated to their first two characters.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageNames[lang]; ok {
		return code
	}
	if len(lang) > 2 {
		return lang[:2]
	}
	return lang
}
