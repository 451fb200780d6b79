// Package tts defines the interface for text-to-speech synthesis.
//
// voicedoc speaks the diagnosis back in the language that was detected from
// the patient's recording. Providers are arranged in a fallback chain (see
// package fallback): a premium multilingual voice first, a free engine second.
package tts

import (
	"context"
	"errors"
	"strings"
)

// Common TTS errors.
var (
	// ErrEmptyText is returned when attempting to synthesize empty text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrMissingAPIKey is returned when a provider needs a key that was not configured.
	ErrMissingAPIKey = errors.New("api key not configured")
)

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "hi") used by providers that
	// select voices by locale.
	Language string

	// Voice is the provider voice name or ID.
	Voice string

	// Model is the provider synthesis model (e.g., "eleven_multilingual_v2").
	Model string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the provider identifier (for logging and results).
	Name() string

	// Synthesize generates audio for the given text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the encoded audio file content.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/mpeg").
	ContentType string
}

// SynthesisError provides detailed error information from TTS providers.
type SynthesisError struct {
	// Provider is the TTS provider that returned the error.
	Provider string

	// StatusCode is the HTTP status, 0 if no response was received.
	StatusCode int

	// Message is the error message.
	Message string

	// Cause is the underlying error (if any).
	Cause error

	// Transient indicates a retry may succeed.
	Transient bool
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is transient.
func (e *SynthesisError) Retryable() bool { return e.Transient }

// Extension returns the file extension for an audio MIME type.
func Extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "ogg"), strings.Contains(contentType, "opus"):
		return ".ogg"
	default:
		return ".mp3"
	}
}
