package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nadzzz/voicedoc/internal/interpreter"
	"github.com/nadzzz/voicedoc/internal/language"
	"github.com/nadzzz/voicedoc/internal/retry"
)

// Text shown to the patient when a stage falls back.
const (
	TranscriptionFailedText = "Audio transcription failed. Please try again."
	GenerationFailedText    = "Medical analysis unavailable currently. Please describe your symptoms in detail."
	NoAudioText             = "No audio provided"
	SystemErrorPrefix       = "System error: "
)

// errNoLanguage is returned when the service transcribed the audio but did
// not report a language.
var errNoLanguage = errors.New("no language reported")

// Detector identifies the spoken language of a recording.
type Detector interface {
	// Detect returns a two-letter code. On failure it returns
	// language.FallbackCode together with the cause.
	Detect(ctx context.Context, audioPath string) (string, error)
}

// SpeechToText converts a recording to text.
type SpeechToText interface {
	// Transcribe returns the recognized text. On failure it returns
	// TranscriptionFailedText together with the cause. An empty hint lets
	// the service identify the language.
	Transcribe(ctx context.Context, audioPath, languageHint string) (string, error)
}

// Generator produces the diagnosis reply.
type Generator interface {
	// Generate returns the model reply. On failure it returns
	// GenerationFailedText together with the cause.
	Generate(ctx context.Context, prompt, imagePath string) (string, error)
}

// LanguageDetector detects the language with a transcription call whose
// language is left open, reading the language the service reports.
type LanguageDetector struct {
	interp interpreter.Interpreter
	policy retry.Policy
}

// NewLanguageDetector creates a detector backed by interp.
func NewLanguageDetector(interp interpreter.Interpreter, policy retry.Policy) *LanguageDetector {
	return &LanguageDetector{interp: interp, policy: policy}
}

// Detect implements Detector.
func (d *LanguageDetector) Detect(ctx context.Context, audioPath string) (string, error) {
	audio, contentType, err := readAudio(audioPath)
	if err != nil {
		return language.FallbackCode, err
	}

	res, err := retry.Do(ctx, d.policy, func(ctx context.Context) (*interpreter.TranscribeResult, error) {
		return d.interp.Transcribe(ctx, audio, contentType, interpreter.TranscribeOpts{})
	})
	if err != nil {
		return language.FallbackCode, fmt.Errorf("detecting language: %w", err)
	}

	code := interpreter.NormalizeLanguage(res.Language)
	if code == "" {
		return language.FallbackCode, errNoLanguage
	}
	slog.Debug("language detected", "reported", res.Language, "code", code)
	return code, nil
}

// Transcriber converts the patient's recording to text.
type Transcriber struct {
	interp interpreter.Interpreter
	policy retry.Policy
}

// NewTranscriber creates a transcriber backed by interp.
func NewTranscriber(interp interpreter.Interpreter, policy retry.Policy) *Transcriber {
	return &Transcriber{interp: interp, policy: policy}
}

// Transcribe implements SpeechToText.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, languageHint string) (string, error) {
	audio, contentType, err := readAudio(audioPath)
	if err != nil {
		return TranscriptionFailedText, err
	}

	res, err := retry.Do(ctx, t.policy, func(ctx context.Context) (*interpreter.TranscribeResult, error) {
		return t.interp.Transcribe(ctx, audio, contentType, interpreter.TranscribeOpts{Language: languageHint})
	})
	if err != nil {
		return TranscriptionFailedText, fmt.Errorf("transcribing: %w", err)
	}
	return res.Text, nil
}

// ResponseGenerator sends the patient prompt to the language model.
type ResponseGenerator struct {
	interp interpreter.Interpreter
	policy retry.Policy
}

// NewResponseGenerator creates a generator backed by interp.
func NewResponseGenerator(interp interpreter.Interpreter, policy retry.Policy) *ResponseGenerator {
	return &ResponseGenerator{interp: interp, policy: policy}
}

// Generate implements Generator.
func (g *ResponseGenerator) Generate(ctx context.Context, prompt, imagePath string) (string, error) {
	reply, err := retry.Do(ctx, g.policy, func(ctx context.Context) (string, error) {
		return g.interp.Respond(ctx, interpreter.RespondRequest{Prompt: prompt, ImagePath: imagePath})
	})
	if err != nil {
		return GenerationFailedText, fmt.Errorf("generating response: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return GenerationFailedText, errors.New("generating response: empty reply")
	}
	return reply, nil
}

// BuildPrompt assembles the single user message sent to the model.
func BuildPrompt(prefix, patientText string) string {
	return prefix + "\nPatient says: " + patientText
}

func readAudio(path string) ([]byte, string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading audio: %w", err)
	}
	return audio, interpreter.ContentTypeFromExt(filepath.Ext(path)), nil
}
