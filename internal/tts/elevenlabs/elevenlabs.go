// Package elevenlabs implements the primary TTS tier using the ElevenLabs API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/tts"
)

const (
	providerName   = "elevenlabs"
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	outputFormat   = "mp3_44100_128"
	defaultModel   = "eleven_multilingual_v2"
)

// knownVoices maps premade voice names to ElevenLabs voice IDs.
var knownVoices = map[string]string{
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"aria":   "9BWtsMINqrJLrRacOk9x",
	"domi":   "AZnzlk1XvdvUeBnXmlld",
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"antoni": "ErXwobaYiN019PkySvjV",
	"adam":   "pNInz6obpgDQGcFmaJgB",
}

// Synthesizer implements tts.Synthesizer with ElevenLabs text-to-speech.
type Synthesizer struct {
	apiKey          string
	baseURL         string
	stability       float64
	similarityBoost float64
	voiceIDs        map[string]string
	client          *http.Client

	mu      sync.Mutex
	library map[string]string // account voice library by lowercase name, loaded on first miss
}

// New creates an ElevenLabs synthesizer from config. httpClient may be nil.
func New(cfg config.ElevenLabsConfig, httpClient *http.Client) *Synthesizer {
	voiceIDs := make(map[string]string, len(knownVoices)+len(cfg.VoiceIDs))
	for k, v := range knownVoices {
		voiceIDs[k] = v
	}
	for k, v := range cfg.VoiceIDs {
		voiceIDs[strings.ToLower(k)] = v
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Synthesizer{
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		stability:       cfg.Stability,
		similarityBoost: cfg.SimilarityBoost,
		voiceIDs:        voiceIDs,
		client:          httpClient,
	}
}

// Name returns the provider identifier.
func (s *Synthesizer) Name() string { return providerName }

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to MP3 audio with the requested voice and model.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	if s.apiKey == "" {
		return nil, &tts.SynthesisError{Provider: providerName, Message: "cannot synthesize", Cause: tts.ErrMissingAPIKey}
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	voiceID := s.resolveVoice(ctx, opts.Voice)

	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: model,
		VoiceSettings: voiceSettings{
			Stability:       s.stability,
			SimilarityBoost: s.similarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", s.baseURL, voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	slog.Debug("elevenlabs synthesize", "voice", voiceID, "model", model, "text_length", len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &tts.SynthesisError{Provider: providerName, Message: "request failed", Cause: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, handleError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tts.SynthesisError{Provider: providerName, Message: "reading audio", Cause: err, Transient: true}
	}
	if len(audio) == 0 {
		return nil, &tts.SynthesisError{Provider: providerName, Message: "empty audio response"}
	}

	return &tts.SynthesizeResult{Audio: audio, ContentType: "audio/mpeg"}, nil
}

// Close is a no-op; connections are per-request.
func (s *Synthesizer) Close() error { return nil }

// resolveVoice maps a voice name to its ID. Names missing from the built-in
// and configured maps are looked up in the account's voice library. Values
// found nowhere are assumed to be IDs.
func (s *Synthesizer) resolveVoice(ctx context.Context, voice string) string {
	if voice == "" {
		return knownVoices["rachel"]
	}
	key := strings.ToLower(voice)
	if id, ok := s.voiceIDs[key]; ok {
		return id
	}

	library, err := s.voiceLibrary(ctx)
	if err != nil {
		slog.Warn("elevenlabs voice lookup failed, using voice as id", "voice", voice, "error", err)
		return voice
	}
	if id, ok := library[key]; ok {
		return id
	}
	return voice
}

type voicesResponse struct {
	Voices []struct {
		VoiceID string `json:"voice_id"`
		Name    string `json:"name"`
	} `json:"voices"`
}

// voiceLibrary fetches GET /voices once per Synthesizer. Failed fetches are
// not cached.
func (s *Synthesizer) voiceLibrary(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.library != nil {
		return s.library, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, handleError(resp)
	}

	var voices voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("decoding voices: %w", err)
	}

	library := make(map[string]string, len(voices.Voices))
	for _, v := range voices.Voices {
		key := strings.ToLower(strings.TrimSpace(v.Name))
		if _, dup := library[key]; key == "" || v.VoiceID == "" || dup {
			continue
		}
		library[key] = v.VoiceID
	}
	slog.Debug("elevenlabs voice library loaded", "voices", len(library))
	s.library = library
	return library, nil
}

type errorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

func handleError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	msg := strings.TrimSpace(string(raw))
	var errResp errorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Detail.Message != "" {
		msg = errResp.Detail.Message
	}

	return &tts.SynthesisError{
		Provider:   providerName,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("status %d: %s", resp.StatusCode, msg),
		Transient:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
	}
}
