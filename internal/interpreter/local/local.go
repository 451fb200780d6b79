// Package local implements the Interpreter interface using self-hosted models.
//
// It supports any Whisper-compatible transcription endpoint (e.g., whisper.cpp
// server, faster-whisper, whisper-asr-webservice) and either Ollama's
// /api/generate or any OpenAI-compatible chat endpoint (vLLM, llama.cpp server).
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/interpreter"
)

const backendName = "local"

// Interpreter uses self-hosted models for transcription and response generation.
type Interpreter struct {
	whisperEndpoint string
	whisperType     string // "openai" or "asr"
	whisperModel    string
	llmEndpoint     string
	llmModel        string
	temperature     float64
	maxTokens       int
	vadFilter       bool
	client          *http.Client
}

// New creates a new local interpreter from config. httpClient may be nil.
func New(cfg config.LocalConfig, httpClient *http.Client) *Interpreter {
	wt := cfg.WhisperType
	if wt == "" {
		wt = "openai"
	}
	model := cfg.LLMModel
	if model == "" {
		model = "llama3"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Interpreter{
		whisperEndpoint: cfg.WhisperEndpoint,
		whisperType:     wt,
		whisperModel:    cfg.WhisperModel,
		llmEndpoint:     cfg.LLMEndpoint,
		llmModel:        model,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		vadFilter:       cfg.VADFilter,
		client:          httpClient,
	}
}

// Name returns the backend identifier.
func (i *Interpreter) Name() string { return backendName }

// Transcribe sends audio to the local Whisper-compatible endpoint.
// Supports two flavors:
//   - "openai": OpenAI-compatible API (whisper.cpp server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
func (i *Interpreter) Transcribe(ctx context.Context, audio []byte, contentType string, opts interpreter.TranscribeOpts) (*interpreter.TranscribeResult, error) {
	if len(audio) == 0 {
		return nil, interpreter.ErrEmptyAudio
	}
	switch i.whisperType {
	case "asr":
		return i.transcribeASR(ctx, audio, contentType, opts)
	default:
		return i.transcribeOpenAI(ctx, audio, contentType, opts)
	}
}

// transcribeASR handles the ahmetoner/whisper-asr-webservice format.
// API: POST /asr?task=transcribe&language=en&output=json&vad_filter=true
// Body: multipart/form-data with field "audio_file"
func (i *Interpreter) transcribeASR(ctx context.Context, audio []byte, contentType string, opts interpreter.TranscribeOpts) (*interpreter.TranscribeResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio_file", "audio"+interpreter.ExtFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	writer.Close()

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.Prompt != "" {
		q.Set("initial_prompt", opts.Prompt)
	}
	if i.vadFilter {
		q.Set("vad_filter", "true")
	}

	reqURL := i.whisperEndpoint + "?" + q.Encode()
	slog.Debug("whisper-asr request", "url", reqURL)
	return i.postTranscription(ctx, reqURL, body, writer.FormDataContentType())
}

// transcribeOpenAI handles OpenAI-compatible whisper endpoints.
func (i *Interpreter) transcribeOpenAI(ctx context.Context, audio []byte, contentType string, opts interpreter.TranscribeOpts) (*interpreter.TranscribeResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio"+interpreter.ExtFromContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}

	model := i.whisperModel
	if opts.Model != "" {
		model = opts.Model
	}
	if model != "" {
		_ = writer.WriteField("model", model)
	}
	if opts.Language != "" {
		_ = writer.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		_ = writer.WriteField("prompt", opts.Prompt)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	writer.Close()

	return i.postTranscription(ctx, i.whisperEndpoint, body, writer.FormDataContentType())
}

func (i *Interpreter) postTranscription(ctx context.Context, endpoint string, body io.Reader, contentType string) (*interpreter.TranscribeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, &interpreter.APIError{Backend: backendName, Op: "transcription", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &interpreter.APIError{Backend: backendName, Op: "transcription", StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding transcription: %w", err)
	}

	slog.Debug("local transcription complete", "text_length", len(result.Text), "language", result.Language)
	return &interpreter.TranscribeResult{
		Text:     strings.TrimSpace(result.Text),
		Language: result.Language,
	}, nil
}

// Respond sends the prompt to the local LLM endpoint. Endpoints ending in
// /api/generate get Ollama's native format; anything else is treated as an
// OpenAI-compatible chat completions endpoint. Images are not forwarded.
func (i *Interpreter) Respond(ctx context.Context, r interpreter.RespondRequest) (string, error) {
	var reqBody map[string]any
	if strings.HasSuffix(i.llmEndpoint, "/api/generate") {
		reqBody = map[string]any{
			"model":  i.llmModel,
			"prompt": r.Prompt,
			"stream": false,
			"options": map[string]any{
				"temperature": i.temperature,
				"num_predict": i.maxTokens,
			},
		}
	} else {
		reqBody = map[string]any{
			"model": i.llmModel,
			"messages": []map[string]string{
				{"role": "user", "content": r.Prompt},
			},
			"temperature": i.temperature,
			"max_tokens":  i.maxTokens,
			"stream":      false,
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.llmEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", &interpreter.APIError{Backend: backendName, Op: "generate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &interpreter.APIError{Backend: backendName, Op: "generate", StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading LLM response: %w", err)
	}

	content := strings.TrimSpace(extractContent(respData))
	if content == "" {
		return "", &interpreter.APIError{Backend: backendName, Op: "generate", Message: "empty response from local LLM"}
	}

	slog.Debug("local generation complete", "reply_length", len(content))
	return content, nil
}

// Close is a no-op for the local interpreter.
func (i *Interpreter) Close() error { return nil }

func extractContent(data []byte) string {
	// OpenAI-compatible format: {"choices": [{"message": {"content": "..."}}]}
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	// Ollama format: {"response": "..."}
	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil {
		return ollamaResp.Response
	}

	return ""
}
