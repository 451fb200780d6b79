// Package groq implements the Interpreter interface against Groq's
// OpenAI-compatible API.
//
// It uses the Audio Transcription API (whisper-large-v3) for speech-to-text
// and language identification, and the Chat Completions API for the
// diagnosis reply. Any OpenAI-compatible endpoint works by changing BaseURL.
package groq

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/interpreter"
)

const backendName = "groq"

// Interpreter uses an OpenAI-compatible API for transcription and chat.
type Interpreter struct {
	client             *openai.Client
	transcriptionModel string
	completionModel    string
	temperature        float32
	maxTokens          int
	attachImages       bool
}

// New creates a new Groq interpreter from config. httpClient may be nil.
func New(cfg config.GroqConfig, httpClient *http.Client) *Interpreter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return &Interpreter{
		client:             openai.NewClientWithConfig(clientCfg),
		transcriptionModel: cfg.TranscriptionModel,
		completionModel:    cfg.CompletionModel,
		temperature:        cfg.Temperature,
		maxTokens:          cfg.MaxTokens,
		attachImages:       cfg.AttachImages,
	}
}

// Name returns the backend identifier.
func (i *Interpreter) Name() string { return backendName }

// Transcribe sends audio to the transcription API. With an empty
// opts.Language the service identifies the language itself.
func (i *Interpreter) Transcribe(ctx context.Context, audio []byte, contentType string, opts interpreter.TranscribeOpts) (*interpreter.TranscribeResult, error) {
	if len(audio) == 0 {
		return nil, interpreter.ErrEmptyAudio
	}

	model := i.transcriptionModel
	if opts.Model != "" {
		model = opts.Model
	}

	resp, err := i.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: "audio" + interpreter.ExtFromContentType(contentType),
		Reader:   bytes.NewReader(audio),
		Language: opts.Language,
		Prompt:   opts.Prompt,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, wrapError("transcription", err)
	}

	slog.Debug("transcription complete", "text_length", len(resp.Text), "language", resp.Language)
	return &interpreter.TranscribeResult{
		Text:     resp.Text,
		Language: resp.Language,
	}, nil
}

// Respond sends a single user message to the Chat Completions API.
func (i *Interpreter) Respond(ctx context.Context, req interpreter.RespondRequest) (string, error) {
	msg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	}

	if req.ImagePath != "" {
		if i.attachImages {
			dataURL, err := imageDataURL(req.ImagePath)
			if err != nil {
				return "", fmt.Errorf("attaching image: %w", err)
			}
			msg = openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			}
		} else {
			slog.Debug("image reference not forwarded to model", "image", filepath.Base(req.ImagePath))
		}
	}

	resp, err := i.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       i.completionModel,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: i.temperature,
		MaxTokens:   i.maxTokens,
	})
	if err != nil {
		return "", wrapError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", &interpreter.APIError{Backend: backendName, Op: "chat", Message: "no choices returned"}
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("chat complete", "reply_length", len(content), "finish_reason", resp.Choices[0].FinishReason)
	return content, nil
}

// Close is a no-op for the Groq interpreter.
func (i *Interpreter) Close() error { return nil }

// wrapError converts go-openai errors into interpreter.APIError so the retry
// policy can see the HTTP status.
func wrapError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &interpreter.APIError{
			Backend:    backendName,
			Op:         op,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &interpreter.APIError{
			Backend:    backendName,
			Op:         op,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        reqErr.Err,
		}
	}
	return &interpreter.APIError{Backend: backendName, Op: op, Err: err}
}

func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
