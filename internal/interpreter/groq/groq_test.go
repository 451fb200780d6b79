package groq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/interpreter"
)

func newTestInterpreter(t *testing.T, handler http.HandlerFunc, attachImages bool) *Interpreter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(config.GroqConfig{
		APIKey:             "gsk-test",
		BaseURL:            server.URL,
		TranscriptionModel: "whisper-large-v3",
		CompletionModel:    "llama3-70b-8192",
		Temperature:        0.7,
		MaxTokens:          300,
		AttachImages:       attachImages,
	}, server.Client())
}

func TestTranscribe_AutoDetect(t *testing.T) {
	interp := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large-v3", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Empty(t, r.FormValue("language"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "English",
			"duration": 2.5,
			"text":     "I have a rash on my arm",
		})
	}, false)

	res, err := interp.Transcribe(context.Background(), []byte("RIFF...."), "audio/wav", interpreter.TranscribeOpts{})
	require.NoError(t, err)
	assert.Equal(t, "I have a rash on my arm", res.Text)
	assert.Equal(t, "English", res.Language)
}

func TestTranscribe_LanguageHint(t *testing.T) {
	interp := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hi", r.FormValue("language"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"मेरे हाथ पर दाने हैं","language":"hi"}`))
	}, false)

	res, err := interp.Transcribe(context.Background(), []byte("audio"), "audio/webm", interpreter.TranscribeOpts{Language: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "मेरे हाथ पर दाने हैं", res.Text)
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	interp := New(config.GroqConfig{}, nil)
	_, err := interp.Transcribe(context.Background(), nil, "audio/wav", interpreter.TranscribeOpts{})
	assert.ErrorIs(t, err, interpreter.ErrEmptyAudio)
}

func TestRespond_SingleTurn(t *testing.T) {
	interp := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3-70b-8192", req.Model)
		assert.InDelta(t, 0.7, req.Temperature, 0.001)
		assert.Equal(t, 300, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "Provide medical analysis in English\nPatient says: I have a rash on my arm", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"This could be contact dermatitis..."}}]}`))
	}, false)

	reply, err := interp.Respond(context.Background(), interpreter.RespondRequest{
		Prompt:    "Provide medical analysis in English\nPatient says: I have a rash on my arm",
		ImagePath: "/tmp/not-forwarded.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "This could be contact dermatitis...", reply)
}

func TestRespond_AttachImage(t *testing.T) {
	img := filepath.Join(t.TempDir(), "rash.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\n"), 0o600))

	interp := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content []struct {
					Type     string `json:"type"`
					ImageURL *struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "image_url", req.Messages[0].Content[1].Type)
		assert.Contains(t, req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}, true)

	reply, err := interp.Respond(context.Background(), interpreter.RespondRequest{Prompt: "look", ImagePath: img})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestRespond_APIErrorCarriesStatus(t *testing.T) {
	interp := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"over capacity","type":"server_error"}}`))
	}, false)

	_, err := interp.Respond(context.Background(), interpreter.RespondRequest{Prompt: "hi"})
	require.Error(t, err)

	var apiErr *interpreter.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())
}

func TestRespond_NoChoices(t *testing.T) {
	interp := newTestInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}, false)

	_, err := interp.Respond(context.Background(), interpreter.RespondRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
