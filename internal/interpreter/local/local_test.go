package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/interpreter"
)

func TestTranscribe_OpenAICompatible(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "fr", r.FormValue("language"))
		_, _ = w.Write([]byte(`{"text":" J'ai une éruption sur le bras ","language":"french"}`))
	}))
	defer server.Close()

	interp := New(config.LocalConfig{WhisperEndpoint: server.URL}, server.Client())
	res, err := interp.Transcribe(context.Background(), []byte("audio"), "audio/ogg", interpreter.TranscribeOpts{Language: "fr"})
	require.NoError(t, err)
	assert.Equal(t, "J'ai une éruption sur le bras", res.Text)
	assert.Equal(t, "french", res.Language)
}

func TestTranscribe_ASR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "transcribe", r.URL.Query().Get("task"))
		assert.Equal(t, "true", r.URL.Query().Get("vad_filter"))
		assert.Empty(t, r.URL.Query().Get("language"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("audio_file")
		require.NoError(t, err)
		_, _ = w.Write([]byte(`{"text":"hello","language":"en"}`))
	}))
	defer server.Close()

	interp := New(config.LocalConfig{WhisperEndpoint: server.URL + "/asr", WhisperType: "asr", VADFilter: true}, server.Client())
	res, err := interp.Transcribe(context.Background(), []byte("audio"), "audio/wav", interpreter.TranscribeOpts{})
	require.NoError(t, err)
	assert.Equal(t, "en", res.Language)
}

func TestRespond_Ollama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req["model"])
		assert.Equal(t, "prompt text", req["prompt"])
		opts := req["options"].(map[string]any)
		assert.InDelta(t, 300, opts["num_predict"], 0.1)
		_, _ = w.Write([]byte(`{"response":"Rest and hydrate."}`))
	}))
	defer server.Close()

	interp := New(config.LocalConfig{LLMEndpoint: server.URL + "/api/generate", MaxTokens: 300, Temperature: 0.7}, server.Client())
	reply, err := interp.Respond(context.Background(), interpreter.RespondRequest{Prompt: "prompt text"})
	require.NoError(t, err)
	assert.Equal(t, "Rest and hydrate.", reply)
}

func TestRespond_ChatCompatible(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"See a doctor."}}]}`))
	}))
	defer server.Close()

	interp := New(config.LocalConfig{LLMEndpoint: server.URL + "/v1/chat/completions", LLMModel: "qwen"}, server.Client())
	reply, err := interp.Respond(context.Background(), interpreter.RespondRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "See a doctor.", reply)
}

func TestRespond_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	interp := New(config.LocalConfig{LLMEndpoint: server.URL + "/api/generate"}, server.Client())
	_, err := interp.Respond(context.Background(), interpreter.RespondRequest{Prompt: "p"})

	var apiErr *interpreter.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable())
}

func TestRespond_EmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"   "}`))
	}))
	defer server.Close()

	interp := New(config.LocalConfig{LLMEndpoint: server.URL + "/api/generate"}, server.Client())
	_, err := interp.Respond(context.Background(), interpreter.RespondRequest{Prompt: "p"})
	require.Error(t, err)
}
