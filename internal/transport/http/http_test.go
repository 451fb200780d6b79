package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/message"
)

type captured struct {
	consultation *message.Consultation
	audio        []byte
	image        []byte
}

func newServer(t *testing.T, cfg config.HTTPConfig, artifactDir string, got *captured) *httptest.Server {
	t.Helper()
	if cfg.UploadDir == "" {
		cfg.UploadDir = t.TempDir()
	}
	cfg.AllowedOrigins = []string{"*"}

	handler := func(_ context.Context, c *message.Consultation) (*message.ConsultResult, error) {
		got.consultation = c
		if c.HasAudio() {
			got.audio, _ = os.ReadFile(c.AudioPath)
		}
		if c.HasImage() {
			got.image, _ = os.ReadFile(c.ImagePath)
		}
		return &message.ConsultResult{
			RequestID:         c.ID,
			Transcript:        "I have a rash on my arm",
			DiagnosisText:     "This could be contact dermatitis...",
			VoiceArtifactPath: filepath.Join(artifactDir, "diagnosis_1.mp3"),
			Language:          "en",
			Status:            message.StatusOK,
		}, nil
	}

	tr := New(cfg, artifactDir, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("voicedoc_up 1\n"))
	}))
	server := httptest.NewServer(tr.Router(handler))
	t.Cleanup(server.Close)
	return server
}

func TestConsult_Multipart(t *testing.T) {
	var got captured
	server := newServer(t, config.HTTPConfig{}, t.TempDir(), &got)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "rec.wav")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("RIFFaudio"))
	fw, err = mw.CreateFormFile("image", "rash.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("PNGimage"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(server.URL+"/consult", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res message.ConsultResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "This could be contact dermatitis...", res.DiagnosisText)
	assert.Equal(t, "/artifacts/diagnosis_1.mp3", res.VoiceArtifactURL)
	assert.NotEmpty(t, res.RequestID)

	assert.Equal(t, []byte("RIFFaudio"), got.audio)
	assert.Equal(t, []byte("PNGimage"), got.image)
	assert.Equal(t, ".wav", filepath.Ext(got.consultation.AudioPath))

	// Uploads are removed once the consultation completes.
	assert.NoFileExists(t, got.consultation.AudioPath)
	assert.NoFileExists(t, got.consultation.ImagePath)
}

func TestConsult_BrowserRecording(t *testing.T) {
	var got captured
	server := newServer(t, config.HTTPConfig{}, t.TempDir(), &got)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "recording.webm")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("webm-opus"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(server.URL+"/consult", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []byte("webm-opus"), got.audio)
	assert.Equal(t, ".webm", filepath.Ext(got.consultation.AudioPath))
}

func TestConsult_ImageOnly(t *testing.T) {
	var got captured
	server := newServer(t, config.HTTPConfig{}, t.TempDir(), &got)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "rash.jpg")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("JPEG"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(server.URL+"/consult", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.False(t, got.consultation.HasAudio())
	assert.True(t, got.consultation.HasImage())
}

func TestConsult_RawAudio(t *testing.T) {
	var got captured
	server := newServer(t, config.HTTPConfig{}, t.TempDir(), &got)

	resp, err := http.Post(server.URL+"/consult", "audio/mpeg", strings.NewReader("ID3data"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []byte("ID3data"), got.audio)
	assert.Equal(t, ".mp3", filepath.Ext(got.consultation.AudioPath))
}

func TestConsult_EmptyBodyHasNoAudio(t *testing.T) {
	var got captured
	server := newServer(t, config.HTTPConfig{}, t.TempDir(), &got)

	resp, err := http.Post(server.URL+"/consult", "audio/wav", http.NoBody)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, got.consultation.HasAudio())
}

func TestConsult_TooLarge(t *testing.T) {
	called := false
	handler := func(_ context.Context, _ *message.Consultation) (*message.ConsultResult, error) {
		called = true
		return &message.ConsultResult{}, nil
	}
	tr := New(config.HTTPConfig{UploadDir: t.TempDir(), MaxUploadMB: 1}, t.TempDir(), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/consult", bytes.NewReader(make([]byte, 2<<20)))
	req.Header.Set("Content-Type", "audio/wav")
	tr.Router(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
}

func TestConsult_RateLimited(t *testing.T) {
	var got captured
	server := newServer(t, config.HTTPConfig{RateLimit: 1}, t.TempDir(), &got)

	resp, err := http.Post(server.URL+"/consult", "audio/wav", strings.NewReader("a"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(server.URL+"/consult", "audio/wav", strings.NewReader("a"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "diagnosis_1.mp3"), []byte("mp3"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("no"), 0o644))

	var got captured
	server := newServer(t, config.HTTPConfig{}, dir, &got)

	resp, err := http.Get(server.URL + "/artifacts/diagnosis_1.mp3")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/artifacts/secret.txt")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFormAndMetrics(t *testing.T) {
	var got captured
	server := newServer(t, config.HTTPConfig{}, t.TempDir(), &got)

	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(page), "MediaRecorder")
	assert.Contains(t, string(page), `body.set("audio", recording`)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConsult_RateLimitKey(t *testing.T) {
	handler := func(_ context.Context, c *message.Consultation) (*message.ConsultResult, error) {
		return &message.ConsultResult{RequestID: c.ID}, nil
	}

	post := func(router http.Handler, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/consult", strings.NewReader("a"))
		req.Header.Set("Content-Type", "audio/wav")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("forwarding headers ignored by default", func(t *testing.T) {
		router := New(config.HTTPConfig{UploadDir: t.TempDir(), RateLimit: 1}, t.TempDir(), nil).Router(handler)
		assert.Equal(t, http.StatusOK, post(router, "203.0.113.1"))
		assert.Equal(t, http.StatusTooManyRequests, post(router, "203.0.113.2"))
	})

	t.Run("trusted proxy", func(t *testing.T) {
		router := New(config.HTTPConfig{UploadDir: t.TempDir(), RateLimit: 1, TrustProxy: true}, t.TempDir(), nil).Router(handler)
		assert.Equal(t, http.StatusOK, post(router, "203.0.113.1"))
		assert.Equal(t, http.StatusOK, post(router, "203.0.113.2"))
		assert.Equal(t, http.StatusTooManyRequests, post(router, "203.0.113.1"))
	})
}
