// Package http implements the HTTP transport for voicedoc.
//
// It serves a small upload form, a consultation endpoint that accepts a
// multipart form or a raw audio body, the generated voice artifacts, the
// Swagger UI and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/interpreter"
	"github.com/nadzzz/voicedoc/internal/message"
	"github.com/nadzzz/voicedoc/internal/transport"
)

const artifactRoute = "/artifacts/"

// Transport implements transport.Transport over HTTP.
type Transport struct {
	cfg         config.HTTPConfig
	artifactDir string
	metrics     http.Handler
	server      *http.Server
}

// New creates a new HTTP transport. metrics may be nil.
func New(cfg config.HTTPConfig, artifactDir string, metrics http.Handler) *Transport {
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 25
	}
	return &Transport{cfg: cfg, artifactDir: artifactDir, metrics: metrics}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Router builds the route table around handler.
func (t *Transport) Router(handler transport.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// Forwarding headers pick the rate-limit key, so only honor them behind a
	// trusted proxy.
	if t.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: t.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}),
	)

	r.Get("/", serveForm)

	consult := func(w http.ResponseWriter, r *http.Request) { t.handleConsult(w, r, handler) }
	if t.cfg.RateLimit > 0 {
		r.With(httprate.LimitByIP(t.cfg.RateLimit, time.Minute)).Post("/consult", consult)
	} else {
		r.Post("/consult", consult)
	}

	r.Get(artifactRoute+"{name}", t.handleArtifact)

	// Swagger UI for the generated OpenAPI docs.
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	if t.metrics != nil {
		r.Handle("/metrics", t.metrics)
	}

	return r
}

// Listen starts the HTTP server and routes incoming consultations to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	if err := os.MkdirAll(t.cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}

	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.cfg.Port),
		Handler:           t.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.cfg.Port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleConsult processes a POST /consult request.
//
// @Summary     Run a consultation
// @Description Accepts a multipart form with an optional "audio" recording and an optional "image",
// @Description or a raw audio body. The recording is transcribed in the detected language, a diagnosis
// @Description is generated and spoken back. Stage failures are reported in status and failures;
// @Description the response is 200 whenever a result was produced.
// @Tags        consult
// @Accept      multipart/form-data
// @Accept      audio/wav
// @Accept      audio/mpeg
// @Produce     json
// @Param       audio  formData  file  false  "Recorded symptom description"
// @Param       image  formData  file  false  "Medical image"
// @Success     200  {object}  message.ConsultResult  "Consultation result"
// @Failure     400  {string}  string  "Invalid upload"
// @Failure     413  {string}  string  "Upload too large"
// @Failure     429  {string}  string  "Rate limit exceeded"
// @Failure     500  {string}  string  "Internal processing error"
// @Router      /consult [post]
func (t *Transport) handleConsult(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	maxBytes := int64(t.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	c := &message.Consultation{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now(),
	}
	logger := slog.With("request_id", c.ID, "http_request_id", middleware.GetReqID(r.Context()))

	var uploads []string
	defer func() {
		for _, p := range uploads {
			_ = os.Remove(p)
		}
	}()

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			uploadError(w, err)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		for _, field := range []string{"audio", "image"} {
			path, err := t.saveFormFile(r, field)
			if err != nil {
				uploadError(w, err)
				return
			}
			if path == "" {
				continue
			}
			uploads = append(uploads, path)
			if field == "audio" {
				c.AudioPath = path
			} else {
				c.ImagePath = path
			}
		}
	} else {
		// Treat body as raw audio.
		path, err := t.saveUpload(r.Body, interpreter.ExtFromContentType(contentType))
		if err != nil {
			uploadError(w, err)
			return
		}
		if path != "" {
			uploads = append(uploads, path)
			c.AudioPath = path
		}
	}

	logger.Info("consultation received", "has_audio", c.HasAudio(), "has_image", c.HasImage())

	result, err := handler(r.Context(), c)
	if err != nil {
		logger.Error("consultation failed", "error", err)
		http.Error(w, "consultation error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if result.VoiceArtifactPath != "" && result.VoiceArtifactURL == "" {
		result.VoiceArtifactURL = artifactRoute + filepath.Base(result.VoiceArtifactPath)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// handleArtifact serves a generated voice artifact.
//
// @Summary     Fetch a spoken diagnosis
// @Tags        consult
// @Produce     audio/mpeg
// @Produce     audio/wav
// @Param       name  path  string  true  "Artifact file name"
// @Success     200  {file}    binary  "Audio"
// @Failure     404  {string}  string  "Not found"
// @Router      /artifacts/{name} [get]
func (t *Transport) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || !strings.HasPrefix(name, "diagnosis_") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(t.artifactDir, name))
}

func (t *Transport) saveFormFile(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", field, err)
	}
	defer file.Close()

	return t.saveUpload(file, uploadExt(field, header))
}

// saveUpload copies src into the upload dir under a random name. It returns
// "" when src is empty.
func (t *Transport) saveUpload(src io.Reader, ext string) (string, error) {
	path := filepath.Join(t.cfg.UploadDir, uuid.NewString()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating upload: %w", err)
	}

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil || n == 0 {
		_ = os.Remove(path)
		if err != nil {
			return "", fmt.Errorf("saving upload: %w", err)
		}
		return "", nil
	}
	return path, nil
}

func uploadExt(field string, header *multipart.FileHeader) string {
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if field == "audio" {
		return interpreter.ExtFromContentType(header.Header.Get("Content-Type"))
	}
	return ".img"
}

func uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "invalid upload: "+err.Error(), http.StatusBadRequest)
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
