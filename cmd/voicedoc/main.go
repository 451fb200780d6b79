// Voicedoc is a multilingual voice medical assistant. It transcribes a spoken
// symptom description in the patient's language, asks a hosted language model
// for an analysis and speaks the answer back in the same language.
//
// Usage:
//
//	voicedoc [flags]
//	voicedoc --config /path/to/voicedoc.yaml
//
// @title       voicedoc API
// @version     1.0
// @description Multilingual voice and vision medical assistant: record symptoms, get a spoken diagnosis back in your language.
// @BasePath    /
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/nadzzz/voicedoc/docs"
	"github.com/nadzzz/voicedoc/internal/config"
	"github.com/nadzzz/voicedoc/internal/dispatch"
	"github.com/nadzzz/voicedoc/internal/health"
	"github.com/nadzzz/voicedoc/internal/interpreter"
	groqinterp "github.com/nadzzz/voicedoc/internal/interpreter/groq"
	localinterp "github.com/nadzzz/voicedoc/internal/interpreter/local"
	"github.com/nadzzz/voicedoc/internal/language"
	"github.com/nadzzz/voicedoc/internal/metrics"
	"github.com/nadzzz/voicedoc/internal/retry"
	"github.com/nadzzz/voicedoc/internal/storage"
	"github.com/nadzzz/voicedoc/internal/transport"
	httptransport "github.com/nadzzz/voicedoc/internal/transport/http"
	"github.com/nadzzz/voicedoc/internal/tts"
	"github.com/nadzzz/voicedoc/internal/tts/elevenlabs"
	"github.com/nadzzz/voicedoc/internal/tts/fallback"
	"github.com/nadzzz/voicedoc/internal/tts/gtts"
	"github.com/nadzzz/voicedoc/internal/tts/piper"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/voicedoc.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("voicedoc %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("voicedoc starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	languages := language.NewTable(cfg.Languages)
	slog.Info("language table loaded", "languages", languages.Codes())

	// Timeouts come from per-attempt contexts, not the client.
	httpClient := &http.Client{}

	// Initialize the interpreter backend.
	var interp interpreter.Interpreter
	switch cfg.Interpreter.Backend {
	case "groq":
		interp = groqinterp.New(cfg.Interpreter.Groq, httpClient)
		slog.Info("using groq interpreter",
			"base_url", cfg.Interpreter.Groq.BaseURL,
			"transcription_model", cfg.Interpreter.Groq.TranscriptionModel,
			"completion_model", cfg.Interpreter.Groq.CompletionModel,
			"attach_images", cfg.Interpreter.Groq.AttachImages)
	case "local":
		interp = localinterp.New(cfg.Interpreter.Local, httpClient)
		slog.Info("using local interpreter",
			"whisper", cfg.Interpreter.Local.WhisperEndpoint,
			"llm", cfg.Interpreter.Local.LLMEndpoint)
	default:
		slog.Error("unknown interpreter backend", "backend", cfg.Interpreter.Backend)
		os.Exit(1)
	}
	defer interp.Close()

	// Initialize the synthesis chain: premium voice first, free engine second.
	var secondary tts.Synthesizer
	switch cfg.TTS.Fallback.Backend {
	case "gtts":
		secondary = gtts.New(cfg.TTS.Fallback.GTTS, httpClient)
	case "piper":
		secondary = piper.New(cfg.TTS.Fallback.Piper)
	case "none":
	default:
		slog.Error("unknown tts fallback backend", "backend", cfg.TTS.Fallback.Backend)
		os.Exit(1)
	}
	speaker := fallback.New(
		elevenlabs.New(cfg.TTS.ElevenLabs, httpClient),
		secondary,
		fallback.WithTierTimeout(cfg.Pipeline.Timeouts.Synthesize),
	)
	defer speaker.Close()
	slog.Info("speech synthesis configured", "primary", "elevenlabs", "fallback", cfg.TTS.Fallback.Backend)

	if err := os.MkdirAll(cfg.Pipeline.ArtifactDir, 0o755); err != nil {
		slog.Error("failed to create artifact dir", "path", cfg.Pipeline.ArtifactDir, "error", err)
		os.Exit(1)
	}

	// Optional artifact mirroring.
	var publisher storage.Publisher
	if cfg.Storage.S3.Enabled {
		s3, err := storage.NewS3(cfg.Storage.S3)
		if err != nil {
			slog.Error("failed to create s3 publisher", "error", err)
			os.Exit(1)
		}
		checkCtx, checkCancel := context.WithTimeout(ctx, 10*time.Second)
		err = s3.Check(checkCtx)
		checkCancel()
		if err != nil {
			slog.Error("s3 bucket unavailable", "bucket", cfg.Storage.S3.Bucket, "error", err)
			os.Exit(1)
		}
		publisher = s3
		slog.Info("publishing artifacts to s3", "endpoint", cfg.Storage.S3.Endpoint, "bucket", cfg.Storage.S3.Bucket)
	}

	recorder := metrics.New()

	// Create the dispatcher.
	policy := func(timeout time.Duration) retry.Policy {
		return retry.Policy{
			MaxAttempts:     cfg.Pipeline.Retry.MaxAttempts,
			InitialInterval: cfg.Pipeline.Retry.InitialInterval,
			MaxInterval:     cfg.Pipeline.Retry.MaxInterval,
			Timeout:         timeout,
		}
	}
	dispatcher := dispatch.New(dispatch.Options{
		Detector:       dispatch.NewLanguageDetector(interp, policy(cfg.Pipeline.Timeouts.Detect)),
		Transcriber:    dispatch.NewTranscriber(interp, policy(cfg.Pipeline.Timeouts.Transcribe)),
		Generator:      dispatch.NewResponseGenerator(interp, policy(cfg.Pipeline.Timeouts.Generate)),
		Speaker:        speaker,
		Languages:      languages,
		ArtifactDir:    cfg.Pipeline.ArtifactDir,
		RequestTimeout: cfg.Pipeline.Timeouts.Request,
		Publisher:      publisher,
		Metrics:        recorder,
	})

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort, cfg.Server.GRPCHealthPort)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	transports := []transport.Transport{
		httptransport.New(cfg.HTTP, cfg.Pipeline.ArtifactDir, recorder.Handler()),
	}

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, dispatcher.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	slog.Info("voicedoc ready",
		"http_port", cfg.HTTP.Port,
		"health_port", cfg.Server.HealthPort,
		"grpc_health_port", cfg.Server.GRPCHealthPort)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("voicedoc stopped")
}
