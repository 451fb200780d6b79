// Package dispatch implements the consultation pipeline.
//
// The dispatcher receives consultations from transports and runs them
// through language detection, transcription, response generation and speech
// synthesis. Every stage has a fallback value, so the sender always receives
// a result; Status and Failures tell real output from fallback output.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/nadzzz/voicedoc/internal/language"
	"github.com/nadzzz/voicedoc/internal/message"
	"github.com/nadzzz/voicedoc/internal/metrics"
	"github.com/nadzzz/voicedoc/internal/retry"
	"github.com/nadzzz/voicedoc/internal/storage"
	"github.com/nadzzz/voicedoc/internal/tts"
	"github.com/nadzzz/voicedoc/internal/tts/fallback"
)

// Speaker writes spoken text to an audio file.
type Speaker interface {
	SynthesizeToFile(ctx context.Context, text string, opts tts.SynthesizeOpts, outPath string) (*fallback.Artifact, error)
}

// Options wires the dispatcher's collaborators.
type Options struct {
	Detector    Detector
	Transcriber SpeechToText
	Generator   Generator
	Speaker     Speaker
	Languages   *language.Table

	// ArtifactDir receives diagnosis_<unix-nanos>.mp3 files.
	ArtifactDir string

	// RequestTimeout bounds a whole consultation. Zero means unbounded.
	RequestTimeout time.Duration

	// Publisher mirrors artifacts; nil disables publishing.
	Publisher storage.Publisher

	// Metrics may be nil.
	Metrics *metrics.Recorder

	// Now names artifacts. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher is the consultation orchestrator.
type Dispatcher struct {
	detector       Detector
	transcriber    SpeechToText
	generator      Generator
	speaker        Speaker
	languages      *language.Table
	artifactDir    string
	requestTimeout time.Duration
	publisher      storage.Publisher
	metrics        *metrics.Recorder
	now            func() time.Time
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		detector:       opts.Detector,
		transcriber:    opts.Transcriber,
		generator:      opts.Generator,
		speaker:        opts.Speaker,
		languages:      opts.Languages,
		artifactDir:    opts.ArtifactDir,
		requestTimeout: opts.RequestTimeout,
		publisher:      opts.Publisher,
		metrics:        opts.Metrics,
		now:            opts.Now,
	}
	if d.languages == nil {
		d.languages = language.NewTable(nil)
	}
	if d.artifactDir == "" {
		d.artifactDir = "."
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Process runs a consultation for the given paths. Either may be empty.
func (d *Dispatcher) Process(ctx context.Context, audioPath, imagePath string) *message.ConsultResult {
	res, _ := d.Handle(ctx, &message.Consultation{
		AudioPath:  audioPath,
		ImagePath:  imagePath,
		ReceivedAt: d.now(),
	})
	return res
}

// Handle processes a single consultation through the full pipeline.
// This function is passed as the transport.Handler to each transport. It
// never returns an error; failures are reported in the result.
func (d *Dispatcher) Handle(ctx context.Context, c *message.Consultation) (result *message.ConsultResult, err error) {
	start := time.Now()
	d.metrics.ConsultationStarted()

	var requestID string
	if c != nil {
		requestID = c.ID
	}
	logger := slog.With("request_id", requestID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("consultation panicked", "panic", r, "stack", string(debug.Stack()))
			result = systemError(requestID, fmt.Errorf("%v", r))
		}
		d.metrics.ConsultationFinished(string(result.Status), time.Since(start))
		logger.Info("consultation complete",
			"status", result.Status,
			"language", result.Language,
			"failures", len(result.Failures),
			"duration", time.Since(start),
		)
	}()

	if c == nil {
		return systemError(requestID, errors.New("no consultation")), nil
	}

	if d.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		defer cancel()
	}

	logger.Info("consultation started", "has_audio", c.HasAudio(), "has_image", c.HasImage())
	return d.run(ctx, logger, c), nil
}

func (d *Dispatcher) run(ctx context.Context, logger *slog.Logger, c *message.Consultation) *message.ConsultResult {
	result := &message.ConsultResult{
		RequestID: c.ID,
		Status:    message.StatusOK,
	}

	// Step 1: Detect language.
	langCode := language.FallbackCode
	detected := false
	if c.HasAudio() {
		t := time.Now()
		code, err := d.detector.Detect(ctx, c.AudioPath)
		d.observe(message.StageDetect, t, err)
		langCode = code
		if err != nil {
			logger.Warn("language detection failed, using fallback", "error", err, "language", langCode)
			result.AddFailure(message.StageDetect, classify(err), err)
		} else {
			detected = true
		}
	}
	result.Language = langCode

	// Step 2: Resolve voice, model and prompt.
	cfg := d.languages.Lookup(langCode)
	logger.Debug("language resolved", "language", langCode, "entry", cfg.Code, "voice", cfg.Voice, "model", cfg.Model)

	// Step 3: Transcribe.
	patientText := NoAudioText
	if c.HasAudio() {
		hint := ""
		if detected {
			hint = langCode
		}
		t := time.Now()
		text, err := d.transcriber.Transcribe(ctx, c.AudioPath, hint)
		d.observe(message.StageTranscribe, t, err)
		patientText = text
		if err != nil {
			logger.Error("transcription failed", "error", err)
			result.AddFailure(message.StageTranscribe, classify(err), err)
		} else {
			logger.Info("transcription complete", "text_length", len(text))
		}
	}
	result.Transcript = patientText

	// Step 4: Generate the diagnosis.
	t := time.Now()
	diagnosis, err := d.generator.Generate(ctx, BuildPrompt(cfg.PromptPrefix, patientText), c.ImagePath)
	d.observe(message.StageGenerate, t, err)
	if err != nil {
		logger.Error("response generation failed", "error", err)
		result.AddFailure(message.StageGenerate, classify(err), err)
	} else {
		logger.Info("response generated", "text_length", len(diagnosis))
	}
	result.DiagnosisText = diagnosis

	// Step 5: Speak the diagnosis. Missing audio does not fail the consultation.
	outPath := filepath.Join(d.artifactDir, fmt.Sprintf("diagnosis_%d.mp3", d.now().UnixNano()))
	t = time.Now()
	art, err := d.speaker.SynthesizeToFile(ctx, diagnosis, tts.SynthesizeOpts{
		Language: langCode,
		Voice:    cfg.Voice,
		Model:    cfg.Model,
	}, outPath)
	d.observe(message.StageSynthesize, t, err)
	if err != nil {
		logger.Warn("speech synthesis failed, continuing without audio", "error", err)
		result.AddFailure(message.StageSynthesize, classify(err), err)
		d.metrics.SynthesisTier("none")
		return result
	}
	result.VoiceArtifactPath = art.Path
	result.VoiceProvider = art.Provider
	d.metrics.SynthesisTier(art.Provider)

	if d.publisher != nil {
		t = time.Now()
		url, err := d.publisher.Publish(ctx, art.Path)
		d.observe(message.StagePublish, t, err)
		if err != nil {
			logger.Warn("publishing artifact failed", "path", art.Path, "error", err)
			result.AddFailure(message.StagePublish, classify(err), err)
		} else {
			result.VoiceArtifactURL = url
		}
	}

	return result
}

func (d *Dispatcher) observe(stage string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(classify(err))
	}
	d.metrics.ObserveStage(stage, outcome, time.Since(start))
}

// classify maps a stage error to a failure kind.
func classify(err error) message.FailureKind {
	switch {
	case errors.Is(err, fallback.ErrNoAudio):
		return message.FailureExhausted
	case errors.Is(err, context.DeadlineExceeded):
		return message.FailureTimeout
	case retry.IsRetryable(err):
		return message.FailureTransient
	default:
		return message.FailurePermanent
	}
}

// systemError builds the result for an aborted consultation.
func systemError(requestID string, err error) *message.ConsultResult {
	text := SystemErrorPrefix + err.Error()
	return &message.ConsultResult{
		RequestID:     requestID,
		Transcript:    text,
		DiagnosisText: text,
		Language:      language.FallbackCode,
		Status:        message.StatusFailed,
		Failures: []message.StageFailure{{
			Stage:   message.StagePipeline,
			Kind:    message.FailureInternal,
			Message: err.Error(),
		}},
	}
}
