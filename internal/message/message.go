// Package message defines the core data types flowing through the voicedoc pipeline.
package message

import (
	"time"
)

// Status is the overall outcome of a consultation.
//
// Stage fallbacks keep the textual fields readable for the patient, so the
// status is the only reliable way for a caller to tell a real diagnosis from
// an apology produced after a failed remote call.
type Status string

const (
	// StatusOK means every stage produced its own output.
	StatusOK Status = "ok"

	// StatusDegraded means at least one stage failed and a fallback value was used.
	StatusDegraded Status = "degraded"

	// StatusFailed means the pipeline aborted; Transcript and DiagnosisText
	// both carry the same system error string and there is no audio.
	StatusFailed Status = "failed"
)

// Stage names used in StageFailure.
const (
	StageDetect     = "detect"
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
	StagePublish    = "publish"
	StagePipeline   = "pipeline"
)

// FailureKind classifies why a stage failed.
type FailureKind string

const (
	// FailureTransient is a network, rate-limit or 5xx failure that may succeed later.
	FailureTransient FailureKind = "transient"

	// FailurePermanent is an auth, validation or malformed-response failure.
	FailurePermanent FailureKind = "permanent"

	// FailureTimeout means the stage ran out of time.
	FailureTimeout FailureKind = "timeout"

	// FailureExhausted means every provider of a fallback chain failed.
	FailureExhausted FailureKind = "exhausted"

	// FailureInternal is an unexpected error or panic inside voicedoc.
	FailureInternal FailureKind = "internal"
)

// Consultation is a single patient submission.
type Consultation struct {
	// ID is a unique identifier for this request (UUID).
	ID string `json:"id"`

	// AudioPath points at the recorded symptom description. Empty if absent.
	AudioPath string `json:"audio_path,omitempty"`

	// ImagePath points at an uploaded medical image. Empty if absent.
	ImagePath string `json:"image_path,omitempty"`

	// ReceivedAt is when the submission reached voicedoc.
	ReceivedAt time.Time `json:"received_at"`
}

// HasAudio returns true if the consultation carries a recording.
func (c *Consultation) HasAudio() bool {
	return c.AudioPath != ""
}

// HasImage returns true if the consultation carries an image.
func (c *Consultation) HasImage() bool {
	return c.ImagePath != ""
}

// StageFailure records a stage that fell back to its default value.
type StageFailure struct {
	Stage   string      `json:"stage"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// ConsultResult is the outcome of running a consultation through the pipeline.
type ConsultResult struct {
	// RequestID is the originating consultation ID.
	RequestID string `json:"request_id"`

	// Transcript is the patient's transcribed statement (or a placeholder).
	Transcript string `json:"transcript"`

	// DiagnosisText is the model's reply (or the fallback apology).
	DiagnosisText string `json:"diagnosis_text"`

	// VoiceArtifactPath is the local path of the spoken diagnosis. Empty when
	// neither synthesis tier produced audio.
	VoiceArtifactPath string `json:"voice_artifact_path,omitempty"`

	// VoiceArtifactURL is where the spoken diagnosis can be fetched, if published.
	VoiceArtifactURL string `json:"voice_artifact_url,omitempty"`

	// VoiceProvider names the synthesis tier that produced the audio.
	VoiceProvider string `json:"voice_provider,omitempty"`

	// Language is the two-letter code used to pick voice, model and prompt.
	Language string `json:"language"`

	// Status discriminates real output from fallback output.
	Status Status `json:"status"`

	// Failures lists every stage that fell back.
	Failures []StageFailure `json:"failures,omitempty"`
}

// AddFailure appends a stage failure and downgrades an OK result to degraded.
func (r *ConsultResult) AddFailure(stage string, kind FailureKind, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.Failures = append(r.Failures, StageFailure{Stage: stage, Kind: kind, Message: msg})
	if r.Status == StatusOK || r.Status == "" {
		r.Status = StatusDegraded
	}
}

// Failed reports whether the given stage fell back.
func (r *ConsultResult) Failed(stage string) bool {
	for _, f := range r.Failures {
		if f.Stage == stage {
			return true
		}
	}
	return false
}
