// Package config handles loading and validating the voicedoc configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nadzzz/voicedoc/internal/language"
)

// Config is the root configuration for the voicedoc daemon.
type Config struct {
	Server      ServerConfig                 `mapstructure:"server"`
	HTTP        HTTPConfig                   `mapstructure:"http"`
	Interpreter InterpreterConfig            `mapstructure:"interpreter"`
	TTS         TTSConfig                    `mapstructure:"tts"`
	Pipeline    PipelineConfig               `mapstructure:"pipeline"`
	Languages   map[string]language.Override `mapstructure:"languages"`
	Storage     StorageConfig                `mapstructure:"storage"`
	Logging     LoggingConfig                `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort     int `mapstructure:"health_port"`
	GRPCHealthPort int `mapstructure:"grpc_health_port"` // 0 disables the gRPC health service
}

// HTTPConfig configures the patient-facing HTTP surface.
type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	UploadDir      string   `mapstructure:"upload_dir"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
	RateLimit      int      `mapstructure:"rate_limit"`  // requests per minute per client IP, 0 disables
	TrustProxy     bool     `mapstructure:"trust_proxy"` // take the client IP from X-Forwarded-For / X-Real-IP
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// InterpreterConfig selects and configures the transcription + language model backend.
type InterpreterConfig struct {
	Backend string      `mapstructure:"backend"` // "groq" or "local"
	Groq    GroqConfig  `mapstructure:"groq"`
	Local   LocalConfig `mapstructure:"local"`
}

// GroqConfig holds settings for an OpenAI-compatible hosted API (Groq by default).
type GroqConfig struct {
	APIKey             string  `mapstructure:"api_key"`
	BaseURL            string  `mapstructure:"base_url"`
	TranscriptionModel string  `mapstructure:"transcription_model"`
	CompletionModel    string  `mapstructure:"completion_model"`
	Temperature        float32 `mapstructure:"temperature"`
	MaxTokens          int     `mapstructure:"max_tokens"`
	AttachImages       bool    `mapstructure:"attach_images"`
}

// LocalConfig holds self-hosted model settings.
type LocalConfig struct {
	WhisperEndpoint string  `mapstructure:"whisper_endpoint"`
	WhisperType     string  `mapstructure:"whisper_type"` // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	WhisperModel    string  `mapstructure:"whisper_model"`
	LLMEndpoint     string  `mapstructure:"llm_endpoint"`
	LLMModel        string  `mapstructure:"llm_model"` // Ollama model name (e.g., "llama3.2:1b")
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	VADFilter       bool    `mapstructure:"vad_filter"`
}

// TTSConfig configures the two synthesis tiers.
type TTSConfig struct {
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
}

// ElevenLabsConfig configures the primary synthesis tier.
type ElevenLabsConfig struct {
	APIKey          string            `mapstructure:"api_key"`
	BaseURL         string            `mapstructure:"base_url"`
	Stability       float64           `mapstructure:"stability"`
	SimilarityBoost float64           `mapstructure:"similarity_boost"`
	VoiceIDs        map[string]string `mapstructure:"voice_ids"` // voice name -> ElevenLabs voice ID
}

// FallbackConfig selects the secondary synthesis tier.
type FallbackConfig struct {
	Backend string      `mapstructure:"backend"` // "gtts", "piper" or "none"
	GTTS    GTTSConfig  `mapstructure:"gtts"`
	Piper   PiperConfig `mapstructure:"piper"`
}

// GTTSConfig configures the Google Translate TTS endpoint.
type GTTSConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Slow    bool   `mapstructure:"slow"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. Endpoints takes precedence.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"`
}

// PipelineConfig controls artifact placement, timeouts and retries.
type PipelineConfig struct {
	ArtifactDir string         `mapstructure:"artifact_dir"`
	Timeouts    TimeoutsConfig `mapstructure:"timeouts"`
	Retry       RetryConfig    `mapstructure:"retry"`
}

// TimeoutsConfig bounds each remote call attempt.
type TimeoutsConfig struct {
	Detect     time.Duration `mapstructure:"detect"`
	Transcribe time.Duration `mapstructure:"transcribe"`
	Generate   time.Duration `mapstructure:"generate"`
	Synthesize time.Duration `mapstructure:"synthesize"`
	Request    time.Duration `mapstructure:"request"`
}

// RetryConfig bounds retries of transient remote failures.
type RetryConfig struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// StorageConfig configures optional artifact mirroring.
type StorageConfig struct {
	S3 S3Config `mapstructure:"s3"`
}

// S3Config configures an S3-compatible bucket for voice artifacts.
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Secure    bool   `mapstructure:"secure"`
	Prefix    string `mapstructure:"prefix"`
	PublicURL string `mapstructure:"public_url"` // overrides the https://<endpoint>/<bucket> base
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from .env, file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./voicedoc.yaml, ./configs/voicedoc.yaml, /etc/voicedoc/voicedoc.yaml.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voicedoc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voicedoc")
	}

	// Environment variables: VOICEDOC_HTTP_PORT, VOICEDOC_INTERPRETER_BACKEND, etc.
	v.SetEnvPrefix("VOICEDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional; env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${GROQ_API_KEY}")
	cfg.Interpreter.Groq.APIKey = resolveEnvRef(cfg.Interpreter.Groq.APIKey)
	cfg.TTS.ElevenLabs.APIKey = resolveEnvRef(cfg.TTS.ElevenLabs.APIKey)
	cfg.Storage.S3.AccessKey = resolveEnvRef(cfg.Storage.S3.AccessKey)
	cfg.Storage.S3.SecretKey = resolveEnvRef(cfg.Storage.S3.SecretKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.grpc_health_port", 50051)
	v.SetDefault("http.port", 7860)
	v.SetDefault("http.upload_dir", "uploads")
	v.SetDefault("http.max_upload_mb", 25)
	v.SetDefault("http.rate_limit", 30)
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("interpreter.backend", "groq")
	v.SetDefault("interpreter.groq.api_key", "${GROQ_API_KEY}")
	v.SetDefault("interpreter.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("interpreter.groq.transcription_model", "whisper-large-v3")
	v.SetDefault("interpreter.groq.completion_model", "llama3-70b-8192")
	v.SetDefault("interpreter.groq.temperature", 0.7)
	v.SetDefault("interpreter.groq.max_tokens", 300)
	v.SetDefault("interpreter.groq.attach_images", false)
	v.SetDefault("interpreter.local.whisper_endpoint", "http://localhost:8000/v1/audio/transcriptions")
	v.SetDefault("interpreter.local.whisper_type", "openai")
	v.SetDefault("interpreter.local.whisper_model", "whisper-large-v3")
	v.SetDefault("interpreter.local.llm_endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("interpreter.local.llm_model", "llama3")
	v.SetDefault("interpreter.local.temperature", 0.7)
	v.SetDefault("interpreter.local.max_tokens", 300)
	v.SetDefault("interpreter.local.vad_filter", false)
	v.SetDefault("tts.elevenlabs.api_key", "${ELEVENLABS_API_KEY}")
	v.SetDefault("tts.elevenlabs.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("tts.elevenlabs.stability", 0.35)
	v.SetDefault("tts.elevenlabs.similarity_boost", 0.85)
	v.SetDefault("tts.fallback.backend", "gtts")
	v.SetDefault("tts.fallback.gtts.base_url", "https://translate.google.com/translate_tts")
	v.SetDefault("tts.fallback.gtts.slow", false)
	v.SetDefault("tts.fallback.piper.endpoint", "localhost:10200")
	v.SetDefault("pipeline.artifact_dir", ".")
	v.SetDefault("pipeline.timeouts.detect", 30*time.Second)
	v.SetDefault("pipeline.timeouts.transcribe", 60*time.Second)
	v.SetDefault("pipeline.timeouts.generate", 60*time.Second)
	v.SetDefault("pipeline.timeouts.synthesize", 60*time.Second)
	v.SetDefault("pipeline.timeouts.request", 5*time.Minute)
	v.SetDefault("pipeline.retry.max_attempts", 2)
	v.SetDefault("pipeline.retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("pipeline.retry.max_interval", 2*time.Second)
	v.SetDefault("storage.s3.enabled", false)
	v.SetDefault("storage.s3.access_key", "${S3_ACCESS_KEY}")
	v.SetDefault("storage.s3.secret_key", "${S3_SECRET_KEY}")
	v.SetDefault("storage.s3.secure", true)
	v.SetDefault("storage.s3.prefix", "diagnoses/")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks values that would otherwise fail deep inside a request.
// Missing API keys are deliberately not checked here: they surface when the
// corresponding remote call is attempted and the stage falls back.
func (c *Config) Validate() error {
	switch c.Interpreter.Backend {
	case "groq", "local":
	default:
		return fmt.Errorf("unknown interpreter backend %q", c.Interpreter.Backend)
	}
	switch c.TTS.Fallback.Backend {
	case "gtts", "piper", "none":
	default:
		return fmt.Errorf("unknown tts fallback backend %q", c.TTS.Fallback.Backend)
	}
	if c.Pipeline.Retry.MaxAttempts == 0 {
		return fmt.Errorf("pipeline.retry.max_attempts must be at least 1")
	}
	if c.Pipeline.ArtifactDir == "" {
		return fmt.Errorf("pipeline.artifact_dir must not be empty")
	}
	if c.Storage.S3.Enabled && (c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "") {
		return fmt.Errorf("storage.s3 requires endpoint and bucket when enabled")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
// An unset variable resolves to the empty string.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
