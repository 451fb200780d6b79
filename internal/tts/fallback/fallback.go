// Package fallback chains a premium synthesizer with a free one and writes the
// resulting audio to disk.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nadzzz/voicedoc/internal/tts"
)

// ErrNoAudio is returned when no tier produced audio.
var ErrNoAudio = errors.New("no synthesis tier produced audio")

// Artifact is a synthesized audio file on disk.
type Artifact struct {
	Path        string
	Provider    string
	ContentType string
}

// Chain tries the primary synthesizer, then the secondary. The order is fixed.
type Chain struct {
	primary     tts.Synthesizer
	secondary   tts.Synthesizer // nil when no fallback tier is configured
	tierTimeout time.Duration
}

// Option configures a Chain.
type Option func(*Chain)

// WithTierTimeout bounds each tier separately, so a hung primary still leaves
// the secondary its full budget.
func WithTierTimeout(d time.Duration) Option {
	return func(c *Chain) { c.tierTimeout = d }
}

// New creates a chain. secondary may be nil.
func New(primary, secondary tts.Synthesizer, opts ...Option) *Chain {
	c := &Chain{primary: primary, secondary: secondary}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SynthesizeToFile speaks text and writes the audio to outPath. The primary
// tier receives opts unchanged; the secondary tier only receives the first
// two characters of opts.Language. If the secondary returns a different
// audio format than outPath's extension implies, the extension is replaced.
func (c *Chain) SynthesizeToFile(ctx context.Context, text string, opts tts.SynthesizeOpts, outPath string) (*Artifact, error) {
	var errs []error

	if c.primary != nil {
		art, err := c.attempt(ctx, c.primary, text, opts, outPath)
		if err == nil {
			return art, nil
		}
		slog.Warn("primary synthesis failed, trying fallback", "provider", c.primary.Name(), "error", err)
		errs = append(errs, err)
	}

	if c.secondary != nil {
		lang := opts.Language
		if len(lang) > 2 {
			lang = lang[:2]
		}
		art, err := c.attempt(ctx, c.secondary, text, tts.SynthesizeOpts{Language: lang}, outPath)
		if err == nil {
			return art, nil
		}
		slog.Error("fallback synthesis failed", "provider", c.secondary.Name(), "error", err)
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("%w: %w", ErrNoAudio, errors.Join(errs...))
}

// Close closes both tiers.
func (c *Chain) Close() error {
	var errs []error
	for _, s := range []tts.Synthesizer{c.primary, c.secondary} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) attempt(ctx context.Context, s tts.Synthesizer, text string, opts tts.SynthesizeOpts, outPath string) (*Artifact, error) {
	if c.tierTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.tierTimeout)
		defer cancel()
	}

	res, err := s.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	if len(res.Audio) == 0 {
		return nil, fmt.Errorf("%s: empty audio", s.Name())
	}

	path := outPath
	if ext := tts.Extension(res.ContentType); !strings.EqualFold(filepath.Ext(path), ext) {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ext
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}

	slog.Info("speech synthesized", "provider", s.Name(), "path", path, "bytes", len(res.Audio))
	return &Artifact{Path: path, Provider: s.Name(), ContentType: res.ContentType}, nil
}
