// Package reply turns reply text into μ-law audio ready for the media stream.
package reply

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ai-voice-bridge-service/internal/codec"
	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/observability/logging"
	"ai-voice-bridge-service/internal/observability/metrics"
	"ai-voice-bridge-service/internal/service/tts"
)

// EmptyReplyText replaces blank replies so the caller always hears something.
const EmptyReplyText = "Message Received."

// DefaultFallbackText is spoken when a reply cannot be synthesized.
const DefaultFallbackText = "Sorry, I could not prepare a reply. Please stay on the line."

// Bridge synthesizes text and transcodes it to the telephony codec.
type Bridge struct {
	synth        tts.Synthesizer
	transcoder   codec.Transcoder
	fallbackText string
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	mu       sync.Mutex
	fallback []byte
}

// New creates a Bridge. An empty fallbackText uses DefaultFallbackText.
func New(synth tts.Synthesizer, transcoder codec.Transcoder, fallbackText string) *Bridge {
	if strings.TrimSpace(fallbackText) == "" {
		fallbackText = DefaultFallbackText
	}
	return &Bridge{
		synth:        synth,
		transcoder:   transcoder,
		fallbackText: fallbackText,
		metrics:      metrics.DefaultMetrics,
		logger:       logging.WithComponent("reply"),
	}
}

// Synthesize produces μ-law 8 kHz mono audio for text. Every error wraps
// faults.ErrSynthesisFailure together with the underlying cause.
func (b *Bridge) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		text = EmptyReplyText
	}
	audio, err := b.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", faults.ErrSynthesisFailure, err)
	}
	if len(audio.Data) == 0 {
		return nil, fmt.Errorf("%w: synthesizer returned no audio", faults.ErrSynthesisFailure)
	}
	out, err := b.transcoder.Transcode(ctx, audio.Data, audio.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", faults.ErrSynthesisFailure, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: transcoder returned no audio", faults.ErrSynthesisFailure)
	}
	return out, nil
}

// SynthesizeWithFallback synthesizes text, falling back to the fixed
// fallback utterance. usedFallback reports the fallback path; err is set
// only when nothing could be produced.
func (b *Bridge) SynthesizeWithFallback(ctx context.Context, text string) (audio []byte, usedFallback bool, err error) {
	audio, err = b.Synthesize(ctx, text)
	if err == nil {
		return audio, false, nil
	}
	b.logger.Warn().
		Err(err).
		Str("kind", faults.Kind(err)).
		Msg("Reply synthesis failed, using fallback utterance")
	b.metrics.RecordFallback("synthesis")

	fb, fbErr := b.fallbackAudio(ctx)
	if fbErr != nil {
		return nil, true, fmt.Errorf("fallback: %w (reply: %v)", fbErr, err)
	}
	return fb, true, nil
}

// fallbackAudio synthesizes the fallback utterance once and caches it.
func (b *Bridge) fallbackAudio(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	cached := b.fallback
	b.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	out, err := b.Synthesize(ctx, b.fallbackText)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.fallback = out
	b.mu.Unlock()
	return out, nil
}

// Warm synthesizes the fallback utterance ahead of the first call.
func (b *Bridge) Warm(ctx context.Context) error {
	_, err := b.fallbackAudio(ctx)
	return err
}
