// Package tts defines the text-to-speech boundary.
package tts

import (
	"context"
	"time"

	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/observability/metrics"
)

// Audio is a synthesized audio file. Format is a codec format hint
// ("mp3", "wav") or empty when unknown.
type Audio struct {
	Data   []byte
	Format string
}

// Synthesizer turns text into an audio file. Implementations must be safe
// for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
	Name() string
}

type observed struct {
	next    Synthesizer
	metrics *metrics.Metrics
}

// Observe records latency and error metrics around s.
func Observe(s Synthesizer) Synthesizer {
	return &observed{next: s, metrics: metrics.DefaultMetrics}
}

func (o *observed) Name() string { return o.next.Name() }

func (o *observed) Synthesize(ctx context.Context, text string) (Audio, error) {
	start := time.Now()
	audio, err := o.next.Synthesize(ctx, text)
	o.metrics.RecordBackendCall("tts", o.next.Name(), faults.Kind(err), time.Since(start).Seconds())
	return audio, err
}
