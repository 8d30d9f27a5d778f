// Package stt defines the speech-to-text boundary used by call sessions.
package stt

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/observability/logging"
	"ai-voice-bridge-service/internal/observability/metrics"
)

// Transcriber turns one buffer of μ-law 8 kHz mono audio into text.
// Implementations must be safe for concurrent use unless wrapped by Limit.
type Transcriber interface {
	Transcribe(ctx context.Context, mulaw []byte) (string, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

type limited struct {
	next Transcriber
	sem  *semaphore.Weighted
}

// Limit allows at most n concurrent Transcribe calls on t. Use n=1 for
// backends that cannot run concurrent inference. n <= 0 returns t.
func Limit(t Transcriber, n int) Transcriber {
	if n <= 0 {
		return t
	}
	return &limited{next: t, sem: semaphore.NewWeighted(int64(n))}
}

func (l *limited) Name() string { return l.next.Name() }

func (l *limited) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer l.sem.Release(1)
	return l.next.Transcribe(ctx, mulaw)
}

type observed struct {
	next    Transcriber
	metrics *metrics.Metrics
}

// Observe records latency and error metrics around t.
func Observe(t Transcriber) Transcriber {
	return &observed{next: t, metrics: metrics.DefaultMetrics}
}

func (o *observed) Name() string { return o.next.Name() }

func (o *observed) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	start := time.Now()
	text, err := o.next.Transcribe(ctx, mulaw)
	o.metrics.RecordBackendCall("stt", o.next.Name(), faults.Kind(err), time.Since(start).Seconds())
	if err != nil {
		logger := logging.WithBackend("stt", o.next.Name())
		logger.Warn().Err(err).Int("bytes", len(mulaw)).Msg("Transcription failed")
	}
	return text, err
}
