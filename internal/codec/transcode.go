package codec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/observability/logging"
	"ai-voice-bridge-service/internal/observability/metrics"
)

// Input format hints accepted by transcoders. An empty format means sniff.
const (
	FormatMP3   = "mp3"
	FormatWAV   = "wav"
	FormatMulaw = "mulaw"
)

// Transcoder turns an audio file into raw μ-law, 8 kHz, mono bytes.
type Transcoder interface {
	Transcode(ctx context.Context, audio []byte, format string) ([]byte, error)
	Name() string
}

// TranscoderConfig selects and bounds the transcoder.
type TranscoderConfig struct {
	Kind          string // ffmpeg, native, auto
	FFmpegPath    string
	Timeout       time.Duration
	MaxConcurrent int
}

// NewTranscoder builds the configured transcoder wrapped in a bounded Pool.
func NewTranscoder(cfg TranscoderConfig) (*Pool, error) {
	logger := logging.WithComponent("transcoder")
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}

	var t Transcoder
	switch cfg.Kind {
	case "ffmpeg":
		t = &FFmpeg{Path: path, Timeout: cfg.Timeout}
	case "native":
		t = Native{}
	case "", "auto":
		if resolved, err := exec.LookPath(path); err == nil {
			t = &FFmpeg{Path: resolved, Timeout: cfg.Timeout}
		} else {
			logger.Warn().Str("ffmpeg", path).Msg("ffmpeg not found, using native transcoder")
			t = Native{}
		}
	default:
		return nil, fmt.Errorf("unknown transcoder %q", cfg.Kind)
	}

	logger.Info().
		Str("transcoder", t.Name()).
		Int("maxConcurrent", cfg.MaxConcurrent).
		Msg("Transcoder configured")
	return NewPool(t, cfg.MaxConcurrent), nil
}

// Pool bounds the number of concurrent transcodes across all calls.
type Pool struct {
	next    Transcoder
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
}

// NewPool wraps t so at most size transcodes run at once.
// A non-positive size uses the number of CPUs.
func NewPool(t Transcoder, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		next:    t,
		sem:     semaphore.NewWeighted(int64(size)),
		metrics: metrics.DefaultMetrics,
	}
}

// Name reports the wrapped transcoder.
func (p *Pool) Name() string { return p.next.Name() }

// Transcode waits for a worker slot until ctx is done, then delegates.
// Every error wraps faults.ErrTranscodeFailure.
func (p *Pool) Transcode(ctx context.Context, audio []byte, format string) ([]byte, error) {
	p.metrics.TranscodeWaiting.Inc()
	err := p.sem.Acquire(ctx, 1)
	p.metrics.TranscodeWaiting.Dec()
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for worker: %v", faults.ErrTranscodeFailure, err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	out, err := p.next.Transcode(ctx, audio, format)
	p.metrics.RecordTranscode(p.next.Name(), err, time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, faults.ErrTranscodeFailure) {
			err = fmt.Errorf("%w: %v", faults.ErrTranscodeFailure, err)
		}
		return nil, err
	}
	return out, nil
}
