// Package mock provides an offline synthesizer that renders a tone whose
// length follows the text, as a μ-law WAV file.
package mock

import (
	"context"
	"math"
	"sync"

	"ai-voice-bridge-service/internal/codec"
	"ai-voice-bridge-service/internal/service/tts"
)

// msPerChar approximates speaking rate.
const msPerChar = 60

// Synthesizer records requested texts.
type Synthesizer struct {
	mu    sync.Mutex
	texts []string

	// Err, when set, is returned for every text except those in Allow.
	Err   error
	Allow map[string]bool
}

// New returns a mock synthesizer.
func New() *Synthesizer {
	return &Synthesizer{}
}

func (s *Synthesizer) Name() string { return "mock" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	err := s.Err
	if s.Allow[text] {
		err = nil
	}
	s.mu.Unlock()
	if err != nil {
		return tts.Audio{}, err
	}

	n := len(text) * msPerChar * codec.SampleRate / 1000
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(4000 * math.Sin(2*math.Pi*440*float64(i)/codec.SampleRate))
	}
	return tts.Audio{Data: codec.MulawWAV(codec.EncodeMulaw(pcm), codec.SampleRate), Format: codec.FormatWAV}, nil
}

// Texts returns every text requested so far.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}
