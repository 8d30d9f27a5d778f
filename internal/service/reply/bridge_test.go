package reply

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"ai-voice-bridge-service/internal/codec"
	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/service/tts"
	"ai-voice-bridge-service/internal/service/tts/mock"
)

// testTranscoder fails for inputs listed in failOn.
type testTranscoder struct {
	calls  int
	failOn map[string]bool
}

func (t *testTranscoder) Name() string { return "test" }

func (t *testTranscoder) Transcode(ctx context.Context, audio []byte, format string) ([]byte, error) {
	t.calls++
	if t.failOn[string(audio)] {
		return nil, faults.ErrTranscodeFailure
	}
	return append([]byte("ulaw:"), audio...), nil
}

// textSynth returns the text itself as audio so tests can see what was spoken.
type textSynth struct {
	calls []string
	fail  map[string]error
}

func (s *textSynth) Name() string { return "text" }

func (s *textSynth) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	s.calls = append(s.calls, text)
	if err := s.fail[text]; err != nil {
		return tts.Audio{}, err
	}
	return tts.Audio{Data: []byte(text), Format: "mp3"}, nil
}

func TestSynthesize(t *testing.T) {
	synth := &textSynth{}
	b := New(synth, &testTranscoder{}, "")

	out, err := b.Synthesize(context.Background(), "Help is coming.")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "ulaw:Help is coming." {
		t.Fatalf("out = %q", out)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	synth := &textSynth{}
	b := New(synth, &testTranscoder{}, "")

	if _, err := b.Synthesize(context.Background(), "   "); err != nil {
		t.Fatal(err)
	}
	if synth.calls[0] != EmptyReplyText {
		t.Fatalf("spoke %q, want %q", synth.calls[0], EmptyReplyText)
	}
}

func TestSynthesize_ErrorsWrapSynthesisFailure(t *testing.T) {
	tests := []struct {
		name  string
		synth *textSynth
		tc    *testTranscoder
		cause error
	}{
		{
			name:  "backend",
			synth: &textSynth{fail: map[string]error{"x": faults.ErrBackendUnavailable}},
			tc:    &testTranscoder{},
			cause: faults.ErrBackendUnavailable,
		},
		{
			name:  "transcode",
			synth: &textSynth{},
			tc:    &testTranscoder{failOn: map[string]bool{"x": true}},
			cause: faults.ErrTranscodeFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.synth, tt.tc, "").Synthesize(context.Background(), "x")
			if !errors.Is(err, faults.ErrSynthesisFailure) || !errors.Is(err, tt.cause) {
				t.Fatalf("err = %v, want synthesis failure wrapping %v", err, tt.cause)
			}
		})
	}
}

func TestSynthesizeWithFallback(t *testing.T) {
	synth := &textSynth{fail: map[string]error{"bad reply": errors.New("boom")}}
	tc := &testTranscoder{}
	b := New(synth, tc, "Please hold.")

	out, used, err := b.SynthesizeWithFallback(context.Background(), "bad reply")
	if err != nil || !used {
		t.Fatalf("used=%v err=%v", used, err)
	}
	if string(out) != "ulaw:Please hold." {
		t.Fatalf("out = %q", out)
	}

	// Second failure is served from the cache.
	if _, _, err := b.SynthesizeWithFallback(context.Background(), "bad reply"); err != nil {
		t.Fatal(err)
	}
	fallbackCalls := 0
	for _, c := range synth.calls {
		if c == "Please hold." {
			fallbackCalls++
		}
	}
	if fallbackCalls != 1 {
		t.Fatalf("fallback synthesized %d times, want 1", fallbackCalls)
	}

	out, used, err = b.SynthesizeWithFallback(context.Background(), "good reply")
	if err != nil || used || string(out) != "ulaw:good reply" {
		t.Fatalf("good reply: out=%q used=%v err=%v", out, used, err)
	}
}

func TestSynthesizeWithFallback_TotalFailure(t *testing.T) {
	synth := &textSynth{fail: map[string]error{
		"reply":             errors.New("boom"),
		DefaultFallbackText: errors.New("boom"),
	}}
	out, used, err := New(synth, &testTranscoder{}, "").SynthesizeWithFallback(context.Background(), "reply")
	if err == nil || out != nil || !used {
		t.Fatalf("out=%v used=%v err=%v", out, used, err)
	}
}

func TestBridge_WithMockSynthAndNativeTranscoder(t *testing.T) {
	b := New(mock.New(), codec.NewPool(codec.Native{}, 1), "")
	if err := b.Warm(context.Background()); err != nil {
		t.Fatal(err)
	}
	out, err := b.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 || bytes.Equal(out, make([]byte, len(out))) {
		t.Fatal("expected non-empty μ-law audio")
	}
}
