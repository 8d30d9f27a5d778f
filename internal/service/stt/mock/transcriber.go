// Package mock provides a scripted transcriber for running without cloud
// credentials.
package mock

import (
	"context"
	"sync"
)

// DefaultUtterances are returned in turn, one per Transcribe call.
var DefaultUtterances = []string{
	"Hello, I need help, there is smoke coming out of my neighbour's kitchen",
	"The address is 42 Harbour Road, the blue house next to the school",
	"Yes, everyone is outside now",
	"Thank you",
}

// Transcriber cycles through a fixed list of utterances.
type Transcriber struct {
	mu         sync.Mutex
	utterances []string
	next       int
	calls      int

	// Err, when set, is returned by every call.
	Err error
}

// New returns a transcriber over utterances, or DefaultUtterances when none
// are given.
func New(utterances ...string) *Transcriber {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Transcriber{utterances: utterances}
}

func (t *Transcriber) Name() string { return "mock" }

// Transcribe returns the next utterance. Empty audio yields empty text.
func (t *Transcriber) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.Err != nil {
		return "", t.Err
	}
	if len(mulaw) == 0 {
		return "", nil
	}
	text := t.utterances[t.next%len(t.utterances)]
	t.next++
	return text, nil
}

// Calls returns how many times Transcribe ran.
func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
