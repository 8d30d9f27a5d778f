// Package mock provides a scripted language backend.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ai-voice-bridge-service/internal/service/llm"
)

// DefaultReplies are sent in order by each conversation, the last one
// repeating. They follow the record format the extractor expects.
var DefaultReplies = []string{
	`{"location": null, "emergency": "smoke from a neighbouring kitchen", "output": "Help is being arranged. What is the address?"}`,
	"Thank you. ```json\n" + `{"location": "42 Harbour Road", "emergency": "kitchen fire", "output": "Firefighters are on their way to 42 Harbour Road. Stay outside."}` + "\n```",
}

// Backend hands out conversations that answer from a fixed script.
type Backend struct {
	mu            sync.Mutex
	replies       []string
	conversations []*Conversation

	// NewErr and SendErr, when set, make the matching calls fail.
	NewErr  error
	SendErr error
}

// New returns a backend over replies, or DefaultReplies when none are given.
func New(replies ...string) *Backend {
	if len(replies) == 0 {
		replies = DefaultReplies
	}
	return &Backend{replies: replies}
}

func (b *Backend) Name() string { return "mock" }

func (b *Backend) NewConversation(ctx context.Context) (llm.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NewErr != nil {
		return nil, b.NewErr
	}
	c := &Conversation{backend: b}
	b.conversations = append(b.conversations, c)
	return c, nil
}

// Conversations returns every conversation created so far.
func (b *Backend) Conversations() []*Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Conversation(nil), b.conversations...)
}

// Conversation records prompts and replies from the backend script.
type Conversation struct {
	backend *Backend
	mu      sync.Mutex
	prompts []string
	closed  bool
}

func (c *Conversation) Send(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("mock: conversation closed")
	}
	c.backend.mu.Lock()
	err, replies := c.backend.SendErr, c.backend.replies
	c.backend.mu.Unlock()

	c.prompts = append(c.prompts, prompt)
	if err != nil {
		return "", err
	}
	i := len(c.prompts) - 1
	if i >= len(replies) {
		i = len(replies) - 1
	}
	return strings.TrimSpace(replies[i]), nil
}

func (c *Conversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Prompts returns the prompts sent so far.
func (c *Conversation) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

// Closed reports whether Close was called.
func (c *Conversation) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
