// Package llm defines the language backend boundary. Every call session
// owns its own Conversation so context never leaks between calls.
package llm

import (
	"context"
	"time"

	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/observability/metrics"
)

// Backend creates conversations. It is shared by all sessions.
type Backend interface {
	NewConversation(ctx context.Context) (Conversation, error)
	Name() string
}

// Conversation is one call's chat history with the backend. It is used by a
// single session at a time.
type Conversation interface {
	// Send delivers prompt as the next user message and returns the reply.
	Send(ctx context.Context, prompt string) (string, error)
	Close() error
}

type observed struct {
	next    Backend
	metrics *metrics.Metrics
}

// Observe records latency and error metrics for every Send.
func Observe(b Backend) Backend {
	return &observed{next: b, metrics: metrics.DefaultMetrics}
}

func (o *observed) Name() string { return o.next.Name() }

func (o *observed) NewConversation(ctx context.Context) (Conversation, error) {
	conv, err := o.next.NewConversation(ctx)
	if err != nil {
		o.metrics.RecordBackendCall("llm", o.next.Name(), faults.Kind(err), 0)
		return nil, err
	}
	return &observedConversation{next: conv, provider: o.next.Name(), metrics: o.metrics}, nil
}

type observedConversation struct {
	next     Conversation
	provider string
	metrics  *metrics.Metrics
}

func (c *observedConversation) Send(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	reply, err := c.next.Send(ctx, prompt)
	c.metrics.RecordBackendCall("llm", c.provider, faults.Kind(err), time.Since(start).Seconds())
	return reply, err
}

func (c *observedConversation) Close() error { return c.next.Close() }
