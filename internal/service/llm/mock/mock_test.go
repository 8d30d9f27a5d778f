package mock

import (
	"context"
	"errors"
	"testing"

	"ai-voice-bridge-service/internal/service/llm"
)

func TestBackend_ScriptAndIsolation(t *testing.T) {
	b := New("first", "second")
	ctx := context.Background()

	c1, _ := b.NewConversation(ctx)
	c2, _ := b.NewConversation(ctx)

	for i, want := range []string{"first", "second", "second"} {
		got, err := c1.Send(ctx, "p")
		if err != nil || got != want {
			t.Fatalf("c1 send %d = %q, %v; want %q", i, got, err, want)
		}
	}
	if got, _ := c2.Send(ctx, "p"); got != "first" {
		t.Fatalf("c2 first reply = %q, want first", got)
	}

	convs := b.Conversations()
	if len(convs) != 2 || len(convs[0].Prompts()) != 3 || len(convs[1].Prompts()) != 1 {
		t.Fatal("conversations share state")
	}
}

func TestBackend_Errors(t *testing.T) {
	b := New()
	b.NewErr = errors.New("no key")
	if _, err := b.NewConversation(context.Background()); err == nil {
		t.Fatal("expected NewConversation error")
	}

	b.NewErr = nil
	b.SendErr = errors.New("down")
	conv, _ := b.NewConversation(context.Background())
	if _, err := conv.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected Send error")
	}
}

func TestObserve_Wraps(t *testing.T) {
	b := New("ok")
	observed := llm.Observe(b)
	conv, err := observed.NewConversation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reply, _ := conv.Send(context.Background(), "x"); reply != "ok" {
		t.Fatalf("reply = %q", reply)
	}
	conv.Close()
	if !b.Conversations()[0].Closed() {
		t.Fatal("Close not forwarded")
	}
}
