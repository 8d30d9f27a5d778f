package mock

import (
	"context"
	"errors"
	"testing"
)

func TestTranscriber_Cycles(t *testing.T) {
	tr := New("one", "two")
	ctx := context.Background()

	var got []string
	for i := 0; i < 3; i++ {
		text, err := tr.Transcribe(ctx, []byte{0xFF})
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, text)
	}
	want := []string{"one", "two", "one"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
	if tr.Calls() != 3 {
		t.Errorf("Calls() = %d", tr.Calls())
	}
}

func TestTranscriber_EmptyAudioAndError(t *testing.T) {
	tr := New()
	if text, _ := tr.Transcribe(context.Background(), nil); text != "" {
		t.Fatalf("empty audio produced %q", text)
	}

	tr.Err = errors.New("down")
	if _, err := tr.Transcribe(context.Background(), []byte{1}); err == nil {
		t.Fatal("expected error")
	}
}
