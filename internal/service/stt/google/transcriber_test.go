package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-voice-bridge-service/internal/faults"
)

type testRecognizer struct {
	calls int
	last  *speechpb.RecognizeRequest
	resp  *speechpb.RecognizeResponse
	errs  []error
}

func (r *testRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	r.calls++
	r.last = req
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return r.resp, nil
}

func (r *testRecognizer) Close() error { return nil }

func result(text string) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text, Confidence: 0.9}},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LanguageCode != "en-US" || cfg.SampleRateHz != 8000 || cfg.AudioEncoding != "MULAW" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestTranscribe_JoinsResults(t *testing.T) {
	rec := &testRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{result("There is a fire"), result(" "), result("on Main Street")},
	}}
	tr := &Transcriber{client: rec, cfg: DefaultConfig()}

	text, err := tr.Transcribe(context.Background(), []byte{0xFF, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if text != "There is a fire on Main Street" {
		t.Fatalf("text = %q", text)
	}
	if rec.last.GetConfig().GetEncoding() != speechpb.RecognitionConfig_MULAW {
		t.Errorf("encoding = %v", rec.last.GetConfig().GetEncoding())
	}
	if rec.last.GetConfig().GetSampleRateHertz() != 8000 {
		t.Errorf("sample rate = %d", rec.last.GetConfig().GetSampleRateHertz())
	}
}

func TestTranscribe_EmptyAudioSkipsBackend(t *testing.T) {
	rec := &testRecognizer{}
	tr := &Transcriber{client: rec, cfg: DefaultConfig()}
	if text, err := tr.Transcribe(context.Background(), nil); text != "" || err != nil {
		t.Fatalf("got %q, %v", text, err)
	}
	if rec.calls != 0 {
		t.Fatalf("backend called %d times", rec.calls)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantErr   bool
		wantCalls int
	}{
		{name: "transient then ok", errs: []error{status.Error(codes.Unavailable, "down"), nil}, wantCalls: 2},
		{name: "permanent", errs: []error{status.Error(codes.PermissionDenied, "no")}, wantErr: true, wantCalls: 1},
		{name: "transient twice", errs: []error{status.Error(codes.Unavailable, "down"), status.Error(codes.Unavailable, "down")}, wantErr: true, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &testRecognizer{errs: tt.errs, resp: &speechpb.RecognizeResponse{}}
			tr := &Transcriber{client: rec, cfg: DefaultConfig()}

			_, err := tr.Transcribe(context.Background(), []byte{1})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, faults.ErrBackendUnavailable) {
				t.Fatalf("err = %v, want ErrBackendUnavailable", err)
			}
			if rec.calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", rec.calls, tt.wantCalls)
			}
		})
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"invalid", speechpb.RecognitionConfig_MULAW},
		{"", speechpb.RecognitionConfig_MULAW},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseAudioEncoding(tt.input); got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
