package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-voice-bridge-service/internal/faults"
)

type testClient struct {
	req  *texttospeechpb.SynthesizeSpeechRequest
	resp *texttospeechpb.SynthesizeSpeechResponse
	err  error
}

func (c *testClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	c.req = req
	return c.resp, c.err
}

func (c *testClient) Close() error { return nil }

func TestSynthesize(t *testing.T) {
	client := &testClient{resp: &texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte("ID3")}}
	s := &Synthesizer{client: client, cfg: Config{LanguageCode: "en-GB", Voice: "en-GB-Standard-A"}}

	audio, err := s.Synthesize(context.Background(), "Stay calm.")
	if err != nil {
		t.Fatal(err)
	}
	if string(audio.Data) != "ID3" || audio.Format != "mp3" {
		t.Fatalf("audio = %+v", audio)
	}
	if client.req.GetInput().GetText() != "Stay calm." {
		t.Errorf("text = %q", client.req.GetInput().GetText())
	}
	if client.req.GetVoice().GetLanguageCode() != "en-GB" || client.req.GetVoice().GetName() != "en-GB-Standard-A" {
		t.Errorf("voice = %v", client.req.GetVoice())
	}
	if client.req.GetAudioConfig().GetAudioEncoding() != texttospeechpb.AudioEncoding_MP3 {
		t.Errorf("encoding = %v", client.req.GetAudioConfig().GetAudioEncoding())
	}
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name string
		c    *testClient
		want error
	}{
		{name: "unavailable", c: &testClient{err: status.Error(codes.Unavailable, "down")}, want: faults.ErrBackendUnavailable},
		{name: "invalid text", c: &testClient{err: status.Error(codes.InvalidArgument, "bad")}, want: faults.ErrSynthesisFailure},
		{name: "empty audio", c: &testClient{resp: &texttospeechpb.SynthesizeSpeechResponse{}}, want: faults.ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Synthesizer{client: tt.c}
			if _, err := s.Synthesize(context.Background(), "x"); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
