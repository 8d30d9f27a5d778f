// Package google implements tts.Synthesizer with Google Cloud Text-to-Speech.
package google

import (
	"context"
	"fmt"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-voice-bridge-service/internal/codec"
	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/service/tts"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// Config holds voice settings.
type Config struct {
	LanguageCode    string
	Voice           string
	Timeout         time.Duration
	CredentialsFile string
}

// Synthesizer requests MP3 audio for each reply.
type Synthesizer struct {
	client synthClient
	cfg    Config
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New creates the Text-to-Speech client.
func New(ctx context.Context, cfg Config) (*Synthesizer, error) {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: google tts client: %v", faults.ErrBackendUnavailable, err)
	}
	return &Synthesizer{client: c, cfg: cfg}, nil
}

func (s *Synthesizer) Name() string { return "google" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	resp, err := s.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: s.cfg.LanguageCode,
			Name:         s.cfg.Voice,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return tts.Audio{}, fmt.Errorf("%w: google tts: %v", faults.ErrSynthesisFailure, err)
		}
		return tts.Audio{}, fmt.Errorf("%w: google tts (%s): %v", faults.ErrBackendUnavailable, status.Code(err), err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return tts.Audio{}, fmt.Errorf("%w: google tts: empty audio", faults.ErrBackendUnavailable)
	}
	return tts.Audio{Data: resp.GetAudioContent(), Format: codec.FormatMP3}, nil
}

// Close releases the client.
func (s *Synthesizer) Close() error {
	return s.client.Close()
}
