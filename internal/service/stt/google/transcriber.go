// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-voice-bridge-service/internal/faults"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode    string
	SampleRateHz    int32
	AudioEncoding   string
	Model           string
	Timeout         time.Duration
	CredentialsFile string
}

// DefaultConfig returns settings for Twilio media streams.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  8000,
		AudioEncoding: "MULAW",
		Model:         "phone_call",
		Timeout:       15 * time.Second,
	}
}

// recognizer is the subset of *speech.Client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Transcriber runs synchronous recognition on each buffer.
type Transcriber struct {
	client recognizer
	cfg    Config
}

// New creates a client. Credentials come from cfg.CredentialsFile or, when
// empty, application default credentials.
func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: google speech client: %v", faults.ErrBackendUnavailable, err)
	}
	return &Transcriber{client: c, cfg: cfg}, nil
}

func (t *Transcriber) Name() string { return "google" }

// Transcribe recognizes one buffer and joins the top alternative of every
// result.
func (t *Transcriber) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	if len(mulaw) == 0 {
		return "", nil
	}
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(t.cfg.AudioEncoding),
			SampleRateHertz:            t.cfg.SampleRateHz,
			LanguageCode:               t.cfg.LanguageCode,
			Model:                      t.cfg.Model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: mulaw},
		},
	}

	// One retry on transient codes while the deadline allows it.
	resp, err := t.client.Recognize(ctx, req)
	if err != nil && retryable(err) && ctx.Err() == nil {
		resp, err = t.client.Recognize(ctx, req)
	}
	if err != nil {
		return "", classify(err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the client.
func (t *Transcriber) Close() error {
	return t.client.Close()
}

// classify maps every provider error onto ErrBackendUnavailable, keeping the
// gRPC code for logs.
func classify(err error) error {
	return fmt.Errorf("%w: google speech (%s): %v", faults.ErrBackendUnavailable, status.Code(err), err)
}

func parseAudioEncoding(enc string) speechpb.RecognitionConfig_AudioEncoding {
	switch enc {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_MULAW
	}
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
