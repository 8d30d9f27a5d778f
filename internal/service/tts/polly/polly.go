// Package polly implements tts.Synthesizer with Amazon Polly.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"ai-voice-bridge-service/internal/codec"
	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/service/tts"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config holds Polly settings.
type Config struct {
	Region  string
	VoiceID string
	Engine  string
	Timeout time.Duration
}

// Synthesizer calls SynthesizeSpeech for MP3 output.
type Synthesizer struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New returns a Synthesizer. The AWS client is created on first use so a
// missing configuration surfaces as faults.ErrBackendUnavailable per call.
func New(cfg Config) *Synthesizer {
	return newWithClient(cfg, nil)
}

func newWithClient(cfg Config, client synthClient) *Synthesizer {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Synthesizer{client: client, cfg: cfg}
}

func (s *Synthesizer) Name() string { return "polly" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	client, err := s.resolveClient(ctx)
	if err != nil {
		return tts.Audio{}, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         aws.String(text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(s.cfg.VoiceID),
	})
	if err != nil {
		return tts.Audio{}, classify(err)
	}
	if out == nil || out.AudioStream == nil {
		return tts.Audio{}, fmt.Errorf("%w: polly: empty audio stream", faults.ErrBackendUnavailable)
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("%w: polly: read audio: %v", faults.ErrBackendUnavailable, err)
	}
	return tts.Audio{Data: data, Format: codec.FormatMP3}, nil
}

// classify keeps the Polly error code in the message. Client-side errors
// (bad text) are synthesis failures, everything else means the backend is
// unavailable.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: polly: %v", faults.ErrBackendUnavailable, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return fmt.Errorf("%w: polly %s: %s", faults.ErrSynthesisFailure, apiErr.ErrorCode(), apiErr.ErrorMessage())
		default:
			return fmt.Errorf("%w: polly %s: %s", faults.ErrBackendUnavailable, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("%w: polly: %v", faults.ErrBackendUnavailable, err)
}

func (s *Synthesizer) resolveClient(ctx context.Context) (synthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", faults.ErrBackendUnavailable, err)
	}
	s.client = polly.NewFromConfig(awsCfg)
	return s.client, nil
}
