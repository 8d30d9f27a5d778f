// Package recording archives the raw audio of finished calls. Archiving is
// best effort; callers log failures and carry on.
package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ai-voice-bridge-service/internal/codec"
	"ai-voice-bridge-service/internal/observability/metrics"
)

// Sink names.
const (
	SinkNone = "none"
	SinkFile = "file"
	SinkS3   = "s3"
)

// Recording is the whole-call μ-law audio of one session.
type Recording struct {
	SessionID string
	StreamSID string
	CallerID  string
	StartedAt time.Time
	Audio     []byte
}

// Archiver stores a recording and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, rec Recording) (string, error)
	Name() string
}

// Config selects the sink.
type Config struct {
	Sink    string
	Dir     string
	Bucket  string
	Prefix  string
	Region  string
	Timeout time.Duration
}

// New builds the configured archiver.
func New(ctx context.Context, cfg Config) (Archiver, error) {
	switch cfg.Sink {
	case "", SinkNone:
		return Nop{}, nil
	case SinkFile:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("recording: file sink needs RECORDING_DIR")
		}
		return observe(&FileArchiver{Dir: cfg.Dir}), nil
	case SinkS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("recording: s3 sink needs RECORDING_S3_BUCKET")
		}
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("recording: load aws config: %w", err)
		}
		return observe(&S3Archiver{
			client:  s3.NewFromConfig(awsCfg),
			bucket:  cfg.Bucket,
			prefix:  cfg.Prefix,
			timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("recording: unknown sink %q", cfg.Sink)
	}
}

// Nop discards recordings.
type Nop struct{}

func (Nop) Archive(context.Context, Recording) (string, error) { return "", nil }
func (Nop) Name() string { return SinkNone }

// objectName is "<yyyy>/<mm>/<dd>/<session>.wav" under the call's start date.
func objectName(rec Recording) string {
	day := rec.StartedAt.UTC().Format("2006/01/02")
	return day + "/" + rec.SessionID + ".wav"
}

// FileArchiver writes μ-law WAV files below Dir.
type FileArchiver struct {
	Dir string
}

func (a *FileArchiver) Name() string { return SinkFile }

func (a *FileArchiver) Archive(ctx context.Context, rec Recording) (string, error) {
	path := filepath.Join(a.Dir, filepath.FromSlash(objectName(rec)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("recording: create dir: %w", err)
	}
	if err := os.WriteFile(path, codec.MulawWAV(rec.Audio, codec.SampleRate), 0o644); err != nil {
		return "", fmt.Errorf("recording: write %s: %w", path, err)
	}
	return "file://" + path, nil
}

type putObjecter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads μ-law WAV objects.
type S3Archiver struct {
	client  putObjecter
	bucket  string
	prefix  string
	timeout time.Duration
}

func (a *S3Archiver) Name() string { return SinkS3 }

func (a *S3Archiver) Archive(ctx context.Context, rec Recording) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	key := objectName(rec)
	if p := strings.Trim(a.prefix, "/"); p != "" {
		key = p + "/" + key
	}

	metadata := map[string]string{"session-id": rec.SessionID}
	if rec.StreamSID != "" {
		metadata["stream-sid"] = rec.StreamSID
	}
	if rec.CallerID != "" {
		metadata["caller-id"] = rec.CallerID
	}

	body := codec.MulawWAV(rec.Audio, codec.SampleRate)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(string(body)),
		ContentType:   aws.String("audio/wav"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      metadata,
	})
	if err != nil {
		return "", fmt.Errorf("recording: put s3://%s/%s: %w", a.bucket, key, err)
	}
	return "s3://" + a.bucket + "/" + key, nil
}

type observed struct {
	next    Archiver
	metrics *metrics.Metrics
}

func observe(a Archiver) Archiver {
	return &observed{next: a, metrics: metrics.DefaultMetrics}
}

func (o *observed) Name() string { return o.next.Name() }

func (o *observed) Archive(ctx context.Context, rec Recording) (string, error) {
	uri, err := o.next.Archive(ctx, rec)
	o.metrics.RecordRecording(o.next.Name(), err)
	return uri, err
}
