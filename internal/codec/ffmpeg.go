package codec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"ai-voice-bridge-service/internal/faults"
)

// FFmpeg transcodes by piping audio through an ffmpeg subprocess.
type FFmpeg struct {
	Path    string
	Timeout time.Duration
}

func (f *FFmpeg) Name() string { return "ffmpeg" }

func (f *FFmpeg) Transcode(ctx context.Context, audio []byte, format string) ([]byte, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty input", faults.ErrTranscodeFailure)
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if format == FormatMulaw {
		args = append(args, "-f", "mulaw", "-ar", "8000", "-ac", "1")
	}
	args = append(args,
		"-i", "pipe:0",
		"-ar", "8000",
		"-ac", "1",
		"-c:a", "pcm_mulaw",
		"-f", "mulaw",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, f.Path, args...)
	cmd.Stdin = bytes.NewReader(audio)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s",
			faults.ErrTranscodeFailure, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no audio", faults.ErrTranscodeFailure)
	}
	return stdout.Bytes(), nil
}
