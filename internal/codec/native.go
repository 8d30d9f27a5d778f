package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"ai-voice-bridge-service/internal/faults"
)

// Native transcodes WAV and MP3 in-process.
type Native struct{}

func (Native) Name() string { return "native" }

func (Native) Transcode(ctx context.Context, audio []byte, format string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrTranscodeFailure, err)
	}

	var (
		pcm  []int16
		rate int
		err  error
	)
	switch {
	case format == FormatMulaw:
		return append([]byte(nil), audio...), nil
	case format == FormatWAV || (format == "" && LooksLikeWAV(audio)):
		pcm, rate, err = decodeWAV(audio)
	case format == FormatMP3 || (format == "" && LooksLikeMP3(audio)):
		pcm, rate, err = decodeMP3(audio)
	default:
		err = fmt.Errorf("unrecognized audio format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrTranscodeFailure, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: no samples decoded", faults.ErrTranscodeFailure)
	}
	return EncodeMulaw(Resample(pcm, rate, SampleRate)), nil
}

func decodeWAV(audio []byte) ([]int16, int, error) {
	w, err := ParseWAV(audio)
	if err != nil {
		return nil, 0, err
	}
	samples, err := w.Samples()
	if err != nil {
		return nil, 0, err
	}
	return ToMono(samples, w.Channels), w.SampleRate, nil
}

// go-mp3 always yields interleaved stereo 16-bit little-endian.
func decodeMP3(audio []byte) ([]int16, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return nil, 0, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}
	if len(raw)%4 != 0 {
		return nil, 0, fmt.Errorf("unexpected MP3 decoded length %d", len(raw))
	}
	return ToMono(BytesToPCM(raw), 2), dec.SampleRate(), nil
}
