package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WAV format tags.
const (
	WAVFormatPCM   = 1
	WAVFormatMulaw = 7
)

// WAV is the decoded header and data chunk of a RIFF/WAVE file.
type WAV struct {
	Format        int
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte
}

var errNotWAV = errors.New("not a WAV file")

// LooksLikeWAV reports whether b starts with a RIFF/WAVE header.
func LooksLikeWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// LooksLikeMP3 reports whether b starts with an ID3 tag or an MPEG frame sync.
func LooksLikeMP3(b []byte) bool {
	return (len(b) >= 3 && string(b[:3]) == "ID3") ||
		(len(b) >= 2 && b[0] == 0xFF && (b[1]&0xE0) == 0xE0)
}

// ParseWAV walks the RIFF chunks and returns the fmt fields and data chunk.
func ParseWAV(data []byte) (WAV, error) {
	if len(data) < 12 || !LooksLikeWAV(data) {
		return WAV{}, errNotWAV
	}
	var w WAV
	var haveFmt, haveData bool
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8
		if chunkSize < 0 || pos+chunkSize > len(data) {
			chunkSize = len(data) - pos
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return WAV{}, fmt.Errorf("fmt chunk too small: %d", chunkSize)
			}
			w.Format = int(binary.LittleEndian.Uint16(data[pos : pos+2]))
			w.Channels = int(binary.LittleEndian.Uint16(data[pos+2 : pos+4]))
			w.SampleRate = int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
			w.BitsPerSample = int(binary.LittleEndian.Uint16(data[pos+14 : pos+16]))
			haveFmt = true
		case "data":
			w.Data = data[pos : pos+chunkSize]
			haveData = true
		}
		pos += chunkSize
		if pos%2 == 1 {
			pos++
		}
	}
	if !haveFmt || !haveData {
		return WAV{}, fmt.Errorf("incomplete WAV: fmt=%v data=%v", haveFmt, haveData)
	}
	return w, nil
}

// Samples decodes the data chunk into interleaved 16-bit samples.
func (w WAV) Samples() ([]int16, error) {
	switch {
	case w.Format == WAVFormatPCM && w.BitsPerSample == 16:
		return BytesToPCM(w.Data), nil
	case w.Format == WAVFormatPCM && w.BitsPerSample == 8:
		out := make([]int16, len(w.Data))
		for i, b := range w.Data {
			out[i] = int16((int(b) - 128) << 8)
		}
		return out, nil
	case w.Format == WAVFormatMulaw && w.BitsPerSample == 8:
		return DecodeMulaw(w.Data), nil
	default:
		return nil, fmt.Errorf("unsupported WAV encoding: format=%d bits=%d", w.Format, w.BitsPerSample)
	}
}

// WriteWAV writes mono 16-bit samples to w as a PCM WAV file.
func WriteWAV(w io.Writer, pcm []int16, sampleRate int) error {
	_, err := w.Write(encodeWAV(WAVFormatPCM, 16, sampleRate, PCMToBytes(pcm)))
	return err
}

// MulawWAV wraps raw μ-law bytes in a WAV container (format 7).
func MulawWAV(mulaw []byte, sampleRate int) []byte {
	return encodeWAV(WAVFormatMulaw, 8, sampleRate, mulaw)
}

func encodeWAV(format, bits, sampleRate int, data []byte) []byte {
	const channels = 1
	blockAlign := channels * bits / 8
	fmtSize := 16
	if format != WAVFormatPCM {
		fmtSize = 18
	}

	var buf bytes.Buffer
	buf.Grow(12 + 8 + fmtSize + 8 + len(data))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(4+8+fmtSize+8+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(fmtSize))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(format))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bits))
	if fmtSize == 18 {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(0))
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}
