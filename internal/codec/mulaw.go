// Package codec converts between the telephony narrowband encoding
// (G.711 μ-law, 8 kHz, mono) and linear PCM, and turns synthesized audio
// files into μ-law ready for the media stream.
package codec

// SampleRate is the telephony sample rate in Hz.
const SampleRate = 8000

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// MulawToLinear expands one μ-law byte into a signed 16-bit sample.
func MulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + mulawBias
	value <<= uint(exp)
	value -= mulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// LinearToMulaw compresses one signed 16-bit sample into μ-law.
func LinearToMulaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exp := 7
	for mask := 0x4000; s&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := (s >> (exp + 3)) & 0x0F
	return ^byte(sign | exp<<4 | mant)
}

// DecodeMulaw expands a μ-law byte stream into linear PCM samples.
// Every byte is one sample, so any input length is valid.
func DecodeMulaw(b []byte) []int16 {
	pcm := make([]int16, len(b))
	for i, u := range b {
		pcm[i] = MulawToLinear(u)
	}
	return pcm
}

// EncodeMulaw compresses linear PCM samples into μ-law bytes.
func EncodeMulaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = LinearToMulaw(s)
	}
	return out
}
