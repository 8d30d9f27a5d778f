// Command callclient plays the telephony side of a call against a running
// bridge: it requests the call-setup document, opens the media stream,
// streams audio in real time and saves the replies it hears.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ai-voice-bridge-service/internal/codec"
	"ai-voice-bridge-service/internal/twilio"
)

// 20ms of 8kHz μ-law, the frame size the telephony provider uses.
const (
	frameBytes    = 160
	frameInterval = 20 * time.Millisecond
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Bridge base URL")
	audioFile := flag.String("audio", "", "WAV or MP3 file to stream (default: generated tone)")
	seconds := flag.Int("seconds", 8, "Length of the generated tone when no file is given")
	caller := flag.String("caller", "+15550100", "Caller number sent to the webhook")
	out := flag.String("out", "replies.wav", "Where to write the received reply audio")
	linger := flag.Duration("linger", 10*time.Second, "How long to wait for replies after the audio ends")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	audio, err := loadAudio(*audioFile, *seconds)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load audio")
	}
	log.Info().Int("bytes", len(audio)).Dur("length", time.Duration(len(audio)/frameBytes)*frameInterval).Msg("Audio ready")

	if err := fetchVoiceDocument(*server, *caller); err != nil {
		log.Warn().Err(err).Msg("Webhook request failed, streaming anyway")
	}

	wsURL := strings.Replace(strings.TrimRight(*server, "/"), "http", "ws", 1) + "/twilio/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", wsURL).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", wsURL).Msg("Connected")

	streamSid := "MZ" + strings.ReplaceAll(uuid.NewString(), "-", "")

	var (
		mu      sync.Mutex
		replies bytes.Buffer
		done    = make(chan struct{})
		writeMu sync.Mutex
	)
	// The reader goroutine acknowledges marks while the main goroutine
	// streams; websocket writes must not interleave.
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}
	go func() {
		defer close(done)
		for {
			var msg twilio.OutboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Event {
			case twilio.EventMedia:
				b, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
				if err != nil {
					log.Warn().Err(err).Msg("Bad reply payload")
					continue
				}
				mu.Lock()
				replies.Write(b)
				mu.Unlock()
				log.Info().Int("bytes", len(b)).Msg("Reply audio received")
			case twilio.EventMark:
				log.Info().Str("name", msg.Mark.Name).Msg("Mark received")
				// Acknowledge playback like the provider does.
				_ = send(map[string]any{"event": "mark", "streamSid": streamSid, "mark": msg.Mark})
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := stream(ctx, send, streamSid, *caller, audio); err != nil {
		log.Fatal().Err(err).Msg("Streaming failed")
	}

	log.Info().Dur("linger", *linger).Msg("Audio sent, waiting for replies")
	select {
	case <-done:
	case <-time.After(*linger):
	}
	_ = send(map[string]any{"event": "stop", "streamSid": streamSid})
	writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	writeMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if replies.Len() == 0 {
		log.Warn().Msg("No reply audio received")
		return
	}
	if err := os.WriteFile(*out, codec.MulawWAV(replies.Bytes(), codec.SampleRate), 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write replies")
	}
	log.Info().Str("file", *out).Int("bytes", replies.Len()).Msg("Replies saved")
}

// loadAudio returns 8kHz μ-law audio from a file or a generated tone.
func loadAudio(path string, seconds int) ([]byte, error) {
	if path == "" {
		n := seconds * codec.SampleRate
		pcm := make([]int16, n)
		for i := range pcm {
			pcm[i] = int16(6000 * math.Sin(2*math.Pi*300*float64(i)/codec.SampleRate))
		}
		return codec.EncodeMulaw(pcm), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := codec.FormatWAV
	if codec.LooksLikeMP3(data) {
		format = codec.FormatMP3
	}
	return codec.Native{}.Transcode(context.Background(), data, format)
}

func fetchVoiceDocument(server, caller string) error {
	form := url.Values{"From": {caller}, "CallSid": {"CA" + strings.ReplaceAll(uuid.NewString(), "-", "")}}
	resp, err := http.PostForm(strings.TrimRight(server, "/")+"/twilio/voice", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, body)
	}
	log.Info().Str("twiml", string(body)).Msg("Call-setup document")
	return nil
}

// stream sends connected, start and paced media frames.
func stream(ctx context.Context, send func(any) error, streamSid, caller string, audio []byte) error {
	if err := send(map[string]any{"event": twilio.EventConnected, "protocol": "Call", "version": "1.0.0"}); err != nil {
		return err
	}
	start := twilio.InboundMessage{
		Event:          twilio.EventStart,
		SequenceNumber: "1",
		StreamSid:      streamSid,
		Start: &twilio.StartPayload{
			StreamSid:        streamSid,
			Tracks:           []string{"inbound"},
			CustomParameters: map[string]string{twilio.CallerIDParameter: caller},
			MediaFormat:      &twilio.MediaFormat{Encoding: "audio/x-mulaw", SampleRate: codec.SampleRate, Channels: 1},
		},
	}
	if err := send(start); err != nil {
		return err
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	seq := 2
	for off := 0; off < len(audio); off += frameBytes {
		end := min(off+frameBytes, len(audio))
		msg := twilio.InboundMessage{
			Event:          twilio.EventMedia,
			SequenceNumber: fmt.Sprint(seq),
			StreamSid:      streamSid,
			Media: &twilio.MediaPayload{
				Track:     "inbound",
				Chunk:     fmt.Sprint(seq - 1),
				Timestamp: fmt.Sprint((off / frameBytes) * int(frameInterval/time.Millisecond)),
				Payload:   base64.StdEncoding.EncodeToString(audio[off:end]),
			},
		}
		if err := send(msg); err != nil {
			return err
		}
		seq++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
