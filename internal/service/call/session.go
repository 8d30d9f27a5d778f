// Package call drives one telephony call over a media stream. Buffered caller
// audio is processed in cycles whose spoken reply goes back on the stream.
package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/models"
	"ai-voice-bridge-service/internal/observability/logging"
	"ai-voice-bridge-service/internal/observability/metrics"
	"ai-voice-bridge-service/internal/recording"
	"ai-voice-bridge-service/internal/service/extract"
	"ai-voice-bridge-service/internal/service/llm"
	"ai-voice-bridge-service/internal/service/persist"
	"ai-voice-bridge-service/internal/service/stt"
	"ai-voice-bridge-service/internal/service/transcript"
	"ai-voice-bridge-service/internal/twilio"
)

// ErrStreamStopped is returned by HandleEvent for the stop event. The caller
// closes the session afterwards.
var ErrStreamStopped = errors.New("media stream stopped")

// Finalize modes.
const (
	FinalizeResidual = "residual"
	FinalizeFull     = "full"
)

// Config tunes the buffering and reply policy of a session. A non-positive
// TriggerBytes takes the default, and MaxBufferBytes is raised to at least
// TriggerBytes so a cycle can always start.
type Config struct {
	TriggerBytes      int           // buffered bytes that start a cycle
	MaxBufferBytes    int           // cycle buffer cap, oldest bytes dropped
	MaxCallAudioBytes int           // whole-call audio cap
	Cooldown          time.Duration // quiet period after each cycle
	MaxCycles         int           // replies before the closing message, 0 = unlimited

	MarkName               string
	ClosingMessage         string
	BackendFallbackMessage string
	FinalizeMode           string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TriggerBytes:           30000, // ~3.75s of 8kHz μ-law
		MaxBufferBytes:         240000,
		MaxCallAudioBytes:      5 * 1024 * 1024,
		Cooldown:               30 * time.Second,
		MaxCycles:              2,
		MarkName:               "message",
		ClosingMessage:         "Thank you. Help is on the way. Please stay safe and keep your phone nearby.",
		BackendFallbackMessage: "Sorry, I could not understand that. Please tell me your location and what happened.",
		FinalizeMode:           FinalizeResidual,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.TriggerBytes <= 0 {
		c.TriggerBytes = def.TriggerBytes
	}
	if c.MaxBufferBytes > 0 && c.MaxBufferBytes < c.TriggerBytes {
		c.MaxBufferBytes = c.TriggerBytes
	}
	if c.MarkName == "" {
		c.MarkName = def.MarkName
	}
	return c
}

// Sender writes one outbound frame to the media stream.
type Sender interface {
	Send(ctx context.Context, msg twilio.OutboundMessage) error
}

// Replier turns reply text into telephony audio.
type Replier interface {
	SynthesizeWithFallback(ctx context.Context, text string) ([]byte, bool, error)
}

// RecordPersister stores extracted records.
type RecordPersister interface {
	Persist(ctx context.Context, origin persist.Origin, rec *extract.Record) persist.Outcome
}

// CallPublisher receives the call summary event.
type CallPublisher interface {
	PublishCallCompleted(ctx context.Context, key string, event any) error
}

// Dependencies are the collaborators shared by all sessions. Archiver,
// Events and Now are optional.
type Dependencies struct {
	Transcriber stt.Transcriber
	Backend     llm.Backend
	Replies     Replier
	Persister   RecordPersister
	Archiver    recording.Archiver
	Events      CallPublisher
	Now         func() time.Time
}

// Stats is a point-in-time snapshot of a session.
type Stats struct {
	State          State
	Cycles         int
	Transmissions  int
	BytesReceived  int
	BufferedBytes  int
	CallAudioBytes int
	StartedAt      time.Time
}

// Session is the state of one call. HandleEvent and Close must be called
// from a single goroutine; Stats may be called from anywhere.
type Session struct {
	id     string
	cfg    Config
	deps   Dependencies
	sender Sender
	now    func() time.Time

	lifecycle *Lifecycle
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	streamSid string
	callerID  string

	transcript   *transcript.Accumulator
	conversation llm.Conversation

	mu            sync.Mutex
	buffer        []byte
	callAudio     []byte
	bytesReceived int
	cycles        int
	transmissions int
	cooldownUntil time.Time
	startedAt     time.Time
	closed        bool
}

// NewSession creates a session in AWAITING_START.
func NewSession(cfg Config, deps Dependencies, sender Sender) *Session {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg = cfg.normalized()
	id := uuid.NewString()
	s := &Session{
		id:         id,
		cfg:        cfg,
		deps:       deps,
		sender:     sender,
		now:        now,
		lifecycle:  NewLifecycle(),
		logger:     logging.WithCall(id, ""),
		metrics:    metrics.DefaultMetrics,
		transcript: transcript.New(),
		startedAt:  now(),
	}
	s.metrics.RecordCallStart()
	s.logger.Info().Msg("Call session opened")
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StreamSID returns the stream identifier once the start event arrived.
func (s *Session) StreamSID() string { return s.streamSid }

// State returns the lifecycle state.
func (s *Session) State() State { return s.lifecycle.State() }

// Transcript returns a copy of the turns so far.
func (s *Session) Transcript() []transcript.Turn { return s.transcript.Turns() }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:          s.lifecycle.State(),
		Cycles:         s.cycles,
		Transmissions:  s.transmissions,
		BytesReceived:  s.bytesReceived,
		BufferedBytes:  len(s.buffer),
		CallAudioBytes: len(s.callAudio),
		StartedAt:      s.startedAt,
	}
}

// HandleEvent consumes one inbound frame. It returns ErrStreamStopped for
// stop and a wrapped faults.ErrTransportDisconnect when an outbound frame
// could not be written. Backend failures never surface here.
func (s *Session) HandleEvent(ctx context.Context, msg twilio.InboundMessage) error {
	if s.lifecycle.IsClosed() {
		return ErrSessionClosed
	}

	switch msg.Event {
	case twilio.EventStart:
		return s.handleStart(msg)
	case twilio.EventMedia:
		return s.handleMedia(ctx, msg)
	case twilio.EventMark:
		name := ""
		if msg.Mark != nil {
			name = msg.Mark.Name
		}
		s.logger.Debug().Str("mark", name).Msg("Playback mark acknowledged")
		return nil
	case twilio.EventStop:
		s.logger.Info().Msg("Stop event received")
		return ErrStreamStopped
	default:
		s.logger.Debug().Str("event", msg.Event).Msg("Ignoring media stream event")
		return nil
	}
}

func (s *Session) handleStart(msg twilio.InboundMessage) error {
	if s.lifecycle.State() != StateAwaitingStart {
		s.logger.Warn().Str("streamSid", msg.StreamID()).Msg("Duplicate start event ignored")
		return nil
	}
	s.streamSid = msg.StreamID()
	s.callerID = msg.CallerID()
	s.logger = logging.WithCall(s.id, s.streamSid)

	if err := s.lifecycle.Transition(StateBuffering); err != nil {
		return err
	}
	s.logger.Info().
		Bool("callerKnown", s.callerID != "").
		Msg("Media stream started")
	return nil
}

func (s *Session) handleMedia(ctx context.Context, msg twilio.InboundMessage) error {
	if s.lifecycle.State() == StateAwaitingStart {
		s.metrics.RecordMediaDropped("before_start")
		s.logger.Debug().Msg("Media before start dropped")
		return nil
	}
	audio, err := msg.Audio()
	if err != nil {
		s.metrics.RecordMediaDropped("invalid_payload")
		s.logger.Warn().Err(err).Msg("Media frame dropped")
		return nil
	}
	if len(audio) == 0 {
		return nil
	}
	s.metrics.RecordMediaReceived(len(audio))

	s.mu.Lock()
	s.bytesReceived += len(audio)
	s.buffer = append(s.buffer, audio...)
	if s.cfg.MaxBufferBytes > 0 && len(s.buffer) > s.cfg.MaxBufferBytes {
		overflow := len(s.buffer) - s.cfg.MaxBufferBytes
		s.buffer = append(s.buffer[:0], s.buffer[overflow:]...)
		s.metrics.RecordMediaDropped("buffer_full")
	}
	if s.cfg.MaxCallAudioBytes <= 0 || len(s.callAudio) < s.cfg.MaxCallAudioBytes {
		room := len(audio)
		if s.cfg.MaxCallAudioBytes > 0 {
			room = min(room, s.cfg.MaxCallAudioBytes-len(s.callAudio))
		}
		s.callAudio = append(s.callAudio, audio[:room]...)
	}
	ready := len(s.buffer) >= s.cfg.TriggerBytes && !s.now().Before(s.cooldownUntil)
	s.mu.Unlock()

	if !ready {
		return nil
	}
	return s.runCycle(ctx)
}

// runCycle processes the buffered audio and transmits the reply.
func (s *Session) runCycle(ctx context.Context) error {
	start := s.now()
	if err := s.lifecycle.Transition(StateProcessing); err != nil {
		return err
	}

	s.mu.Lock()
	audio := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	message := s.process(ctx, audio)

	s.mu.Lock()
	s.cycles++
	s.cooldownUntil = s.now().Add(s.cfg.Cooldown)
	s.mu.Unlock()

	reply, usedFallback, err := s.deps.Replies.SynthesizeWithFallback(ctx, message)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("kind", faults.Kind(err)).
			Msg("No reply audio, skipping transmission")
		s.metrics.RecordCycle("live", "silent", s.now().Sub(start).Seconds())
		return s.lifecycle.Transition(StateBuffering)
	}

	if err := s.transmit(ctx, reply); err != nil {
		s.metrics.RecordCycle("live", "disconnected", s.now().Sub(start).Seconds())
		return err
	}

	outcome := "replied"
	if usedFallback {
		outcome = "fallback"
	}
	s.metrics.RecordCycle("live", outcome, s.now().Sub(start).Seconds())
	return s.lifecycle.Transition(StateBuffering)
}

// transmit sends the reply audio followed by its mark.
func (s *Session) transmit(ctx context.Context, audio []byte) error {
	if err := s.lifecycle.Transition(StateTransmitting); err != nil {
		return err
	}
	if err := s.sender.Send(ctx, twilio.NewMediaMessage(s.streamSid, audio)); err != nil {
		return fmt.Errorf("%w: send media: %w", faults.ErrTransportDisconnect, err)
	}
	if err := s.sender.Send(ctx, twilio.NewMarkMessage(s.streamSid, s.cfg.MarkName)); err != nil {
		return fmt.Errorf("%w: send mark: %w", faults.ErrTransportDisconnect, err)
	}
	s.metrics.RecordMediaSent(len(audio))

	s.mu.Lock()
	s.transmissions++
	s.mu.Unlock()

	s.logger.Info().Int("bytes", len(audio)).Msg("Reply transmitted")
	return nil
}

// process runs transcribe → reply → extract → persist and returns the
// caller-facing message.
func (s *Session) process(ctx context.Context, audio []byte) string {
	text, sttErr := s.deps.Transcriber.Transcribe(ctx, audio)
	if sttErr != nil {
		s.logger.Warn().Err(sttErr).Msg("Transcription failed")
	}
	s.transcript.Append(transcript.SpeakerCaller, text)

	reply := s.reply(ctx, sttErr)
	s.transcript.Append(transcript.SpeakerAssistant, reply)

	rec, tier := extract.ExtractTier(reply)
	s.metrics.RecordExtraction(string(tier))
	ok := rec != nil
	if ok && s.deps.Persister != nil {
		origin := persist.Origin{SessionID: s.id, StreamSID: s.streamSid}
		outcome := s.deps.Persister.Persist(ctx, origin, rec.WithCaller(s.callerID))
		s.logger.Debug().Str("outcome", string(outcome)).Msg("Record persistence done")
	}
	if !ok {
		s.logger.Debug().Err(faults.ErrParseFailure).Msg("Reply carries no record")
	}
	return extract.CallerFacingMessage(reply, rec, ok)
}

// reply picks the assistant's next line.
func (s *Session) reply(ctx context.Context, sttErr error) string {
	s.mu.Lock()
	cycles := s.cycles
	s.mu.Unlock()

	if s.cfg.MaxCycles > 0 && cycles >= s.cfg.MaxCycles {
		return s.cfg.ClosingMessage
	}
	if sttErr != nil {
		s.metrics.RecordFallback("transcription")
		return s.cfg.BackendFallbackMessage
	}

	if s.conversation == nil {
		conv, err := s.deps.Backend.NewConversation(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Could not open conversation")
			s.metrics.RecordFallback("backend")
			return s.cfg.BackendFallbackMessage
		}
		s.conversation = conv
	}

	out, err := s.conversation.Send(ctx, s.transcript.Render())
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("kind", faults.Kind(err)).
			Msg("Language backend failed")
		s.metrics.RecordFallback("backend")
		return s.cfg.BackendFallbackMessage
	}
	return strings.TrimSpace(out)
}

// Close finalizes the call: residual audio gets one last cycle without
// transmission, then the recording is archived and the summary published.
// Safe to call more than once.
func (s *Session) Close(ctx context.Context, cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	residual := s.buffer
	if s.cfg.FinalizeMode == FinalizeFull {
		residual = s.callAudio
	}
	s.buffer = nil
	s.mu.Unlock()

	if s.lifecycle.State() == StateTransmitting {
		_ = s.lifecycle.Transition(StateBuffering)
	}
	if len(residual) > 0 && s.streamSid != "" {
		start := s.now()
		if err := s.lifecycle.Transition(StateProcessing); err != nil {
			s.logger.Warn().Err(err).Msg("Final cycle skipped")
		} else {
			s.process(ctx, residual)
			s.mu.Lock()
			s.cycles++
			s.mu.Unlock()
			s.metrics.RecordCycle("final", "done", s.now().Sub(start).Seconds())
		}
	}

	uri := s.archive(ctx)
	s.publishSummary(ctx, cause, uri)

	if s.conversation != nil {
		if err := s.conversation.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Conversation close failed")
		}
		s.conversation = nil
	}
	_ = s.lifecycle.Transition(StateClosed)

	duration := s.now().Sub(s.startedAt)
	s.metrics.RecordCallEnd(faults.Kind(cause), duration.Seconds())
	s.logger.Info().
		Str("cause", faults.Kind(cause)).
		Dur("duration", duration).
		Int("turns", s.transcript.Len()).
		Msg("Call session closed")
}

func (s *Session) archive(ctx context.Context) string {
	if s.deps.Archiver == nil {
		return ""
	}
	s.mu.Lock()
	audio := s.callAudio
	s.mu.Unlock()
	if len(audio) == 0 {
		return ""
	}
	uri, err := s.deps.Archiver.Archive(ctx, recording.Recording{
		SessionID: s.id,
		StreamSID: s.streamSid,
		CallerID:  s.callerID,
		StartedAt: s.startedAt,
		Audio:     audio,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Call recording not archived")
		return ""
	}
	return uri
}

func (s *Session) publishSummary(ctx context.Context, cause error, uri string) {
	if s.deps.Events == nil {
		return
	}
	now := s.now()
	turns := s.transcript.Turns()
	out := make([]models.Turn, len(turns))
	for i, t := range turns {
		out[i] = models.Turn{Speaker: t.Speaker.String(), Text: t.Text}
	}

	s.mu.Lock()
	event := models.CallCompleted{
		EventType:    models.EventCallCompleted,
		SessionID:    s.id,
		StreamSID:    s.streamSid,
		CallerID:     s.callerID,
		Timestamp:    now.UnixMilli(),
		StartedAt:    s.startedAt.UnixMilli(),
		DurationMs:   now.Sub(s.startedAt).Milliseconds(),
		Cycles:       s.cycles,
		AudioBytes:   len(s.callAudio),
		CloseCause:   faults.Kind(cause),
		RecordingURI: uri,
		Transcript:   out,
	}
	s.mu.Unlock()

	if err := s.deps.Events.PublishCallCompleted(ctx, s.id, event); err != nil {
		s.logger.Warn().Err(err).Msg("Call summary not published")
	}
}
