package call

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-voice-bridge-service/internal/faults"
	"ai-voice-bridge-service/internal/recording"
	"ai-voice-bridge-service/internal/service/extract"
	llmmock "ai-voice-bridge-service/internal/service/llm/mock"
	"ai-voice-bridge-service/internal/service/persist"
	sttmock "ai-voice-bridge-service/internal/service/stt/mock"
	"ai-voice-bridge-service/internal/service/transcript"
	"ai-voice-bridge-service/internal/twilio"
)

const frameSize = 160

// --- fakes ---

type recordingSender struct {
	mu   sync.Mutex
	msgs []twilio.OutboundMessage
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg twilio.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) sent() []twilio.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]twilio.OutboundMessage(nil), s.msgs...)
}

type fakeReplier struct {
	texts []string
	err   error
}

func (r *fakeReplier) SynthesizeWithFallback(ctx context.Context, text string) ([]byte, bool, error) {
	r.texts = append(r.texts, text)
	if r.err != nil {
		return nil, true, r.err
	}
	return []byte{0xFF, 0xFF, 0xFF, 0xFF}, false, nil
}

type fakePersister struct {
	records []*extract.Record
	origins []persist.Origin
}

func (p *fakePersister) Persist(ctx context.Context, origin persist.Origin, rec *extract.Record) persist.Outcome {
	p.records = append(p.records, rec)
	p.origins = append(p.origins, origin)
	return persist.OutcomeFull
}

type fakeEvents struct {
	events []any
}

func (e *fakeEvents) PublishCallCompleted(ctx context.Context, key string, event any) error {
	e.events = append(e.events, event)
	return nil
}

type fakeArchiver struct {
	recs []recording.Recording
}

func (a *fakeArchiver) Archive(ctx context.Context, rec recording.Recording) (string, error) {
	a.recs = append(a.recs, rec)
	return "file:///tmp/" + rec.SessionID + ".wav", nil
}

func (a *fakeArchiver) Name() string { return "fake" }

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- harness ---

type harness struct {
	stt       *sttmock.Transcriber
	llm       *llmmock.Backend
	replier   *fakeReplier
	persister *fakePersister
	events    *fakeEvents
	archiver  *fakeArchiver
	sender    *recordingSender
	clock     *clock
}

func newHarness() *harness {
	return &harness{
		stt:       sttmock.New(),
		llm:       llmmock.New(),
		replier:   &fakeReplier{},
		persister: &fakePersister{},
		events:    &fakeEvents{},
		archiver:  &fakeArchiver{},
		sender:    &recordingSender{},
		clock:     &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
}

func (h *harness) session(cfg Config) *Session {
	return NewSession(cfg, Dependencies{
		Transcriber: h.stt,
		Backend:     h.llm,
		Replies:     h.replier,
		Persister:   h.persister,
		Archiver:    h.archiver,
		Events:      h.events,
		Now:         h.clock.Now,
	}, h.sender)
}

func startEvent(streamSid, callerID string) twilio.InboundMessage {
	msg := twilio.InboundMessage{
		Event:     twilio.EventStart,
		StreamSid: streamSid,
		Start:     &twilio.StartPayload{StreamSid: streamSid},
	}
	if callerID != "" {
		msg.Start.CustomParameters = map[string]string{twilio.CallerIDParameter: callerID}
	}
	return msg
}

func mediaEvent(audio []byte) twilio.InboundMessage {
	return twilio.InboundMessage{
		Event: twilio.EventMedia,
		Media: &twilio.MediaPayload{Payload: base64.StdEncoding.EncodeToString(audio)},
	}
}

// feed sends n bytes of audio as 160-byte frames.
func feed(t *testing.T, s *Session, n int) {
	t.Helper()
	frame := bytes.Repeat([]byte{0xFF}, frameSize)
	for sent := 0; sent < n; sent += frameSize {
		chunk := frame
		if n-sent < frameSize {
			chunk = frame[:n-sent]
		}
		if err := s.HandleEvent(context.Background(), mediaEvent(chunk)); err != nil {
			t.Fatalf("media: %v", err)
		}
	}
}

func mustStart(t *testing.T, s *Session, streamSid string) {
	t.Helper()
	if err := s.HandleEvent(context.Background(), startEvent(streamSid, "+15550100")); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TriggerBytes = 3200
	cfg.MaxBufferBytes = 32000
	return cfg
}

// --- tests ---

func TestSession_TriggeredCycleSendsMediaThenMark(t *testing.T) {
	h := newHarness()
	s := h.session(DefaultConfig())
	mustStart(t, s, "abc")

	feed(t, s, 30000)

	msgs := h.sender.sent()
	if len(msgs) != 2 {
		t.Fatalf("expected media+mark, got %d messages", len(msgs))
	}
	if msgs[0].Event != twilio.EventMedia || msgs[0].StreamSid != "abc" || msgs[0].Media == nil {
		t.Errorf("first message = %+v, want media for abc", msgs[0])
	}
	if msgs[1].Event != twilio.EventMark || msgs[1].StreamSid != "abc" || msgs[1].Mark.Name != "message" {
		t.Errorf("second message = %+v, want mark 'message' for abc", msgs[1])
	}

	stats := s.Stats()
	if stats.BufferedBytes != 0 {
		t.Errorf("buffer holds %d bytes after the cycle, want 0", stats.BufferedBytes)
	}
	if stats.State != StateBuffering || stats.Cycles != 1 || stats.Transmissions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if err := s.HandleEvent(context.Background(), twilio.InboundMessage{Event: twilio.EventStop}); !errors.Is(err, ErrStreamStopped) {
		t.Fatalf("stop returned %v", err)
	}
	s.Close(context.Background(), nil)
	if got := len(h.sender.sent()); got != 2 {
		t.Errorf("close sent extra messages: %d total", got)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want CLOSED", s.State())
	}
}

func TestSession_ResidualAudioFinalizedWithoutTransmission(t *testing.T) {
	h := newHarness()
	s := h.session(DefaultConfig())
	mustStart(t, s, "abc")
	feed(t, s, 1600)

	if err := s.HandleEvent(context.Background(), twilio.InboundMessage{Event: twilio.EventStop}); !errors.Is(err, ErrStreamStopped) {
		t.Fatalf("stop returned %v", err)
	}
	s.Close(context.Background(), nil)

	if got := len(h.sender.sent()); got != 0 {
		t.Errorf("sent %d messages, want none", got)
	}
	if h.stt.Calls() != 1 {
		t.Errorf("transcriber called %d times, want 1", h.stt.Calls())
	}
	if len(h.replier.texts) != 0 {
		t.Errorf("final cycle synthesized audio: %v", h.replier.texts)
	}
	if got := len(s.Transcript()); got != 2 {
		t.Errorf("transcript has %d turns, want 2", got)
	}
	if len(h.persister.records) != 1 {
		t.Errorf("persisted %d records, want 1", len(h.persister.records))
	}
	if s.Stats().Cycles != 1 {
		t.Errorf("cycles = %d, want 1", s.Stats().Cycles)
	}
}

func TestSession_TranscriptOrderAndCallerMessage(t *testing.T) {
	h := newHarness()
	s := h.session(testConfig())
	mustStart(t, s, "abc")
	feed(t, s, 3200)

	turns := s.Transcript()
	want := []transcript.Turn{
		{Speaker: transcript.SpeakerCaller, Text: sttmock.DefaultUtterances[0]},
		{Speaker: transcript.SpeakerAssistant, Text: llmmock.DefaultReplies[0]},
	}
	if len(turns) != len(want) {
		t.Fatalf("turns = %+v", turns)
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, turns[i], want[i])
		}
	}

	if len(h.replier.texts) != 1 || h.replier.texts[0] != "Help is being arranged. What is the address?" {
		t.Errorf("synthesized %q, want the record output", h.replier.texts)
	}

	prompts := h.llm.Conversations()[0].Prompts()
	if len(prompts) != 1 || prompts[0] != "User: "+sttmock.DefaultUtterances[0]+"\n" {
		t.Errorf("prompt = %q", prompts)
	}
}

func TestSession_PersistsRecordWithCaller(t *testing.T) {
	h := newHarness()
	s := h.session(testConfig())
	mustStart(t, s, "abc")
	feed(t, s, 3200)

	if len(h.persister.records) != 1 {
		t.Fatalf("persisted %d records, want 1", len(h.persister.records))
	}
	rec := h.persister.records[0]
	if rec.CallerID != "+15550100" {
		t.Errorf("caller = %q", rec.CallerID)
	}
	if rec.Emergency == nil || *rec.Emergency != "smoke from a neighbouring kitchen" {
		t.Errorf("emergency = %v", rec.Emergency)
	}
	if o := h.persister.origins[0]; o.StreamSID != "abc" || o.SessionID != s.ID() {
		t.Errorf("origin = %+v", o)
	}
}

func TestSession_ClosingMessageAfterMaxCycles(t *testing.T) {
	h := newHarness()
	cfg := testConfig()
	cfg.MaxCycles = 1
	cfg.Cooldown = 0
	s := h.session(cfg)
	mustStart(t, s, "abc")

	feed(t, s, 3200)
	feed(t, s, 3200)

	if len(h.replier.texts) != 2 {
		t.Fatalf("expected 2 replies, got %v", h.replier.texts)
	}
	if h.replier.texts[1] != cfg.ClosingMessage {
		t.Errorf("second reply = %q, want closing message", h.replier.texts[1])
	}
	if h.stt.Calls() != 2 {
		t.Errorf("transcriber called %d times, want 2", h.stt.Calls())
	}
	if got := len(h.llm.Conversations()[0].Prompts()); got != 1 {
		t.Errorf("backend saw %d prompts, want 1", got)
	}
	if got := len(h.sender.sent()); got != 4 {
		t.Errorf("sent %d messages, want 4", got)
	}
}

func TestSession_CooldownGatesNextCycle(t *testing.T) {
	h := newHarness()
	cfg := testConfig()
	cfg.Cooldown = 30 * time.Second
	s := h.session(cfg)
	mustStart(t, s, "abc")

	feed(t, s, 3200)
	if s.Stats().Cycles != 1 {
		t.Fatalf("first cycle did not run")
	}

	h.clock.Advance(10 * time.Second)
	feed(t, s, 6400)
	stats := s.Stats()
	if stats.Cycles != 1 {
		t.Errorf("cycle ran during cooldown")
	}
	if stats.BufferedBytes != 6400 {
		t.Errorf("buffered %d bytes during cooldown, want 6400", stats.BufferedBytes)
	}

	h.clock.Advance(21 * time.Second)
	feed(t, s, frameSize)
	stats = s.Stats()
	if stats.Cycles != 2 || stats.BufferedBytes != 0 {
		t.Errorf("after cooldown: %+v", stats)
	}
}

func TestSession_BufferCapDropsOldestBytes(t *testing.T) {
	h := newHarness()
	cfg := testConfig()
	cfg.Cooldown = time.Minute
	cfg.MaxBufferBytes = 4000
	s := h.session(cfg)
	mustStart(t, s, "abc")

	feed(t, s, 3200)
	feed(t, s, 8000)

	if got := s.Stats().BufferedBytes; got != 4000 {
		t.Errorf("buffered %d bytes, want cap 4000", got)
	}
	if got := s.Stats().CallAudioBytes; got != 11200 {
		t.Errorf("call audio %d bytes, want 11200", got)
	}
}

func TestSession_BackendFailureUsesFallbackMessage(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{name: "conversation unavailable", setup: func(h *harness) { h.llm.NewErr = faults.ErrBackendUnavailable }},
		{name: "send fails", setup: func(h *harness) { h.llm.SendErr = faults.ErrBackendUnavailable }},
		{name: "transcription fails", setup: func(h *harness) { h.stt.Err = faults.ErrBackendUnavailable }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)
			cfg := testConfig()
			s := h.session(cfg)
			mustStart(t, s, "abc")
			feed(t, s, 3200)

			if len(h.replier.texts) != 1 || h.replier.texts[0] != cfg.BackendFallbackMessage {
				t.Errorf("reply = %q, want fallback message", h.replier.texts)
			}
			if got := len(h.sender.sent()); got != 2 {
				t.Errorf("sent %d messages, want 2", got)
			}
			if len(h.persister.records) != 0 {
				t.Errorf("fallback reply was persisted")
			}
		})
	}
}

func TestSession_SynthesisFailureSendsNothing(t *testing.T) {
	h := newHarness()
	h.replier.err = faults.ErrTranscodeFailure
	cfg := testConfig()
	s := h.session(cfg)
	mustStart(t, s, "abc")

	feed(t, s, 3200)

	if got := len(h.sender.sent()); got != 0 {
		t.Errorf("sent %d messages, want none", got)
	}
	stats := s.Stats()
	if stats.BufferedBytes != 0 || stats.State != StateBuffering {
		t.Errorf("unexpected stats: %+v", stats)
	}

	feed(t, s, 3200)
	if len(h.replier.texts) != 1 {
		t.Errorf("cooldown not applied after failed synthesis")
	}
}

func TestSession_ConversationPerSession(t *testing.T) {
	h := newHarness()
	a := h.session(testConfig())
	b := h.session(testConfig())
	mustStart(t, a, "A")
	mustStart(t, b, "B")

	feed(t, a, 3200)
	feed(t, b, 3200)

	convs := h.llm.Conversations()
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	pa, pb := convs[0].Prompts(), convs[1].Prompts()
	if !strings.Contains(pa[0], sttmock.DefaultUtterances[0]) || strings.Contains(pa[0], sttmock.DefaultUtterances[1]) {
		t.Errorf("session A prompt leaked: %q", pa[0])
	}
	if !strings.Contains(pb[0], sttmock.DefaultUtterances[1]) || strings.Contains(pb[0], sttmock.DefaultUtterances[0]) {
		t.Errorf("session B prompt leaked: %q", pb[0])
	}

	a.Close(context.Background(), nil)
	if !convs[0].Closed() || convs[1].Closed() {
		t.Errorf("closing A must release only its conversation")
	}
	b.Close(context.Background(), nil)
	if !convs[1].Closed() {
		t.Errorf("conversation B not released")
	}
}

func TestSession_MediaBeforeStartDropped(t *testing.T) {
	h := newHarness()
	s := h.session(testConfig())

	feed(t, s, 6400)
	if got := s.Stats().BytesReceived; got != 0 {
		t.Fatalf("received %d bytes before start", got)
	}
	if s.State() != StateAwaitingStart {
		t.Fatalf("state = %s", s.State())
	}

	mustStart(t, s, "abc")
	if s.StreamSID() != "abc" {
		t.Errorf("streamSid = %q", s.StreamSID())
	}
	if err := s.HandleEvent(context.Background(), mediaEvent(nil)); err != nil {
		t.Fatal(err)
	}
	bad := twilio.InboundMessage{Event: twilio.EventMedia, Media: &twilio.MediaPayload{Payload: "%%%"}}
	if err := s.HandleEvent(context.Background(), bad); err != nil {
		t.Errorf("invalid payload must be dropped, got %v", err)
	}
	if got := s.Stats().BytesReceived; got != 0 {
		t.Errorf("received %d bytes", got)
	}
}

func TestSession_DuplicateStartIgnored(t *testing.T) {
	h := newHarness()
	s := h.session(testConfig())
	mustStart(t, s, "first")
	mustStart(t, s, "second")

	if s.StreamSID() != "first" {
		t.Errorf("streamSid = %q, want first", s.StreamSID())
	}
}

func TestSession_TransportFailureEndsCycle(t *testing.T) {
	h := newHarness()
	h.sender.err = errors.New("broken pipe")
	cfg := testConfig()
	cfg.FinalizeMode = FinalizeFull
	s := h.session(cfg)
	mustStart(t, s, "abc")

	err := s.HandleEvent(context.Background(), mediaEvent(bytes.Repeat([]byte{0xFF}, 3200)))
	if !errors.Is(err, faults.ErrTransportDisconnect) {
		t.Fatalf("err = %v, want transport disconnect", err)
	}

	s.Close(context.Background(), err)
	if s.State() != StateClosed {
		t.Errorf("state = %s", s.State())
	}
	if s.Stats().Cycles != 2 {
		t.Errorf("full finalize did not run: cycles = %d", s.Stats().Cycles)
	}
}

func TestSession_CloseArchivesAndPublishesOnce(t *testing.T) {
	h := newHarness()
	s := h.session(testConfig())
	mustStart(t, s, "abc")
	feed(t, s, 3200)
	h.clock.Advance(5 * time.Second)

	s.Close(context.Background(), faults.ErrTransportDisconnect)
	s.Close(context.Background(), nil)

	if len(h.archiver.recs) != 1 || len(h.archiver.recs[0].Audio) != 3200 {
		t.Fatalf("archived %+v", h.archiver.recs)
	}
	if len(h.events.events) != 1 {
		t.Fatalf("published %d summaries, want 1", len(h.events.events))
	}
	if err := s.HandleEvent(context.Background(), mediaEvent([]byte{1})); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("event after close returned %v", err)
	}
}

func TestSession_TranscriptAlternatesAcrossCycles(t *testing.T) {
	h := newHarness()
	cfg := testConfig()
	cfg.Cooldown = 0
	cfg.MaxCycles = 0
	s := h.session(cfg)
	mustStart(t, s, "abc")

	const cycles = 3
	for i := 0; i < cycles; i++ {
		feed(t, s, cfg.TriggerBytes)
	}

	turns := s.Transcript()
	if len(turns) != 2*cycles {
		t.Fatalf("got %d turns, want %d: %+v", len(turns), 2*cycles, turns)
	}
	replies := []string{llmmock.DefaultReplies[0], llmmock.DefaultReplies[1], llmmock.DefaultReplies[1]}
	for i := 0; i < cycles; i++ {
		caller, assistant := turns[2*i], turns[2*i+1]
		if caller.Speaker != transcript.SpeakerCaller || caller.Text != sttmock.DefaultUtterances[i] {
			t.Errorf("cycle %d caller turn = %+v", i, caller)
		}
		if assistant.Speaker != transcript.SpeakerAssistant || assistant.Text != replies[i] {
			t.Errorf("cycle %d assistant turn = %+v", i, assistant)
		}
	}

	prompts := h.llm.Conversations()[0].Prompts()
	if len(prompts) != cycles {
		t.Fatalf("backend saw %d prompts, want %d", len(prompts), cycles)
	}
	if !strings.HasPrefix(prompts[2], prompts[1]) || !strings.HasPrefix(prompts[1], prompts[0]) {
		t.Errorf("prompts do not grow with the transcript: %q", prompts)
	}
}

func TestSession_ConfigNormalized(t *testing.T) {
	tests := []struct {
		name        string
		trigger     int
		maxBuffer   int
		feedBytes   int
		wantTrigger int
		wantBuffer  int
		wantCycles  int
	}{
		{"buffer cap below trigger", 3200, 1600, 3200, 3200, 3200, 1},
		{"zero trigger takes default", 0, 64000, 160, 30000, 64000, 0},
		{"negative trigger takes default", -1, 64000, 30000, 30000, 64000, 1},
		{"unbounded buffer kept", 3200, 0, 3200, 3200, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			cfg := testConfig()
			cfg.TriggerBytes = tt.trigger
			cfg.MaxBufferBytes = tt.maxBuffer
			s := h.session(cfg)

			if s.cfg.TriggerBytes != tt.wantTrigger || s.cfg.MaxBufferBytes != tt.wantBuffer {
				t.Fatalf("normalized trigger=%d buffer=%d, want %d/%d",
					s.cfg.TriggerBytes, s.cfg.MaxBufferBytes, tt.wantTrigger, tt.wantBuffer)
			}

			mustStart(t, s, "abc")
			feed(t, s, tt.feedBytes)
			if got := s.Stats().Cycles; got != tt.wantCycles {
				t.Errorf("cycles = %d, want %d", got, tt.wantCycles)
			}
			if got := len(h.sender.sent()); got != 2*tt.wantCycles {
				t.Errorf("sent %d messages, want %d", got, 2*tt.wantCycles)
			}
		})
	}
}
