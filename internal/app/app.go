package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-voice-bridge-service/internal/config"
	"ai-voice-bridge-service/internal/events"
	"ai-voice-bridge-service/internal/observability/logging"
	"ai-voice-bridge-service/internal/service/call"
	"ai-voice-bridge-service/internal/service/persist"
	"ai-voice-bridge-service/internal/service/reply"
	"ai-voice-bridge-service/internal/storage"
	"ai-voice-bridge-service/internal/twilio"
)

// Application holds process-wide state for the service: the configuration
// and the collaborators shared by every call session.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Store     storage.Store
	Publisher *events.Publisher
	Replies   *reply.Bridge
	Deps      call.Dependencies

	closers []func() error

	sessionsMu sync.Mutex
	sessions   sync.WaitGroup
	draining   bool
}

// ErrDraining is returned by NewSession once WaitSessions has started.
var ErrDraining = errors.New("application is draining")

// New constructs a new Application from the provided configuration. Backend
// clients are created here; a provider that cannot be built is an error.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	transcriber, err := a.newTranscriber(ctx)
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	backend, err := a.newBackend(ctx)
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	synth, err := a.newSynthesizer(ctx)
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	transcoder, err := a.newTranscoder()
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	a.Store, err = a.newStore(ctx)
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	archiver, err := a.newArchiver(ctx)
	if err != nil {
		a.Shutdown()
		return nil, err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicEmergency: cfg.Kafka.TopicEmergency,
		TopicCall:      cfg.Kafka.TopicCall,
		Principal:      cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher.Close)

	a.Replies = reply.New(synth, transcoder, cfg.Reply.FallbackText)
	a.Deps = call.Dependencies{
		Transcriber: transcriber,
		Backend:     backend,
		Replies:     a.Replies,
		Persister:   persist.New(a.Store, a.Publisher),
		Archiver:    archiver,
		Events:      a.Publisher,
	}

	appLogger.Info().
		Str("stt", transcriber.Name()).
		Str("llm", backend.Name()).
		Str("tts", synth.Name()).
		Str("transcoder", transcoder.Name()).
		Str("recording", archiver.Name()).
		Msg("AI Voice Bridge service application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	format := a.Cfg.Observability.LogFormat
	if a.Cfg.Service.Env == "dev" && format == "" {
		format = "console"
	}
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     format,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", a.Cfg.Service.Name).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

// CallConfig maps the environment settings onto the session policy.
func (a *Application) CallConfig() call.Config {
	c := a.Cfg.Call
	return call.Config{
		TriggerBytes:           c.TriggerBytes,
		MaxBufferBytes:         c.MaxBufferBytes,
		MaxCallAudioBytes:      c.MaxCallAudioBytes,
		Cooldown:               c.Cooldown,
		MaxCycles:              c.MaxCycles,
		MarkName:               c.MarkName,
		ClosingMessage:         c.ClosingMessage,
		BackendFallbackMessage: c.BackendFallback,
		FinalizeMode:           c.FinalizeMode,
	}
}

// VoiceConfig is the call-setup webhook document configuration.
func (a *Application) VoiceConfig() twilio.VoiceConfig {
	return twilio.VoiceConfig{
		Greeting:  a.Cfg.Twilio.Greeting,
		StreamURL: a.Cfg.Twilio.StreamURL,
		Goodbye:   a.Cfg.Twilio.Goodbye,
	}
}

// NewSession opens a call session writing to sender. Every session must be
// finished with CloseSession.
func (a *Application) NewSession(sender call.Sender) (*call.Session, error) {
	a.sessionsMu.Lock()
	defer a.sessionsMu.Unlock()
	if a.draining {
		return nil, ErrDraining
	}
	a.sessions.Add(1)
	return call.NewSession(a.CallConfig(), a.Deps, sender), nil
}

// CloseSession finalizes s and releases it from the active set.
func (a *Application) CloseSession(ctx context.Context, s *call.Session, cause error) {
	defer a.sessions.Done()
	s.Close(ctx, cause)
}

// Ready reports whether new calls are accepted. Storage health is not part of
// readiness; it is served by the storage health route.
func (a *Application) Ready(context.Context) error {
	a.sessionsMu.Lock()
	defer a.sessionsMu.Unlock()
	if a.draining {
		return ErrDraining
	}
	return nil
}

// WaitSessions stops accepting new sessions and waits for the active ones to
// close, or for ctx to end.
func (a *Application) WaitSessions(ctx context.Context) error {
	a.sessionsMu.Lock()
	a.draining = true
	a.sessionsMu.Unlock()

	done := make(chan struct{})
	go func() {
		a.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("AI Voice Bridge service starting")

	// The fallback utterance is synthesized ahead of the first call. A
	// failure here is retried lazily by the first reply that needs it.
	if err := a.Replies.Warm(ctx); err != nil {
		startLogger.Warn().Err(err).Msg("Fallback utterance not prepared")
	}

	// Storage problems only cost records, never calls.
	if a.Cfg.Storage.Enabled {
		if h := a.Store.Health(ctx); !h.OK {
			startLogger.Warn().
				Str("table", h.Table).
				Str("error", h.Error).
				Msg("Storage not reachable, records will be dropped until it recovers")
		}
	}
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("AI Voice Bridge service shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}
