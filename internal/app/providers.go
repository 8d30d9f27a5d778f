package app

import (
	"context"
	"fmt"

	"ai-voice-bridge-service/internal/codec"
	"ai-voice-bridge-service/internal/recording"
	"ai-voice-bridge-service/internal/service/llm"
	"ai-voice-bridge-service/internal/service/llm/gemini"
	llmmock "ai-voice-bridge-service/internal/service/llm/mock"
	"ai-voice-bridge-service/internal/service/stt"
	googlestt "ai-voice-bridge-service/internal/service/stt/google"
	sttmock "ai-voice-bridge-service/internal/service/stt/mock"
	"ai-voice-bridge-service/internal/service/tts"
	googletts "ai-voice-bridge-service/internal/service/tts/google"
	ttsmock "ai-voice-bridge-service/internal/service/tts/mock"
	"ai-voice-bridge-service/internal/service/tts/polly"
	"ai-voice-bridge-service/internal/storage"
	"ai-voice-bridge-service/internal/storage/postgres"
)

func (a *Application) newTranscriber(ctx context.Context) (stt.Transcriber, error) {
	c := a.Cfg.STT
	var t stt.Transcriber
	switch c.Provider {
	case "google":
		gc := googlestt.DefaultConfig()
		gc.LanguageCode = c.LanguageCode
		gc.Timeout = c.Timeout
		gc.CredentialsFile = c.CredentialsFile
		g, err := googlestt.New(ctx, gc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		t = g
	case "mock", "":
		t = sttmock.New()
	default:
		return nil, fmt.Errorf("unknown STT_PROVIDER %q", c.Provider)
	}
	return stt.Observe(stt.Limit(t, c.MaxConcurrent)), nil
}

func (a *Application) newBackend(ctx context.Context) (llm.Backend, error) {
	c := a.Cfg.LLM
	switch c.Provider {
	case "gemini":
		gc := gemini.DefaultConfig()
		gc.APIKey = c.APIKey
		gc.Model = c.Model
		gc.Timeout = c.Timeout
		gc.Temperature = c.Temperature
		if c.SystemInstruction != "" {
			gc.SystemInstruction = c.SystemInstruction
		}
		b, err := gemini.New(ctx, gc)
		if err != nil {
			return nil, err
		}
		return llm.Observe(b), nil
	case "mock", "":
		return llm.Observe(llmmock.New()), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider)
	}
}

func (a *Application) newSynthesizer(ctx context.Context) (tts.Synthesizer, error) {
	c := a.Cfg.TTS
	switch c.Provider {
	case "polly":
		return tts.Observe(polly.New(polly.Config{
			Region:  c.Region,
			VoiceID: c.Voice,
			Timeout: c.Timeout,
		})), nil
	case "google":
		s, err := googletts.New(ctx, googletts.Config{
			LanguageCode:    c.LanguageCode,
			Voice:           c.Voice,
			Timeout:         c.Timeout,
			CredentialsFile: c.CredentialsFile,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return tts.Observe(s), nil
	case "mock", "":
		return tts.Observe(ttsmock.New()), nil
	default:
		return nil, fmt.Errorf("unknown TTS_PROVIDER %q", c.Provider)
	}
}

func (a *Application) newTranscoder() (codec.Transcoder, error) {
	c := a.Cfg.Transcode
	return codec.NewTranscoder(codec.TranscoderConfig{
		Kind:          c.Kind,
		FFmpegPath:    c.FFmpegPath,
		Timeout:       c.Timeout,
		MaxConcurrent: c.MaxConcurrent,
	})
}

// newStore opens Postgres when storage is enabled and otherwise logs rows.
func (a *Application) newStore(ctx context.Context) (storage.Store, error) {
	c := a.Cfg.Storage
	if !c.Enabled {
		a.Logger.Warn().Msg("Storage disabled, emergency records are only logged")
		return storage.NewLogStore(c.Table), nil
	}
	s, err := postgres.Open(ctx, postgres.Config{
		URL:         c.URL,
		Table:       c.Table,
		AutoMigrate: c.AutoMigrate,
		Timeout:     c.Timeout,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { s.Close(); return nil })
	return s, nil
}

func (a *Application) newArchiver(ctx context.Context) (recording.Archiver, error) {
	c := a.Cfg.Recording
	return recording.New(ctx, recording.Config{
		Sink:    c.Sink,
		Dir:     c.Dir,
		Bucket:  c.S3Bucket,
		Prefix:  c.S3Prefix,
		Region:  a.Cfg.TTS.Region,
		Timeout: a.Cfg.Storage.Timeout,
	})
}
