// Package config loads service configuration from the environment. A .env
// file in the working directory is read first when present; variables
// already set in the environment win.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Service       ServiceConfig
	Observability ObservabilityConfig
	Twilio        TwilioConfig
	Call          CallConfig
	STT           STTConfig
	LLM           LLMConfig
	TTS           TTSConfig
	Transcode     TranscodeConfig
	Reply         ReplyConfig
	Storage       StorageConfig
	Kafka         KafkaConfig
	Recording     RecordingConfig
}

type ServiceConfig struct {
	Name           string
	Env            string
	HTTPPort       string
	GRPCHealthPort string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// TwilioConfig shapes the call-setup webhook response.
type TwilioConfig struct {
	StreamURL   string
	Greeting    string
	Goodbye     string
	CallerField string // form field holding the caller's number
}

// CallConfig holds the per-session buffering and reply policy.
type CallConfig struct {
	TriggerBytes      int
	MaxBufferBytes    int
	MaxCallAudioBytes int
	Cooldown          time.Duration
	MaxCycles         int
	MarkName          string
	ClosingMessage    string
	BackendFallback   string
	FinalizeMode      string // residual, full
}

type STTConfig struct {
	Provider        string // google, mock
	LanguageCode    string
	Timeout         time.Duration
	MaxConcurrent   int
	CredentialsFile string
}

type LLMConfig struct {
	Provider          string // gemini, mock
	APIKey            string
	Model             string
	SystemInstruction string
	Timeout           time.Duration
	Temperature       float32
}

type TTSConfig struct {
	Provider        string // polly, google, mock
	Voice           string
	LanguageCode    string
	Timeout         time.Duration
	Region          string
	CredentialsFile string
}

type TranscodeConfig struct {
	Kind          string // auto, ffmpeg, native
	FFmpegPath    string
	Timeout       time.Duration
	MaxConcurrent int
}

type ReplyConfig struct {
	FallbackText string
}

type StorageConfig struct {
	Enabled     bool
	URL         string
	Table       string
	AutoMigrate bool
	Timeout     time.Duration
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicEmergency string
	TopicCall      string
	Principal      string
}

type RecordingConfig struct {
	Sink     string // none, file, s3
	Dir      string
	S3Bucket string
	S3Prefix string
}

// Load reads the configuration. Malformed numbers, booleans and durations
// fall back to their defaults.
func Load() *Config {
	_ = godotenv.Load()

	serviceName := envOrDefault("SERVICE_NAME", "ai-voice-bridge-service")
	googleCreds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")

	return &Config{
		Service: ServiceConfig{
			Name:           serviceName,
			Env:            envOrDefault("ENV", "dev"),
			HTTPPort:       envOrDefault("HTTP_PORT", "8080"),
			GRPCHealthPort: envOrDefault("GRPC_HEALTH_PORT", "50051"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		Twilio: TwilioConfig{
			StreamURL:   envOrDefault("TWILIO_WS_URL", "wss://localhost:8080/twilio/ws"),
			Greeting:    envOrDefault("TWILIO_GREETING", "Emergency assistance. Please describe your emergency and your location after the tone."),
			Goodbye:     envOrDefault("TWILIO_GOODBYE", "The call has ended. Goodbye."),
			CallerField: envOrDefault("TWILIO_CALLER_FIELD", "From"),
		},
		Call: CallConfig{
			TriggerBytes:      envOrDefaultInt("CALL_TRIGGER_BYTES", 30000),
			MaxBufferBytes:    envOrDefaultInt("CALL_MAX_BUFFER_BYTES", 240000),
			MaxCallAudioBytes: envOrDefaultInt("CALL_MAX_AUDIO_BYTES", 5*1024*1024),
			Cooldown:          envOrDefaultDuration("CALL_COOLDOWN", 30*time.Second),
			MaxCycles:         envOrDefaultInt("CALL_MAX_CYCLES", 2),
			MarkName:          envOrDefault("CALL_MARK_NAME", "message"),
			ClosingMessage:    envOrDefault("CALL_CLOSING_MESSAGE", "Thank you. Help is on the way. Please stay safe and keep your phone nearby."),
			BackendFallback:   envOrDefault("CALL_BACKEND_FALLBACK", "Sorry, I could not understand that. Please tell me your location and what happened."),
			FinalizeMode:      envOrDefault("CALL_FINALIZE_MODE", "residual"),
		},
		STT: STTConfig{
			Provider:        envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:    envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			Timeout:         envOrDefaultDuration("STT_TIMEOUT", 15*time.Second),
			MaxConcurrent:   envOrDefaultInt("STT_MAX_CONCURRENT", 0),
			CredentialsFile: googleCreds,
		},
		LLM: LLMConfig{
			Provider:          envOrDefault("LLM_PROVIDER", "mock"),
			APIKey:            os.Getenv("GEMINI_API_KEY"),
			Model:             envOrDefault("LLM_MODEL", "gemini-2.5-flash"),
			SystemInstruction: os.Getenv("LLM_SYSTEM_INSTRUCTION"),
			Timeout:           envOrDefaultDuration("LLM_TIMEOUT", 20*time.Second),
			Temperature:       float32(envOrDefaultFloat("LLM_TEMPERATURE", 1)),
		},
		TTS: TTSConfig{
			Provider:        envOrDefault("TTS_PROVIDER", "mock"),
			Voice:           os.Getenv("TTS_VOICE"),
			LanguageCode:    envOrDefault("TTS_LANGUAGE_CODE", "en-US"),
			Timeout:         envOrDefaultDuration("TTS_TIMEOUT", 15*time.Second),
			Region:          envOrDefault("AWS_REGION", "us-east-1"),
			CredentialsFile: googleCreds,
		},
		Transcode: TranscodeConfig{
			Kind:          envOrDefault("TRANSCODER", "auto"),
			FFmpegPath:    envOrDefault("FFMPEG_PATH", "ffmpeg"),
			Timeout:       envOrDefaultDuration("TRANSCODE_TIMEOUT", 10*time.Second),
			MaxConcurrent: envOrDefaultInt("TRANSCODE_MAX_CONCURRENT", 0),
		},
		Reply: ReplyConfig{
			FallbackText: envOrDefault("REPLY_FALLBACK_TEXT", "Sorry, I could not prepare a reply. Please stay on the line."),
		},
		Storage: StorageConfig{
			Enabled:     envOrDefaultBool("STORAGE_ENABLED", false),
			URL:         os.Getenv("DATABASE_URL"),
			Table:       envOrDefault("STORAGE_TABLE_NAME", "emergencies"),
			AutoMigrate: envOrDefaultBool("STORAGE_AUTO_MIGRATE", true),
			Timeout:     envOrDefaultDuration("STORAGE_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicEmergency: envOrDefault("KAFKA_TOPIC_EMERGENCY", "call.emergency.recorded"),
			TopicCall:      envOrDefault("KAFKA_TOPIC_CALL", "call.completed"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", serviceName),
		},
		Recording: RecordingConfig{
			Sink:     envOrDefault("RECORDING_SINK", "none"),
			Dir:      envOrDefault("RECORDING_DIR", "recordings"),
			S3Bucket: os.Getenv("RECORDING_S3_BUCKET"),
			S3Prefix: envOrDefault("RECORDING_S3_PREFIX", "calls"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return f
		}
	}
	return def
}

// envOrDefaultList splits a comma separated value, dropping blanks.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
