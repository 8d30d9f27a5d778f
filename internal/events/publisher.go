// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-voice-bridge-service/internal/observability/metrics"
)

// Publisher publishes call events to separate Kafka topics.
type Publisher struct {
	writerEmergency *kafka.Writer
	writerCall      *kafka.Writer
	principal       string
	topicEmergency  string
	topicCall       string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicEmergency string
	TopicCall      string
	Principal      string
	Enabled        bool
}

// New creates a Kafka event publisher. A nil or disabled config, or one
// without brokers, yields a publisher that only logs.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicEmergency: cfg.TopicEmergency,
			topicCall:      cfg.TopicCall,
			metrics:        m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicEmergency", cfg.TopicEmergency).
		Str("topicCall", cfg.TopicCall).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerEmergency: newWriter(cfg.Brokers, cfg.TopicEmergency, transport),
		writerCall:      newWriter(cfg.Brokers, cfg.TopicCall, transport),
		principal:       cfg.Principal,
		topicEmergency:  cfg.TopicEmergency,
		topicCall:       cfg.TopicCall,
		enabled:         true,
		metrics:         m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishEmergency publishes an emergency record event.
func (p *Publisher) PublishEmergency(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerEmergency, p.topicEmergency, "emergency", key, event)
}

// PublishCallCompleted publishes a call summary event.
func (p *Publisher) PublishCallCompleted(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerCall, p.topicCall, "call", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerEmergency != nil {
		if e := p.writerEmergency.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing emergency writer")
			err = e
		}
	}
	if p.writerCall != nil {
		if e := p.writerCall.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing call writer")
			err = e
		}
	}
	return err
}
