package events

import (
	"context"
	"testing"

	"ai-voice-bridge-service/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerEmergency != nil || p.writerCall != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:        true,
		Brokers:        []string{"localhost:9092"},
		TopicEmergency: "call.emergency.recorded",
		TopicCall:      "call.completed",
	})
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerEmergency.Topic != "call.emergency.recorded" || p.writerCall.Topic != "call.completed" {
		t.Errorf("unexpected topics: %s, %s", p.writerEmergency.Topic, p.writerCall.Topic)
	}
}

func TestPublisher_Disabled_Publish(t *testing.T) {
	p := New(&Config{Enabled: false, TopicEmergency: "e", TopicCall: "c", Principal: "svc"})

	loc := "Main St"
	if err := p.PublishEmergency(context.Background(), "sess-1", models.EmergencyRecorded{
		EventType: models.EventEmergencyRecorded,
		SessionID: "sess-1",
		Location:  &loc,
	}); err != nil {
		t.Errorf("PublishEmergency: %v", err)
	}

	if err := p.PublishCallCompleted(context.Background(), "sess-1", models.CallCompleted{
		EventType:  models.EventCallCompleted,
		SessionID:  "sess-1",
		Transcript: []models.Turn{{Speaker: "caller", Text: "help"}},
	}); err != nil {
		t.Errorf("PublishCallCompleted: %v", err)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.PublishEmergency(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable event")
	}
	if err := p.PublishCallCompleted(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	if err := New(&Config{Enabled: false}).Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
	if err := (&Publisher{}).Close(); err != nil {
		t.Errorf("expected no error closing zero publisher, got %v", err)
	}
}
